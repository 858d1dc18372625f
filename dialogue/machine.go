package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	kberrors "github.com/docdraft/docdraft/errors"
	"github.com/docdraft/docdraft/extract"
	"github.com/docdraft/docdraft/history"
	"github.com/docdraft/docdraft/intent"
	"github.com/docdraft/docdraft/pkg/logging"
	"github.com/docdraft/docdraft/records"
	"github.com/docdraft/docdraft/render"
	"github.com/docdraft/docdraft/schema"
)

// ReplyKind tells the caller what the turn produced.
type ReplyKind string

const (
	// ReplyMessage is a plain chat message (small talk, clarification,
	// apologies).
	ReplyMessage ReplyKind = "message"
	// ReplyQuestion asks for the next field value.
	ReplyQuestion ReplyKind = "question"
	// ReplyDocument carries the rendered document of a completed
	// dialogue.
	ReplyDocument ReplyKind = "document"
	// ReplyDelegateQuery means the utterance is a general question the
	// caller should route to the knowledge base.
	ReplyDelegateQuery ReplyKind = "query"
)

// Reply is the outcome of one dialogue turn.
type Reply struct {
	Kind       ReplyKind
	Text       string
	Document   []byte
	TemplateID string
	RecordID   string
}

// IntentClassifier is the slice of the intent package the machine
// needs.
type IntentClassifier interface {
	Classify(ctx context.Context, utterance string) (intent.Intent, error)
}

// AnswerExtractor is the slice of the extract package the machine
// needs.
type AnswerExtractor interface {
	Extract(ctx context.Context, s *schema.TemplateSchema, field *schema.FieldSpec, question, utterance string) (*extract.Result, error)
}

// DefaultQuestionAttempts bounds failed extractions per question. After
// the bound the attempt counter resets and the question is re-asked
// plainly; collected data is never discarded by repeated failures.
const DefaultQuestionAttempts = 3

// Machine orchestrates classification, extraction and state mutation
// for one user turn. Turns for the same user are serialized; the state
// store remains the source of truth between turns.
type Machine struct {
	resolver   *schema.Resolver
	classifier IntentClassifier
	extractor  AnswerExtractor
	states     Store
	renderer   render.Renderer
	records    records.Store
	history    history.Store

	maxAttempts int
	logger      *slog.Logger
	tracer      trace.Tracer

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// MachineOption configures a Machine.
type MachineOption func(*Machine)

// WithHistory logs every dialogue turn to the history store.
func WithHistory(h history.Store) MachineOption {
	return func(m *Machine) { m.history = h }
}

// WithQuestionAttempts overrides the per-question failure bound.
func WithQuestionAttempts(n int) MachineOption {
	return func(m *Machine) { m.maxAttempts = n }
}

// NewMachine wires the dialogue machine.
func NewMachine(
	resolver *schema.Resolver,
	classifier IntentClassifier,
	extractor AnswerExtractor,
	states Store,
	renderer render.Renderer,
	recordStore records.Store,
	opts ...MachineOption,
) (*Machine, error) {
	if resolver == nil || classifier == nil || extractor == nil || states == nil || renderer == nil || recordStore == nil {
		return nil, fmt.Errorf("%w: machine requires resolver, classifier, extractor, state store, renderer and record store", kberrors.ErrInvalidInput)
	}
	m := &Machine{
		resolver:    resolver,
		classifier:  classifier,
		extractor:   extractor,
		states:      states,
		renderer:    renderer,
		records:     recordStore,
		maxAttempts: DefaultQuestionAttempts,
		logger:      logging.WithComponent("dialogue"),
		tracer:      otel.Tracer("docdraft/dialogue"),
		locks:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.maxAttempts <= 0 {
		return nil, fmt.Errorf("%w: question attempts must be positive", kberrors.ErrInvalidInput)
	}
	return m, nil
}

// Turn processes one utterance for one user. Concurrent turns for the
// same user are serialized across the whole load-mutate-save cycle.
func (m *Machine) Turn(ctx context.Context, userID, utterance string) (*Reply, error) {
	ctx, span := m.tracer.Start(ctx, "dialogue.turn",
		trace.WithAttributes(attribute.String("dialogue.user_id", userID)))
	defer span.End()

	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	state, err := m.states.Load(ctx, userID)
	if err != nil {
		if !errors.Is(err, kberrors.ErrNotFound) {
			return nil, fmt.Errorf("failed to load conversation state: %w", err)
		}
		state = NewState(userID)
	}

	reply, err := m.dispatch(ctx, state, utterance)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("dialogue.reply_kind", string(reply.Kind)))

	if reply.Kind != ReplyDelegateQuery {
		m.logTurn(ctx, userID, utterance, reply)
	}
	return reply, nil
}

func (m *Machine) dispatch(ctx context.Context, state *State, utterance string) (*Reply, error) {
	if state.Active() {
		return m.collect(ctx, state, utterance)
	}

	in, err := m.classifier.Classify(ctx, utterance)
	if err != nil {
		m.logger.Warn("intent classification unavailable", "user", state.UserID, "error", err)
		return &Reply{Kind: ReplyMessage, Text: msgApology("")}, nil
	}
	return m.handleIdleIntent(ctx, state, in, utterance)
}

func (m *Machine) handleIdleIntent(ctx context.Context, state *State, in intent.Intent, utterance string) (*Reply, error) {
	switch in.Kind {
	case intent.StartDocument:
		return m.start(ctx, state, in.TemplateID)
	case intent.SmallTalk:
		return &Reply{Kind: ReplyMessage, Text: msgGreeting(m.resolver.Catalog().List())}, nil
	case intent.Cancel:
		return &Reply{Kind: ReplyMessage, Text: msgNothingToCancel()}, nil
	case intent.Query:
		return &Reply{Kind: ReplyDelegateQuery, Text: utterance}, nil
	default:
		return &Reply{Kind: ReplyMessage, Text: msgClarification(m.resolver.Catalog().List())}, nil
	}
}

// start begins collecting for templateID and asks the first question.
func (m *Machine) start(ctx context.Context, state *State, templateID string) (*Reply, error) {
	s, err := m.resolver.Schema(templateID)
	if err != nil {
		m.logger.Warn("start for unknown template", "user", state.UserID, "template", templateID)
		return &Reply{Kind: ReplyMessage, Text: msgClarification(m.resolver.Catalog().List())}, nil
	}

	qs, err := m.resolver.Questions(ctx, templateID, "")
	if err != nil {
		// fatal for this request only, other users are unaffected
		m.logger.Error("failed to resolve questions", "user", state.UserID, "template", templateID, "error", err)
		return &Reply{Kind: ReplyMessage, Text: msgApology(s.Language)}, nil
	}

	state.Start(templateID)
	if err := m.states.Save(ctx, state); err != nil {
		m.logger.Error("failed to save conversation state", "user", state.UserID, "error", err)
		return &Reply{Kind: ReplyMessage, Text: msgApology(s.Language)}, nil
	}

	return &Reply{
		Kind:       ReplyQuestion,
		Text:       questionText(s.Language, qs[0]),
		TemplateID: templateID,
	}, nil
}

// collect runs one Collecting-state turn against the current field.
func (m *Machine) collect(ctx context.Context, state *State, utterance string) (*Reply, error) {
	s, err := m.resolver.Schema(state.ActiveTemplateID)
	if err != nil {
		// the catalog no longer knows this template, drop the dialogue
		m.logger.Warn("active template vanished from catalog", "user", state.UserID, "template", state.ActiveTemplateID)
		m.clearState(ctx, state)
		return &Reply{Kind: ReplyMessage, Text: msgClarification(m.resolver.Catalog().List())}, nil
	}

	if state.FieldIndex >= len(s.Fields) {
		// the state already has everything collected, treat it as
		// complete and retry the terminal step
		return m.finalize(ctx, state, s)
	}

	qs, err := m.resolver.Questions(ctx, state.ActiveTemplateID, "")
	if err != nil {
		m.logger.Error("failed to resolve questions", "user", state.UserID, "error", err)
		return &Reply{Kind: ReplyMessage, Text: msgApology(s.Language)}, nil
	}

	field := &s.Fields[state.FieldIndex]
	question := qs[state.FieldIndex]

	res, err := m.extractor.Extract(ctx, s, field, question.Question, utterance)
	if err != nil {
		// state untouched so the user can simply resend
		m.logger.Warn("extraction unavailable", "user", state.UserID, "tag", field.Tag, "error", err)
		return &Reply{Kind: ReplyMessage, Text: msgApology(s.Language)}, nil
	}

	switch {
	case res.IsIntentOverride():
		return m.handleOverride(ctx, state, utterance)
	case res.IsFailure():
		return m.handleFailure(ctx, state, s, question, res.Retry)
	default:
		return m.handleSuccess(ctx, state, s, qs, res.Data)
	}
}

// handleOverride abandons the dialogue and re-routes the utterance as
// a fresh intent.
func (m *Machine) handleOverride(ctx context.Context, state *State, utterance string) (*Reply, error) {
	lang := m.languageOf(state.ActiveTemplateID)
	m.clearState(ctx, state)

	in, err := m.classifier.Classify(ctx, utterance)
	if err != nil {
		m.logger.Warn("re-classification after override failed", "user", state.UserID, "error", err)
		return &Reply{Kind: ReplyMessage, Text: msgCancelled(lang)}, nil
	}
	if in.Kind == intent.Cancel {
		return &Reply{Kind: ReplyMessage, Text: msgCancelled(lang)}, nil
	}
	return m.handleIdleIntent(ctx, state, in, utterance)
}

// handleFailure re-asks the current question. The index never advances
// on failure; after maxAttempts the counter resets and the question is
// asked plainly.
func (m *Machine) handleFailure(ctx context.Context, state *State, s *schema.TemplateSchema, question schema.Question, retry string) (*Reply, error) {
	state.Attempts++
	text := msgRetryQuestion(retry, questionText(s.Language, question))
	if state.Attempts >= m.maxAttempts {
		state.Attempts = 0
		text = questionText(s.Language, question)
	}
	if err := m.states.Save(ctx, state); err != nil {
		m.logger.Error("failed to save conversation state", "user", state.UserID, "error", err)
	}
	return &Reply{Kind: ReplyQuestion, Text: text, TemplateID: s.ID}, nil
}

// handleSuccess merges the data, advances the index, and either asks
// the next question or completes the dialogue.
func (m *Machine) handleSuccess(ctx context.Context, state *State, s *schema.TemplateSchema, qs []schema.Question, data map[string]any) (*Reply, error) {
	state.Merge(data)
	state.FieldIndex++
	state.Attempts = 0

	if err := m.states.Save(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to save conversation state: %w", err)
	}

	if state.FieldIndex < len(s.Fields) {
		return &Reply{
			Kind:       ReplyQuestion,
			Text:       questionText(s.Language, qs[state.FieldIndex]),
			TemplateID: s.ID,
		}, nil
	}
	return m.finalize(ctx, state, s)
}

// finalize runs the terminal step: post-process, render, record, clear.
// The state is already persisted with the index past the last field, so
// a failure here is retryable: the next turn lands back in finalize
// without re-asking anything.
func (m *Machine) finalize(ctx context.Context, state *State, s *schema.TemplateSchema) (*Reply, error) {
	data := make(map[string]any, len(state.Collected))
	for k, v := range state.Collected {
		data[k] = v
	}
	postprocess(s, data)

	doc, err := m.renderer.Render(ctx, s.ID, data)
	if err != nil {
		m.logger.Error("document rendering failed", "user", state.UserID, "template", s.ID, "error", err)
		return &Reply{Kind: ReplyMessage, Text: msgApology(s.Language)}, nil
	}

	rec := records.NewRecord(state.UserID, s.ID, "")
	if err := m.records.Create(ctx, rec); err != nil {
		m.logger.Error("failed to persist document record", "user", state.UserID, "template", s.ID, "error", err)
		return &Reply{Kind: ReplyMessage, Text: msgApology(s.Language)}, nil
	}

	m.clearState(ctx, state)
	m.logger.Info("dialogue completed", "user", state.UserID, "template", s.ID, "record", rec.ID)

	return &Reply{
		Kind:       ReplyDocument,
		Text:       msgDocumentReady(s.Language),
		Document:   doc,
		TemplateID: s.ID,
		RecordID:   rec.ID,
	}, nil
}

func (m *Machine) clearState(ctx context.Context, state *State) {
	state.Clear()
	if err := m.states.Delete(ctx, state.UserID); err != nil {
		m.logger.Error("failed to clear conversation state", "user", state.UserID, "error", err)
	}
}

func (m *Machine) languageOf(templateID string) string {
	if s, err := m.resolver.Schema(templateID); err == nil {
		return s.Language
	}
	return ""
}

// logTurn appends both sides of the turn to the dialogue history,
// best-effort.
func (m *Machine) logTurn(ctx context.Context, userID, utterance string, reply *Reply) {
	if m.history == nil {
		return
	}
	now := time.Now()
	entries := []*history.Entry{
		{UserID: userID, Role: "user", Content: utterance, Channel: history.ChannelDialogue, CreatedAt: now},
		{UserID: userID, Role: "assistant", Content: reply.Text, Channel: history.ChannelDialogue, CreatedAt: now.Add(time.Millisecond)},
	}
	for _, e := range entries {
		if err := m.history.Append(ctx, e); err != nil {
			m.logger.Warn("failed to append dialogue history", "user", userID, "error", err)
			return
		}
	}
}

func (m *Machine) userLock(userID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	lock, ok := m.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[userID] = lock
	}
	return lock
}

func questionText(language string, q schema.Question) string {
	if q.Example == "" {
		return q.Question
	}
	if isRussian(language) {
		return fmt.Sprintf("%s\nНапример: %s", q.Question, q.Example)
	}
	return fmt.Sprintf("%s\nFor example: %s", q.Question, q.Example)
}
