// Package rag answers free-form questions grounded in the knowledge
// index: retrieve the closest chunks, compose a grounded prompt, invoke
// the model, clean the output. An empty index degrades to general
// domain knowledge instead of refusing to answer.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	kberrors "github.com/docdraft/docdraft/errors"
	"github.com/docdraft/docdraft/history"
	"github.com/docdraft/docdraft/knowledge"
	"github.com/docdraft/docdraft/pkg/logging"
	"github.com/docdraft/docdraft/prompt"
)

// DefaultTopK is how many chunks back an answer.
const DefaultTopK = 4

// Searcher is the slice of the knowledge index the answerer needs.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) ([]knowledge.Chunk, error)
}

// Invoker is the slice of the model gateway the answerer needs.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

const defaultPersona = `You are a knowledgeable, friendly assistant for a document-drafting service. You answer questions about document requirements, procedures and the service itself. Answer in the language the question was asked in. Answer in plain sentences without markdown markup.`

const answerTemplate = `{{.Persona}}

{{if .Context}}Context from the knowledge base:
{{.Context}}
Ground every claim in the context above. If the context does not cover the question, say what the context does cover and answer the rest from general knowledge, marked as such.
{{else}}The knowledge base returned nothing for this question. Answer from general domain knowledge.
{{end}}{{if .History}}Recent conversation:
{{.History}}
{{end}}Question:
{{.Question}}`

// Answerer serves the Q&A path.
type Answerer struct {
	index   Searcher
	model   Invoker
	history history.Store
	prompts *prompt.Manager

	topK         int
	persona      string
	historyLimit int
	logger       *slog.Logger
	tracer       trace.Tracer
}

// Option configures an Answerer.
type Option func(*Answerer)

// WithIndex attaches the knowledge index. Without one the answerer
// always runs in empty-context mode.
func WithIndex(s Searcher) Option {
	return func(a *Answerer) { a.index = s }
}

// WithTopK sets how many chunks are retrieved per question.
func WithTopK(k int) Option {
	return func(a *Answerer) { a.topK = k }
}

// WithPersona replaces the system persona.
func WithPersona(p string) Option {
	return func(a *Answerer) { a.persona = p }
}

// WithHistory logs Q&A turns and feeds recent ones back into prompts.
func WithHistory(h history.Store) Option {
	return func(a *Answerer) { a.history = h }
}

// WithHistoryLimit bounds how many past messages enter the prompt.
func WithHistoryLimit(n int) Option {
	return func(a *Answerer) { a.historyLimit = n }
}

// NewAnswerer creates an Answerer over the model gateway.
func NewAnswerer(model Invoker, opts ...Option) (*Answerer, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model is required", kberrors.ErrInvalidInput)
	}
	a := &Answerer{
		model:        model,
		prompts:      prompt.NewManager(),
		topK:         DefaultTopK,
		persona:      defaultPersona,
		historyLimit: history.DefaultRecentLimit,
		logger:       logging.WithComponent("rag"),
		tracer:       otel.Tracer("docdraft/rag"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", kberrors.ErrInvalidInput)
	}
	if err := a.prompts.RegisterString("answer", answerTemplate); err != nil {
		return nil, err
	}
	return a, nil
}

// Answer responds to one question for one user. Retrieval and history
// failures degrade rather than fail; only a model transport failure
// surfaces as an error.
func (a *Answerer) Answer(ctx context.Context, userID, question string) (string, error) {
	ctx, span := a.tracer.Start(ctx, "rag.answer",
		trace.WithAttributes(attribute.String("rag.user_id", userID)))
	defer span.End()

	contextText := a.retrieve(ctx, question)
	span.SetAttributes(attribute.Bool("rag.empty_context", contextText == ""))

	p, err := a.prompts.Render("answer", map[string]interface{}{
		"Persona":  a.persona,
		"Context":  contextText,
		"History":  a.recentHistory(ctx, userID),
		"Question": question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render answer prompt: %w", err)
	}

	raw, err := a.model.Invoke(ctx, p)
	if err != nil {
		return "", fmt.Errorf("answer generation failed: %w", err)
	}
	answer := StripMarkup(raw)

	a.logTurn(ctx, userID, question, answer)
	return answer, nil
}

func (a *Answerer) retrieve(ctx context.Context, question string) string {
	if a.index == nil {
		return ""
	}
	chunks, err := a.index.Search(ctx, question, a.topK)
	if err != nil {
		// degraded mode, not a refusal
		a.logger.Warn("knowledge retrieval failed, answering without context", "error", err)
		return ""
	}
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, ch := range chunks {
		fmt.Fprintf(&b, "[%d] (%s)\n%s\n\n", i+1, ch.Source, ch.Text)
	}
	return b.String()
}

func (a *Answerer) recentHistory(ctx context.Context, userID string) string {
	if a.history == nil {
		return ""
	}
	entries, err := a.history.Recent(ctx, userID, history.ChannelQA, a.historyLimit)
	if err != nil {
		a.logger.Warn("failed to load QA history", "user", userID, "error", err)
		return ""
	}
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Content)
	}
	return b.String()
}

func (a *Answerer) logTurn(ctx context.Context, userID, question, answer string) {
	if a.history == nil {
		return
	}
	now := time.Now()
	entries := []*history.Entry{
		{UserID: userID, Role: "user", Content: question, Channel: history.ChannelQA, CreatedAt: now},
		{UserID: userID, Role: "assistant", Content: answer, Channel: history.ChannelQA, CreatedAt: now.Add(time.Millisecond)},
	}
	for _, e := range entries {
		if err := a.history.Append(ctx, e); err != nil {
			a.logger.Warn("failed to append QA history", "user", userID, "error", err)
			return
		}
	}
}

var markupReplacer = strings.NewReplacer(
	"**", "",
	"__", "",
	"```", "",
	"`", "",
	"###", "",
	"##", "",
	"#", "",
	"*", "",
)

// StripMarkup removes structural markdown characters models sprinkle
// into chat answers.
func StripMarkup(text string) string {
	return strings.TrimSpace(markupReplacer.Replace(text))
}
