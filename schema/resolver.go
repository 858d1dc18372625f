package schema

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	kberrors "github.com/docdraft/docdraft/errors"
	"github.com/docdraft/docdraft/pkg/jsonx"
	"github.com/docdraft/docdraft/pkg/logging"
	"github.com/docdraft/docdraft/prompt"
)

// Invoker is the slice of the model gateway the resolver needs.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Question is one question the dialogue will ask, in field order. A
// repeating group always collapses into exactly one Question.
type Question struct {
	Tag      string `json:"tag"`
	Question string `json:"question"`
	Example  string `json:"example"`
}

const questionSynthesisTemplate = `You prepare interview questions for filling a document template.

Document structure ({{.Count}} logical units, in order):
{{.Structure}}
{{if .Preview}}
Document preview:
{{.Preview}}
{{end}}
Rules:
- Produce exactly one question per logical unit, in the order given.
- For a repeating group, ask ONE consolidated question that tells the user to enumerate every row and give each listed sub-field per row.
- Every question must carry a concrete example answer. The example must never be empty.
- Respond with ONLY a JSON array of objects: [{"tag": "...", "question": "...", "example": "..."}]. No other text.`

// Resolver maps a template identifier to the ordered questions asked
// during collection. Pre-authored questions pass through untouched;
// schemas without authored questions are synthesized through the model
// gateway with parse-validate-retry.
type Resolver struct {
	catalog     *Catalog
	model       Invoker
	prompts     *prompt.Manager
	maxAttempts int
	retryDelay  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger

	cacheMu sync.RWMutex
	cache   map[string][]Question
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithSynthesisAttempts sets how many times malformed synthesis output
// is retried before ErrSchemaSynthesis.
func WithSynthesisAttempts(n int) ResolverOption {
	return func(r *Resolver) { r.maxAttempts = n }
}

// WithRetryDelay sets the pause between synthesis retries.
func WithRetryDelay(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.retryDelay = d }
}

// WithSleep replaces the retry pause, for tests.
func WithSleep(f func(ctx context.Context, d time.Duration) error) ResolverOption {
	return func(r *Resolver) { r.sleep = f }
}

// NewResolver creates a Resolver over the given catalog and model.
func NewResolver(catalog *Catalog, model Invoker, opts ...ResolverOption) (*Resolver, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog is required", kberrors.ErrInvalidInput)
	}
	if model == nil {
		return nil, fmt.Errorf("%w: model is required", kberrors.ErrInvalidInput)
	}
	r := &Resolver{
		catalog:     catalog,
		model:       model,
		prompts:     prompt.NewManager(),
		maxAttempts: 3,
		retryDelay:  500 * time.Millisecond,
		logger:      logging.WithComponent("schema.resolver"),
		cache:       make(map[string][]Question),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.sleep == nil {
		r.sleep = func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		}
	}
	if err := r.prompts.RegisterString("question_synthesis", questionSynthesisTemplate); err != nil {
		return nil, err
	}
	return r, nil
}

// Schema returns the schema for templateID.
func (r *Resolver) Schema(templateID string) (*TemplateSchema, error) {
	return r.catalog.Get(templateID)
}

// Catalog exposes the underlying template catalog.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Questions returns the ordered question list for templateID. preview
// is an optional rendered sample of the target document handed to the
// synthesis prompt.
func (r *Resolver) Questions(ctx context.Context, templateID, preview string) ([]Question, error) {
	s, err := r.catalog.Get(templateID)
	if err != nil {
		return nil, err
	}
	if qs, ok := authoredQuestions(s); ok {
		return qs, nil
	}

	r.cacheMu.RLock()
	qs, ok := r.cache[s.ID]
	r.cacheMu.RUnlock()
	if ok {
		return qs, nil
	}

	qs, err = r.synthesize(ctx, s, preview)
	if err != nil {
		return nil, err
	}
	r.cacheMu.Lock()
	r.cache[s.ID] = qs
	r.cacheMu.Unlock()
	return qs, nil
}

// authoredQuestions passes through hand-written questions when every
// field carries one, including a non-empty example.
func authoredQuestions(s *TemplateSchema) ([]Question, bool) {
	qs := make([]Question, 0, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Question == "" || f.Example == "" {
			return nil, false
		}
		qs = append(qs, Question{Tag: f.Tag, Question: f.Question, Example: f.Example})
	}
	return qs, true
}

func (r *Resolver) synthesize(ctx context.Context, s *TemplateSchema, preview string) ([]Question, error) {
	p, err := r.prompts.Render("question_synthesis", map[string]interface{}{
		"Count":     len(s.Fields),
		"Structure": describeFields(s),
		"Preview":   preview,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render synthesis prompt: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			if err := r.sleep(ctx, r.retryDelay); err != nil {
				return nil, err
			}
		}

		raw, err := r.model.Invoke(ctx, p)
		if err != nil {
			lastErr = err
			r.logger.Warn("question synthesis call failed", "template", s.ID, "attempt", attempt, "error", err)
			continue
		}
		qs, err := parseQuestions(raw, s)
		if err != nil {
			lastErr = err
			r.logger.Warn("question synthesis output rejected", "template", s.ID, "attempt", attempt, "error", err)
			continue
		}
		return qs, nil
	}
	return nil, fmt.Errorf("%w: template %s: %v", kberrors.ErrSchemaSynthesis, s.ID, lastErr)
}

func parseQuestions(raw string, s *TemplateSchema) ([]Question, error) {
	qs, err := jsonx.Decode[[]Question](raw)
	if err != nil {
		return nil, err
	}
	if len(*qs) != len(s.Fields) {
		return nil, fmt.Errorf("%w: got %d questions for %d fields", kberrors.ErrMalformedOutput, len(*qs), len(s.Fields))
	}
	for i, q := range *qs {
		if q.Tag != s.Fields[i].Tag {
			return nil, fmt.Errorf("%w: question %d tagged %q, want %q", kberrors.ErrMalformedOutput, i, q.Tag, s.Fields[i].Tag)
		}
		if q.Question == "" {
			return nil, fmt.Errorf("%w: empty question for %q", kberrors.ErrMalformedOutput, q.Tag)
		}
		if q.Example == "" {
			return nil, fmt.Errorf("%w: empty example for %q", kberrors.ErrMalformedOutput, q.Tag)
		}
	}
	return *qs, nil
}

func describeFields(s *TemplateSchema) string {
	b := prompt.NewBuilder()
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.IsLoop() {
			tags := make([]string, 0, len(f.Subfields))
			for _, sf := range f.Subfields {
				label := sf.Tag
				if sf.Label != "" {
					label = fmt.Sprintf("%s (%s)", sf.Tag, sf.Label)
				}
				tags = append(tags, label)
			}
			b.AddFormat("- %q: repeating group containing fields: %s\n", f.Tag, strings.Join(tags, ", "))
		} else {
			b.AddFormat("- %q: single value\n", f.Tag)
		}
	}
	return b.Build()
}
