// Package intent routes a free-form utterance to one of the dialogue
// entry intents. Classification ambiguity is deliberately non-fatal: a
// response without a JSON object means clarification is needed, never
// an error.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	kberrors "github.com/docdraft/docdraft/errors"
	"github.com/docdraft/docdraft/pkg/jsonx"
	"github.com/docdraft/docdraft/pkg/logging"
	"github.com/docdraft/docdraft/prompt"
	"github.com/docdraft/docdraft/schema"
)

// Kind is one of the routing outcomes.
type Kind string

const (
	StartDocument       Kind = "start_document"
	SmallTalk           Kind = "small_talk"
	Cancel              Kind = "cancel"
	Query               Kind = "query"
	ClarificationNeeded Kind = "clarification_needed"
)

// Intent is the classification result. TemplateID is set only for
// StartDocument.
type Intent struct {
	Kind       Kind
	TemplateID string
}

// Invoker is the slice of the model gateway the classifier needs.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

const classifyTemplate = `You route a user's message for a document-drafting assistant. Decide in strict priority order:

1. The message is only a greeting or pleasantry -> "small_talk".
2. The message explicitly cancels or abandons the current task -> "cancel".
3. The message is a question or complaint unrelated to creating a document -> "query".
4. The message names exactly one of the available templates -> "start_document" with that template's id.
5. The message wants to create some document but does not name one -> "clarification_needed".
6. Anything else -> "clarification_needed".

Available templates:
{{.Templates}}
User message:
{{.Utterance}}

Respond with ONLY one JSON object: {"intent": "...", "template_id": "..."} (template_id only for start_document, otherwise empty).`

// Classifier decides the intent of one utterance with a single model
// call.
type Classifier struct {
	model   Invoker
	catalog *schema.Catalog
	prompts *prompt.Manager
	logger  *slog.Logger
}

// NewClassifier creates a Classifier over the template catalog.
func NewClassifier(model Invoker, catalog *schema.Catalog) (*Classifier, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model is required", kberrors.ErrInvalidInput)
	}
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog is required", kberrors.ErrInvalidInput)
	}
	c := &Classifier{
		model:   model,
		catalog: catalog,
		prompts: prompt.NewManager(),
		logger:  logging.WithComponent("intent"),
	}
	if err := c.prompts.RegisterString("classify", classifyTemplate); err != nil {
		return nil, err
	}
	return c, nil
}

type classification struct {
	Intent     string `json:"intent"`
	TemplateID string `json:"template_id"`
}

// Classify routes the utterance. Model transport failures are returned
// as errors; malformed model output is not, it degrades to
// ClarificationNeeded.
func (c *Classifier) Classify(ctx context.Context, utterance string) (Intent, error) {
	p, err := c.prompts.Render("classify", map[string]interface{}{
		"Templates": c.describeTemplates(),
		"Utterance": utterance,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("failed to render classify prompt: %w", err)
	}

	raw, err := c.model.Invoke(ctx, p)
	if err != nil {
		return Intent{}, fmt.Errorf("intent classification failed: %w", err)
	}

	out, err := jsonx.Decode[classification](raw)
	if err != nil {
		c.logger.Debug("no usable JSON in classification output", "error", err)
		return Intent{Kind: ClarificationNeeded}, nil
	}

	switch Kind(out.Intent) {
	case SmallTalk, Cancel, Query, ClarificationNeeded:
		return Intent{Kind: Kind(out.Intent)}, nil
	case StartDocument:
		if !c.catalog.Has(out.TemplateID) {
			return Intent{Kind: ClarificationNeeded}, nil
		}
		return Intent{Kind: StartDocument, TemplateID: out.TemplateID}, nil
	default:
		return Intent{Kind: ClarificationNeeded}, nil
	}
}

func (c *Classifier) describeTemplates() string {
	var b strings.Builder
	for _, info := range c.catalog.List() {
		fmt.Fprintf(&b, "- id: %s, name: %s (%s)\n", info.ID, info.HumanName, info.Language)
	}
	if b.Len() == 0 {
		return "(none)\n"
	}
	return b.String()
}
