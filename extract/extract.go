// Package extract converts one free-form user answer into the value of
// the field currently being collected: a single scalar, or ordered rows
// for a repeating group. The extractor also detects when the utterance
// is not an answer at all but an intent override ("cancel").
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	kberrors "github.com/docdraft/docdraft/errors"
	"github.com/docdraft/docdraft/pkg/jsonx"
	"github.com/docdraft/docdraft/pkg/logging"
	"github.com/docdraft/docdraft/prompt"
	"github.com/docdraft/docdraft/schema"
)

// Result is a tagged variant: exactly one of Data, Intent or Retry is
// set. Data maps the field tag to a string (scalar) or to
// []map[string]string rows (loop).
type Result struct {
	Data   map[string]any
	Intent string
	Retry  string
}

// IsSuccess reports whether extraction produced field data.
func (r *Result) IsSuccess() bool { return r.Data != nil }

// IsIntentOverride reports whether the utterance turned out to be a
// command rather than an answer.
func (r *Result) IsIntentOverride() bool { return r.Intent != "" }

// IsFailure reports whether the question must be re-asked with Retry
// prefixed.
func (r *Result) IsFailure() bool { return !r.IsSuccess() && !r.IsIntentOverride() }

// Invoker is the slice of the model gateway the extractor needs.
type Invoker interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

const scalarTemplate = `You extract one field value from a user's answer while filling a document.

Field tag: {{.Tag}}
Question the user was asked:
{{.Question}}
User's answer:
{{.Utterance}}

Rules:
- Extract ONLY the value answering the question, as a single string.
- If the answer is irrelevant, empty, or does not contain the value, return {"data": {}}; never invent a value.
- If the user is issuing a command instead of answering (cancelling, changing topic, asking to start over), return {"intent": "cancel"} or the matching intent word.
- Respond with ONLY one JSON object: {"data": {"{{.Tag}}": "..."}} or {"intent": "..."}.`

const loopTemplate = `You extract a table of rows from a user's answer while filling a document.

Repeating group tag: {{.Tag}}
Columns, in order: {{.Columns}}
Question the user was asked:
{{.Question}}
User's answer:
{{.Utterance}}

Rules:
- Split the answer into one row per enumerated item.
- Map each item's parts onto the columns positionally and by meaning. Example: "1. Technical passport, copy." with columns index, name, notes gives {"index": "1", "name": "Technical passport", "notes": "copy"}.
- Every cell is a string. Leave a cell empty only when the item genuinely lacks that part.
- If the answer contains no enumerable items, return {"data": {}}; never invent rows.
- If the user is issuing a command instead of answering, return {"intent": "..."}.
- Respond with ONLY one JSON object: {"data": {"{{.Tag}}": [{...}, ...]}} or {"intent": "..."}.`

// Extractor turns answers into structured field data.
type Extractor struct {
	model   Invoker
	prompts *prompt.Manager
	logger  *slog.Logger
}

// New creates an Extractor.
func New(model Invoker) (*Extractor, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model is required", kberrors.ErrInvalidInput)
	}
	e := &Extractor{
		model:   model,
		prompts: prompt.NewManager(),
		logger:  logging.WithComponent("extract"),
	}
	if err := e.prompts.RegisterString("scalar", scalarTemplate); err != nil {
		return nil, err
	}
	if err := e.prompts.RegisterString("loop", loopTemplate); err != nil {
		return nil, err
	}
	return e, nil
}

type modelOutput struct {
	Data   map[string]json.RawMessage `json:"data"`
	Intent string                     `json:"intent"`
}

// Extract runs the model against the current field and classifies the
// outcome. Transport errors surface as errors; everything else becomes
// a typed Result.
func (e *Extractor) Extract(ctx context.Context, s *schema.TemplateSchema, field *schema.FieldSpec, question, utterance string) (*Result, error) {
	var (
		name = "scalar"
		vars = map[string]interface{}{
			"Tag":       field.Tag,
			"Question":  question,
			"Utterance": utterance,
		}
	)
	if field.IsLoop() {
		name = "loop"
		cols := make([]string, 0, len(field.Subfields))
		for _, sf := range field.Subfields {
			col := sf.Tag
			if sf.Label != "" {
				col = fmt.Sprintf("%s (%s)", sf.Tag, sf.Label)
			}
			cols = append(cols, col)
		}
		vars["Columns"] = strings.Join(cols, ", ")
	}

	p, err := e.prompts.Render(name, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to render extraction prompt: %w", err)
	}
	raw, err := e.model.Invoke(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}

	out, err := jsonx.Decode[modelOutput](raw)
	if err != nil {
		e.logger.Debug("no usable JSON in extraction output", "tag", field.Tag, "error", err)
		return &Result{Retry: retryMessage(s.Language)}, nil
	}
	if out.Intent != "" {
		return &Result{Intent: out.Intent}, nil
	}

	if field.IsLoop() {
		return e.loopResult(s, field, out)
	}
	return e.scalarResult(s, field, out)
}

func (e *Extractor) scalarResult(s *schema.TemplateSchema, field *schema.FieldSpec, out *modelOutput) (*Result, error) {
	raw, ok := out.Data[field.Tag]
	if !ok {
		return &Result{Retry: retryMessage(s.Language)}, nil
	}
	value, err := decodeCell(raw)
	if err != nil || strings.TrimSpace(value) == "" {
		return &Result{Retry: retryMessage(s.Language)}, nil
	}
	return &Result{Data: map[string]any{field.Tag: value}}, nil
}

func (e *Extractor) loopResult(s *schema.TemplateSchema, field *schema.FieldSpec, out *modelOutput) (*Result, error) {
	raw, ok := out.Data[field.Tag]
	if !ok {
		return &Result{Retry: retryMessage(s.Language)}, nil
	}
	var rawRows []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &rawRows); err != nil || len(rawRows) == 0 {
		return &Result{Retry: retryMessage(s.Language)}, nil
	}

	allowed := make(map[string]bool, len(field.Subfields))
	for _, sf := range field.Subfields {
		allowed[sf.Tag] = true
	}

	rows := make([]map[string]string, 0, len(rawRows))
	for _, rr := range rawRows {
		row := make(map[string]string, len(field.Subfields))
		for k, v := range rr {
			if !allowed[k] {
				continue
			}
			cell, err := decodeCell(v)
			if err != nil {
				return &Result{Retry: retryMessage(s.Language)}, nil
			}
			row[k] = cell
		}
		if len(row) == 0 {
			return &Result{Retry: retryMessage(s.Language)}, nil
		}
		rows = append(rows, row)
	}
	return &Result{Data: map[string]any{field.Tag: rows}}, nil
}

// decodeCell accepts strings and bare JSON primitives, rendering the
// latter as their literal text.
func decodeCell(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch v.(type) {
	case map[string]any, []any:
		return "", fmt.Errorf("%w: cell is not a scalar", kberrors.ErrMalformedOutput)
	case nil:
		return "", nil
	default:
		return fmt.Sprint(v), nil
	}
}

func retryMessage(language string) string {
	if strings.HasPrefix(strings.ToLower(language), "ru") {
		return "Не удалось разобрать ответ. Пожалуйста, ответьте на заданный вопрос."
	}
	return "I couldn't find the answer in that. Please answer the question asked."
}
