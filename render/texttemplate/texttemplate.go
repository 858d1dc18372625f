// Package texttemplate renders documents with text/template. It exists
// so the render contract has a working implementation inside the
// module; production deployments plug in their own engine.
package texttemplate

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"text/template"

	kberrors "github.com/docdraft/docdraft/errors"
)

// Renderer renders registered text/template bodies.
type Renderer struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
}

// New creates an empty Renderer.
func New() *Renderer {
	return &Renderer{templates: make(map[string]*template.Template)}
}

// Register parses and stores the template body under templateID.
func (r *Renderer) Register(templateID, body string) error {
	// missing tags render as empty, never as an error
	tmpl, err := template.New(templateID).Option("missingkey=zero").Parse(body)
	if err != nil {
		return fmt.Errorf("failed to parse document template %s: %w", templateID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[templateID] = tmpl
	return nil
}

// Render fills the registered template with data.
func (r *Renderer) Render(ctx context.Context, templateID string, data map[string]any) ([]byte, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[templateID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no document template %s", kberrors.ErrUnknownTemplate, templateID)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render document %s: %w", templateID, err)
	}
	// a missing key in a map[string]any still prints "<no value>"
	// under missingkey=zero; the contract wants empty
	out := bytes.ReplaceAll(buf.Bytes(), []byte("<no value>"), nil)
	return out, nil
}
