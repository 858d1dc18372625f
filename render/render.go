// Package render declares the document renderer boundary. The real
// renderer (a template engine producing DOCX/PDF binaries) lives
// outside this module; texttemplate.Renderer is a reference
// implementation that keeps the contract executable in tests and
// examples.
package render

import "context"

// Renderer fills a document template. data maps every tag the template
// expects to a scalar or a []map[string]string row list; missing tags
// render as empty by convention, never as an error.
type Renderer interface {
	Render(ctx context.Context, templateID string, data map[string]any) ([]byte, error)
}
