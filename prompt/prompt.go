// Package prompt renders the model prompts used across the pipeline.
// Components register their templates once at construction and render
// them per call with text/template.
package prompt

import (
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Template is one named prompt template.
type Template struct {
	Name     string
	Content  string
	template *template.Template
}

// NewTemplate parses content as a text/template.
func NewTemplate(name, content string) (*Template, error) {
	tmpl, err := template.New(name).Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template %s: %w", name, err)
	}
	return &Template{
		Name:     name,
		Content:  content,
		template: tmpl,
	}, nil
}

// Render fills the template with vars.
func (t *Template) Render(vars map[string]interface{}) (string, error) {
	var buf strings.Builder
	if err := t.template.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", t.Name, err)
	}
	return buf.String(), nil
}

// Manager holds a component's registered templates. Safe for
// concurrent use.
type Manager struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewManager creates an empty prompt manager.
func NewManager() *Manager {
	return &Manager{
		templates: make(map[string]*Template),
	}
}

// Register adds a template. Re-registering a name is an error.
func (m *Manager) Register(tmpl *Template) error {
	if tmpl.Name == "" {
		return fmt.Errorf("prompt template name cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.templates[tmpl.Name]; exists {
		return fmt.Errorf("prompt template %s already registered", tmpl.Name)
	}
	m.templates[tmpl.Name] = tmpl
	return nil
}

// RegisterString parses and registers a template from its body.
func (m *Manager) RegisterString(name, content string) error {
	tmpl, err := NewTemplate(name, content)
	if err != nil {
		return err
	}
	return m.Register(tmpl)
}

// Get retrieves a template by name.
func (m *Manager) Get(name string) (*Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tmpl, ok := m.templates[name]
	if !ok {
		return nil, fmt.Errorf("prompt template %s not found", name)
	}
	return tmpl, nil
}

// Render renders a registered template by name.
func (m *Manager) Render(name string, vars map[string]interface{}) (string, error) {
	tmpl, err := m.Get(name)
	if err != nil {
		return "", err
	}
	return tmpl.Render(vars)
}

// Builder assembles a prompt from parts.
type Builder struct {
	parts []string
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a part.
func (b *Builder) Add(part string) *Builder {
	b.parts = append(b.parts, part)
	return b
}

// AddFormat appends a formatted part.
func (b *Builder) AddFormat(format string, args ...interface{}) *Builder {
	b.parts = append(b.parts, fmt.Sprintf(format, args...))
	return b
}

// AddSection appends a titled section.
func (b *Builder) AddSection(title, content string) *Builder {
	b.parts = append(b.parts, fmt.Sprintf("## %s\n%s\n", title, content))
	return b
}

// Build concatenates the parts.
func (b *Builder) Build() string {
	return strings.Join(b.parts, "")
}
