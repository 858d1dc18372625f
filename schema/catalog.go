package schema

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	kberrors "github.com/docdraft/docdraft/errors"
	"github.com/docdraft/docdraft/pkg/logging"
)

// Info is the read-only listing entry for one template.
type Info struct {
	ID        string
	HumanName string
	Language  string
}

// Catalog holds the validated template schemas. It is loaded once at
// startup and read-only afterwards.
type Catalog struct {
	schemas map[string]*TemplateSchema
	order   []string
	logger  *slog.Logger
}

// NewCatalog builds a catalog from pre-constructed schemas. Invalid
// schemas are logged and skipped, never fatal.
func NewCatalog(schemas ...*TemplateSchema) *Catalog {
	c := &Catalog{
		schemas: make(map[string]*TemplateSchema),
		logger:  logging.WithComponent("schema"),
	}
	for _, s := range schemas {
		c.add(s)
	}
	return c
}

// LoadCatalog reads every .yaml/.yml file under dir, one schema per
// file. Files that fail to parse or validate are logged and skipped so
// one bad template cannot take the catalog down.
func LoadCatalog(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog directory: %w", err)
	}

	c := NewCatalog()
	for _, entry := range entries {
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template file %s: %w", name, err)
		}
		var s TemplateSchema
		if err := yaml.Unmarshal(raw, &s); err != nil {
			c.logger.Warn("skipping unparseable template", "file", name, "error", err)
			continue
		}
		c.add(&s)
	}

	sort.Strings(c.order)
	return c, nil
}

func (c *Catalog) add(s *TemplateSchema) {
	if err := s.Validate(); err != nil {
		c.logger.Warn("skipping invalid template", "template", s.ID, "error", err)
		return
	}
	if _, exists := c.schemas[s.ID]; exists {
		c.logger.Warn("skipping duplicate template", "template", s.ID)
		return
	}
	c.schemas[s.ID] = s
	c.order = append(c.order, s.ID)
}

// Get returns the schema for templateID.
func (c *Catalog) Get(templateID string) (*TemplateSchema, error) {
	s, ok := c.schemas[templateID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", kberrors.ErrUnknownTemplate, templateID)
	}
	return s, nil
}

// Has reports whether templateID is registered.
func (c *Catalog) Has(templateID string) bool {
	_, ok := c.schemas[templateID]
	return ok
}

// List returns the catalog listing in load order.
func (c *Catalog) List() []Info {
	out := make([]Info, 0, len(c.order))
	for _, id := range c.order {
		s := c.schemas[id]
		out = append(out, Info{ID: s.ID, HumanName: s.HumanName, Language: s.Language})
	}
	return out
}
