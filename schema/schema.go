// Package schema defines document template schemas: the ordered field
// specifications a dialogue walks through, loaded from a static YAML
// catalog, plus the resolver that turns a schema into the questions
// asked of the user.
package schema

import (
	"fmt"

	kberrors "github.com/docdraft/docdraft/errors"
)

// FieldKind discriminates the FieldSpec variant.
type FieldKind string

const (
	// KindScalar is a single named value.
	KindScalar FieldKind = "scalar"
	// KindLoop is a repeating group of structurally identical rows.
	KindLoop FieldKind = "loop"
)

// Subfield is one column of a repeating group.
type Subfield struct {
	Tag   string `yaml:"tag" json:"tag"`
	Label string `yaml:"label" json:"label"`
}

// FieldSpec is a tagged variant: a scalar slot or a repeating group.
// The variant is resolved once at load time via Validate, never
// re-inspected ad hoc.
type FieldSpec struct {
	Kind      FieldKind  `yaml:"kind" json:"kind"`
	Tag       string     `yaml:"tag" json:"tag"`
	Question  string     `yaml:"question,omitempty" json:"question,omitempty"`
	Example   string     `yaml:"example,omitempty" json:"example,omitempty"`
	Subfields []Subfield `yaml:"subfields,omitempty" json:"subfields,omitempty"`

	// Derive marks post-processing applied after collection. The only
	// supported value is DeriveDateParts, which splits a free-text date
	// into <tag>_day, <tag>_month and <tag>_year for the renderer.
	Derive string `yaml:"derive,omitempty" json:"derive,omitempty"`
}

// DeriveDateParts is the Derive marker for date splitting.
const DeriveDateParts = "date_parts"

// IsLoop reports whether the field is a repeating group.
func (f *FieldSpec) IsLoop() bool {
	return f.Kind == KindLoop
}

// TemplateSchema is the immutable definition of one document template.
type TemplateSchema struct {
	ID        string      `yaml:"id" json:"id"`
	HumanName string      `yaml:"human_name" json:"human_name"`
	Language  string      `yaml:"language" json:"language"`
	Fields    []FieldSpec `yaml:"fields" json:"fields"`
}

// Validate checks structural invariants: a non-empty field list,
// unique tags, and well-formed variants. Missing kinds are inferred
// from the presence of subfields.
func (s *TemplateSchema) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: template id is empty", kberrors.ErrInvalidInput)
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("%w: template %s declares no fields", kberrors.ErrInvalidInput, s.ID)
	}

	seen := make(map[string]bool, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Tag == "" {
			return fmt.Errorf("%w: template %s field %d has no tag", kberrors.ErrInvalidInput, s.ID, i)
		}
		if seen[f.Tag] {
			return fmt.Errorf("%w: template %s duplicates tag %q", kberrors.ErrInvalidInput, s.ID, f.Tag)
		}
		seen[f.Tag] = true

		if f.Kind == "" {
			if len(f.Subfields) > 0 {
				f.Kind = KindLoop
			} else {
				f.Kind = KindScalar
			}
		}

		if f.Derive != "" && f.Derive != DeriveDateParts {
			return fmt.Errorf("%w: template %s field %q has unknown derive %q", kberrors.ErrInvalidInput, s.ID, f.Tag, f.Derive)
		}

		switch f.Kind {
		case KindScalar:
			if len(f.Subfields) > 0 {
				return fmt.Errorf("%w: template %s scalar %q declares subfields", kberrors.ErrInvalidInput, s.ID, f.Tag)
			}
		case KindLoop:
			if len(f.Subfields) == 0 {
				return fmt.Errorf("%w: template %s loop %q has no subfields", kberrors.ErrInvalidInput, s.ID, f.Tag)
			}
			sub := make(map[string]bool, len(f.Subfields))
			for _, sf := range f.Subfields {
				if sf.Tag == "" {
					return fmt.Errorf("%w: template %s loop %q has an untagged subfield", kberrors.ErrInvalidInput, s.ID, f.Tag)
				}
				if sub[sf.Tag] {
					return fmt.Errorf("%w: template %s loop %q duplicates subfield %q", kberrors.ErrInvalidInput, s.ID, f.Tag, sf.Tag)
				}
				sub[sf.Tag] = true
			}
		default:
			return fmt.Errorf("%w: template %s field %q has unknown kind %q", kberrors.ErrInvalidInput, s.ID, f.Tag, f.Kind)
		}
	}
	return nil
}

// Field returns the field with the given tag.
func (s *TemplateSchema) Field(tag string) (*FieldSpec, bool) {
	for i := range s.Fields {
		if s.Fields[i].Tag == tag {
			return &s.Fields[i], true
		}
	}
	return nil, false
}
