package schema

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	kberrors "github.com/docdraft/docdraft/errors"
)

func scalar(tag, question, example string) FieldSpec {
	return FieldSpec{Kind: KindScalar, Tag: tag, Question: question, Example: example}
}

func testSchema() *TemplateSchema {
	return &TemplateSchema{
		ID:        "power-of-attorney",
		HumanName: "Power of attorney",
		Language:  "en",
		Fields: []FieldSpec{
			scalar("principal", "Who grants the authority?", "John Smith"),
			scalar("attorney", "Who receives the authority?", "Jane Doe"),
			{
				Kind: KindLoop,
				Tag:  "documents",
				Subfields: []Subfield{
					{Tag: "index", Label: "item number"},
					{Tag: "name", Label: "document name"},
					{Tag: "notes", Label: "copy or original"},
				},
			},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TemplateSchema)
		wantErr bool
	}{
		{"valid", func(s *TemplateSchema) {}, false},
		{"no fields", func(s *TemplateSchema) { s.Fields = nil }, true},
		{"empty id", func(s *TemplateSchema) { s.ID = "" }, true},
		{"duplicate tag", func(s *TemplateSchema) { s.Fields[1].Tag = "principal" }, true},
		{"loop without subfields", func(s *TemplateSchema) { s.Fields[2].Subfields = nil }, true},
		{"duplicate subfield tag", func(s *TemplateSchema) { s.Fields[2].Subfields[1].Tag = "index" }, true},
		{"scalar with subfields", func(s *TemplateSchema) {
			s.Fields[0].Subfields = []Subfield{{Tag: "x"}}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSchema()
			tt.mutate(s)
			err := s.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateInfersKind(t *testing.T) {
	s := &TemplateSchema{
		ID: "t",
		Fields: []FieldSpec{
			{Tag: "name"},
			{Tag: "rows", Subfields: []Subfield{{Tag: "a"}}},
		},
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if s.Fields[0].Kind != KindScalar {
		t.Errorf("field 0 kind = %q, want scalar", s.Fields[0].Kind)
	}
	if !s.Fields[1].IsLoop() {
		t.Errorf("field 1 not inferred as loop")
	}
}

func TestCatalogSkipsInvalid(t *testing.T) {
	dir := t.TempDir()
	good := `
id: invoice
human_name: Invoice
language: en
fields:
  - tag: customer
    question: Who is the customer?
    example: Acme Ltd
`
	bad := `
id: broken
human_name: Broken
fields: []
`
	garbage := `{{{not yaml`
	for name, content := range map[string]string{
		"invoice.yaml": good, "broken.yaml": bad, "garbage.yml": garbage,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	c, err := LoadCatalog(dir)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	list := c.List()
	if len(list) != 1 || list[0].ID != "invoice" {
		t.Fatalf("List = %+v, want only invoice", list)
	}
	if _, err := c.Get("broken"); !errors.Is(err, kberrors.ErrUnknownTemplate) {
		t.Errorf("Get(broken) = %v, want ErrUnknownTemplate", err)
	}
}

type scriptedInvoker struct {
	responses []string
	errs      []error
	calls     int
}

func (s *scriptedInvoker) Invoke(ctx context.Context, prompt string) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("script exhausted")
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func newTestResolver(t *testing.T, inv Invoker) *Resolver {
	t.Helper()
	r, err := NewResolver(NewCatalog(testSchema()), inv, WithSleep(noSleep))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r
}

const goodSynthesis = `[
  {"tag": "principal", "question": "Who grants the authority?", "example": "John Smith"},
  {"tag": "attorney", "question": "Who receives it?", "example": "Jane Doe"},
  {"tag": "documents", "question": "List every document: number, name, and whether it is a copy or original.", "example": "1. Technical passport, copy. 2. Project docs, original."}
]`

func TestQuestionsSynthesizesOnePerLoop(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{goodSynthesis}}
	r := newTestResolver(t, inv)

	qs, err := r.Questions(context.Background(), "power-of-attorney", "")
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if len(qs) != 3 {
		t.Fatalf("got %d questions, want 3 (loop must collapse to one)", len(qs))
	}
	for _, q := range qs {
		if q.Example == "" {
			t.Errorf("question %q has empty example", q.Tag)
		}
	}
	if qs[2].Tag != "documents" {
		t.Errorf("loop question tag = %q", qs[2].Tag)
	}
}

func TestQuestionsAuthoredPassThrough(t *testing.T) {
	s := &TemplateSchema{
		ID: "simple",
		Fields: []FieldSpec{
			scalar("name", "Your name?", "Ivan"),
		},
	}
	inv := &scriptedInvoker{}
	r, err := NewResolver(NewCatalog(s), inv, WithSleep(noSleep))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	qs, err := r.Questions(context.Background(), "simple", "")
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if inv.calls != 0 {
		t.Errorf("authored questions triggered %d model calls", inv.calls)
	}
	if qs[0].Question != "Your name?" {
		t.Errorf("question = %q", qs[0].Question)
	}
}

func TestQuestionsRetriesThenFails(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{"no json here", "[]", `{"tag": "wrong shape"}`}}
	r := newTestResolver(t, inv)

	_, err := r.Questions(context.Background(), "power-of-attorney", "")
	if !errors.Is(err, kberrors.ErrSchemaSynthesis) {
		t.Fatalf("err = %v, want ErrSchemaSynthesis", err)
	}
	if inv.calls != 3 {
		t.Errorf("made %d attempts, want 3", inv.calls)
	}
}

func TestQuestionsRecoversOnRetry(t *testing.T) {
	inv := &scriptedInvoker{responses: []string{"garbage", goodSynthesis}}
	r := newTestResolver(t, inv)

	qs, err := r.Questions(context.Background(), "power-of-attorney", "")
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if len(qs) != 3 || inv.calls != 2 {
		t.Errorf("got %d questions after %d calls", len(qs), inv.calls)
	}
}

func TestQuestionsUnknownTemplate(t *testing.T) {
	r := newTestResolver(t, &scriptedInvoker{})
	_, err := r.Questions(context.Background(), "nope", "")
	if !errors.Is(err, kberrors.ErrUnknownTemplate) {
		t.Fatalf("err = %v, want ErrUnknownTemplate", err)
	}
}

func TestQuestionsRejectsEmptyExample(t *testing.T) {
	bad := `[
  {"tag": "principal", "question": "Who grants?", "example": ""},
  {"tag": "attorney", "question": "Who receives?", "example": "x"},
  {"tag": "documents", "question": "List documents", "example": "x"}
]`
	inv := &scriptedInvoker{responses: []string{bad, bad, bad}}
	r := newTestResolver(t, inv)
	_, err := r.Questions(context.Background(), "power-of-attorney", "")
	if !errors.Is(err, kberrors.ErrSchemaSynthesis) {
		t.Fatalf("err = %v, want ErrSchemaSynthesis", err)
	}
}
