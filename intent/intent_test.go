package intent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docdraft/docdraft/schema"
)

type fixedInvoker struct {
	response string
	err      error
	lastReq  string
}

func (f *fixedInvoker) Invoke(ctx context.Context, prompt string) (string, error) {
	f.lastReq = prompt
	return f.response, f.err
}

func testCatalog() *schema.Catalog {
	return schema.NewCatalog(&schema.TemplateSchema{
		ID:        "power-of-attorney",
		HumanName: "Power of attorney",
		Language:  "en",
		Fields: []schema.FieldSpec{
			{Kind: schema.KindScalar, Tag: "principal"},
		},
	})
}

func classify(t *testing.T, response string) Intent {
	t.Helper()
	c, err := NewClassifier(&fixedInvoker{response: response}, testCatalog())
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	out, err := c.Classify(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Intent
	}{
		{
			"small talk",
			`{"intent": "small_talk", "template_id": ""}`,
			Intent{Kind: SmallTalk},
		},
		{
			"start document",
			`{"intent": "start_document", "template_id": "power-of-attorney"}`,
			Intent{Kind: StartDocument, TemplateID: "power-of-attorney"},
		},
		{
			"cancel",
			`{"intent": "cancel"}`,
			Intent{Kind: Cancel},
		},
		{
			"query with fenced JSON",
			"```json\n{\"intent\": \"query\"}\n```",
			Intent{Kind: Query},
		},
		{
			"no JSON degrades to clarification",
			"I could not decide, sorry.",
			Intent{Kind: ClarificationNeeded},
		},
		{
			"unknown intent value degrades",
			`{"intent": "make_coffee"}`,
			Intent{Kind: ClarificationNeeded},
		},
		{
			"unknown template degrades",
			`{"intent": "start_document", "template_id": "missing"}`,
			Intent{Kind: ClarificationNeeded},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(t, tt.response)
			if got != tt.want {
				t.Errorf("Classify = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestClassifyTransportError(t *testing.T) {
	c, err := NewClassifier(&fixedInvoker{err: errors.New("boom")}, testCatalog())
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	if _, err := c.Classify(context.Background(), "hello"); err == nil {
		t.Fatal("expected transport error to surface")
	}
}

func TestClassifyPromptListsTemplates(t *testing.T) {
	inv := &fixedInvoker{response: `{"intent": "small_talk"}`}
	c, err := NewClassifier(inv, testCatalog())
	if err != nil {
		t.Fatalf("NewClassifier: %v", err)
	}
	if _, err := c.Classify(context.Background(), "Hello"); err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !strings.Contains(inv.lastReq, "power-of-attorney") {
		t.Error("prompt does not list catalog templates")
	}
	if !strings.Contains(inv.lastReq, "Hello") {
		t.Error("prompt does not carry the utterance")
	}
}
