package extract

import (
	"context"
	"errors"
	"reflect"
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

var testSchema = &schema.TemplateSchema{
	ID:       "power-of-attorney",
	Language: "en",
	Fields: []schema.FieldSpec{
		{Kind: schema.KindScalar, Tag: "principal"},
		{
			Kind: schema.KindLoop,
			Tag:  "documents",
			Subfields: []schema.Subfield{
				{Tag: "index"},
				{Tag: "name"},
				{Tag: "notes"},
			},
		},
	},
}

func run(t *testing.T, fieldTag, question, utterance, response string) *Result {
	t.Helper()
	e, err := New(&fixedInvoker{response: response})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	field, ok := testSchema.Field(fieldTag)
	if !ok {
		t.Fatalf("unknown field %q", fieldTag)
	}
	res, err := e.Extract(context.Background(), testSchema, field, question, utterance)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	return res
}

func TestExtractScalar(t *testing.T) {
	res := run(t, "principal", "Who grants the authority?", "That would be John Smith",
		`{"data": {"principal": "John Smith"}}`)
	if !res.IsSuccess() {
		t.Fatalf("result = %+v, want success", res)
	}
	if res.Data["principal"] != "John Smith" {
		t.Errorf("value = %v", res.Data["principal"])
	}
}

func TestExtractLoopRows(t *testing.T) {
	res := run(t, "documents", "List the documents", "1. Technical passport, copy. 2. Project docs, original.",
		`{"data": {"documents": [
			{"index": "1", "name": "Technical passport", "notes": "copy"},
			{"index": "2", "name": "Project docs", "notes": "original"}
		]}}`)
	if !res.IsSuccess() {
		t.Fatalf("result = %+v, want success", res)
	}
	rows, ok := res.Data["documents"].([]map[string]string)
	if !ok {
		t.Fatalf("rows have type %T", res.Data["documents"])
	}
	want := []map[string]string{
		{"index": "1", "name": "Technical passport", "notes": "copy"},
		{"index": "2", "name": "Project docs", "notes": "original"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("rows = %v, want %v", rows, want)
	}
}

func TestExtractIntentOverride(t *testing.T) {
	res := run(t, "principal", "Who grants?", "forget it, cancel",
		`{"intent": "cancel"}`)
	if !res.IsIntentOverride() || res.Intent != "cancel" {
		t.Fatalf("result = %+v, want intent override", res)
	}
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		response string
	}{
		{"empty data", "principal", `{"data": {}}`},
		{"blank scalar", "principal", `{"data": {"principal": "  "}}`},
		{"no JSON at all", "principal", "sorry, what?"},
		{"empty row list", "documents", `{"data": {"documents": []}}`},
		{"rows with no known columns", "documents", `{"data": {"documents": [{"bogus": "x"}]}}`},
		{"scalar where rows expected", "documents", `{"data": {"documents": "just one"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, tt.field, "q", "a", tt.response)
			if !res.IsFailure() {
				t.Errorf("result = %+v, want failure", res)
			}
			if res.Retry == "" {
				t.Error("failure carries no retry message")
			}
		})
	}
}

func TestExtractRetryMessageLanguage(t *testing.T) {
	ru := &schema.TemplateSchema{
		ID:       "doverennost",
		Language: "ru",
		Fields:   []schema.FieldSpec{{Kind: schema.KindScalar, Tag: "principal"}},
	}
	e, err := New(&fixedInvoker{response: "nope"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := e.Extract(context.Background(), ru, &ru.Fields[0], "q", "a")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.Contains(res.Retry, "ответ") {
		t.Errorf("retry message not in Russian: %q", res.Retry)
	}
}

func TestExtractLoopPromptListsColumns(t *testing.T) {
	inv := &fixedInvoker{response: `{"data": {"documents": [{"index": "1"}]}}`}
	e, err := New(inv)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	field, _ := testSchema.Field("documents")
	if _, err := e.Extract(context.Background(), testSchema, field, "List them", "1. x"); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, col := range []string{"index", "name", "notes"} {
		if !strings.Contains(inv.lastReq, col) {
			t.Errorf("prompt missing column %q", col)
		}
	}
}

func TestExtractTransportError(t *testing.T) {
	e, err := New(&fixedInvoker{err: errors.New("down")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	field, _ := testSchema.Field("principal")
	if _, err := e.Extract(context.Background(), testSchema, field, "q", "a"); err == nil {
		t.Fatal("expected transport error to surface")
	}
}
