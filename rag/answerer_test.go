package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docdraft/docdraft/history"
	historystore "github.com/docdraft/docdraft/history/store"
	"github.com/docdraft/docdraft/knowledge"
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

type fixedSearcher struct {
	chunks []knowledge.Chunk
	err    error
}

func (f *fixedSearcher) Search(ctx context.Context, query string, topK int) ([]knowledge.Chunk, error) {
	return f.chunks, f.err
}

func TestAnswerGroundsInContext(t *testing.T) {
	inv := &fixedInvoker{response: "You need your technical passport."}
	a, err := NewAnswerer(inv, WithIndex(&fixedSearcher{chunks: []knowledge.Chunk{
		{ID: "c1", Source: "docs.txt", Text: "A technical passport is required for registration."},
	}}))
	if err != nil {
		t.Fatalf("NewAnswerer: %v", err)
	}

	answer, err := a.Answer(context.Background(), "u1", "What do I need for registration?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != "You need your technical passport." {
		t.Errorf("answer = %q", answer)
	}
	if !strings.Contains(inv.lastReq, "technical passport is required") {
		t.Error("prompt does not carry retrieved context")
	}
	if !strings.Contains(inv.lastReq, "Ground every claim") {
		t.Error("prompt does not instruct grounding")
	}
}

func TestAnswerEmptyIndexFallsBack(t *testing.T) {
	inv := &fixedInvoker{response: "Generally, registration needs an ID."}
	a, err := NewAnswerer(inv, WithIndex(&fixedSearcher{}))
	if err != nil {
		t.Fatalf("NewAnswerer: %v", err)
	}

	answer, err := a.Answer(context.Background(), "u1", "What do I need?")
	if err != nil {
		t.Fatalf("Answer against empty index: %v", err)
	}
	if answer == "" {
		t.Fatal("empty-index answer is empty")
	}
	if !strings.Contains(inv.lastReq, "general domain knowledge") {
		t.Error("prompt does not instruct the fallback")
	}
}

func TestAnswerRetrievalFailureDegrades(t *testing.T) {
	inv := &fixedInvoker{response: "Best effort answer."}
	a, err := NewAnswerer(inv, WithIndex(&fixedSearcher{err: errors.New("index down")}))
	if err != nil {
		t.Fatalf("NewAnswerer: %v", err)
	}
	answer, err := a.Answer(context.Background(), "u1", "anything?")
	if err != nil {
		t.Fatalf("retrieval failure must degrade, got %v", err)
	}
	if answer == "" {
		t.Fatal("degraded answer is empty")
	}
}

func TestAnswerAppendsAndReplaysHistory(t *testing.T) {
	hs := historystore.NewInMemoryStore()
	inv := &fixedInvoker{response: "Again: an ID."}
	a, err := NewAnswerer(inv, WithHistory(hs))
	if err != nil {
		t.Fatalf("NewAnswerer: %v", err)
	}
	ctx := context.Background()

	if _, err := a.Answer(ctx, "u1", "What do I need?"); err != nil {
		t.Fatalf("first Answer: %v", err)
	}
	if _, err := a.Answer(ctx, "u1", "Say that again?"); err != nil {
		t.Fatalf("second Answer: %v", err)
	}

	// second prompt must replay the first exchange
	if !strings.Contains(inv.lastReq, "What do I need?") {
		t.Error("prompt does not replay history")
	}

	entries, err := hs.Recent(ctx, "u1", history.ChannelQA, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d history entries, want 4", len(entries))
	}
}

func TestAnswerTransportErrorSurfaces(t *testing.T) {
	a, err := NewAnswerer(&fixedInvoker{err: errors.New("both tiers down")})
	if err != nil {
		t.Fatalf("NewAnswerer: %v", err)
	}
	if _, err := a.Answer(context.Background(), "u1", "q"); err == nil {
		t.Fatal("expected transport error to surface")
	}
}

func TestStripMarkup(t *testing.T) {
	in := "## Answer\n**Bold** and `code` and *stars*"
	got := StripMarkup(in)
	for _, bad := range []string{"#", "*", "`"} {
		if strings.Contains(got, bad) {
			t.Errorf("markup %q survived: %q", bad, got)
		}
	}
	if !strings.Contains(got, "Bold") || !strings.Contains(got, "code") {
		t.Errorf("content lost: %q", got)
	}
}
