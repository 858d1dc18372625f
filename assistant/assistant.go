// Package assistant is the single entrypoint tying the dialogue
// machine and the Q&A answerer together: one utterance in, one
// response out.
package assistant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docdraft/docdraft/dialogue"
	kberrors "github.com/docdraft/docdraft/errors"
	"github.com/docdraft/docdraft/pkg/logging"
	"github.com/docdraft/docdraft/rag"
)

// Response is what the caller shows or stores for one utterance.
type Response struct {
	Text       string
	Document   []byte
	TemplateID string
	RecordID   string
}

// Assistant routes utterances: document dialogues go through the state
// machine, general questions through the knowledge base.
type Assistant struct {
	machine  *dialogue.Machine
	answerer *rag.Answerer
	logger   *slog.Logger
}

// New wires the assistant.
func New(machine *dialogue.Machine, answerer *rag.Answerer) (*Assistant, error) {
	if machine == nil {
		return nil, fmt.Errorf("%w: dialogue machine is required", kberrors.ErrInvalidInput)
	}
	if answerer == nil {
		return nil, fmt.Errorf("%w: answerer is required", kberrors.ErrInvalidInput)
	}
	return &Assistant{
		machine:  machine,
		answerer: answerer,
		logger:   logging.WithComponent("assistant"),
	}, nil
}

// HandleUtterance processes one user message end to end.
func (a *Assistant) HandleUtterance(ctx context.Context, userID, text string) (*Response, error) {
	reply, err := a.machine.Turn(ctx, userID, text)
	if err != nil {
		return nil, err
	}

	if reply.Kind == dialogue.ReplyDelegateQuery {
		answer, err := a.answerer.Answer(ctx, userID, text)
		if err != nil {
			// model outage is an apology, never a raw error to the user
			a.logger.Error("question answering failed", "user", userID, "error", err)
			return &Response{Text: "Sorry, I can't answer that right now. Please try again in a moment."}, nil
		}
		return &Response{Text: answer}, nil
	}

	return &Response{
		Text:       reply.Text,
		Document:   reply.Document,
		TemplateID: reply.TemplateID,
		RecordID:   reply.RecordID,
	}, nil
}
