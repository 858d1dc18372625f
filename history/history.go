// Package history is the append-only conversation log. Channels keep
// document-drafting turns separate from general Q&A turns so neither
// pollutes the other's prompts.
package history

import (
	"context"
	"fmt"
	"time"

	kberrors "github.com/docdraft/docdraft/errors"
)

const (
	// ChannelDialogue holds document-drafting turns.
	ChannelDialogue = "dialogue"
	// ChannelQA holds general knowledge-base turns.
	ChannelQA = "qa"
)

// DefaultRecentLimit bounds how much history is pulled into a prompt.
const DefaultRecentLimit = 10

// Entry is one logged message.
type Entry struct {
	ID        string    `json:"id" bson:"_id"`
	UserID    string    `json:"user_id" bson:"user_id"`
	Role      string    `json:"role" bson:"role"`
	Content   string    `json:"content" bson:"content"`
	Channel   string    `json:"channel" bson:"channel"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Validate checks the entry before it is persisted.
func (e *Entry) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: entry cannot be nil", kberrors.ErrInvalidInput)
	}
	if e.UserID == "" {
		return fmt.Errorf("%w: entry user id is empty", kberrors.ErrInvalidInput)
	}
	if e.Channel != ChannelDialogue && e.Channel != ChannelQA {
		return fmt.Errorf("%w: unknown channel %q", kberrors.ErrInvalidInput, e.Channel)
	}
	return nil
}

// Store persists conversation history. Append is write-only; Recent
// returns at most limit entries ordered oldest first.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	Recent(ctx context.Context, userID, channel string, limit int) ([]*Entry, error)
}
