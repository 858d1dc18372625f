// Package dialogue drives the per-user data-collection state machine:
// one conversation per user, persisted between turns, advanced one
// extracted answer at a time until the document is assembled.
package dialogue

import (
	"context"
	"fmt"

	kberrors "github.com/docdraft/docdraft/errors"
)

// State is the per-user conversation state. Persistence is the source
// of truth: the machine loads, mutates and saves it every turn and
// never caches it in process.
//
// Invariant: ActiveTemplateID is set exactly while a collection
// dialogue is in progress; FieldIndex only grows while active and is
// reset to 0 together with ActiveTemplateID.
type State struct {
	UserID           string         `json:"user_id"`
	ActiveTemplateID string         `json:"active_template_id,omitempty"`
	FieldIndex       int            `json:"field_index"`
	Collected        map[string]any `json:"collected,omitempty"`
	CollectedOrder   []string       `json:"collected_order,omitempty"`
	Attempts         int            `json:"attempts"`
}

// NewState returns an idle state for the user.
func NewState(userID string) *State {
	return &State{UserID: userID}
}

// Active reports whether a collection dialogue is in progress.
func (s *State) Active() bool {
	return s.ActiveTemplateID != ""
}

// Start begins collecting for templateID from the first field.
func (s *State) Start(templateID string) {
	s.ActiveTemplateID = templateID
	s.FieldIndex = 0
	s.Collected = nil
	s.CollectedOrder = nil
	s.Attempts = 0
}

// Clear drops the dialogue and returns the state to idle.
func (s *State) Clear() {
	s.ActiveTemplateID = ""
	s.FieldIndex = 0
	s.Collected = nil
	s.CollectedOrder = nil
	s.Attempts = 0
}

// Merge folds extracted data into the collected mapping. New values
// overwrite same-tag old values; everything else is preserved, and
// first-seen tag order is kept.
func (s *State) Merge(data map[string]any) {
	if s.Collected == nil {
		s.Collected = make(map[string]any, len(data))
	}
	for tag, value := range data {
		if _, seen := s.Collected[tag]; !seen {
			s.CollectedOrder = append(s.CollectedOrder, tag)
		}
		s.Collected[tag] = value
	}
}

// Clone returns a deep-enough copy for handing outside the machine.
func (s *State) Clone() *State {
	c := *s
	if s.Collected != nil {
		c.Collected = make(map[string]any, len(s.Collected))
		for k, v := range s.Collected {
			c.Collected[k] = v
		}
	}
	c.CollectedOrder = append([]string(nil), s.CollectedOrder...)
	return &c
}

// Validate checks the state before persisting.
func (s *State) Validate() error {
	if s == nil || s.UserID == "" {
		return fmt.Errorf("%w: state user id is required", kberrors.ErrInvalidInput)
	}
	if !s.Active() && s.FieldIndex != 0 {
		return fmt.Errorf("%w: idle state with field index %d", kberrors.ErrInvalidInput, s.FieldIndex)
	}
	return nil
}

// Store persists conversation state keyed by user. Load returns
// ErrNotFound when the user has no saved state; the machine creates a
// fresh idle state in that case.
type Store interface {
	Load(ctx context.Context, userID string) (*State, error)
	Save(ctx context.Context, state *State) error
	Delete(ctx context.Context, userID string) error
}
