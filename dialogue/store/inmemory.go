// Package store provides conversation state persistence backends.
package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/docdraft/docdraft/dialogue"
	kberrors "github.com/docdraft/docdraft/errors"
)

// InMemoryStore keeps state in process, for tests and single-node
// setups.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]*dialogue.State
}

// NewInMemoryStore creates an empty in-memory state store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]*dialogue.State)}
}

// Load returns the saved state for userID.
func (s *InMemoryStore) Load(ctx context.Context, userID string) (*dialogue.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[userID]
	if !ok {
		return nil, fmt.Errorf("%w: state for user %s", kberrors.ErrNotFound, userID)
	}
	return state.Clone(), nil
}

// Save persists the state.
func (s *InMemoryStore) Save(ctx context.Context, state *dialogue.State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.UserID] = state.Clone()
	return nil
}

// Delete removes the state for userID. Missing state is not an error.
func (s *InMemoryStore) Delete(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}
