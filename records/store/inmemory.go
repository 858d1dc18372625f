package store

import (
	"context"
	"fmt"
	"sync"

	kberrors "github.com/docdraft/docdraft/errors"
	"github.com/docdraft/docdraft/records"
)

// InMemoryStore keeps records in process, for tests and single-node
// setups.
type InMemoryStore struct {
	mu   sync.RWMutex
	byID map[string]*records.Record
}

// NewInMemoryStore creates an empty in-memory record store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[string]*records.Record)}
}

// Create persists a new record. Records are immutable, so an existing
// ID is an error.
func (s *InMemoryStore) Create(ctx context.Context, record *records.Record) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[record.ID]; exists {
		return fmt.Errorf("%w: record %s", kberrors.ErrAlreadyExists, record.ID)
	}
	c := *record
	s.byID[record.ID] = &c
	return nil
}

// Find returns the record only if it belongs to userID.
func (s *InMemoryStore) Find(ctx context.Context, id, userID string) (*records.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.byID[id]
	if !ok || r.UserID != userID {
		return nil, fmt.Errorf("%w: record %s", kberrors.ErrNotFound, id)
	}
	c := *r
	return &c, nil
}
