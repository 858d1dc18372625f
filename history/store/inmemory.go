package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/docdraft/docdraft/history"
)

// InMemoryStore keeps history in process, for tests and single-node
// setups.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*history.Entry
	seq     int64
}

// NewInMemoryStore creates an empty in-memory history store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Append adds an entry at the end of the log.
func (s *InMemoryStore) Append(ctx context.Context, entry *history.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := *entry
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.ID == "" {
		s.seq++
		e.ID = fmt.Sprintf("hist:%d", s.seq)
	}
	s.entries = append(s.entries, &e)
	return nil
}

// Recent returns the last limit entries for the user and channel,
// oldest first.
func (s *InMemoryStore) Recent(ctx context.Context, userID, channel string, limit int) ([]*history.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*history.Entry
	for _, e := range s.entries {
		if e.UserID == userID && e.Channel == channel {
			matched = append(matched, e)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}

	out := make([]*history.Entry, len(matched))
	for i, e := range matched {
		c := *e
		out[i] = &c
	}
	return out, nil
}
