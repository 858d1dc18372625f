package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/docdraft/docdraft/dialogue"
	kberrors "github.com/docdraft/docdraft/errors"
)

// RedisStore persists conversation state in Redis so every replica
// sees the same dialogue position for a user.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisConfig holds Redis configuration for conversation state.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// NewRedisStore creates a Redis-backed state store.
func NewRedisStore(config *RedisConfig) *RedisStore {
	if config == nil {
		config = &RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "docdraft:state:",
			TTL:    24 * time.Hour,
		}
	}
	if config.Prefix == "" {
		config.Prefix = "docdraft:state:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisStore{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}
}

// Load returns the saved state for userID.
func (s *RedisStore) Load(ctx context.Context, userID string) (*dialogue.State, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: state for user %s", kberrors.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to load conversation state: %w", err)
	}

	var state dialogue.State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("failed to decode conversation state: %w", err)
	}
	return &state, nil
}

// Save persists the state. The TTL keeps abandoned dialogues from
// living forever.
func (s *RedisStore) Save(ctx context.Context, state *dialogue.State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode conversation state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(state.UserID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save conversation state: %w", err)
	}
	return nil
}

// Delete removes the state for userID.
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := s.client.Del(ctx, s.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation state: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}
