// Package redis implements vector.VectorStore on top of RediSearch's
// HNSW vector index. Embeddings live in hashes under a key prefix and the
// index is created on first use, so a warm Redis instance doubles as the
// durable home of the knowledge index between restarts.
package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	docconfig "github.com/docdraft/docdraft/config"
	kberrors "github.com/docdraft/docdraft/errors"
	"github.com/docdraft/docdraft/vector"
)

const (
	fieldText   = "text"
	fieldVector = "vector"
	fieldSource = "source"
)

// Config holds Redis vector store configuration.
type Config struct {
	Addr           string
	Password       string
	DB             int
	IndexName      string
	KeyPrefix      string
	Dimension      int
	EFConstruction int
	M              int
}

// DefaultConfig returns a configuration suitable for a local Redis Stack.
func DefaultConfig() *Config {
	return &Config{
		Addr:           "localhost:6379",
		IndexName:      "docdraft-knowledge",
		KeyPrefix:      "docdraft:vec:",
		Dimension:      1536,
		EFConstruction: 200,
		M:              16,
	}
}

// Store implements vector.VectorStore backed by RediSearch.
type Store struct {
	client       *redis.Client
	cfg          *Config
	mu           sync.Mutex
	indexCreated bool
}

// NewStore creates the store and ensures the HNSW index exists.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := docconfig.ValidateRedisConfig(cfg.Addr, cfg.DB, cfg.KeyPrefix); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := &Store{client: client, cfg: cfg}
	if err := s.ensureIndex(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create vector index: %w", err)
	}
	return s, nil
}

func (s *Store) ensureIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.client.Do(ctx, "FT.INFO", s.cfg.IndexName).Result(); err == nil {
		s.indexCreated = true
		return nil
	}

	_, err := s.client.Do(ctx, "FT.CREATE", s.cfg.IndexName,
		"ON", "HASH",
		"PREFIX", "1", s.cfg.KeyPrefix,
		"SCHEMA",
		fieldVector, "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(s.cfg.Dimension),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(s.cfg.EFConstruction),
		"M", strconv.Itoa(s.cfg.M),
		fieldText, "TEXT",
		fieldSource, "TAG",
	).Result()
	if err != nil {
		return fmt.Errorf("FT.CREATE: %w", err)
	}
	s.indexCreated = true
	return nil
}

// AddEmbedding stores one embedding as a hash under the key prefix.
func (s *Store) AddEmbedding(ctx context.Context, emb *vector.Embedding) error {
	if emb == nil || emb.ID == "" {
		return fmt.Errorf("embedding and its ID cannot be empty")
	}
	if len(emb.Vector) != s.cfg.Dimension {
		return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.cfg.Dimension, len(emb.Vector))
	}

	fields := map[string]any{
		fieldText:   emb.Text,
		fieldVector: encodeVector(emb.Vector),
	}
	if src := emb.Metadata["source"]; src != "" {
		fields[fieldSource] = src
	}
	if err := s.client.HSet(ctx, s.key(emb.ID), fields).Err(); err != nil {
		return fmt.Errorf("failed to store embedding: %w", err)
	}
	return nil
}

// Search runs a KNN query against the index and returns the nearest
// embeddings, best match first.
func (s *Store) Search(ctx context.Context, queryVector []float32, topK int) ([]*vector.Embedding, error) {
	if len(queryVector) != s.cfg.Dimension {
		return nil, fmt.Errorf("query vector dimension mismatch: expected %d, got %d", s.cfg.Dimension, len(queryVector))
	}
	if topK <= 0 {
		topK = 5
	}

	queryStr := fmt.Sprintf("*=>[KNN %d @vector $query_vector AS score]", topK)
	raw, err := s.client.Do(ctx, "FT.SEARCH", s.cfg.IndexName, queryStr,
		"PARAMS", "2", "query_vector", encodeVector(queryVector),
		"RETURN", "2", fieldText, fieldSource,
		"SORTBY", "score",
		"LIMIT", "0", strconv.Itoa(topK),
		"DIALECT", "2",
	).Result()
	if err != nil {
		return nil, fmt.Errorf("FT.SEARCH: %w", err)
	}
	return s.parseSearchReply(raw)
}

// parseSearchReply handles the RESP2 FT.SEARCH reply shape:
// [total, key1, [field, value, ...], key2, [...], ...]
func (s *Store) parseSearchReply(raw any) ([]*vector.Embedding, error) {
	reply, ok := raw.([]any)
	if !ok || len(reply) == 0 {
		return nil, fmt.Errorf("unexpected FT.SEARCH reply type %T", raw)
	}

	out := make([]*vector.Embedding, 0)
	for i := 1; i+1 < len(reply); i += 2 {
		key, _ := reply[i].(string)
		fields, ok := reply[i+1].([]any)
		if !ok {
			continue
		}
		emb := &vector.Embedding{
			ID:       strings.TrimPrefix(key, s.cfg.KeyPrefix),
			Metadata: make(map[string]string),
		}
		for j := 0; j+1 < len(fields); j += 2 {
			name, _ := fields[j].(string)
			value, _ := fields[j+1].(string)
			switch name {
			case fieldText:
				emb.Text = value
			case fieldSource:
				emb.Metadata["source"] = value
			}
		}
		out = append(out, emb)
	}
	return out, nil
}

// DeleteEmbedding removes an embedding by ID.
func (s *Store) DeleteEmbedding(ctx context.Context, id string) error {
	deleted, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("embedding %s: %w", id, kberrors.ErrNotFound)
	}
	return nil
}

// GetEmbedding retrieves a specific embedding by ID.
func (s *Store) GetEmbedding(ctx context.Context, id string) (*vector.Embedding, error) {
	fields, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("embedding %s: %w", id, kberrors.ErrNotFound)
	}

	emb := &vector.Embedding{
		ID:       id,
		Text:     fields[fieldText],
		Metadata: make(map[string]string),
	}
	if src := fields[fieldSource]; src != "" {
		emb.Metadata["source"] = src
	}
	if raw := fields[fieldVector]; raw != "" {
		emb.Vector = decodeVector([]byte(raw))
	}
	return emb, nil
}

// Clear drops the index together with all indexed hashes.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.client.Do(ctx, "FT.DROPINDEX", s.cfg.IndexName, "DD").Result(); err != nil {
		return fmt.Errorf("FT.DROPINDEX: %w", err)
	}
	s.indexCreated = false
	return nil
}

// Count returns the number of indexed embeddings.
func (s *Store) Count(ctx context.Context) (int, error) {
	raw, err := s.client.Do(ctx, "FT.SEARCH", s.cfg.IndexName, "*", "LIMIT", "0", "0").Result()
	if err != nil {
		return 0, fmt.Errorf("FT.SEARCH: %w", err)
	}
	reply, ok := raw.([]any)
	if !ok || len(reply) == 0 {
		return 0, fmt.Errorf("unexpected FT.SEARCH reply type %T", raw)
	}
	total, ok := reply[0].(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected FT.SEARCH total type %T", reply[0])
	}
	return int(total), nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(id string) string {
	return s.cfg.KeyPrefix + id
}

// encodeVector packs float32 components little-endian, the layout
// RediSearch expects for FLOAT32 vector fields.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(raw []byte) []float32 {
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return vec
}
