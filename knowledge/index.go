package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/docdraft/docdraft/contrib/vector/inmemory"
	kberrors "github.com/docdraft/docdraft/errors"
	"github.com/docdraft/docdraft/pkg/logging"
	"github.com/docdraft/docdraft/vector"
)

// Chunk is one retrievable unit of the index.
type Chunk struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Text   string `json:"text"`
}

// StoreFactory builds an empty vector store for a (re)build. Rebuilds
// populate a fresh store and swap it in atomically, so readers never
// observe a half-built index.
type StoreFactory func() vector.VectorStore

// Index is the retrieval index over the knowledge corpus.
type Index struct {
	mu    sync.RWMutex
	store vector.VectorStore

	embedder     vector.Embedder
	chunker      *Chunker
	corpusDir    string
	snapshotPath string
	newStore     StoreFactory
	logger       *slog.Logger
	tracer       trace.Tracer
}

// IndexOption configures an Index.
type IndexOption func(*Index)

// WithCorpusDir sets the directory of source documents.
func WithCorpusDir(dir string) IndexOption {
	return func(ix *Index) { ix.corpusDir = dir }
}

// WithSnapshotPath sets the file the built index is persisted to. An
// empty path disables snapshots, which is the right choice when the
// vector store is itself durable.
func WithSnapshotPath(path string) IndexOption {
	return func(ix *Index) { ix.snapshotPath = path }
}

// WithStoreFactory sets the factory used to build vector stores.
func WithStoreFactory(f StoreFactory) IndexOption {
	return func(ix *Index) { ix.newStore = f }
}

// WithChunker sets the chunker used during builds.
func WithChunker(c *Chunker) IndexOption {
	return func(ix *Index) { ix.chunker = c }
}

// Open returns an Index ready to serve searches. If a snapshot exists
// it is loaded; otherwise the index is built from the corpus and, when
// a snapshot path is set, persisted.
func Open(ctx context.Context, embedder vector.Embedder, opts ...IndexOption) (*Index, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", kberrors.ErrInvalidInput)
	}
	ix := &Index{
		embedder: embedder,
		newStore: func() vector.VectorStore { return inmemory.NewInMemoryVectorStore() },
		logger:   logging.WithComponent("knowledge"),
		tracer:   otel.Tracer("docdraft/knowledge"),
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.chunker == nil {
		c, err := NewChunker()
		if err != nil {
			return nil, err
		}
		ix.chunker = c
	}

	if ix.snapshotPath != "" {
		if store, n, err := ix.loadSnapshot(ctx); err == nil {
			ix.store = store
			ix.logger.Info("loaded index snapshot", "path", ix.snapshotPath, "chunks", n)
			return ix, nil
		} else if !os.IsNotExist(err) {
			ix.logger.Warn("snapshot unusable, rebuilding", "path", ix.snapshotPath, "error", err)
		}
	}

	if err := ix.Build(ctx); err != nil {
		return nil, err
	}
	return ix, nil
}

// Build chunks and embeds the corpus into a fresh store, swaps it in,
// and writes the snapshot.
func (ix *Index) Build(ctx context.Context) error {
	ctx, span := ix.tracer.Start(ctx, "knowledge.build")
	defer span.End()

	docs, err := LoadCorpus(ix.corpusDir)
	if err != nil {
		return fmt.Errorf("%w: %v", kberrors.ErrIndexBuild, err)
	}

	var chunks []Chunk
	for _, doc := range docs {
		for i, text := range ix.chunker.Split(doc.Text) {
			chunks = append(chunks, Chunk{
				ID:     fmt.Sprintf("%s#%d", doc.Name, i),
				Source: doc.Name,
				Text:   text,
			})
		}
	}
	span.SetAttributes(
		attribute.Int("corpus.documents", len(docs)),
		attribute.Int("corpus.chunks", len(chunks)),
	)

	store := ix.newStore()
	embeddings := make([]*vector.Embedding, 0, len(chunks))
	for _, ch := range chunks {
		vec, err := ix.embedder.Embed(ctx, ch.Text)
		if err != nil {
			return fmt.Errorf("%w: embedding chunk %s: %v", kberrors.ErrIndexBuild, ch.ID, err)
		}
		emb := &vector.Embedding{
			ID:       ch.ID,
			Vector:   vec,
			Text:     ch.Text,
			Metadata: map[string]string{"source": ch.Source},
		}
		if err := store.AddEmbedding(ctx, emb); err != nil {
			return fmt.Errorf("%w: storing chunk %s: %v", kberrors.ErrIndexBuild, ch.ID, err)
		}
		embeddings = append(embeddings, emb)
	}

	ix.mu.Lock()
	ix.store = store
	ix.mu.Unlock()

	if ix.snapshotPath != "" {
		if err := ix.saveSnapshot(embeddings); err != nil {
			return fmt.Errorf("%w: %v", kberrors.ErrIndexBuild, err)
		}
	}

	ix.logger.Info("index built", "documents", len(docs), "chunks", len(chunks))
	return nil
}

// Rebuild discards the snapshot and rebuilds from the corpus. Searches
// keep serving the previous store until the swap.
func (ix *Index) Rebuild(ctx context.Context) error {
	if ix.snapshotPath != "" {
		if err := os.Remove(ix.snapshotPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove snapshot: %w", err)
		}
	}
	return ix.Build(ctx)
}

// Search embeds the query and returns the topK most similar chunks.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]Chunk, error) {
	ctx, span := ix.tracer.Start(ctx, "knowledge.search",
		trace.WithAttributes(attribute.Int("search.top_k", topK)))
	defer span.End()

	ix.mu.RLock()
	store := ix.store
	ix.mu.RUnlock()
	if store == nil {
		return nil, fmt.Errorf("%w: index not built", kberrors.ErrInternal)
	}

	vec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	results, err := store.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}

	chunks := make([]Chunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, Chunk{
			ID:     r.ID,
			Source: r.Metadata["source"],
			Text:   r.Text,
		})
	}
	return chunks, nil
}

// Count reports the number of indexed chunks.
func (ix *Index) Count(ctx context.Context) (int, error) {
	ix.mu.RLock()
	store := ix.store
	ix.mu.RUnlock()
	if store == nil {
		return 0, nil
	}
	return store.Count(ctx)
}

type snapshot struct {
	Embeddings []*vector.Embedding `json:"embeddings"`
}

func (ix *Index) loadSnapshot(ctx context.Context) (vector.VectorStore, int, error) {
	raw, err := os.ReadFile(ix.snapshotPath)
	if err != nil {
		return nil, 0, err
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, 0, fmt.Errorf("corrupt snapshot: %w", err)
	}
	store := ix.newStore()
	for _, emb := range snap.Embeddings {
		if err := store.AddEmbedding(ctx, emb); err != nil {
			return nil, 0, err
		}
	}
	return store, len(snap.Embeddings), nil
}

func (ix *Index) saveSnapshot(embeddings []*vector.Embedding) error {
	raw, err := json.Marshal(snapshot{Embeddings: embeddings})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if dir := filepath.Dir(ix.snapshotPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create snapshot directory: %w", err)
		}
	}
	tmp := ix.snapshotPath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, ix.snapshotPath); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}
