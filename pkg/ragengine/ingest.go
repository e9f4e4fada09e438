package ragengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ragcore/ragcore/internal/store"
)

// AddSource registers a document's content under the engine's Store.
// Re-adding identical content (by SHA-256 hash, computed here per spec.md
// §3's content-addressing invariant) is a no-op that returns the original
// Source. ByteSize is set here from the content length; the Store fills in
// the ID from the content hash.
func (e *Engine) AddSource(ctx context.Context, uri string, contentType store.ContentType, metadata string, content []byte) (*store.Source, error) {
	sum := sha256.Sum256(content)
	src := &store.Source{
		URI:         uri,
		ContentType: contentType,
		Content:     string(content),
		ContentHash: hex.EncodeToString(sum[:]),
		Metadata:    metadata,
		ByteSize:    int64(len(content)),
	}
	return e.store.AddSource(ctx, src)
}

// AddChunks persists chunks belonging to an already-added source, adds
// every chunk to the BM25 index, and queues every chunk that carries a
// non-empty embedding in the recent-insert buffer, which is folded into
// the ANN index once it reaches its threshold. Per spec.md §6, the caller is expected to
// have already populated each chunk's Embedding via an EmbeddingProvider;
// the engine never calls one internally.
func (e *Engine) AddChunks(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	if err := e.store.AddChunks(ctx, chunks); err != nil {
		return fmt.Errorf("add chunks: %w", err)
	}

	embeddings := make(map[string][]float32, len(chunks))
	for _, c := range chunks {
		e.bm25.Add(c.ID, c.Content)
		if len(c.Embedding) > 0 {
			embeddings[c.ID] = c.Embedding
		}
	}
	if len(embeddings) > 0 {
		e.buffer.InsertMany(embeddings)
	}

	return e.MergeBuffer(ctx)
}

// DeleteSource removes a source and its chunks, and drops any indexed
// entries for those chunks from BM25 and the ANN graph's lazy-delete set.
func (e *Engine) DeleteSource(ctx context.Context, sourceID string) error {
	chunks, err := e.store.GetSourceChunks(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("list source chunks before delete: %w", err)
	}

	if err := e.store.DeleteSource(ctx, sourceID); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}

	for _, c := range chunks {
		e.bm25.Remove(c.ID)
		_ = e.ann.Delete(ctx, c.ID)
		e.buffer.Remove(c.ID)
	}
	return nil
}

// GetSource retrieves a source by ID.
func (e *Engine) GetSource(ctx context.Context, sourceID string) (*store.Source, error) {
	return e.store.GetSource(ctx, sourceID)
}

// GetSourceChunks retrieves all chunks belonging to a source, ordered by
// Ordinal.
func (e *Engine) GetSourceChunks(ctx context.Context, sourceID string) ([]*store.Chunk, error) {
	return e.store.GetSourceChunks(ctx, sourceID)
}

// GetAdjacentChunks retrieves the chunks immediately before and after the
// given chunk within its source, for context expansion at read time.
func (e *Engine) GetAdjacentChunks(ctx context.Context, chunkID string) (prev, next *store.Chunk, err error) {
	return e.store.GetAdjacentChunks(ctx, chunkID)
}

// GetSourceStats reports the chunk count and total byte size for a
// source.
func (e *Engine) GetSourceStats(ctx context.Context, sourceID string) (*store.SourceStats, error) {
	return e.store.GetSourceStats(ctx, sourceID)
}

// UpdateChunkEmbedding persists a chunk's embedding and folds it into the
// recent-insert buffer, for callers that embed asynchronously after the
// initial AddChunks call (e.g. a background embedding worker catching up
// after an EmbeddingProvider outage).
func (e *Engine) UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	if err := e.store.UpdateChunkEmbedding(ctx, chunkID, embedding); err != nil {
		return err
	}
	e.buffer.Insert(chunkID, embedding)
	return e.MergeBuffer(ctx)
}
