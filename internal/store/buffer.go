package store

import (
	"sort"
	"sync"
	"time"
)

// RecentBuffer holds embeddings that have been added since the ANN graph
// was last rebuilt. Because HNSW inserts are expensive to rebalance one at
// a time, new chunks land here first and are searched by linear scan; once
// the buffer reaches its threshold the lifecycle manager folds it into
// the graph and the buffer is cleared.
type RecentBuffer struct {
	mu        sync.RWMutex
	entries   map[string]*BufferEntry
	threshold int
}

// NewRecentBuffer creates a buffer that signals ready-to-merge once it
// holds threshold or more entries.
func NewRecentBuffer(threshold int) *RecentBuffer {
	if threshold <= 0 {
		threshold = 100
	}
	return &RecentBuffer{
		entries:   make(map[string]*BufferEntry),
		threshold: threshold,
	}
}

// Insert adds or replaces a pending embedding.
func (b *RecentBuffer) Insert(chunkID string, embedding []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	b.entries[chunkID] = &BufferEntry{
		ChunkID:    chunkID,
		Embedding:  vec,
		InsertedAt: time.Now(),
	}
}

// InsertMany adds or replaces a batch of pending embeddings under a single
// lock acquisition.
func (b *RecentBuffer) InsertMany(entries map[string][]float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for chunkID, embedding := range entries {
		vec := make([]float32, len(embedding))
		copy(vec, embedding)
		b.entries[chunkID] = &BufferEntry{
			ChunkID:    chunkID,
			Embedding:  vec,
			InsertedAt: now,
		}
	}
}

// Remove discards a pending entry, used when its chunk is deleted before
// ever being folded into the ANN graph.
func (b *RecentBuffer) Remove(chunkID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, chunkID)
}

// Search performs an exact linear scan over the buffer's embeddings using
// cosine distance, returning the k nearest entries. On the hybrid
// retriever's global path (Path A) these results are merged with the ANN
// graph's: exact but bounded by buffer size rather than approximate but
// graph-scale.
func (b *RecentBuffer) Search(query []float32, k int) []*VectorResult {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.entries) == 0 {
		return nil
	}

	results := make([]*VectorResult, 0, len(b.entries))
	for _, e := range b.entries {
		d := cosineDistance(query, e.Embedding)
		results = append(results, &VectorResult{
			ChunkID:  e.ChunkID,
			Distance: d,
			Score:    1 - d/2,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// ShouldMerge reports whether the buffer has reached its threshold and
// should be folded into the ANN graph.
func (b *RecentBuffer) ShouldMerge() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries) >= b.threshold
}

// Drain returns every buffered entry and empties the buffer, as one
// batch.
func (b *RecentBuffer) Drain() []*BufferEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := b.snapshotLocked()
	b.entries = make(map[string]*BufferEntry)
	return out
}

// SnapshotForMerge returns every buffered entry without clearing the
// buffer, so a caller can build the merged ANN graph off-lock before
// taking the write lock only for the swap.
func (b *RecentBuffer) SnapshotForMerge() []*BufferEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

func (b *RecentBuffer) snapshotLocked() []*BufferEntry {
	out := make([]*BufferEntry, 0, len(b.entries))
	for _, e := range b.entries {
		out = append(out, e)
	}
	return out
}

// Clear empties the buffer without returning its contents.
func (b *RecentBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[string]*BufferEntry)
}

// Len returns the number of pending entries.
func (b *RecentBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// BufferStats reports the recent-insert buffer's current size.
type BufferStats struct {
	PendingCount int
	NeedsMerge   bool
}

// Stats reports the buffer's current size and merge-eligibility.
func (b *RecentBuffer) Stats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BufferStats{
		PendingCount: len(b.entries),
		NeedsMerge:   len(b.entries) >= b.threshold,
	}
}

// NeedsMerge reports whether the buffer has reached its threshold and
// should be folded into the ANN graph. Equivalent to ShouldMerge, named to
// match the spec's public buffer operation list.
func (b *RecentBuffer) NeedsMerge() bool {
	return b.ShouldMerge()
}
