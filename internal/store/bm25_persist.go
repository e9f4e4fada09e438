package store

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// bm25Snapshot is the gob-encodable form of an InMemoryBM25Index, used for
// Save/Load persistence between process restarts.
type bm25Snapshot struct {
	K1          float64
	B           float64
	Postings    map[string][]*InvertedPosting
	DocMeta     map[string]*DocMeta
	Order       map[string]int
	TotalTokens int64
	Seq         int
}

// saveBM25Snapshot writes idx to path using a temp-file-plus-rename so a
// crash mid-write never leaves a partially-written index on disk.
func saveBM25Snapshot(path string, idx *InMemoryBM25Index) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bm25 index directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp bm25 snapshot: %w", err)
	}

	snap := bm25Snapshot{
		K1:          idx.k1,
		B:           idx.b,
		Postings:    idx.postings,
		DocMeta:     idx.docMeta,
		Order:       idx.order,
		TotalTokens: idx.totalTokens,
		Seq:         idx.seq,
	}

	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode bm25 snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close bm25 snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename bm25 snapshot: %w", err)
	}
	return nil
}

// loadBM25Snapshot replaces idx's contents with the snapshot at path.
func loadBM25Snapshot(path string, idx *InMemoryBM25Index) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open bm25 snapshot: %w", err)
	}
	defer f.Close()

	var snap bm25Snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("decode bm25 snapshot: %w", err)
	}

	idx.k1 = snap.K1
	idx.b = snap.B
	idx.postings = snap.Postings
	idx.docMeta = snap.DocMeta
	idx.order = snap.Order
	idx.totalTokens = snap.TotalTokens
	idx.seq = snap.Seq
	if idx.postings == nil {
		idx.postings = make(map[string][]*InvertedPosting)
	}
	if idx.docMeta == nil {
		idx.docMeta = make(map[string]*DocMeta)
	}
	if idx.order == nil {
		idx.order = make(map[string]int)
	}
	return nil
}
