package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWStore implements VectorStore using coder/hnsw, a pure Go HNSW
// implementation (no CGO, unlike the usearch/faiss family).
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	dims   int
	params ANNParams

	idMap   map[string]uint64 // chunk ID -> internal key
	keyMap  map[uint64]string // internal key -> chunk ID
	nextKey uint64

	loaded bool
	closed bool
}

var _ VectorStore = (*HNSWStore)(nil)

// hnswMetadata is the gob-encoded sidecar persisted next to the exported
// graph file; it carries everything the graph itself doesn't (ID mapping,
// build parameters, dimensionality).
type hnswMetadata struct {
	IDMap   map[string]uint64
	NextKey uint64
	Dims    int
	Params  ANNParams
}

// NewHNSWStore creates an empty HNSW-backed vector store sized for an
// expected dataset of n vectors (see ANNParamsForSize).
func NewHNSWStore(dimensions, expectedSize int) *HNSWStore {
	params := ANNParamsForSize(expectedSize)

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = params.M
	graph.Ml = 0.25 // fixed level-generation factor, not derived from M

	return &HNSWStore{
		graph:  graph,
		dims:   dimensions,
		params: params,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		loaded: true,
	}
}

// Add inserts or replaces the vector for chunkID.
func (s *HNSWStore) Add(ctx context.Context, chunkID string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("ann store is closed")
	}
	if s.dims != 0 && len(vector) != s.dims {
		return ErrDimensionMismatch{Expected: s.dims, Got: len(vector)}
	}
	if s.dims == 0 {
		s.dims = len(vector)
	}

	// Lazy deletion: re-adding an existing chunk ID orphans its old graph
	// node rather than removing it, since coder/hnsw can corrupt the graph
	// when the last-inserted node is deleted.
	if oldKey, exists := s.idMap[chunkID]; exists {
		delete(s.keyMap, oldKey)
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalizeVectorInPlace(vec)

	key := s.nextKey
	s.nextKey++

	s.graph.Add(hnsw.MakeNode(key, vec))
	s.idMap[chunkID] = key
	s.keyMap[key] = chunkID

	return nil
}

// Build constructs a fresh graph from every point without holding the
// store's lock, sized for the given point count via ANNParamsForSize, then
// takes the write lock only to swap it in for the existing graph. Used for
// full rebuilds, where letting the graph's level structure form from
// incremental Adds would bias it toward insertion order instead of the
// final dataset size.
func (s *HNSWStore) Build(ctx context.Context, points []BuildPoint) error {
	s.mu.RLock()
	closed, dims := s.closed, s.dims
	s.mu.RUnlock()

	if closed {
		return fmt.Errorf("ann store is closed")
	}

	if dims == 0 {
		for _, p := range points {
			if len(p.Embedding) > 0 {
				dims = len(p.Embedding)
				break
			}
		}
	}

	params := ANNParamsForSize(len(points))
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = params.M
	graph.Ml = 0.25

	idMap := make(map[string]uint64, len(points))
	keyMap := make(map[uint64]string, len(points))

	var nextKey uint64
	for _, p := range points {
		if dims != 0 && len(p.Embedding) != dims {
			return ErrDimensionMismatch{Expected: dims, Got: len(p.Embedding)}
		}
		vec := make([]float32, len(p.Embedding))
		copy(vec, p.Embedding)
		normalizeVectorInPlace(vec)

		key := nextKey
		nextKey++
		graph.Add(hnsw.MakeNode(key, vec))
		idMap[p.ChunkID] = key
		keyMap[key] = p.ChunkID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("ann store is closed")
	}

	s.graph = graph
	s.dims = dims
	s.params = params
	s.idMap = idMap
	s.keyMap = keyMap
	s.nextKey = nextKey
	s.loaded = true
	return nil
}

// Search returns the k nearest neighbors to query, searching with
// efSearch = EfSearchFor(k).
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("ann store is closed")
	}
	if s.dims != 0 && len(query) != s.dims {
		return nil, ErrDimensionMismatch{Expected: s.dims, Got: len(query)}
	}
	if s.graph.Len() == 0 {
		return nil, nil
	}

	s.graph.EfSearch = EfSearchFor(k)

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	nodes := s.graph.Search(normalized, k)

	results := make([]*VectorResult, 0, len(nodes))
	for _, node := range nodes {
		chunkID, ok := s.keyMap[node.Key]
		if !ok {
			continue // orphaned node from lazy deletion
		}
		distance := cosineDistance(normalized, node.Value)
		results = append(results, &VectorResult{
			ChunkID:  chunkID,
			Distance: distance,
			Score:    1 - distance/2,
		})
	}
	return results, nil
}

// Delete lazily removes chunkID's vector from future search results.
func (s *HNSWStore) Delete(ctx context.Context, chunkID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("ann store is closed")
	}
	if key, exists := s.idMap[chunkID]; exists {
		delete(s.keyMap, key)
		delete(s.idMap, chunkID)
	}
	return nil
}

// IsLoaded reports whether the index is ready to serve searches.
func (s *HNSWStore) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded && !s.closed
}

// Count returns the number of live vectors, excluding lazily-deleted ones.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.idMap)
}

// Save persists the graph (via coder/hnsw's own export format) and the ID
// mapping sidecar, each via temp-file-plus-rename.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("ann store is closed")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ann index directory: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create ann index file: %w", err)
	}
	if err := s.graph.Export(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("export ann graph: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close ann index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename ann index file: %w", err)
	}

	return s.saveMetadata(path + ".meta")
}

func (s *HNSWStore) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create ann metadata file: %w", err)
	}

	meta := hnswMetadata{
		IDMap:   s.idMap,
		NextKey: s.nextKey,
		Dims:    s.dims,
		Params:  s.params,
	}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode ann metadata: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close ann metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and ID mapping previously written by Save. A
// missing or unreadable metadata file is treated as index corruption: the
// caller should clear the path and rebuild rather than serve a
// half-restored graph.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("ann store is closed")
	}

	if err := s.loadMetadata(path + ".meta"); err != nil {
		return fmt.Errorf("load ann metadata: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open ann index file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f) // coder/hnsw's Import wants an io.ByteReader
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = s.params.M
	graph.Ml = 0.25
	if err := graph.Import(reader); err != nil {
		return fmt.Errorf("import ann graph: %w", err)
	}

	s.graph = graph
	s.loaded = true
	return nil
}

func (s *HNSWStore) loadMetadata(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open ann metadata file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			slog.Warn("ann_metadata_close_failed", slog.String("error", cerr.Error()))
		}
	}()

	var meta hnswMetadata
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return fmt.Errorf("decode ann metadata: %w", err)
	}

	s.idMap = meta.IDMap
	s.nextKey = meta.NextKey
	s.dims = meta.Dims
	s.params = meta.Params
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for chunkID, key := range s.idMap {
		s.keyMap[key] = chunkID
	}
	return nil
}

// Clear discards the current graph and ID mapping, keeping the store open
// for fresh inserts.
func (s *HNSWStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("ann store is closed")
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = s.params.M
	graph.Ml = 0.25

	s.graph = graph
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.nextKey = 0
	return nil
}

// Close releases the store. The underlying graph holds no external
// resources, so this only flips the closed flag.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// cosineDistance returns 1.0 for a zero-norm vector rather than dividing by
// zero, treating it as maximally dissimilar from everything including
// itself.
func cosineDistance(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return float32(1 - cos)
}
