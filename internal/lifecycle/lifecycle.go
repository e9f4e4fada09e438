// Package lifecycle manages the retrieval engine's index lifecycle:
// schema initialization, full ANN/BM25 rebuilds from the Store, and the
// lazy-load-on-first-search discipline the rest of the engine depends on.
package lifecycle

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ragcore/ragcore/internal/store"
)

// Manager owns the full-rebuild and startup-initialization operations for
// the Store, the ANN index, the BM25 index, and the recent-insert buffer.
// It does not itself serve searches; internal/retrieve does, against the
// same index instances this Manager rebuilds.
type Manager struct {
	store  store.Store
	ann    store.VectorStore
	bm25   store.BM25Index
	buffer *store.RecentBuffer

	mu          sync.Mutex
	annLoaded   bool
	bm25Loaded  bool
}

// NewManager constructs a Manager over the given store and indices.
func NewManager(st store.Store, ann store.VectorStore, bm25 store.BM25Index, buffer *store.RecentBuffer) *Manager {
	return &Manager{store: st, ann: ann, bm25: bm25, buffer: buffer}
}

// InitStore creates the Store's schema idempotently and applies any
// pending additive migrations. Safe to call more than once.
func (m *Manager) InitStore(ctx context.Context) error {
	return m.store.Init(ctx)
}

// RebuildANN reads every (chunk_id, embedding) pair from the Store and
// performs a full ANN graph reconstruction, replacing whatever graph was
// loaded before. Falls back to the legacy flat docs table when the Store
// has no chunked sources at all, matching the simple-RAG path's rebuild
// contract. Clears the recent-insert buffer on success, since every
// embedding it held is now represented in the freshly built graph.
func (m *Manager) RebuildANN(ctx context.Context) error {
	points, err := m.loadANNPoints(ctx)
	if err != nil {
		return err
	}

	if err := m.ann.Build(ctx, points); err != nil {
		return err
	}

	m.mu.Lock()
	m.annLoaded = true
	m.mu.Unlock()

	if m.buffer != nil {
		m.buffer.Clear()
	}

	slog.Info("ann_rebuilt", slog.Int("points", len(points)))
	return nil
}

func (m *Manager) loadANNPoints(ctx context.Context) ([]store.BuildPoint, error) {
	chunkEmbeddings, err := m.store.GetAllChunkIDsAndEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	if len(chunkEmbeddings) > 0 {
		return buildPoints(chunkEmbeddings), nil
	}

	docEmbeddings, err := m.store.GetAllDocIDsAndEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	return buildPoints(docEmbeddings), nil
}

func buildPoints(embeddings map[string][]float32) []store.BuildPoint {
	points := make([]store.BuildPoint, 0, len(embeddings))
	for id, emb := range embeddings {
		points = append(points, store.BuildPoint{ChunkID: id, Embedding: emb})
	}
	return points
}

// RebuildBM25 clears and re-populates the BM25 index from every
// (chunk_id, content) pair currently in the Store.
func (m *Manager) RebuildBM25(ctx context.Context) error {
	contents, err := m.store.GetAllChunkIDsAndContents(ctx)
	if err != nil {
		return err
	}

	m.bm25.Clear()
	m.bm25.AddMany(contents)

	m.mu.Lock()
	m.bm25Loaded = true
	m.mu.Unlock()

	slog.Info("bm25_rebuilt", slog.Int("docs", len(contents)))
	return nil
}

// ClearAll wipes every source, chunk, and doc from the Store and empties
// both indices and the recent-insert buffer.
func (m *Manager) ClearAll(ctx context.Context) error {
	if err := m.store.ClearAll(ctx); err != nil {
		return err
	}
	if err := m.ann.Clear(); err != nil {
		return err
	}
	m.bm25.Clear()
	if m.buffer != nil {
		m.buffer.Clear()
	}

	m.mu.Lock()
	m.annLoaded = false
	m.bm25Loaded = false
	m.mu.Unlock()
	return nil
}

// EnsureLoaded performs the startup orchestrator's lazy-rebuild contract:
// the first search after process start (or after a rebuild failure) pays
// the cost of a full rebuild, rather than every search checking index
// freshness. Subsequent calls are no-ops once both indices report loaded.
func (m *Manager) EnsureLoaded(ctx context.Context) error {
	m.mu.Lock()
	needsANN := !m.annLoaded && m.ann.Count() == 0
	needsBM25 := !m.bm25Loaded && m.bm25.Len() == 0
	m.mu.Unlock()

	if needsANN {
		if err := m.RebuildANN(ctx); err != nil {
			// A failed rebuild leaves the engine in linear-scan-only mode:
			// the retriever's scoped exact-scan path still works, it just
			// can't skip candidate generation via the graph. Surfaced as a
			// warning, not a hard failure, per spec's startup-error policy.
			slog.Warn("ann_rebuild_failed", slog.String("error", err.Error()))
		}
	}
	if needsBM25 {
		if err := m.RebuildBM25(ctx); err != nil {
			slog.Warn("bm25_rebuild_failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

// MergeBuffer folds the recent-insert buffer into the ANN graph via a full
// rebuild, then clears the buffer. The ANN write lock (internal to
// store.VectorStore) is held only for the Build swap itself; this call
// does not hold any lock of its own while reading from the Store.
func (m *Manager) MergeBuffer(ctx context.Context) error {
	if m.buffer == nil || m.buffer.Len() == 0 {
		return nil
	}
	return m.RebuildANN(ctx)
}

// Watch starts an fsnotify watch on the ANN index's on-disk artifacts
// (<dbPath>.hnsw and its companion <dbPath>.hnsw.marker, written by a
// sibling process's Save/rebuild) and emits a signal on the returned
// channel every time either file changes. A caller holding a long-lived
// search process uses this to pick up an out-of-process rebuild without
// polling. The returned channel is closed when ctx is canceled.
func (m *Manager) Watch(ctx context.Context, dbPath string) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(dbPath)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	hnswPath := dbPath + ".hnsw"
	markerPath := dbPath + ".hnsw.marker"

	signal := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		defer close(signal)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != hnswPath && event.Name != markerPath {
					continue
				}
				select {
				case signal <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("lifecycle_watch_error", slog.String("error", err.Error()))
			}
		}
	}()

	return signal, nil
}
