package ragengine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ragcore/ragcore/internal/config"
	"github.com/ragcore/ragcore/internal/lifecycle"
	"github.com/ragcore/ragcore/internal/retrieve"
	"github.com/ragcore/ragcore/internal/store"
	"github.com/ragcore/ragcore/internal/tokenizer"
)

// Engine is the process-wide retrieval engine handle: one Store, one ANN
// index, one BM25 index, one recent-insert buffer, and the retriever and
// lifecycle manager layered over them. Per spec.md §9's design note on
// process-wide singletons, callers construct exactly one Engine per
// database path and share it across requests; Engine itself is safe for
// concurrent use because every component it wraps already is.
type Engine struct {
	cfg *config.Config

	store  store.Store
	ann    store.VectorStore
	bm25   store.BM25Index
	buffer *store.RecentBuffer

	tok *tokenizer.Tokenizer // nil if cfg.Tokenizer.ModelPath is unset

	lifecycle *lifecycle.Manager
	retriever *retrieve.Retriever
}

// New constructs an Engine from cfg, initializes the Store schema, and
// performs the lazy-rebuild-on-first-call sequence: an ANN or BM25 index
// with zero entries is rebuilt from whatever the Store already holds
// before New returns, so the first search after process start never pays
// a cold-index miss.
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}

	st, err := store.NewSQLiteStore(cfg.Store.Path, cfg.Store.PoolSize, cfg.Store.AcquireTimeoutMS, cfg.Store.CacheSizeKB)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// expectedDatasetSize only tunes HNSW's build parameters (M/M0/ef); the
	// graph grows unbounded regardless, so a mid-range default is safe when
	// the caller hasn't ingested anything yet to size it against.
	const expectedDatasetSize = 1000
	ann := store.NewHNSWStore(cfg.ANN.Dimensions, expectedDatasetSize)
	bm25 := store.NewInMemoryBM25Index(cfg.BM25.K1, cfg.BM25.B)
	buffer := store.NewRecentBuffer(cfg.Buffer.Threshold)

	e := &Engine{
		cfg:       cfg,
		store:     st,
		ann:       ann,
		bm25:      bm25,
		buffer:    buffer,
		lifecycle: lifecycle.NewManager(st, ann, bm25, buffer),
	}
	e.retriever = retrieve.New(st, ann, bm25, buffer, retrieve.Config{
		K:            cfg.Retrieve.RRFConstant,
		VectorWeight: cfg.Retrieve.VectorWeight,
		BM25Weight:   cfg.Retrieve.BM25Weight,
	})

	if err := e.lifecycle.InitStore(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("initialize store: %w", err)
	}

	e.restoreANNFromDisk()

	if err := e.lifecycle.EnsureLoaded(ctx); err != nil {
		slog.Warn("engine_ensure_loaded_failed", slog.String("error", err.Error()))
	}

	if cfg.Tokenizer.ModelPath != "" {
		tok, err := tokenizer.Load(cfg.Tokenizer.ModelPath, cfg.Tokenizer.CacheSize)
		if err != nil {
			// Per spec.md §7: tokenizer absence is surfaced only when an
			// operation that needs it is invoked, not at startup.
			slog.Warn("tokenizer_load_deferred_failure", slog.String("error", err.Error()))
		} else {
			e.tok = tok
		}
	}

	return e, nil
}

// restoreANNFromDisk attempts to load a persisted HNSW graph from
// <db_path>.hnsw before falling back to a from-Store rebuild. A load
// failure (missing file, corrupt graph, or a bare marker file left by a
// prior "rebuild from Store" signal) is not an error — EnsureLoaded's
// subsequent full rebuild covers it, matching the teacher's corruption
// auto-recovery pattern of falling back to a rebuild rather than failing
// hard on an unreadable persistence file.
func (e *Engine) restoreANNFromDisk() {
	if e.cfg.Store.Path == "" {
		return
	}
	annPath := e.cfg.Store.Path + ".hnsw"
	if err := e.ann.Load(annPath); err != nil {
		slog.Warn("ann_load_failed_will_rebuild", slog.String("path", annPath), slog.String("error", err.Error()))
	}
}

// Tokenizer exposes the loaded sub-word tokenizer, or nil if none was
// configured. Callers needing token counts for chunk sizing should check
// for nil and fall back to a character-based heuristic.
func (e *Engine) Tokenizer() *tokenizer.Tokenizer {
	return e.tok
}

// RebuildANN forces a full ANN graph reconstruction from the Store.
func (e *Engine) RebuildANN(ctx context.Context) error {
	return e.lifecycle.RebuildANN(ctx)
}

// RebuildBM25 forces a full BM25 index reconstruction from the Store.
func (e *Engine) RebuildBM25(ctx context.Context) error {
	return e.lifecycle.RebuildBM25(ctx)
}

// ClearAll wipes every source, chunk, and doc, and empties both indices
// and the recent-insert buffer.
func (e *Engine) ClearAll(ctx context.Context) error {
	return e.lifecycle.ClearAll(ctx)
}

// MergeBuffer folds the recent-insert buffer into the ANN graph if it has
// reached its configured threshold.
func (e *Engine) MergeBuffer(ctx context.Context) error {
	if !e.buffer.NeedsMerge() {
		return nil
	}
	return e.lifecycle.MergeBuffer(ctx)
}

// Watch starts an fsnotify watch over the ANN index's on-disk artifacts,
// signaling whenever a sibling process rebuilds or persists the graph.
func (e *Engine) Watch(ctx context.Context) (<-chan struct{}, error) {
	return e.lifecycle.Watch(ctx, e.cfg.Store.Path)
}

// Stats reports the engine's current index footprint.
type Stats struct {
	BM25     store.BM25Stats
	ANNCount int
	ANNReady bool
	Buffer   store.BufferStats
}

// Stats snapshots the current size of every index the engine maintains.
func (e *Engine) Stats() Stats {
	return Stats{
		BM25:     e.bm25.Stats(),
		ANNCount: e.ann.Count(),
		ANNReady: e.ann.IsLoaded(),
		Buffer:   e.buffer.Stats(),
	}
}

// Close releases every resource the Engine holds: the Store's connection
// pool, the ANN index, and the tokenizer (if loaded). Safe to call once;
// the underlying components are not guaranteed idempotent-Close.
func (e *Engine) Close() error {
	var firstErr error
	if e.tok != nil {
		if err := e.tok.Close(); err != nil {
			firstErr = err
		}
	}
	if err := e.ann.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
