package ragengine

import (
	"context"

	"github.com/ragcore/ragcore/internal/retrieve"
)

// SearchHybrid runs the full hybrid retrieval pipeline: concurrent ANN
// and BM25 candidate generation (or a scoped exact scan when filter
// narrows to a set of sources), Reciprocal Rank Fusion, and hydration.
// A nil cfg uses the engine's configured RRF weights; a nil filter means
// an unscoped, global search.
func (e *Engine) SearchHybrid(ctx context.Context, queryText string, queryEmbedding []float32, topK int, cfg *retrieve.Config, filter *retrieve.Filter) ([]*retrieve.Result, error) {
	return e.retriever.SearchHybrid(ctx, queryText, queryEmbedding, topK, cfg, filter)
}

// SearchHybridSimple returns only the content of each hybrid result, for
// callers that don't need ranks or metadata.
func (e *Engine) SearchHybridSimple(ctx context.Context, queryText string, queryEmbedding []float32, topK int) ([]string, error) {
	return e.retriever.SearchSimple(ctx, queryText, queryEmbedding, topK)
}

// SearchHybridWeighted runs hybrid retrieval with caller-supplied vector
// and BM25 weights in place of the engine's configured defaults. Weights
// are clamped to [0, 1].
func (e *Engine) SearchHybridWeighted(ctx context.Context, queryText string, queryEmbedding []float32, topK int, vectorWeight, bm25Weight float64) ([]*retrieve.Result, error) {
	return e.retriever.SearchWeighted(ctx, queryText, queryEmbedding, topK, vectorWeight, bm25Weight)
}
