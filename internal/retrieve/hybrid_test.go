package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ragcore/ragcore/internal/store"
)

func newTestHarness(t *testing.T) (store.Store, store.VectorStore, store.BM25Index, *store.RecentBuffer) {
	t.Helper()
	st, err := store.NewSQLiteStore("", 4, 5000, 16*1024)
	require.NoError(t, err)
	require.NoError(t, st.Init(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	ann := store.NewHNSWStore(2, 10)
	bm25 := store.NewInMemoryBM25Index(1.2, 0.75)
	buffer := store.NewRecentBuffer(100)
	return st, ann, bm25, buffer
}

func seedChunk(t *testing.T, ctx context.Context, st store.Store, ann store.VectorStore, bm25 store.BM25Index, sourceID, chunkID, content string, embedding []float32) {
	t.Helper()
	_, err := st.AddSource(ctx, &store.Source{ID: sourceID, ContentHash: sourceID, URI: sourceID})
	require.NoError(t, err)

	err = st.AddChunks(ctx, []*store.Chunk{{
		ID:        chunkID,
		SourceID:  sourceID,
		Ordinal:   0,
		Content:   content,
		ChunkType: store.ChunkTypeGeneral,
		Embedding: embedding,
	}})
	require.NoError(t, err)

	require.NoError(t, ann.Add(ctx, chunkID, embedding))
	bm25.Add(chunkID, content)
}

// S2: hybrid fusion over three docs, query "Apple" / [1,0], top_k=2.
func TestSearchHybrid_S2_FusesVectorAndKeyword(t *testing.T) {
	ctx := context.Background()
	st, ann, bm25, buffer := newTestHarness(t)

	seedChunk(t, ctx, st, ann, bm25, "s1", "1", "Apple iPhone is great", []float32{1, 0})
	seedChunk(t, ctx, st, ann, bm25, "s2", "2", "Banana is a yellow fruit", []float32{0, 1})
	seedChunk(t, ctx, st, ann, bm25, "s3", "3", "Apple pie recipe", []float32{0.9, 0.1})

	r := New(st, ann, bm25, buffer, DefaultConfig())
	results, err := r.SearchHybrid(ctx, "Apple", []float32{1, 0}, 2, nil, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	ids := map[string]bool{}
	for _, res := range results {
		ids[res.ChunkID] = true
	}
	require.True(t, ids["1"])
	require.True(t, ids["3"])
}

// S3: source filter triggers the scoped exact scan; every result must
// belong to the requested source, and the scoped BM25 pass must have run.
func TestSearchHybrid_S3_SourceFilterScopesToSource(t *testing.T) {
	ctx := context.Background()
	st, ann, bm25, buffer := newTestHarness(t)

	seedChunk(t, ctx, st, ann, bm25, "src1", "101", "apple cider", []float32{1, 0})
	seedChunk(t, ctx, st, ann, bm25, "src1", "102", "banana split", []float32{0, 1})
	seedChunk(t, ctx, st, ann, bm25, "src2", "201", "apple cider", []float32{1, 0})

	r := New(st, ann, bm25, buffer, DefaultConfig())
	results, err := r.SearchHybrid(ctx, "cider", []float32{0, 1}, 2, nil, &Filter{SourceIDs: []string{"src1"}})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	sawBM25Rank := false
	for _, res := range results {
		require.Equal(t, "src1", res.SourceID)
		if res.BM25Rank > 0 {
			sawBM25Rank = true
		}
	}
	require.True(t, sawBM25Rank)
}

func TestSearchSimple_ReturnsContentOnly(t *testing.T) {
	ctx := context.Background()
	st, ann, bm25, buffer := newTestHarness(t)
	seedChunk(t, ctx, st, ann, bm25, "s1", "1", "hello world", []float32{1, 0})

	r := New(st, ann, bm25, buffer, DefaultConfig())
	texts, err := r.SearchSimple(ctx, "hello", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Contains(t, texts, "hello world")
}

func TestSearchWeighted_ClampsWeights(t *testing.T) {
	ctx := context.Background()
	st, ann, bm25, buffer := newTestHarness(t)
	seedChunk(t, ctx, st, ann, bm25, "s1", "1", "hello world", []float32{1, 0})

	r := New(st, ann, bm25, buffer, DefaultConfig())
	results, err := r.SearchWeighted(ctx, "hello", []float32{1, 0}, 5, 2.0, -1.0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func TestSearchHybrid_EmptyStoreReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	st, ann, bm25, buffer := newTestHarness(t)
	r := New(st, ann, bm25, buffer, DefaultConfig())

	results, err := r.SearchHybrid(ctx, "anything", []float32{1, 0}, 5, nil, nil)
	require.NoError(t, err)
	require.Empty(t, results)
}
