package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore("", 4, 5000, 16*1024)
	require.NoError(t, err)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSource(id string) *Source {
	return &Source{
		URI:         "file://" + id,
		ContentType: ContentTypeMarkdown,
		Content:     id,
		ContentHash: contentHash(id),
		ByteSize:    int64(len(id)),
	}
}

func TestSQLiteStore_AddSource_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src := testSource("doc-a")

	first, err := store.AddSource(ctx, src)
	require.NoError(t, err)

	// When: re-adding a source with the same content hash
	second, err := store.AddSource(ctx, testSource("doc-a"))
	require.NoError(t, err)

	// Then: the same source record is returned, not a duplicate
	assert.Equal(t, first.ID, second.ID)
}

func TestSQLiteStore_AddSource_EmptyHash(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.AddSource(ctx, &Source{URI: "x"})
	require.Error(t, err)
}

func TestSQLiteStore_AddSource_GetSourceRoundTripsContent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src, err := store.AddSource(ctx, testSource("doc-c"))
	require.NoError(t, err)

	got, err := store.GetSource(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, "doc-c", got.Content)
}

func TestSQLiteStore_GetSource_NotFound(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.GetSource(ctx, "nonexistent")
	require.Error(t, err)
}

func TestSQLiteStore_AddChunksAndGetSourceChunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src, err := store.AddSource(ctx, testSource("doc-b"))
	require.NoError(t, err)

	chunks := []*Chunk{
		{ID: "c1", SourceID: src.ID, Ordinal: 0, Content: "first", TokenCount: 1, ChunkType: ChunkTypeGeneral},
		{ID: "c2", SourceID: src.ID, Ordinal: 1, Content: "second", TokenCount: 1, ChunkType: ChunkTypeGeneral},
	}
	require.NoError(t, store.AddChunks(ctx, chunks))

	retrieved, err := store.GetSourceChunks(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, retrieved, 2)
	assert.Equal(t, "c1", retrieved[0].ID)
	assert.Equal(t, "c2", retrieved[1].ID)
}

func TestSQLiteStore_AddChunks_Empty(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.AddChunks(context.Background(), nil))
}

func TestSQLiteStore_AddChunks_WithEmbedding_RoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src, err := store.AddSource(ctx, testSource("doc-emb"))
	require.NoError(t, err)

	emb := []float32{0.1, 0.2, 0.3, -0.5}
	require.NoError(t, store.AddChunks(ctx, []*Chunk{
		{ID: "c-emb", SourceID: src.ID, Ordinal: 0, Content: "x", ChunkType: ChunkTypeGeneral, Embedding: emb},
	}))

	chunks, err := store.GetSourceChunks(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Len(t, chunks[0].Embedding, len(emb))
	for i, v := range emb {
		assert.InDelta(t, v, chunks[0].Embedding[i], 0.0001)
	}
}

func TestSQLiteStore_DeleteSource_CascadesChunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src, err := store.AddSource(ctx, testSource("doc-c"))
	require.NoError(t, err)
	require.NoError(t, store.AddChunks(ctx, []*Chunk{
		{ID: "c3", SourceID: src.ID, Ordinal: 0, Content: "a", ChunkType: ChunkTypeGeneral},
	}))

	require.NoError(t, store.DeleteSource(ctx, src.ID))

	chunks, err := store.GetSourceChunks(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	_, err = store.GetSource(ctx, src.ID)
	assert.Error(t, err)
}

func TestSQLiteStore_GetAdjacentChunks(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src, err := store.AddSource(ctx, testSource("doc-d"))
	require.NoError(t, err)

	require.NoError(t, store.AddChunks(ctx, []*Chunk{
		{ID: "a1", SourceID: src.ID, Ordinal: 0, Content: "a", ChunkType: ChunkTypeGeneral},
		{ID: "a2", SourceID: src.ID, Ordinal: 1, Content: "b", ChunkType: ChunkTypeGeneral},
		{ID: "a3", SourceID: src.ID, Ordinal: 2, Content: "c", ChunkType: ChunkTypeGeneral},
	}))

	prev, next, err := store.GetAdjacentChunks(ctx, "a2")
	require.NoError(t, err)
	require.NotNil(t, prev)
	require.NotNil(t, next)
	assert.Equal(t, "a1", prev.ID)
	assert.Equal(t, "a3", next.ID)
}

func TestSQLiteStore_GetAdjacentChunks_AtBoundary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src, err := store.AddSource(ctx, testSource("doc-e"))
	require.NoError(t, err)
	require.NoError(t, store.AddChunks(ctx, []*Chunk{
		{ID: "b1", SourceID: src.ID, Ordinal: 0, Content: "a", ChunkType: ChunkTypeGeneral},
	}))

	prev, next, err := store.GetAdjacentChunks(ctx, "b1")
	require.NoError(t, err)
	assert.Nil(t, prev)
	assert.Nil(t, next)
}

func TestSQLiteStore_GetSourceStats(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src, err := store.AddSource(ctx, testSource("doc-f"))
	require.NoError(t, err)
	require.NoError(t, store.AddChunks(ctx, []*Chunk{
		{ID: "s1", SourceID: src.ID, Ordinal: 0, Content: "hello", ChunkType: ChunkTypeGeneral},
		{ID: "s2", SourceID: src.ID, Ordinal: 1, Content: "world!", ChunkType: ChunkTypeGeneral},
	}))

	stats, err := store.GetSourceStats(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.ChunkCount)
	assert.Equal(t, int64(len("hello")+len("world!")), stats.TotalBytes)
}

func TestSQLiteStore_GetAllChunkIDsAndContents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src, err := store.AddSource(ctx, testSource("doc-g"))
	require.NoError(t, err)
	require.NoError(t, store.AddChunks(ctx, []*Chunk{
		{ID: "g1", SourceID: src.ID, Ordinal: 0, Content: "alpha", ChunkType: ChunkTypeGeneral},
		{ID: "g2", SourceID: src.ID, Ordinal: 1, Content: "beta", ChunkType: ChunkTypeGeneral},
	}))

	all, err := store.GetAllChunkIDsAndContents(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alpha", all["g1"])
	assert.Equal(t, "beta", all["g2"])
}

func TestSQLiteStore_UpdateChunkEmbedding(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src, err := store.AddSource(ctx, testSource("doc-h"))
	require.NoError(t, err)
	require.NoError(t, store.AddChunks(ctx, []*Chunk{
		{ID: "h1", SourceID: src.ID, Ordinal: 0, Content: "x", ChunkType: ChunkTypeGeneral},
	}))

	emb := []float32{1, 2, 3}
	require.NoError(t, store.UpdateChunkEmbedding(ctx, "h1", emb))

	chunks, err := store.GetSourceChunks(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, chunks[0].Embedding, 3)
}

func TestSQLiteStore_UpdateChunkEmbedding_NotFound(t *testing.T) {
	store := newTestStore(t)
	err := store.UpdateChunkEmbedding(context.Background(), "missing", []float32{1})
	require.Error(t, err)
}

func TestSQLiteStore_ClearAll(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	src, err := store.AddSource(ctx, testSource("doc-i"))
	require.NoError(t, err)
	require.NoError(t, store.AddChunks(ctx, []*Chunk{
		{ID: "i1", SourceID: src.ID, Ordinal: 0, Content: "x", ChunkType: ChunkTypeGeneral},
	}))

	require.NoError(t, store.ClearAll(ctx))

	_, err = store.GetSource(ctx, src.ID)
	assert.Error(t, err)

	all, err := store.GetAllChunkIDsAndContents(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteStore_SchemaAutoCreation(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "ragcore.db")

	_, statErr := os.Stat(dbPath)
	require.True(t, os.IsNotExist(statErr))

	store, err := NewSQLiteStore(dbPath, 4, 5000, 16*1024)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Init(context.Background()))

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestSQLiteStore_CorruptedFile_AutoRecovers(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "corrupt.db")

	require.NoError(t, os.WriteFile(dbPath, []byte("not a sqlite file"), 0o644))

	store, err := NewSQLiteStore(dbPath, 4, 5000, 16*1024)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Init(context.Background()))

	_, err = store.AddSource(context.Background(), testSource("recovered"))
	require.NoError(t, err)
}

func TestEmbeddingEncodeDecode_RoundTrip(t *testing.T) {
	original := []float32{0.1, 0.2, 0.3, -0.5, 1.0, 0.0}

	blob := encodeEmbedding(original)
	decoded, err := decodeEmbedding(blob)
	require.NoError(t, err)

	require.Len(t, decoded, len(original))
	for i, v := range original {
		assert.InDelta(t, v, decoded[i], 0.0001)
	}
}

func TestDecodeEmbedding_RejectsTruncatedBlob(t *testing.T) {
	_, err := decodeEmbedding([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestSQLiteStore_AcquireTimeout_Default(t *testing.T) {
	store, err := NewSQLiteStore("", 0, 0, 0)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	assert.Equal(t, 5*time.Second, store.acquireTimeout)
}
