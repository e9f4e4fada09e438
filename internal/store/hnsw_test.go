package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWStore_AddAndSearch(t *testing.T) {
	// Given: empty store with 4 dimensions
	store := NewHNSWStore(4, 100)
	defer func() { _ = store.Close() }()

	// And: vectors a=[1,0,0,0], b=[0,1,0,0], c=[0.9,0.1,0,0]
	require.NoError(t, store.Add(context.Background(), "a", []float32{1, 0, 0, 0}))
	require.NoError(t, store.Add(context.Background(), "b", []float32{0, 1, 0, 0}))
	require.NoError(t, store.Add(context.Background(), "c", []float32{0.9, 0.1, 0, 0}))

	// When: searching for query [1,0,0,0] with k=2
	results, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)

	// Then: "a" is the closest exact match
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Greater(t, results[0].Score, float32(0.99))
}

func TestHNSWStore_Delete(t *testing.T) {
	store := NewHNSWStore(4, 100)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Add(context.Background(), "a", []float32{1, 0, 0, 0}))
	require.NoError(t, store.Add(context.Background(), "b", []float32{0, 1, 0, 0}))

	require.NoError(t, store.Delete(context.Background(), "a"))

	assert.Equal(t, 1, store.Count())
}

func TestHNSWStore_Update(t *testing.T) {
	// Given: a store with vector "a" = [1,0,0,0]
	store := NewHNSWStore(4, 100)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Add(context.Background(), "a", []float32{1, 0, 0, 0}))

	// When: re-adding "a" with a different vector
	require.NoError(t, store.Add(context.Background(), "a", []float32{0, 1, 0, 0}))

	// Then: Count() is still 1
	assert.Equal(t, 1, store.Count())

	results, err := store.Search(context.Background(), []float32{0, 1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Greater(t, results[0].Score, float32(0.99))
}

func TestHNSWStore_Persistence_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	indexPath := filepath.Join(tmpDir, "vectors.hnsw")

	store1 := NewHNSWStore(4, 100)
	require.NoError(t, store1.Add(context.Background(), "a", []float32{1, 0, 0, 0}))
	require.NoError(t, store1.Add(context.Background(), "b", []float32{0, 1, 0, 0}))

	require.NoError(t, store1.Save(indexPath))
	require.NoError(t, store1.Close())

	store2 := NewHNSWStore(4, 100)
	defer func() { _ = store2.Close() }()
	require.NoError(t, store2.Load(indexPath))

	assert.Equal(t, 2, store2.Count())

	results, err := store2.Search(context.Background(), []float32{1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestHNSWStore_EmptySearch(t *testing.T) {
	store := NewHNSWStore(4, 100)
	defer func() { _ = store.Close() }()

	results, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_DimensionMismatch_OnAdd(t *testing.T) {
	store := NewHNSWStore(768, 100)
	defer func() { _ = store.Close() }()

	err := store.Add(context.Background(), "test", make([]float32, 256))

	require.Error(t, err)
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 768, dimErr.Expected)
	assert.Equal(t, 256, dimErr.Got)
}

func TestHNSWStore_DimensionMismatch_OnSearch(t *testing.T) {
	store := NewHNSWStore(4, 100)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Add(context.Background(), "a", []float32{1, 0, 0, 0}))

	_, err := store.Search(context.Background(), []float32{1, 0}, 10)
	require.Error(t, err)
	var dimErr ErrDimensionMismatch
	assert.ErrorAs(t, err, &dimErr)
}

func TestHNSWStore_DeleteNonExistent(t *testing.T) {
	store := NewHNSWStore(4, 100)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Delete(context.Background(), "nonexistent"))
}

func TestHNSWStore_CloseIdempotent(t *testing.T) {
	store := NewHNSWStore(4, 100)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

func TestHNSWStore_SearchAfterClose(t *testing.T) {
	store := NewHNSWStore(4, 100)
	require.NoError(t, store.Close())

	_, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 10)
	require.Error(t, err)
}

func TestHNSWStore_AddAfterClose(t *testing.T) {
	store := NewHNSWStore(4, 100)
	require.NoError(t, store.Close())

	err := store.Add(context.Background(), "a", []float32{1, 0, 0, 0})
	require.Error(t, err)
}

func TestHNSWStore_LazyDeletionCountsOnlyLive(t *testing.T) {
	// Given: a vector updated multiple times (lazy deletion orphans old nodes)
	store := NewHNSWStore(4, 100)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Add(context.Background(), "a", []float32{1, 0, 0, 0}))
	for i := 0; i < 5; i++ {
		vec := []float32{0.9, 0.1 * float32(i+1), 0, 0}
		require.NoError(t, store.Add(context.Background(), "a", vec))
	}

	// Then: Count() reflects the logical (live) count, not graph size
	assert.Equal(t, 1, store.Count())
}

func TestHNSWStore_Clear(t *testing.T) {
	store := NewHNSWStore(4, 100)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Add(context.Background(), "a", []float32{1, 0, 0, 0}))
	require.NoError(t, store.Clear())

	assert.Equal(t, 0, store.Count())
	results, err := store.Search(context.Background(), []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_IsLoaded(t *testing.T) {
	store := NewHNSWStore(4, 100)
	assert.True(t, store.IsLoaded())

	require.NoError(t, store.Close())
	assert.False(t, store.IsLoaded())
}

func TestANNParamsForSize(t *testing.T) {
	small := ANNParamsForSize(500)
	assert.Equal(t, 16, small.M)
	assert.Equal(t, 32, small.M0)
	assert.Equal(t, 100, small.EfConstruction)

	medium := ANNParamsForSize(5000)
	assert.Equal(t, 20, medium.M)
	assert.Equal(t, 40, medium.M0)
	assert.Equal(t, 150, medium.EfConstruction)

	large := ANNParamsForSize(50000)
	assert.Equal(t, 24, large.M)
	assert.Equal(t, 48, large.M0)
	assert.Equal(t, 200, large.EfConstruction)
}

func TestEfSearchFor(t *testing.T) {
	assert.Equal(t, 100, EfSearchFor(5))
	assert.Equal(t, 100, EfSearchFor(20))
	assert.Equal(t, 500, EfSearchFor(100))
}

func TestNormalizeVectorInPlace(t *testing.T) {
	v := []float32{3, 4, 0, 0}
	normalizeVectorInPlace(v)

	var length float64
	for _, val := range v {
		length += float64(val) * float64(val)
	}
	assert.InDelta(t, 1.0, math.Sqrt(length), 0.0001)
}

func TestNormalizeVectorInPlace_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0, 0}
	normalizeVectorInPlace(v)

	for _, val := range v {
		assert.False(t, math.IsNaN(float64(val)))
		assert.Equal(t, float32(0), val)
	}
}

func TestCosineDistance_ZeroNorm(t *testing.T) {
	d := cosineDistance([]float32{0, 0, 0}, []float32{1, 0, 0})
	assert.Equal(t, float32(1.0), d)
}

func TestCosineDistance_Identical(t *testing.T) {
	d := cosineDistance([]float32{1, 0, 0}, []float32{1, 0, 0})
	assert.InDelta(t, 0.0, d, 0.0001)
}
