// Package retrieve implements the hybrid retriever: concurrent ANN and
// BM25 candidate generation (or a scoped exact scan under a source
// filter), fused by Reciprocal Rank Fusion and hydrated from the Store.
package retrieve

// Config tunes Reciprocal Rank Fusion. Zero values are replaced by
// DefaultConfig's defaults at call time.
type Config struct {
	K            int     // RRF smoothing constant, default 60
	VectorWeight float64 // default 0.5
	BM25Weight   float64 // default 0.5
}

// DefaultConfig returns the spec's default RRF configuration.
func DefaultConfig() Config {
	return Config{K: 60, VectorWeight: 0.5, BM25Weight: 0.5}
}

func (c Config) withDefaults() Config {
	if c.K <= 0 {
		c.K = 60
	}
	if c.VectorWeight == 0 && c.BM25Weight == 0 {
		c.VectorWeight, c.BM25Weight = 0.5, 0.5
	}
	c.VectorWeight = clamp01(c.VectorWeight)
	c.BM25Weight = clamp01(c.BM25Weight)
	return c
}

func clamp01(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}

// Filter narrows a search to a subset of sources and/or a metadata
// substring match. An empty Filter means the global (Path A) search.
type Filter struct {
	SourceIDs    []string
	MetadataLike string // empty means "no metadata constraint"
}

// Active reports whether the filter is non-empty, i.e. whether Path B
// (scoped exact scan) should run instead of the global candidate
// generators.
func (f Filter) Active() bool {
	return len(f.SourceIDs) > 0
}

// hasMetadata reports whether a metadata_like constraint is set.
func (f Filter) hasMetadata() bool {
	return f.MetadataLike != ""
}

// matchesMetadata reports whether metadata satisfies the filter's
// metadata_like predicate (a plain substring match, mirroring SQL's
// "LIKE '%...%'" for the in-memory post-filter path).
func (f Filter) matchesMetadata(metadata string) bool {
	if !f.hasMetadata() {
		return true
	}
	return contains(metadata, f.MetadataLike)
}

func contains(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	n, m := len(haystack), len(needle)
	if m > n {
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if haystack[i:i+m] == needle {
			return i
		}
	}
	return -1
}

// Result is one hydrated, fused hit returned to the caller.
type Result struct {
	ChunkID    string
	Content    string
	Score      float64
	VectorRank int // 1-based, 0 if absent from the vector candidate list
	BM25Rank   int // 1-based, 0 if absent from the BM25 candidate list
	SourceID   string
	Metadata   string
	ChunkIndex int
}
