// Package store provides the authoritative SQLite store, the hand-rolled
// BM25 inverted index, and the HNSW approximate nearest-neighbor index that
// together back the retrieval engine.
package store

import (
	"context"
	"fmt"
	"time"
)

// ContentType classifies the document a Source was ingested from.
type ContentType string

const (
	ContentTypeMarkdown ContentType = "markdown"
	ContentTypeText     ContentType = "text"
)

// ChunkType classifies a chunk's rhetorical role, assigned by the
// paragraph-first chunker's rule-based classifier.
type ChunkType string

const (
	ChunkTypeDefinition ChunkType = "definition"
	ChunkTypeExample    ChunkType = "example"
	ChunkTypeList       ChunkType = "list"
	ChunkTypeProcedure  ChunkType = "procedure"
	ChunkTypeComparison ChunkType = "comparison"
	ChunkTypeGeneral    ChunkType = "general"
)

// Source represents one ingested document.
type Source struct {
	ID          string // content-addressable: sha256(content)
	URI         string // caller-supplied origin identifier (path, URL, ...)
	ContentType ContentType
	Content     string // full original text, returned byte-for-byte by GetSource
	ContentHash string
	Metadata    string // opaque caller-supplied string, matched by filter.MetadataLike
	ByteSize    int64
	CreatedAt   time.Time
}

// Chunk is a retrievable unit of content produced by a chunker.
type Chunk struct {
	ID         string // sha256(SourceID + Ordinal + Content)
	SourceID   string
	Ordinal    int // position within the source, 0-indexed
	Content    string
	TokenCount int
	ChunkType  ChunkType
	Embedding  []float32

	// StartPos/EndPos are the byte offsets into the source's content this
	// chunk was extracted from: 0 <= StartPos <= EndPos <= len(content).
	StartPos int
	EndPos   int

	// HeaderPath is the " > "-joined Markdown header stack (empty for the
	// paragraph-first chunker).
	HeaderPath string

	// BatchID/BatchIndex/BatchTotal identify sibling fragments produced
	// when an atomic block (code fence, table) had to be split to respect
	// the chunk size ceiling. BatchTotal == 1 for an unsplit chunk.
	BatchID    string
	BatchIndex int
	BatchTotal int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Doc is a row in the legacy flat docs table: a whole document addressed
// directly by content hash, with no chunking or header path.
type Doc struct {
	ID          string
	Content     string
	ContentHash string
	Embedding   []float32
	CreatedAt   time.Time
}

// DocMeta is the per-chunk length record the BM25 index keeps for IDF/length
// normalization, independent of the chunk's own content.
type DocMeta struct {
	ChunkID    string
	TokenCount int
}

// InvertedPosting is one (term, chunk) occurrence in the BM25 inverted
// index, with the term frequency needed for scoring.
type InvertedPosting struct {
	Term     string
	ChunkID  string
	TermFreq int
}

// BufferEntry is one pending insert in the recent-insert buffer: a chunk
// and its embedding that have not yet been folded into the ANN graph.
type BufferEntry struct {
	ChunkID   string
	Embedding []float32
	InsertedAt time.Time
}

// HydratedChunk is the join of a chunk's content with its parent source's
// metadata, the shape the hybrid retriever returns results in.
type HydratedChunk struct {
	ChunkID  string
	Content  string
	SourceID string
	Metadata string
	Ordinal  int
}

// SourceStats summarizes a single source's indexed footprint.
type SourceStats struct {
	SourceID   string
	ChunkCount int
	TotalBytes int64
}

// Store is the authoritative persistence layer backing the retrieval
// engine: sources, chunks, and their embeddings.
type Store interface {
	// Init creates the schema if absent and runs additive column
	// migrations; the pragmas are applied when the store is opened.
	Init(ctx context.Context) error

	// AddSource inserts a Source, keyed by content hash; re-adding the same
	// content is a no-op that returns the existing Source.
	AddSource(ctx context.Context, src *Source) (*Source, error)

	// AddChunks inserts chunks belonging to an already-added source.
	AddChunks(ctx context.Context, chunks []*Chunk) error

	// DeleteSource removes a source and cascades to its chunks.
	DeleteSource(ctx context.Context, sourceID string) error

	// GetSource retrieves a source by ID.
	GetSource(ctx context.Context, sourceID string) (*Source, error)

	// GetSourceChunks retrieves all chunks belonging to a source, ordered
	// by Ordinal.
	GetSourceChunks(ctx context.Context, sourceID string) ([]*Chunk, error)

	// GetAdjacentChunks retrieves the chunks immediately before and after
	// the given chunk within its source, for context expansion at read
	// time. Either return value is nil at a source boundary.
	GetAdjacentChunks(ctx context.Context, chunkID string) (prev, next *Chunk, err error)

	// GetSourceStats reports the chunk count and total byte size for a
	// source.
	GetSourceStats(ctx context.Context, sourceID string) (*SourceStats, error)

	// GetAllChunkIDsAndContents streams every chunk's ID and content, used
	// to rebuild the BM25 index from scratch.
	GetAllChunkIDsAndContents(ctx context.Context) (map[string]string, error)

	// GetAllChunkIDsAndEmbeddings streams every chunk's ID and embedding,
	// used to rebuild the ANN index from scratch. Chunks with no stored
	// embedding (or a corrupt embedding blob) are omitted.
	GetAllChunkIDsAndEmbeddings(ctx context.Context) (map[string][]float32, error)

	// UpdateChunkEmbedding persists a chunk's embedding vector.
	UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding []float32) error

	// AddDoc inserts a row into the legacy flat docs table, used by callers
	// that bypass chunking entirely. Re-adding the same content hash is a
	// no-op that returns the existing Doc.
	AddDoc(ctx context.Context, doc *Doc) (*Doc, error)

	// GetDoc retrieves a legacy doc by ID. Returns nil, nil if absent.
	GetDoc(ctx context.Context, id string) (*Doc, error)

	// GetAllDocIDsAndEmbeddings streams every legacy doc's ID and embedding,
	// used to rebuild the ANN index when the caller has no chunked sources.
	GetAllDocIDsAndEmbeddings(ctx context.Context) (map[string][]float32, error)

	// GetChunksByIDs hydrates full chunk+source metadata for a set of
	// chunk ids in a single query, for hybrid retrieval's result
	// hydration step. IDs with no matching row are silently omitted.
	GetChunksByIDs(ctx context.Context, chunkIDs []string) ([]*HydratedChunk, error)

	// GetChunksBySourceIDs returns every chunk (with embedding) belonging
	// to any of sourceIDs, for the scoped exact-scan retrieval path.
	GetChunksBySourceIDs(ctx context.Context, sourceIDs []string) ([]*Chunk, error)

	// GetSourcesByIDs fetches sources for metadata_like filtering.
	GetSourcesByIDs(ctx context.Context, sourceIDs []string) (map[string]*Source, error)

	// GetDocsByIDs hydrates legacy flat docs by id, the simple-RAG path's
	// fallback when an id isn't found among chunks.
	GetDocsByIDs(ctx context.Context, docIDs []string) ([]*Doc, error)

	// ClearAll deletes every source, chunk, doc, and embedding.
	ClearAll(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

// BM25Result is a single scored hit from the BM25 index.
type BM25Result struct {
	ChunkID string
	Score   float64
}

// BM25Stats reports the current size of the BM25 index.
type BM25Stats struct {
	DocCount     int
	TermCount    int
	AvgDocLength float64
}

// BM25Index provides Okapi-BM25 keyword scoring over chunk content.
type BM25Index interface {
	// Add tokenizes and indexes a single chunk's content.
	Add(chunkID, content string)

	// AddMany indexes a batch of chunks in one locked section.
	AddMany(docs map[string]string)

	// Remove deletes a chunk's postings and doc-length record.
	Remove(chunkID string)

	// Search scores every chunk containing at least one query term and
	// returns the top limit results, ranked by score descending, ties
	// broken by insertion order.
	Search(query string, limit int) []*BM25Result

	// Clear empties the index.
	Clear()

	// Len returns the number of indexed documents.
	Len() int

	// Stats reports index size.
	Stats() BM25Stats

	// Persistence
	Save(path string) error
	Load(path string) error
}

// VectorResult is a single scored hit from the ANN index.
type VectorResult struct {
	ChunkID  string
	Distance float32 // cosine distance, 0 (identical) to 2 (opposite)
	Score    float32 // 1 - distance/2, normalized to (0, 1]
}

// ANNParams is the dataset-size-parameterized HNSW configuration.
type ANNParams struct {
	M              int
	M0             int
	EfConstruction int
	EfSearch       int
}

// ANNParamsForSize returns the HNSW build parameters appropriate to the
// expected dataset size.
func ANNParamsForSize(n int) ANNParams {
	switch {
	case n <= 1000:
		return ANNParams{M: 16, M0: 32, EfConstruction: 100}
	case n <= 10000:
		return ANNParams{M: 20, M0: 40, EfConstruction: 150}
	default:
		return ANNParams{M: 24, M0: 48, EfConstruction: 200}
	}
}

// EfSearchFor returns the query-time search width for a requested top-k,
// floored at 100 so small top-k requests still explore enough of the graph.
func EfSearchFor(topK int) int {
	if ef := topK * 5; ef > 100 {
		return ef
	}
	return 100
}

// VectorStore provides approximate nearest-neighbor search over chunk
// embeddings.
type VectorStore interface {
	// Add inserts or replaces a vector under the given chunk ID.
	Add(ctx context.Context, chunkID string, vector []float32) error

	// Search returns the k nearest neighbors to query.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete lazily removes a vector; the underlying graph node is
	// retained but excluded from future results.
	Delete(ctx context.Context, chunkID string) error

	// IsLoaded reports whether the index has been built or loaded and is
	// ready to serve searches.
	IsLoaded() bool

	// Count returns the number of live (non-deleted) vectors.
	Count() int

	// Build performs a full construction from points, replacing any
	// existing graph. Used by the lifecycle manager's rebuild operation,
	// where incremental Add calls would leave the graph's level structure
	// biased toward insertion order.
	Build(ctx context.Context, points []BuildPoint) error

	// Persistence
	Save(path string) error
	Load(path string) error
	Clear() error
	Close() error
}

// BuildPoint is one (chunk_id, embedding) pair fed to VectorStore.Build.
type BuildPoint struct {
	ChunkID   string
	Embedding []float32
}

// ErrDimensionMismatch indicates a query or insert vector's dimension does
// not match the index's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: index expects %d, got %d", e.Expected, e.Got)
}
