package retrieve

import (
	"context"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ragcore/ragcore/internal/store"
)

// Retriever runs the dual-index hybrid search: concurrent ANN and BM25
// candidate generation fused by RRF, or a scoped exact scan when a source
// filter narrows the search to a small set of sources.
type Retriever struct {
	store  store.Store
	ann    store.VectorStore
	bm25   store.BM25Index
	buffer *store.RecentBuffer
	cfg    Config
}

// New constructs a Retriever over the given store and indices. buffer may
// be nil if the caller never uses the recent-insert buffer.
func New(st store.Store, ann store.VectorStore, bm25 store.BM25Index, buffer *store.RecentBuffer, cfg Config) *Retriever {
	return &Retriever{store: st, ann: ann, bm25: bm25, buffer: buffer, cfg: cfg.withDefaults()}
}

// SearchHybrid is the primary entry point: fuses ANN and BM25 candidates
// (or runs a scoped exact scan under an active source filter) and returns
// hydrated, ranked results.
func (r *Retriever) SearchHybrid(ctx context.Context, queryText string, queryEmbedding []float32, topK int, cfg *Config, filter *Filter) ([]*Result, error) {
	if topK <= 0 {
		topK = 10
	}
	effCfg := r.cfg
	if cfg != nil {
		effCfg = cfg.withDefaults()
	}
	var f Filter
	if filter != nil {
		f = *filter
	}

	if f.Active() {
		return r.searchScoped(ctx, queryText, queryEmbedding, topK, effCfg, f)
	}
	return r.searchGlobal(ctx, queryText, queryEmbedding, topK, effCfg, f)
}

// SearchSimple returns only the hydrated content strings, for callers that
// don't need provenance.
func (r *Retriever) SearchSimple(ctx context.Context, queryText string, queryEmbedding []float32, topK int) ([]string, error) {
	results, err := r.SearchHybrid(ctx, queryText, queryEmbedding, topK, nil, nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Content
	}
	return out, nil
}

// SearchWeighted exposes the RRF weight knobs directly, each clamped to
// [0, 1].
func (r *Retriever) SearchWeighted(ctx context.Context, queryText string, queryEmbedding []float32, topK int, vectorWeight, bm25Weight float64) ([]*Result, error) {
	cfg := Config{K: r.cfg.K, VectorWeight: clamp01(vectorWeight), BM25Weight: clamp01(bm25Weight)}
	return r.SearchHybrid(ctx, queryText, queryEmbedding, topK, &cfg, nil)
}

// candidateK sizes each candidate generator's requested count: top_k * 4
// when any filter narrows the search, top_k * 2 otherwise.
func candidateK(topK int, f Filter) int {
	if f.Active() || f.hasMetadata() {
		return topK * 4
	}
	return topK * 2
}

// searchGlobal is Path A: concurrent ANN + BM25 candidate generation over
// the whole store, with an optional metadata_like post-filter.
func (r *Retriever) searchGlobal(ctx context.Context, queryText string, queryEmbedding []float32, topK int, cfg Config, f Filter) ([]*Result, error) {
	k := candidateK(topK, f)

	vecResults, bm25Results := r.parallelSearch(ctx, queryText, queryEmbedding, k)

	vecIDs := idsFromVector(vecResults)
	bm25IDs := idsFromBM25(bm25Results)

	if f.hasMetadata() {
		var err error
		vecIDs, bm25IDs, err = r.filterByMetadata(ctx, vecIDs, bm25IDs, f)
		if err != nil {
			return nil, err
		}
	}

	fused := fuse(vecIDs, bm25IDs, cfg, topK)
	return r.hydrateGlobal(ctx, fused)
}

// parallelSearch spawns the ANN and BM25 candidate generators, joins them,
// and substitutes an empty list (with a logged warning) for either side
// that errors or panics, so the other side's results still come back.
func (r *Retriever) parallelSearch(ctx context.Context, queryText string, queryEmbedding []float32, limit int) ([]*store.VectorResult, []*store.BM25Result) {
	var vecResults []*store.VectorResult
	var bm25Results []*store.BM25Result

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Warn("ann_candidate_panic", slog.Any("recovered", rec))
				vecResults = nil
			}
		}()
		if len(queryEmbedding) == 0 || r.ann == nil {
			return nil
		}
		ann, searchErr := r.ann.Search(gctx, queryEmbedding, limit)
		if searchErr != nil {
			slog.Warn("ann_candidate_error", slog.String("error", searchErr.Error()))
			return nil
		}
		if r.buffer != nil {
			buf := r.buffer.Search(queryEmbedding, limit)
			ann = mergeVectorResults(ann, buf, limit)
		}
		vecResults = ann
		return nil
	})

	g.Go(func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Warn("bm25_candidate_panic", slog.Any("recovered", rec))
				bm25Results = nil
			}
		}()
		if r.bm25 == nil {
			return nil
		}
		bm25Results = r.bm25.Search(queryText, limit)
		return nil
	})

	_ = g.Wait() // candidate errors degrade to nil above; nothing here fails the group

	return vecResults, bm25Results
}

// mergeVectorResults merges ANN graph results with recent-insert-buffer
// results, keeping the lowest distance per chunk ID, then truncates to k.
func mergeVectorResults(ann, buf []*store.VectorResult, k int) []*store.VectorResult {
	if len(buf) == 0 {
		return ann
	}
	best := make(map[string]*store.VectorResult, len(ann)+len(buf))
	order := make([]string, 0, len(ann)+len(buf))
	add := func(r *store.VectorResult) {
		if existing, ok := best[r.ChunkID]; !ok {
			best[r.ChunkID] = r
			order = append(order, r.ChunkID)
		} else if r.Distance < existing.Distance {
			best[r.ChunkID] = r
		}
	}
	for _, r := range ann {
		add(r)
	}
	for _, r := range buf {
		add(r)
	}

	merged := make([]*store.VectorResult, len(order))
	for i, id := range order {
		merged[i] = best[id]
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Distance < merged[j].Distance })
	if k > 0 && len(merged) > k {
		merged = merged[:k]
	}
	return merged
}

func idsFromVector(results []*store.VectorResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ChunkID
	}
	return out
}

func idsFromBM25(results []*store.BM25Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ChunkID
	}
	return out
}

// filterByMetadata hydrates the union of candidate ids and drops any whose
// parent source's metadata doesn't match f.MetadataLike, preserving the
// original order of each list.
func (r *Retriever) filterByMetadata(ctx context.Context, vecIDs, bm25IDs []string, f Filter) ([]string, []string, error) {
	union := unionIDs(vecIDs, bm25IDs)
	if len(union) == 0 {
		return vecIDs, bm25IDs, nil
	}

	hydrated, err := r.store.GetChunksByIDs(ctx, union)
	if err != nil {
		return nil, nil, err
	}
	sourceOf := make(map[string]string, len(hydrated))
	for _, h := range hydrated {
		sourceOf[h.ChunkID] = h.SourceID
	}

	sourceIDs := make([]string, 0, len(hydrated))
	seen := make(map[string]struct{})
	for _, h := range hydrated {
		if _, ok := seen[h.SourceID]; !ok {
			seen[h.SourceID] = struct{}{}
			sourceIDs = append(sourceIDs, h.SourceID)
		}
	}
	sources, err := r.store.GetSourcesByIDs(ctx, sourceIDs)
	if err != nil {
		return nil, nil, err
	}

	keep := func(chunkID string) bool {
		srcID, ok := sourceOf[chunkID]
		if !ok {
			return false
		}
		src, ok := sources[srcID]
		if !ok {
			return false
		}
		return f.matchesMetadata(src.Metadata)
	}

	return filterIDs(vecIDs, keep), filterIDs(bm25IDs, keep), nil
}

func unionIDs(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range a {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range b {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func filterIDs(ids []string, keep func(string) bool) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if keep(id) {
			out = append(out, id)
		}
	}
	return out
}

// hydrateGlobal fetches content for fused candidates from chunks, falling
// back to the legacy flat docs table for ids not found there (the
// simple-RAG path). Candidates that hydrate from neither are dropped.
func (r *Retriever) hydrateGlobal(ctx context.Context, fused []*candidate) ([]*Result, error) {
	if len(fused) == 0 {
		return []*Result{}, nil
	}

	ids := make([]string, len(fused))
	for i, c := range fused {
		ids[i] = c.chunkID
	}

	hydrated, err := r.store.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*store.HydratedChunk, len(hydrated))
	for _, h := range hydrated {
		byID[h.ChunkID] = h
	}

	var missing []string
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			missing = append(missing, id)
		}
	}

	docsByID := make(map[string]*store.Doc)
	if len(missing) > 0 {
		docs, err := r.store.GetDocsByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			docsByID[d.ID] = d
		}
	}

	results := make([]*Result, 0, len(fused))
	for _, c := range fused {
		if h, ok := byID[c.chunkID]; ok {
			results = append(results, &Result{
				ChunkID:    h.ChunkID,
				Content:    h.Content,
				Score:      c.combined,
				VectorRank: c.vectorRank,
				BM25Rank:   c.bm25Rank,
				SourceID:   h.SourceID,
				Metadata:   h.Metadata,
				ChunkIndex: h.Ordinal,
			})
			continue
		}
		if d, ok := docsByID[c.chunkID]; ok {
			results = append(results, &Result{
				ChunkID:    d.ID,
				Content:    d.Content,
				Score:      c.combined,
				VectorRank: c.vectorRank,
				BM25Rank:   c.bm25Rank,
				SourceID:   d.ID,
				Metadata:   "",
				ChunkIndex: 0,
			})
		}
		// Neither chunks nor docs had this id: dropped.
	}
	return results, nil
}

// searchScoped is Path B: bypass the global ANN/BM25 indices and run an
// exact scan over every chunk in the filtered source set. The only correct
// strategy when a filter narrows to a handful of sources, where global ANN
// recall over a tiny subset is unreliable.
func (r *Retriever) searchScoped(ctx context.Context, queryText string, queryEmbedding []float32, topK int, cfg Config, f Filter) ([]*Result, error) {
	k := candidateK(topK, f)

	chunks, err := r.store.GetChunksBySourceIDs(ctx, f.SourceIDs)
	if err != nil {
		return nil, err
	}

	sources, err := r.store.GetSourcesByIDs(ctx, f.SourceIDs)
	if err != nil {
		return nil, err
	}

	if f.hasMetadata() {
		filtered := chunks[:0:0]
		for _, c := range chunks {
			if src, ok := sources[c.SourceID]; ok && f.matchesMetadata(src.Metadata) {
				filtered = append(filtered, c)
			}
		}
		chunks = filtered
	}

	vecResults := scopedVectorScan(chunks, queryEmbedding)
	bm25Results := scopedBM25Scan(chunks, queryText)

	if k > 0 {
		if len(vecResults) > k {
			vecResults = vecResults[:k]
		}
		if len(bm25Results) > k {
			bm25Results = bm25Results[:k]
		}
	}

	vecIDs := idsFromVector(vecResults)
	bm25IDs := idsFromBM25(bm25Results)
	fused := fuse(vecIDs, bm25IDs, cfg, topK)

	byID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	results := make([]*Result, 0, len(fused))
	for _, c := range fused {
		chunk, ok := byID[c.chunkID]
		if !ok {
			continue
		}
		results = append(results, &Result{
			ChunkID:    chunk.ID,
			Content:    chunk.Content,
			Score:      c.combined,
			VectorRank: c.vectorRank,
			BM25Rank:   c.bm25Rank,
			SourceID:   chunk.SourceID,
			Metadata:   metadataOr(sources[chunk.SourceID], ""),
			ChunkIndex: chunk.Ordinal,
		})
	}
	return results, nil
}

// scopedVectorScan computes cosine distance from query to every chunk's
// embedding and returns ascending-distance results, skipping chunks whose
// embedding dimension doesn't match the query's (spec: dimension-mismatched
// candidates are silently dropped, not raised as an error).
func scopedVectorScan(chunks []*store.Chunk, query []float32) []*store.VectorResult {
	if len(query) == 0 {
		return nil
	}
	results := make([]*store.VectorResult, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != len(query) {
			continue
		}
		d := cosineDistance(query, c.Embedding)
		results = append(results, &store.VectorResult{ChunkID: c.ID, Distance: d, Score: 1 - d/2})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	return results
}

// cosineDistance mirrors internal/store's vector distance formula: a
// zero-norm vector compares at maximum distance (1.0) to anything. Kept as
// a local, independent implementation rather than exported from
// internal/store, the same way internal/compress keeps its own sentence
// splitter rather than sharing one with internal/chunk.
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

var scopedTokenRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// tokenizeScoped applies the same lowercase/alphanumeric-run/length>=2
// tokenization rule the global BM25 index uses.
func tokenizeScoped(text string) []string {
	raw := scopedTokenRegex.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		lower := strings.ToLower(t)
		if len(lower) >= 2 {
			out = append(out, lower)
		}
	}
	return out
}

// scopedBM25Scan recomputes Okapi-BM25 (k1=1.2, b=0.75) against only the
// scoped chunk set, counting term frequencies for query terms only, per
// spec's Path B step 4.
func scopedBM25Scan(chunks []*store.Chunk, queryText string) []*store.BM25Result {
	const k1, b = 1.2, 0.75

	queryTerms := uniqueTerms(tokenizeScoped(queryText))
	if len(queryTerms) == 0 || len(chunks) == 0 {
		return nil
	}

	type docInfo struct {
		id     string
		tf     map[string]int
		length int
	}
	docs := make([]docInfo, 0, len(chunks))
	df := make(map[string]int, len(queryTerms))

	for _, c := range chunks {
		tokens := tokenizeScoped(c.Content)
		tf := make(map[string]int, len(queryTerms))
		for _, tok := range tokens {
			if _, isQueryTerm := queryTerms[tok]; isQueryTerm {
				tf[tok]++
			}
		}
		docs = append(docs, docInfo{id: c.ID, tf: tf, length: len(tokens)})
		for term := range tf {
			df[term]++
		}
	}

	n := float64(len(docs))
	var totalLen int
	for _, d := range docs {
		totalLen += d.length
	}
	avgLen := 0.0
	if len(docs) > 0 {
		avgLen = float64(totalLen) / float64(len(docs))
	}

	results := make([]*store.BM25Result, 0, len(docs))
	for _, d := range docs {
		var score float64
		for term, tf := range d.tf {
			nt := float64(df[term])
			if nt == 0 {
				continue
			}
			idf := math.Log((n-nt+0.5)/(nt+0.5) + 1)
			denom := float64(tf) + k1*(1-b+b*float64(d.length)/avgLen)
			score += idf * (float64(tf) * (k1 + 1) / denom)
		}
		if score > 0 {
			results = append(results, &store.BM25Result{ChunkID: d.id, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	return results
}

func uniqueTerms(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		out[t] = struct{}{}
	}
	return out
}

// metadataOr is a nil-safe accessor used when a chunk's source wasn't found
// in the hydrated source map (should not happen given GetChunksBySourceIDs
// and GetSourcesByIDs share the same scoped source set).
func metadataOr(src *store.Source, fallback string) string {
	if src == nil {
		return fallback
	}
	return src.Metadata
}
