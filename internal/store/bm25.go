package store

import (
	"math"
	"regexp"
	"sort"
	"sync"
)

// tokenRegex matches the alphanumeric-and-underscore runs the spec's BM25
// tokenization rule splits on.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// InMemoryBM25Index is a hand-rolled Okapi-BM25 inverted index. It trades
// FTS5/Bleve's on-disk scale for exact control over scoring and tie-break
// order, both of which the hybrid retriever depends on.
type InMemoryBM25Index struct {
	mu sync.RWMutex

	k1 float64
	b  float64

	// postings maps a term to every chunk it occurs in, in the order the
	// chunk was first indexed (insertion order), which also fixes the
	// BM25 tie-break order.
	postings map[string][]*InvertedPosting
	docMeta  map[string]*DocMeta
	order    map[string]int // chunkID -> insertion sequence, for tie-break

	totalTokens int64
	seq         int
}

var _ BM25Index = (*InMemoryBM25Index)(nil)

// NewInMemoryBM25Index constructs an empty index with the given k1/b
// parameters.
func NewInMemoryBM25Index(k1, b float64) *InMemoryBM25Index {
	return &InMemoryBM25Index{
		k1:       k1,
		b:        b,
		postings: make(map[string][]*InvertedPosting),
		docMeta:  make(map[string]*DocMeta),
		order:    make(map[string]int),
	}
}

// tokenizeBM25 splits text on non-alphanumeric/underscore runs;
// normalizeTokens then lowercases the pieces and discards tokens shorter
// than two characters. It deliberately does not
// apply code-aware camelCase/snake_case splitting: BM25 here scores prose
// chunks, not source identifiers.
func tokenizeBM25(text string) []string {
	return tokenRegex.FindAllString(text, -1)
}

func (idx *InMemoryBM25Index) addLocked(chunkID, content string) {
	// Remove any previous entry for this chunk id first, so re-adding is
	// an update rather than a duplicate.
	idx.removeLocked(chunkID)

	tokens := normalizeTokens(tokenizeBM25(content))
	if len(tokens) == 0 {
		return
	}

	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}

	for term, tf := range freq {
		idx.postings[term] = append(idx.postings[term], &InvertedPosting{
			Term:     term,
			ChunkID:  chunkID,
			TermFreq: tf,
		})
	}

	idx.docMeta[chunkID] = &DocMeta{ChunkID: chunkID, TokenCount: len(tokens)}
	idx.order[chunkID] = idx.seq
	idx.seq++
	idx.totalTokens += int64(len(tokens))
}

func (idx *InMemoryBM25Index) removeLocked(chunkID string) {
	meta, ok := idx.docMeta[chunkID]
	if !ok {
		return
	}
	for term, postings := range idx.postings {
		filtered := postings[:0]
		for _, p := range postings {
			if p.ChunkID != chunkID {
				filtered = append(filtered, p)
			}
		}
		if len(filtered) == 0 {
			delete(idx.postings, term)
		} else {
			idx.postings[term] = filtered
		}
	}
	idx.totalTokens -= int64(meta.TokenCount)
	delete(idx.docMeta, chunkID)
	delete(idx.order, chunkID)
}

// normalizeTokens lowercases and discards tokens shorter than two runes.
func normalizeTokens(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, t := range raw {
		lower := lowerASCII(t)
		if len(lower) >= 2 {
			out = append(out, lower)
		}
	}
	return out
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Add indexes a single chunk's content.
func (idx *InMemoryBM25Index) Add(chunkID, content string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.addLocked(chunkID, content)
}

// AddMany indexes a batch of chunks under a single lock acquisition.
func (idx *InMemoryBM25Index) AddMany(docs map[string]string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for chunkID, content := range docs {
		idx.addLocked(chunkID, content)
	}
}

// Remove deletes a chunk's postings and doc-length record.
func (idx *InMemoryBM25Index) Remove(chunkID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(chunkID)
}

// avgDocLength returns the mean token count across all indexed chunks.
func (idx *InMemoryBM25Index) avgDocLength() float64 {
	if len(idx.docMeta) == 0 {
		return 0
	}
	return float64(idx.totalTokens) / float64(len(idx.docMeta))
}

// Search scores every chunk containing at least one query term using
// Okapi BM25 (k1, b as configured) and returns the top limit results.
//
//	score(q, d) = sum over query terms t of idf(t) * tf_component(t, d)
//	idf(t)           = ln((N - n_t + 0.5) / (n_t + 0.5) + 1)
//	tf_component     = f(t,d) * (k1 + 1) / (f(t,d) + k1 * (1 - b + b * |d| / avgdl))
func (idx *InMemoryBM25Index) Search(query string, limit int) []*BM25Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	terms := normalizeTokens(tokenizeBM25(query))
	if len(terms) == 0 || len(idx.docMeta) == 0 {
		return nil
	}

	n := float64(len(idx.docMeta))
	avgdl := idx.avgDocLength()

	scores := make(map[string]float64)
	seen := make(map[string]struct{})
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		postings := idx.postings[term]
		nt := float64(len(postings))
		if nt == 0 {
			continue
		}
		idf := math.Log((n-nt+0.5)/(nt+0.5) + 1)

		for _, p := range postings {
			meta := idx.docMeta[p.ChunkID]
			tf := float64(p.TermFreq)
			denom := tf + idx.k1*(1-idx.b+idx.b*float64(meta.TokenCount)/avgdl)
			component := tf * (idx.k1 + 1) / denom
			scores[p.ChunkID] += idf * component
		}
	}

	results := make([]*BM25Result, 0, len(scores))
	for chunkID, score := range scores {
		results = append(results, &BM25Result{ChunkID: chunkID, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return idx.order[results[i].ChunkID] < idx.order[results[j].ChunkID]
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Clear empties the index.
func (idx *InMemoryBM25Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.postings = make(map[string][]*InvertedPosting)
	idx.docMeta = make(map[string]*DocMeta)
	idx.order = make(map[string]int)
	idx.totalTokens = 0
	idx.seq = 0
}

// Len returns the number of indexed documents.
func (idx *InMemoryBM25Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docMeta)
}

// Stats reports index size.
func (idx *InMemoryBM25Index) Stats() BM25Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return BM25Stats{
		DocCount:     len(idx.docMeta),
		TermCount:    len(idx.postings),
		AvgDocLength: idx.avgDocLength(),
	}
}

// Save and Load persist the index via gob encoding, mirroring the
// atomic-rename pattern the ANN index uses for its own persistence.
func (idx *InMemoryBM25Index) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return saveBM25Snapshot(path, idx)
}

func (idx *InMemoryBM25Index) Load(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return loadBM25Snapshot(path, idx)
}
