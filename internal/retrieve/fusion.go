package retrieve

import "sort"

// candidate accumulates a chunk's contribution from each ranked list
// during fusion.
type candidate struct {
	chunkID    string
	vectorRank int
	bm25Rank   int
	combined   float64
}

// rrf is the Reciprocal Rank Fusion term for a 1-based rank: 1/(k+rank).
func rrf(k, rank int) float64 {
	if rank <= 0 {
		return 0
	}
	return 1.0 / float64(k+rank)
}

// fuse combines a vector candidate list and a BM25 candidate list with
// Reciprocal Rank Fusion. A chunk missing from one side contributes zero
// for that side, per spec: no missing-rank penalty term is added. Ties in
// combined score are broken by ascending chunk ID. The result is truncated
// to topK.
func fuse(vecIDs, bm25IDs []string, cfg Config, topK int) []*candidate {
	cfg = cfg.withDefaults()

	byID := make(map[string]*candidate)
	order := make([]string, 0, len(vecIDs)+len(bm25IDs))

	getOrCreate := func(id string) *candidate {
		if c, ok := byID[id]; ok {
			return c
		}
		c := &candidate{chunkID: id}
		byID[id] = c
		order = append(order, id)
		return c
	}

	for i, id := range vecIDs {
		c := getOrCreate(id)
		c.vectorRank = i + 1
		c.combined += cfg.VectorWeight * rrf(cfg.K, c.vectorRank)
	}
	for i, id := range bm25IDs {
		c := getOrCreate(id)
		c.bm25Rank = i + 1
		c.combined += cfg.BM25Weight * rrf(cfg.K, c.bm25Rank)
	}

	results := make([]*candidate, 0, len(order))
	for _, id := range order {
		results = append(results, byID[id])
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].combined != results[j].combined {
			return results[i].combined > results[j].combined
		}
		return results[i].chunkID < results[j].chunkID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
