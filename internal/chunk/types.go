// Package chunk splits ingested document text into the ordered, position-
// bounded Chunk records the Store persists. Two strategies are provided:
// a paragraph-first splitter for plain prose, and a Markdown-structure-aware
// splitter that treats headers, fenced code blocks, and pipe-tables as
// first-class structure.
package chunk

import "github.com/ragcore/ragcore/internal/store"

// MinMaxChars is the smallest max_chars value either chunker accepts.
const MinMaxChars = 100

// chunkDraft is an intermediate chunk body produced by a splitting stage,
// before position resolution and ordinal assignment.
type chunkDraft struct {
	content    string
	chunkType  store.ChunkType
	headerPath string
	batchID    string
	batchIndex int
	batchTotal int
}
