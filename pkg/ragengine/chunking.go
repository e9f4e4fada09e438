package ragengine

import (
	"github.com/ragcore/ragcore/internal/chunk"
	"github.com/ragcore/ragcore/internal/store"
)

// SemanticChunk splits prose into paragraph-first chunks no larger than
// maxChars (plus the longest unsplittable sentence).
func (e *Engine) SemanticChunk(text string, maxChars int) ([]*store.Chunk, error) {
	return chunk.SemanticChunk(text, maxChars)
}

// SemanticChunkWithOverlap is SemanticChunk with an overlap parameter
// accepted for API parity with the Markdown path; per spec.md §9's open
// question, the paragraph-first strategy currently ignores it.
func (e *Engine) SemanticChunkWithOverlap(text string, maxChars, overlap int) ([]*store.Chunk, error) {
	return chunk.SemanticChunkWithOverlap(text, maxChars, overlap)
}

// MarkdownChunk splits Markdown text into header/code/table-aware chunks.
func (e *Engine) MarkdownChunk(text string, maxChars int) ([]*store.Chunk, error) {
	return chunk.MarkdownChunk(text, maxChars)
}
