package chunk

import (
	"fmt"
	"strings"

	"github.com/ragcore/ragcore/internal/errors"
	"github.com/ragcore/ragcore/internal/store"
)

// SemanticChunk splits text into chunks by paragraph, falling back to
// line-packing and finally Unicode-boundary splitting for oversized units.
// This is the default strategy for plain prose.
func SemanticChunk(text string, maxChars int) ([]*store.Chunk, error) {
	return SemanticChunkWithOverlap(text, maxChars, 0)
}

// SemanticChunkWithOverlap is SemanticChunk with an overlap parameter. The
// paragraph-first strategy has no natural notion of re-reading trailing
// context into the next chunk the way a sliding token window would, so
// overlap is accepted for interface symmetry with the Markdown strategy but
// does not affect the emitted chunks.
func SemanticChunkWithOverlap(text string, maxChars, _ int) ([]*store.Chunk, error) {
	if maxChars < MinMaxChars {
		return nil, errors.InvalidInput(errors.ErrCodeInvalidChunkSize,
			fmt.Sprintf("max_chars must be >= %d, got %d", MinMaxChars, maxChars))
	}

	var chunks []*store.Chunk
	cursor := 0
	ordinal := 0

	emit := func(content string) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		start := indexFrom(text, content, cursor)
		var end int
		if start >= 0 {
			end = start + len(content)
			cursor = end
		} else {
			start = cursor
			end = cursor + len(content)
			cursor = end
		}
		chunks = append(chunks, &store.Chunk{
			Ordinal:   ordinal,
			Content:   content,
			ChunkType: Classify(content),
			StartPos:  start,
			EndPos:    end,
		})
		ordinal++
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= maxChars {
			emit(para)
			continue
		}
		packLinesInto(para, maxChars, emit)
	}

	return chunks, nil
}

// packLinesInto splits an oversized paragraph on single newlines and packs
// lines greedily into buffers no larger than maxChars, flushing through
// emit. A line that alone exceeds maxChars is split at Unicode boundaries.
func packLinesInto(para string, maxChars int, emit func(string)) {
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			emit(buf.String())
			buf.Reset()
		}
	}
	for _, line := range strings.Split(para, "\n") {
		if len(line) > maxChars {
			flush()
			for _, piece := range splitUnicodeBoundary(line, maxChars) {
				emit(piece)
			}
			continue
		}
		if buf.Len() > 0 && buf.Len()+1+len(line) > maxChars {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)
	}
	flush()
}
