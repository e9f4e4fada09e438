package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownChunk_CodeBlockGetsLanguageType(t *testing.T) {
	text := "# Code\n\n```rust\nfn main() { println!(\"Hi\"); }\n```\n\nAfter."
	chunks, err := MarkdownChunk(text, 500)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	found := false
	var headerFound bool
	for _, c := range chunks {
		if string(c.ChunkType) == "code" || string(c.ChunkType) == "code:rust" {
			found = true
			assert.Contains(t, c.Content, "fn main()")
		}
		if strings.Contains(c.HeaderPath, "Code") {
			headerFound = true
		}
	}
	assert.True(t, found, "expected a code chunk")
	assert.True(t, headerFound, "expected a chunk carrying the Code header path")
}

func TestMarkdownChunk_HeaderStackPopsToLowerLevel(t *testing.T) {
	text := "# A\n\n## B\n\ntext under b\n\n# C\n\ntext under c"
	chunks, err := MarkdownChunk(text, 500)
	require.NoError(t, err)

	var paths []string
	for _, c := range chunks {
		paths = append(paths, c.HeaderPath)
	}
	assert.Contains(t, paths, "A > B")
	assert.Contains(t, paths, "C")
}

func TestMarkdownChunk_TableSplitRepeatsHeaderAndSeparator(t *testing.T) {
	var b strings.Builder
	b.WriteString("| a | b |\n")
	b.WriteString("|---|---|\n")
	for i := 0; i < 40; i++ {
		b.WriteString("| row | data that takes up some space here |\n")
	}
	chunks, err := MarkdownChunk(b.String(), 200)
	require.NoError(t, err)

	var tableChunks []int
	for i, c := range chunks {
		if string(c.ChunkType) == "table" {
			tableChunks = append(tableChunks, i)
		}
	}
	require.Greater(t, len(tableChunks), 1, "table should have split into multiple chunks")

	for _, i := range tableChunks {
		lines := strings.Split(chunks[i].Content, "\n")
		require.GreaterOrEqual(t, len(lines), 2)
		assert.Equal(t, "| a | b |", lines[0])
		assert.Equal(t, "|---|---|", lines[1])
	}
}

func TestMarkdownChunk_SplitBlockSharesBatchID(t *testing.T) {
	var b strings.Builder
	b.WriteString("```text\n")
	for i := 0; i < 60; i++ {
		b.WriteString("a line of code that is reasonably long for packing\n")
	}
	b.WriteString("```\n")

	chunks, err := MarkdownChunk(b.String(), 200)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	batchID := chunks[0].BatchID
	require.NotEmpty(t, batchID)
	for i, c := range chunks {
		assert.Equal(t, batchID, c.BatchID)
		assert.Equal(t, i, c.BatchIndex)
		assert.Equal(t, len(chunks), c.BatchTotal)
	}
}

func TestMarkdownChunk_RejectsSmallMaxChars(t *testing.T) {
	_, err := MarkdownChunk("# a\n\nbody", 10)
	require.Error(t, err)
}
