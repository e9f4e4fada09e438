package chunk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/ragcore/ragcore/internal/errors"
	"github.com/ragcore/ragcore/internal/store"
)

var headerPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// mdBlock is one structural unit of a Markdown document in document order:
// a fenced code block, a pipe-table, or a run of prose lines between them.
type mdBlock struct {
	kind       string // "code", "table", "prose"
	lang       string
	lines      []string
	headerPath string
}

// MarkdownChunk splits Markdown text into chunks that respect document
// structure: fenced code blocks and pipe-tables are kept intact (or split
// without breaking a line/row), and every chunk carries the header stack it
// falls under as HeaderPath.
func MarkdownChunk(text string, maxChars int) ([]*store.Chunk, error) {
	if maxChars < MinMaxChars {
		return nil, errors.InvalidInput(errors.ErrCodeInvalidChunkSize,
			fmt.Sprintf("max_chars must be >= %d, got %d", MinMaxChars, maxChars))
	}

	blocks := parseMarkdownBlocks(text)

	var chunks []*store.Chunk
	cursor := 0
	ordinal := 0

	for _, b := range blocks {
		var drafts []chunkDraft
		switch b.kind {
		case "code":
			drafts = splitCodeBlock(b, maxChars)
		case "table":
			drafts = splitTableBlock(b, maxChars)
		default:
			drafts = splitProseBlock(b, maxChars)
		}

		for _, d := range drafts {
			start := indexFrom(text, d.content, cursor)
			var end int
			if start >= 0 {
				end = start + len(d.content)
				cursor = end
			} else {
				start = cursor
				end = cursor + len(d.content)
				cursor = end
			}
			chunks = append(chunks, &store.Chunk{
				Ordinal:    ordinal,
				Content:    d.content,
				ChunkType:  d.chunkType,
				HeaderPath: d.headerPath,
				BatchID:    d.batchID,
				BatchIndex: d.batchIndex,
				BatchTotal: d.batchTotal,
				StartPos:   start,
				EndPos:     end,
			})
			ordinal++
		}
	}

	return chunks, nil
}

// parseMarkdownBlocks walks the document line by line, tracking a header
// stack of up to 6 levels, and groups lines into code/table/prose blocks in
// document order.
func parseMarkdownBlocks(text string) []*mdBlock {
	lines := strings.Split(text, "\n")
	headerStack := make([]string, 6)

	currentPath := func() string {
		var parts []string
		for _, h := range headerStack {
			if h != "" {
				parts = append(parts, h)
			}
		}
		return strings.Join(parts, " > ")
	}

	var blocks []*mdBlock
	var prose []string
	flushProse := func() {
		if len(prose) == 0 {
			return
		}
		blocks = append(blocks, &mdBlock{kind: "prose", lines: prose, headerPath: currentPath()})
		prose = nil
	}

	i := 0
	for i < len(lines) {
		line := lines[i]

		if m := headerPattern.FindStringSubmatch(line); m != nil {
			flushProse()
			level := len(m[1])
			headerStack[level-1] = strings.TrimSpace(m[2])
			for j := level; j < 6; j++ {
				headerStack[j] = ""
			}
			i++
			continue
		}

		if isFenceLine(line) {
			flushProse()
			lang := fenceLanguage(line)
			codeLines := []string{line}
			i++
			for i < len(lines) {
				codeLines = append(codeLines, lines[i])
				closed := isFenceLine(lines[i])
				i++
				if closed {
					break
				}
			}
			blocks = append(blocks, &mdBlock{kind: "code", lang: lang, lines: codeLines, headerPath: currentPath()})
			continue
		}

		if isTableRow(line) {
			flushProse()
			var tableLines []string
			for i < len(lines) && isTableRow(lines[i]) {
				tableLines = append(tableLines, lines[i])
				i++
			}
			blocks = append(blocks, &mdBlock{kind: "table", lines: tableLines, headerPath: currentPath()})
			continue
		}

		prose = append(prose, line)
		i++
	}
	flushProse()

	return blocks
}

func isFenceLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "```")
}

func fenceLanguage(openingLine string) string {
	trimmed := strings.TrimSpace(openingLine)
	return strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
}

func isTableRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	return len(trimmed) >= 2 && strings.HasPrefix(trimmed, "|") && strings.HasSuffix(trimmed, "|")
}

// splitCodeBlock emits the fenced block verbatim if it fits, otherwise
// splits it line-wise into sibling chunks sharing one batch_id.
func splitCodeBlock(b *mdBlock, maxChars int) []chunkDraft {
	chunkType := store.ChunkType("code")
	if b.lang != "" {
		chunkType = store.ChunkType("code:" + b.lang)
	}

	joined := strings.Join(b.lines, "\n")
	if len(joined) <= maxChars {
		return []chunkDraft{{content: joined, chunkType: chunkType, headerPath: b.headerPath, batchTotal: 1}}
	}

	groups := packLines(b.lines, maxChars)
	return batchDrafts(groups, chunkType, b.headerPath)
}

// splitTableBlock emits the table verbatim if it fits, otherwise splits the
// rows into sibling chunks that each re-emit the header and separator line
// before their share of rows.
func splitTableBlock(b *mdBlock, maxChars int) []chunkDraft {
	const tableType = store.ChunkType("table")

	joined := strings.Join(b.lines, "\n")
	if len(joined) <= maxChars {
		return []chunkDraft{{content: joined, chunkType: tableType, headerPath: b.headerPath, batchTotal: 1}}
	}

	headerLines := b.lines
	rows := []string(nil)
	if len(b.lines) > 2 {
		headerLines = b.lines[:2]
		rows = b.lines[2:]
	}
	prefix := strings.Join(headerLines, "\n")
	budget := maxChars - len(prefix) - 1
	if budget < 1 {
		budget = 1
	}

	rowGroups := packLines(rows, budget)
	if len(rowGroups) == 0 {
		rowGroups = []string{""}
	}

	groups := make([]string, len(rowGroups))
	for i, g := range rowGroups {
		if g == "" {
			groups[i] = prefix
		} else {
			groups[i] = prefix + "\n" + g
		}
	}

	return batchDrafts(groups, tableType, b.headerPath)
}

// splitProseBlock emits the prose run as a single classified chunk if it
// fits, otherwise splits recursively by paragraph, then sentence, then
// Unicode boundary.
func splitProseBlock(b *mdBlock, maxChars int) []chunkDraft {
	content := strings.TrimSpace(strings.Join(b.lines, "\n"))
	if content == "" {
		return nil
	}
	if len(content) <= maxChars {
		return []chunkDraft{{content: content, chunkType: Classify(content), headerPath: b.headerPath, batchTotal: 1}}
	}

	var units []string
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if len(para) <= maxChars {
			units = append(units, para)
			continue
		}
		units = append(units, packSentences(para, maxChars)...)
	}

	var drafts []chunkDraft
	var buf strings.Builder
	flush := func() {
		if buf.Len() == 0 {
			return
		}
		c := buf.String()
		drafts = append(drafts, chunkDraft{content: c, chunkType: Classify(c), headerPath: b.headerPath, batchTotal: 1})
		buf.Reset()
	}
	for _, u := range units {
		if buf.Len() > 0 && buf.Len()+2+len(u) > maxChars {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(u)
	}
	flush()

	return drafts
}

// packSentences splits an oversized paragraph into sentences and packs them
// greedily under maxChars; a single sentence that still exceeds the limit
// falls back to a Unicode-boundary split.
func packSentences(para string, maxChars int) []string {
	sentences := splitSentences(para)
	if len(sentences) == 0 {
		return splitUnicodeBoundary(para, maxChars)
	}

	var out []string
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for _, s := range sentences {
		if len(s) > maxChars {
			flush()
			out = append(out, splitUnicodeBoundary(s, maxChars)...)
			continue
		}
		if buf.Len() > 0 && buf.Len()+1+len(s) > maxChars {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(s)
	}
	flush()
	return out
}

// batchDrafts assigns a shared batch_id and 0-based batch_index/batch_total
// to a set of sibling fragments produced by splitting one structural block.
// A single group is an unsplit chunk and carries no batch id.
func batchDrafts(groups []string, chunkType store.ChunkType, headerPath string) []chunkDraft {
	if len(groups) <= 1 {
		if len(groups) == 0 {
			return nil
		}
		return []chunkDraft{{content: groups[0], chunkType: chunkType, headerPath: headerPath, batchTotal: 1}}
	}

	batchID := uuid.NewString()
	drafts := make([]chunkDraft, len(groups))
	for i, g := range groups {
		drafts[i] = chunkDraft{
			content:    g,
			chunkType:  chunkType,
			headerPath: headerPath,
			batchID:    batchID,
			batchIndex: i,
			batchTotal: len(groups),
		}
	}
	return drafts
}
