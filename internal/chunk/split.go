package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// splitUnicodeBoundary breaks s into pieces of at most maxChars bytes,
// never inside a UTF-8 rune. It is the chunker's last-resort fallback when
// a single atomic unit (line, sentence) still exceeds the limit.
func splitUnicodeBoundary(s string, maxChars int) []string {
	if maxChars <= 0 {
		return []string{s}
	}
	var parts []string
	for len(s) > maxChars {
		cut := maxChars
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			// maxChars landed inside the first rune's continuation bytes;
			// advance past one full rune instead of emitting nothing.
			_, size := utf8.DecodeRuneInString(s)
			cut = size
		}
		parts = append(parts, s[:cut])
		s = s[cut:]
	}
	if len(s) > 0 {
		parts = append(parts, s)
	}
	return parts
}

// packLines greedily packs lines into groups whose joined length
// (newline-separated) does not exceed maxChars. A line that alone exceeds
// maxChars becomes a group of its own; the caller is expected to further
// split it if it needs to respect the limit exactly.
func packLines(lines []string, maxChars int) []string {
	var groups []string
	var buf strings.Builder
	flush := func() {
		if buf.Len() > 0 {
			groups = append(groups, buf.String())
			buf.Reset()
		}
	}
	for _, line := range lines {
		if buf.Len() > 0 && buf.Len()+1+len(line) > maxChars {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(line)
	}
	flush()
	return groups
}

var sentenceBoundary = regexp.MustCompile(`[.?!。]+["')\]]?\s+`)

// splitSentences splits text on `. ? ! 。` followed by whitespace, keeping
// the terminal punctuation attached to the preceding sentence. Used by the
// Markdown chunker's prose fallback; internal/compress keeps its own copy.
func splitSentences(text string) []string {
	var out []string
	last := 0
	locs := sentenceBoundary.FindAllStringIndex(text, -1)
	for _, loc := range locs {
		out = append(out, text[last:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		out = append(out, text[last:])
	}
	trimmed := make([]string, 0, len(out))
	for _, s := range out {
		s = strings.TrimSpace(s)
		if s != "" {
			trimmed = append(trimmed, s)
		}
	}
	return trimmed
}

// indexFrom locates needle in haystack at or after the byte offset from,
// returning the absolute offset or -1. Positions recovered this way are
// best-effort: whitespace normalization between the original text and an
// emitted chunk's content can make an exact substring search fail, in which
// case the caller falls back to a synthetic, still-monotonic offset.
func indexFrom(haystack, needle string, from int) int {
	if from < 0 || from > len(haystack) {
		return -1
	}
	rel := strings.Index(haystack[from:], needle)
	if rel < 0 {
		return -1
	}
	return from + rel
}
