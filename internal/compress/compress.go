// Package compress shrinks a text block by deduplicating near-identical
// sentences and truncating to a character budget, for callers that need to
// fit retrieved context into a model's prompt window.
package compress

import (
	"hash/fnv"
	"regexp"
	"strings"
)

// Options configures a single Compress call.
type Options struct {
	// RemoveDuplicates drops sentences whose normalized form was already
	// seen earlier in the text.
	RemoveDuplicates bool
	// MaxChars truncates the result to this many characters, backtracking
	// to the last terminal punctuation mark. Zero or negative disables
	// truncation.
	MaxChars int
	// Level is reserved for future compression strategies (e.g. a more
	// aggressive summarizing pass); the current procedure is level-agnostic
	// and accepts this field only for forward compatibility.
	Level string
}

// Result reports what Compress did to the input, so callers can log or
// surface compression ratios.
type Result struct {
	Text                  string
	OriginalChars         int
	CompressedChars       int
	Ratio                 float64
	SentencesRemoved      int
	CharsSavedTruncation int
}

var sentenceBoundary = regexp.MustCompile(`[.?!。]+["')\]]?\s+`)

// splitSentences splits text on terminal punctuation followed by whitespace,
// keeping the punctuation attached to the preceding sentence, then trims and
// discards anything one character or shorter, not counting its terminal
// punctuation.
func splitSentences(text string) []string {
	var raw []string
	last := 0
	for _, loc := range sentenceBoundary.FindAllStringIndex(text, -1) {
		raw = append(raw, text[last:loc[1]])
		last = loc[1]
	}
	if last < len(text) {
		raw = append(raw, text[last:])
	}

	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if len(strings.TrimRight(s, ".?!。\"')]")) > 1 {
			out = append(out, s)
		}
	}
	return out
}

// normalize lowercases and collapses whitespace runs, so "Foo  bar" and
// "foo bar" hash identically for dedup purposes.
func normalize(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	return strings.Join(fields, " ")
}

func hashSentence(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(normalize(s)))
	return h.Sum64()
}

var terminalPunctuation = regexp.MustCompile(`[.?!。]`)

// truncate cuts s to at most maxChars characters, then backtracks to the
// last terminal punctuation mark so the result doesn't end mid-sentence. If
// no terminal punctuation exists in the truncated prefix, the hard cut
// stands.
func truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	cut := s[:maxChars]
	locs := terminalPunctuation.FindAllStringIndex(cut, -1)
	if len(locs) == 0 {
		return cut
	}
	last := locs[len(locs)-1]
	return cut[:last[1]]
}

// Compress splits text into sentences, optionally deduplicates them, rejoins
// with single spaces, and truncates to opts.MaxChars if set.
func Compress(text string, opts Options) Result {
	originalChars := len(text)
	sentences := splitSentences(text)

	removed := 0
	if opts.RemoveDuplicates {
		seen := make(map[uint64]struct{}, len(sentences))
		kept := sentences[:0:0]
		for _, s := range sentences {
			h := hashSentence(s)
			if _, ok := seen[h]; ok {
				removed++
				continue
			}
			seen[h] = struct{}{}
			kept = append(kept, s)
		}
		sentences = kept
	}

	joined := strings.Join(sentences, " ")

	truncated := truncate(joined, opts.MaxChars)
	charsSaved := len(joined) - len(truncated)

	compressedChars := len(truncated)
	ratio := 1.0
	if originalChars > 0 {
		ratio = float64(compressedChars) / float64(originalChars)
	}

	return Result{
		Text:                  truncated,
		OriginalChars:         originalChars,
		CompressedChars:       compressedChars,
		Ratio:                 ratio,
		SentencesRemoved:      removed,
		CharsSavedTruncation: charsSaved,
	}
}

// ShouldCompress estimates text's token count as chars/4 and reports
// whether that estimate exceeds tokenThreshold.
func ShouldCompress(text string, tokenThreshold int) bool {
	estimatedTokens := len(text) / 4
	return estimatedTokens > tokenThreshold
}

// CompressSimple runs Compress with duplicate removal on and no truncation
// ceiling, returning just the resulting text for callers that don't need
// the full Result breakdown.
func CompressSimple(text string) string {
	return Compress(text, Options{RemoveDuplicates: true}).Text
}

// SplitSentences exposes the sentence splitter used internally by Compress,
// for callers that want to inspect or re-combine sentences themselves.
func SplitSentences(text string) []string {
	return splitSentences(text)
}

// SentenceHash exposes the normalized FNV-1a hash Compress uses for
// duplicate detection.
func SentenceHash(sentence string) uint64 {
	return hashSentence(sentence)
}
