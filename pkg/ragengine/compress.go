package ragengine

import (
	"github.com/ragcore/ragcore/internal/compress"
)

// Compress deduplicates near-identical sentences and truncates text to a
// character budget, per opts.
func (e *Engine) Compress(text string, opts compress.Options) compress.Result {
	return compress.Compress(text, opts)
}

// CompressSimple runs Compress with duplicate removal and no truncation.
func (e *Engine) CompressSimple(text string) string {
	return compress.CompressSimple(text)
}

// ShouldCompress reports whether text exceeds tokenThreshold (tokens
// estimated as character count / 4) and is worth compressing before
// returning it to a caller with a limited context window.
func (e *Engine) ShouldCompress(text string, tokenThreshold int) bool {
	return compress.ShouldCompress(text, tokenThreshold)
}

// SplitSentences splits text into sentences using the same boundary rules
// Compress uses internally.
func (e *Engine) SplitSentences(text string) []string {
	return compress.SplitSentences(text)
}

// SentenceHash returns the FNV-1a hash Compress uses to detect duplicate
// sentences.
func (e *Engine) SentenceHash(sentence string) uint64 {
	return compress.SentenceHash(sentence)
}
