package chunk

import (
	"regexp"
	"strings"

	"github.com/ragcore/ragcore/internal/store"
)

var (
	definitionPhrases = []string{
		"is defined as", "refers to", "means that", "is a type of",
		"can be defined as", "is known as",
	}
	examplePhrases = []string{
		"for example", "e.g.", "for instance", "such as", "example:",
	}
	procedurePhrases = []string{
		"step 1", "step 2", "first,", "then,", "finally,", "how to",
		"procedure", "instructions",
	}
	comparisonPhrases = []string{
		"vs", "versus", "compared to", "in contrast", "on the other hand",
		"differs from", "difference between",
	}

	bulletPrefix  = regexp.MustCompile(`^[•●\-*]\s+`)
	numberedPrefix = regexp.MustCompile(`^\d+[.)]\s+`)
)

// Classify assigns a chunk's rhetorical type by the same rule order the
// paragraph-first chunker uses, so both strategies tag prose consistently.
func Classify(content string) store.ChunkType {
	if isList(content) {
		return store.ChunkTypeList
	}
	lower := strings.ToLower(content)
	if containsAny(lower, definitionPhrases) {
		return store.ChunkTypeDefinition
	}
	if containsAny(lower, examplePhrases) {
		return store.ChunkTypeExample
	}
	if countMatches(lower, procedurePhrases) >= 2 {
		return store.ChunkTypeProcedure
	}
	if containsAny(lower, comparisonPhrases) {
		return store.ChunkTypeComparison
	}
	return store.ChunkTypeGeneral
}

func isList(content string) bool {
	lines := strings.Split(content, "\n")
	count := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if bulletPrefix.MatchString(trimmed) || numberedPrefix.MatchString(trimmed) {
			count++
		}
	}
	return count >= 3
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

func countMatches(haystack string, needles []string) int {
	n := 0
	for _, needle := range needles {
		if strings.Contains(haystack, needle) {
			n++
		}
	}
	return n
}
