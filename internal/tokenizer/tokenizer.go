// Package tokenizer wraps a Hugging Face sub-word tokenizer artifact behind
// a reader-writer lock and an LRU result cache, so every caller in the
// process shares one loaded vocabulary instead of re-parsing it per request.
package tokenizer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/daulet/tokenizers"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ragcore/ragcore/internal/errors"
)

// Adaptive truncation thresholds: the max token count applied to an input
// depends on its character length, so short queries stay cheap to embed
// while long documents still get a usable window.
const (
	shortCharThreshold  = 1200
	mediumCharThreshold = 2400

	ShortMaxTokens  = 256
	MediumMaxTokens = 384
	LongMaxTokens   = 512
)

// DefaultCacheSize is the number of (text, maxTokens) encodings kept in the
// LRU cache when the caller doesn't specify one.
const DefaultCacheSize = 256

// Tokenizer loads a tokenizer.json artifact once and serves Encode/Decode
// under a read-write lock: concurrent Encode calls proceed in parallel,
// Close takes the exclusive path.
type Tokenizer struct {
	mu     sync.RWMutex
	inner  *tokenizers.Tokenizer
	cache  *lru.Cache[string, []uint32]
	closed bool
}

// Load reads the tokenizer artifact at path and prepares an LRU cache of
// cacheSize encodings. A non-positive cacheSize falls back to
// DefaultCacheSize.
func Load(path string, cacheSize int) (*Tokenizer, error) {
	inner, err := tokenizers.FromFile(path)
	if err != nil {
		return nil, errors.ModelLoad(fmt.Sprintf("load tokenizer artifact: %s", path), err)
	}

	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, []uint32](cacheSize)
	if err != nil {
		return nil, errors.Internal("create tokenizer cache", err)
	}

	return &Tokenizer{inner: inner, cache: cache}, nil
}

// MaxTokensFor returns the adaptive truncation length for an input of the
// given character count: short inputs get the smallest window, long ones
// the largest.
func MaxTokensFor(charCount int) int {
	switch {
	case charCount < shortCharThreshold:
		return ShortMaxTokens
	case charCount < mediumCharThreshold:
		return MediumMaxTokens
	default:
		return LongMaxTokens
	}
}

// Encode tokenizes text with special tokens included, then truncates to the
// adaptive max-token length for its character count. Padding is never
// applied: callers that need a fixed-width batch pad themselves.
func (t *Tokenizer) Encode(text string) ([]uint32, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, errors.Internal("tokenizer is closed", nil)
	}

	maxTokens := MaxTokensFor(len(text))
	key := cacheKey(text, maxTokens)
	if cached, ok := t.cache.Get(key); ok {
		out := make([]uint32, len(cached))
		copy(out, cached)
		return out, nil
	}

	ids, _ := t.inner.Encode(text, true)
	if len(ids) > maxTokens {
		ids = ids[:maxTokens]
	}

	stored := make([]uint32, len(ids))
	copy(stored, ids)
	t.cache.Add(key, stored)

	return ids, nil
}

// Decode reverses Encode, dropping special tokens from the output text.
func (t *Tokenizer) Decode(ids []uint32) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return "", errors.Internal("tokenizer is closed", nil)
	}
	return t.inner.Decode(ids, true), nil
}

// TokenCount reports how many tokens text would encode to after adaptive
// truncation, without allocating the returned ids slice for the caller.
func (t *Tokenizer) TokenCount(text string) (int, error) {
	ids, err := t.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Close releases the underlying tokenizer artifact. Safe to call more than
// once.
func (t *Tokenizer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.inner.Close()
	return nil
}

// cacheKey hashes text together with the truncation length it was encoded
// under, so the same text cached at two different adaptive lengths never
// collides.
func cacheKey(text string, maxTokens int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%d\x00%s", maxTokens, text)))
	return hex.EncodeToString(h[:])
}
