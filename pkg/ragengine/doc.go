// Package ragengine is the public library facade over ragcore's retrieval
// engine. It wires the store, BM25 and ANN indices, recent-insert buffer,
// hybrid retriever, and index lifecycle manager behind a single handle,
// matching spec.md §6's "public operations (language-neutral surface)".
//
// The engine never embeds text or decodes documents itself: callers supply
// an EmbeddingProvider and, optionally, a DocumentDecoder, and invoke them
// before calling into the engine. This mirrors the teacher's indexer/
// searcher split in pkg/indexer and pkg/searcher, collapsed into one
// facade because this engine's two halves (index, retrieve) share state
// (the same Store, ANN, and BM25 instances) rather than being independently
// swappable components.
package ragengine

import "context"

// EmbeddingProvider maps text to a fixed-dimension embedding vector. The
// engine compares only vector length at search time; it never validates
// embedding quality or calls the provider internally — callers invoke it
// before AddChunks and before any Search* call, per spec.md §6.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DocumentDecoder converts a raw document byte buffer (PDF, DOCX, ...) into
// plain text. Dehyphenation, trailing page-marker removal, and other
// format-specific cleanup are the decoder's responsibility, not the
// engine's.
type DocumentDecoder interface {
	Decode(ctx context.Context, raw []byte, contentType string) (string, error)
}
