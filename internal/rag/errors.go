package rag

import (
	"errors"
	"fmt"
)

// Sentinel errors for the two external services and the index. Callers use
// errors.Is to distinguish infrastructure failure from a legitimate empty
// retrieval: an unreachable embedder must never be reported as "out of scope".
var (
	// ErrEmbeddingUnavailable wraps any failure of the embedding service.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrIndexUnavailable wraps any failure of a vector index operation.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrGenerationUnavailable wraps any failure of the generation service.
	ErrGenerationUnavailable = errors.New("generation service unavailable")
)

// ChunkingError reports a document that could not be chunked (for example
// undecodable text). It aborts that document's ingestion only.
type ChunkingError struct {
	// DocumentID identifies the document that failed.
	DocumentID string
	// Reason describes what was wrong with the input.
	Reason string
}

// Error implements the error interface.
func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking %s: %s", e.DocumentID, e.Reason)
}
