// Package rag defines the shared types and interfaces of the retrieval
// pipeline: chunks and their metadata, the vector store, the embedder, and
// the metadata filter language. Concrete implementations (Qdrant, Ollama,
// OpenAI) satisfy these interfaces so the engine and the ingestion pipeline
// never depend on a specific backend.
package rag

import (
	"context"
)

// DocumentMeta is the fixed set of metadata fields carried by every chunk of
// a document. The set is closed: a field that is not listed here does not
// survive ingestion.
type DocumentMeta struct {
	// DocumentID is the unique identifier of the source document.
	DocumentID string

	// DocumentType classifies the document (policy, handbook, contract, ...).
	DocumentType string

	// Department is the owning department (hr, finance, engineering, general).
	Department string

	// RoleVisibility lists the role tags allowed to retrieve this document's
	// chunks. The single tag "all" makes the document visible to every role.
	RoleVisibility []string

	// Version is the document version label copied onto every chunk.
	Version string

	// Title is the human-readable document title.
	Title string
}

// Chunk is a contiguous span of a document's text plus its metadata.
// It is the atomic unit of indexing and retrieval.
type Chunk struct {
	// ID is the deterministic chunk identifier, derived from the document ID
	// and the chunk's sequence index. Re-chunking identical content yields
	// identical IDs.
	ID string

	// Content is the raw chunk text.
	Content string

	// SectionTitle is the heading the chunk falls under, if any.
	SectionTitle string

	// Meta is the parent document's metadata, copied onto the chunk.
	Meta DocumentMeta
}

// ScoredChunk is a chunk paired with the similarity score assigned during
// retrieval. Score is 1 - cosine distance, so higher is more relevant.
type ScoredChunk struct {
	Chunk
	// Score is the cosine similarity of the chunk to the query (0.0–1.0).
	Score float32
}

// VectorStore persists chunk embeddings and supports metadata-filtered
// nearest-neighbour search. Implementations must be safe for concurrent use:
// the query path reads with unbounded concurrency while the ingestion
// pipeline writes.
type VectorStore interface {
	// Upsert stores chunks with their pre-computed embeddings. The vectors
	// slice must be parallel to chunks — vectors[i] belongs to chunks[i].
	// An existing entry with the same chunk ID is overwritten, not duplicated.
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float32) error

	// Query returns at most topK chunks matching filter, ranked by descending
	// similarity. The filter is applied before ranking, never after.
	Query(ctx context.Context, queryVector []float32, filter Filter, topK int) ([]ScoredChunk, error)

	// DeleteWhere removes every entry matching filter. Deleting entries for a
	// document that was never ingested is not an error.
	DeleteWhere(ctx context.Context, filter Filter) error

	// Count returns the total number of indexed chunks.
	Count(ctx context.Context) (uint64, error)

	// Ping reports whether the underlying index is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder converts text into dense vector embeddings. Query and document
// embeddings must come from the same model so they live in the same vector
// space. Implementations must be safe to call from multiple goroutines and
// must not retry internally — retry policy belongs to the operator.
type Embedder interface {
	// EmbedDocuments embeds a batch of texts. The returned slice is parallel
	// to the input: result[i] is the vector for texts[i]. An empty input
	// returns an empty result without calling the backing service.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query string using the same model as
	// EmbedDocuments.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}
