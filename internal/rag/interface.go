// Package rag defines the core types and interfaces of the retrieval
// pipeline: chunk records, retrieval contexts, vector storage, and
// embedding. Concrete implementations (flat file store, Qdrant, OpenAI
// embedder, dummy embedder) satisfy these interfaces so the agent layer
// never depends on a specific backend.
package rag

import (
	"context"
)

// Record is the atomic retrievable unit: one chunk of a source document.
// Records are created once by the corpus builder and never mutated after
// indexing — re-indexing replaces, never patches.
type Record struct {
	// ID is globally unique and deterministic: "{path}::chunk_{index:04d}"
	// (or "{path}::row_{index}" as the path component for tabular rows).
	// Stable across rebuilds given identical input and chunking parameters.
	ID string `json:"id"`

	// Text is the cleaned chunk content used for embedding.
	Text string `json:"text"`

	// Meta carries the source identity and position of this chunk.
	Meta Meta `json:"meta"`
}

// Meta holds per-chunk source metadata persisted alongside the vector.
type Meta struct {
	// Path identifies the source document (file path, possibly with a
	// "::row_N" suffix for tabular sources).
	Path string `json:"path"`

	// Chunk is the ordinal position of this chunk within its source.
	Chunk int `json:"chunk"`

	// Fields is the full original structured record for tabular sources,
	// kept for display — it is never embedded directly.
	Fields map[string]string `json:"fields,omitempty"`
}

// Context is one retrieved chunk plus its similarity score.
type Context struct {
	// ID is the matched record's identifier.
	ID string `json:"id"`

	// Text is the matched chunk content.
	Text string `json:"text"`

	// Score is the cosine similarity of the query against this chunk,
	// in approximately [-1, 1] since all stored vectors are unit-norm.
	Score float32 `json:"score"`

	// Meta is the matched record's metadata.
	Meta Meta `json:"meta"`
}

// Embedder converts text into L2-normalized dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Encode converts a batch of texts into their corresponding unit
	// vectors. The returned slice is parallel to the input slice; an
	// empty input yields an empty (zero-row) result, not an error.
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore persists chunk vectors with their parallel records and
// answers top-k similarity queries. Implementations must be safe for
// concurrent reads once built; building is an exclusive operation.
type VectorStore interface {
	// Add appends vectors with their parallel records. It fails with
	// ErrConfiguration when the slices disagree in length and with
	// ErrDimensionMismatch when a vector's dimension disagrees with the
	// store's fixed dimension.
	Add(ctx context.Context, vectors [][]float32, records []Record) error

	// Search returns the min(topK, N) highest-scoring contexts for the
	// query vector, descending by score, stable on ties. An empty store
	// returns an empty slice, not an error.
	Search(ctx context.Context, query []float32, topK int) ([]Context, error)

	// Dim reports the store's fixed vector dimension, or 0 when the
	// store holds no vectors yet.
	Dim(ctx context.Context) (int, error)

	// Count reports the number of stored vectors.
	Count(ctx context.Context) (int, error)

	// Close releases any resources held by the store.
	Close() error
}
