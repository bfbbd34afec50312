package rag

import "errors"

// Sentinel errors forming the pipeline's error taxonomy. Callers match
// them with [errors.Is]; constructors wrap them with situational detail
// via fmt.Errorf("...: %w", Err...).
var (
	// ErrConfiguration marks invalid chunking or plan parameters
	// (overlap >= size, non-positive top-k, mismatched slice lengths).
	ErrConfiguration = errors.New("invalid configuration")

	// ErrNotFound marks index artifacts missing at query time —
	// the index has not been built yet.
	ErrNotFound = errors.New("index not found")

	// ErrDimensionMismatch marks a disagreement between the live
	// embedding dimension and the stored vectors, which signals an
	// index built with a different embedding model.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrCorruptIndex marks paired index artifacts that disagree in
	// row count and therefore cannot be trusted.
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrProvider marks an embedding provider call that failed after
	// exhausting its retry budget.
	ErrProvider = errors.New("embedding provider failure")
)
