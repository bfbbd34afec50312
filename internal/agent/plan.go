package agent

import (
	"fmt"

	"github.com/jjellis/raggate/internal/rag"
)

// Plan defaults, applied when the corresponding field is zero.
const (
	DefaultTopK        = 5
	DefaultMinScore    = 0.35
	DefaultMinMeanTopK = 0.30
	DefaultMaxContext  = 3
)

// Plan is the per-call retrieval configuration. It is a value object:
// the caller owns it, Handle never mutates it, and it is echoed back
// verbatim in the payload.
type Plan struct {
	// EmbeddingModel identifies the model the index was built with.
	EmbeddingModel string `json:"embedding_model"`

	// IndexDir locates the paired index artifacts.
	IndexDir string `json:"index_dir"`

	// TopK is the number of contexts to retrieve.
	TopK int `json:"top_k"`

	// MinScore is the gate threshold on the best context's score.
	MinScore float64 `json:"min_score"`

	// MinMeanTopK is the gate threshold on the mean top-k score.
	MinMeanTopK float64 `json:"min_mean_topk"`

	// ForceRAGOnly always produces a draft answer from the contexts.
	ForceRAGOnly bool `json:"force_rag_only"`

	// ReturnDraftWhenEnough produces a draft when the gate passes.
	ReturnDraftWhenEnough bool `json:"return_draft_when_enough"`

	// MaxContext caps how many contexts the draft answer uses.
	MaxContext int `json:"max_context"`
}

// withDefaults fills a zero TopK and MaxContext. The gate thresholds
// are taken as given: an explicit 0.0 threshold means "gate on
// anything", so callers wanting the defaults set them when building
// the plan.
func (p Plan) withDefaults() Plan {
	if p.TopK == 0 {
		p.TopK = DefaultTopK
	}
	if p.MaxContext == 0 {
		p.MaxContext = DefaultMaxContext
	}
	return p
}

// validate rejects plans that cannot drive a retrieval call.
func (p Plan) validate() error {
	if p.TopK <= 0 {
		return fmt.Errorf("agent: plan top_k must be positive, got %d: %w", p.TopK, rag.ErrConfiguration)
	}
	if p.MaxContext < 0 {
		return fmt.Errorf("agent: plan max_context must not be negative, got %d: %w", p.MaxContext, rag.ErrConfiguration)
	}
	if p.IndexDir == "" {
		return fmt.Errorf("agent: plan index_dir is required: %w", rag.ErrConfiguration)
	}
	return nil
}
