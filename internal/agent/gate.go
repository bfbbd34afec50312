package agent

import "github.com/jjellis/raggate/internal/rag"

// Gate statuses.
const (
	StatusEnough       = "enough"
	StatusInsufficient = "insufficient"
)

// Gating is the confidence decision over a result set.
type Gating struct {
	// Status is "enough" when the evidence clears both thresholds.
	Status string `json:"status"`

	// TopScore is the best context's similarity score.
	TopScore float64 `json:"top_score"`

	// MeanTopK is the mean score of the first top-k contexts.
	MeanTopK float64 `json:"mean_topk"`
}

// gate is a pure function of the retrieved scores. No contexts means
// insufficient with zeroed scores; otherwise both thresholds are
// inclusive, so a score exactly at a threshold passes.
func gate(contexts []rag.Context, topK int, minScore, minMeanTopK float64) Gating {
	if len(contexts) == 0 {
		return Gating{Status: StatusInsufficient}
	}

	topScore := float64(contexts[0].Score)
	n := topK
	if n > len(contexts) {
		n = len(contexts)
	}
	var sum float64
	for _, c := range contexts[:n] {
		sum += float64(c.Score)
	}
	meanTopK := sum / float64(n)

	status := StatusInsufficient
	if topScore >= minScore && meanTopK >= minMeanTopK {
		status = StatusEnough
	}
	return Gating{Status: status, TopScore: topScore, MeanTopK: meanTopK}
}
