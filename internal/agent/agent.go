// Package agent orchestrates one retrieval call: load the index,
// verify the embedding dimension, embed the query, search, gate on
// confidence and optionally synthesize a draft answer. Each Handle
// call is independent and stateless, so an Agent is safe for
// concurrent use.
package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jjellis/raggate/internal/embedder"
	"github.com/jjellis/raggate/internal/rag"
)

// dimProbe is the sentinel embedded to discover the live embedding
// dimension before touching the query.
const dimProbe = "__dim_check__"

// PayloadType labels every retrieval payload.
const PayloadType = "rag_answer"

// StoreOpener opens the vector store holding the index under indexDir.
// The agent closes the returned store when the call finishes.
type StoreOpener func(ctx context.Context, indexDir string) (rag.VectorStore, error)

// Stats summarizes one retrieval call.
type Stats struct {
	// TotalResults is the number of contexts returned by the search.
	TotalResults int `json:"total_results"`

	// AvgScore is the mean similarity over all returned contexts.
	AvgScore float64 `json:"avg_score"`

	// SearchMethod is "rag_only" when the plan forces retrieval-only
	// answering, "hybrid" otherwise.
	SearchMethod string `json:"search_method"`
}

// Payload is the complete result of one Handle call, shaped for
// rendering or JSON transport.
type Payload struct {
	Type     string        `json:"type"`
	Query    string        `json:"query"`
	Plan     Plan          `json:"plan"`
	Contexts []rag.Context `json:"contexts"`
	Gating   Gating        `json:"gating"`
	Answer   string        `json:"answer"`
	Stats    Stats         `json:"stats"`
}

// Config wires an Agent.
type Config struct {
	// Embedder encodes the probe and the query. Required.
	Embedder *embedder.Service

	// OpenStore opens the store for a plan's index directory. Defaults
	// to the local flat-file store.
	OpenStore StoreOpener

	// Logger receives per-call debug logs. Defaults to slog.Default().
	Logger *slog.Logger
}

// Agent is the retrieval orchestrator.
type Agent struct {
	embedder  *embedder.Service
	openStore StoreOpener
	log       *slog.Logger
}

// New builds an Agent.
func New(cfg *Config) (*Agent, error) {
	if cfg == nil || cfg.Embedder == nil {
		return nil, fmt.Errorf("agent: embedder is required: %w", rag.ErrConfiguration)
	}
	a := &Agent{
		embedder:  cfg.Embedder,
		openStore: cfg.OpenStore,
		log:       cfg.Logger,
	}
	if a.openStore == nil {
		a.openStore = openFlatStore
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	return a, nil
}

// openFlatStore loads the paired flat-file artifacts under indexDir.
func openFlatStore(_ context.Context, indexDir string) (rag.VectorStore, error) {
	vectorsPath, docsPath := rag.IndexPaths(indexDir)
	return rag.LoadFlatStore(vectorsPath, docsPath)
}

// Handle runs the full retrieval pipeline for one query. A missing
// index surfaces as ErrNotFound and a stale index built with a
// different embedding model as ErrDimensionMismatch; past those two
// checks the pipeline only fails on provider errors.
func (a *Agent) Handle(ctx context.Context, query string, plan Plan) (*Payload, error) {
	plan = plan.withDefaults()
	if err := plan.validate(); err != nil {
		return nil, err
	}

	store, err := a.openStore(ctx, plan.IndexDir)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	if err := a.checkDimension(ctx, store); err != nil {
		return nil, err
	}

	queryVecs, err := a.embedder.Encode(ctx, []string{query})
	if err != nil {
		return nil, err
	}

	contexts, err := store.Search(ctx, queryVecs[0], plan.TopK)
	if err != nil {
		return nil, err
	}

	gating := gate(contexts, plan.TopK, plan.MinScore, plan.MinMeanTopK)
	a.log.Debug("query gated",
		slog.String("status", gating.Status),
		slog.Float64("top_score", gating.TopScore),
		slog.Float64("mean_topk", gating.MeanTopK),
		slog.Int("contexts", len(contexts)),
	)

	payload := &Payload{
		Type:     PayloadType,
		Query:    query,
		Plan:     plan,
		Contexts: contexts,
		Gating:   gating,
		Stats: Stats{
			TotalResults: len(contexts),
			AvgScore:     avgScore(contexts),
			SearchMethod: searchMethod(plan),
		},
	}
	if plan.ForceRAGOnly || (gating.Status == StatusEnough && plan.ReturnDraftWhenEnough) {
		payload.Answer = draftAnswer(query, contexts, plan.MaxContext)
	}
	return payload, nil
}

// checkDimension embeds the sentinel and compares the live embedding
// dimension against the store's.
func (a *Agent) checkDimension(ctx context.Context, store rag.VectorStore) error {
	probe, err := a.embedder.Encode(ctx, []string{dimProbe})
	if err != nil {
		return err
	}
	liveDim := len(probe[0])

	storeDim, err := store.Dim(ctx)
	if err != nil {
		return err
	}
	if storeDim != liveDim {
		return fmt.Errorf("agent: index dimension %d does not match embedder dimension %d (was the index built with a different model?): %w",
			storeDim, liveDim, rag.ErrDimensionMismatch)
	}
	return nil
}

func avgScore(contexts []rag.Context) float64 {
	if len(contexts) == 0 {
		return 0
	}
	var sum float64
	for _, c := range contexts {
		sum += float64(c.Score)
	}
	return sum / float64(len(contexts))
}

func searchMethod(plan Plan) string {
	if plan.ForceRAGOnly {
		return "rag_only"
	}
	return "hybrid"
}
