package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/jjellis/raggate/internal/agent"
	"github.com/jjellis/raggate/internal/embedder"
	"github.com/jjellis/raggate/internal/rag"
)

// defaultIndexDir is used when RAGGATE_INDEX_DIR is unset.
const defaultIndexDir = "./index"

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat returns the float value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvBool returns true when the named environment variable is "true"
// or "1".
func getEnvBool(key string) bool {
	v := os.Getenv(key)
	return v == "true" || v == "1"
}

// buildEmbedder constructs the embedding service from the EMBEDDING_*
// environment. It never fails for missing credentials — the service
// falls back to dummy mode.
func buildEmbedder(log *slog.Logger) (*embedder.Service, error) {
	return embedder.New(&embedder.Config{
		Provider:   os.Getenv("EMBEDDING_PROVIDER"),
		Model:      os.Getenv("EMBEDDING_MODEL"),
		Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		Seed:       int64(getEnvInt("EMBEDDING_SEED", 0)),
		BatchSize:  getEnvInt("EMBEDDING_BATCH_SIZE", 0),
		MaxRetries: getEnvInt("EMBEDDING_MAX_RETRIES", 0),
		Logger:     log,
	})
}

// buildPlan assembles the default retrieval plan from the environment.
func buildPlan() agent.Plan {
	return agent.Plan{
		EmbeddingModel:        getEnvOrDefault("EMBEDDING_MODEL", embedder.DefaultModel),
		IndexDir:              getEnvOrDefault("RAGGATE_INDEX_DIR", defaultIndexDir),
		TopK:                  getEnvInt("RETRIEVAL_TOP_K", agent.DefaultTopK),
		MinScore:              getEnvFloat("RETRIEVAL_MIN_SCORE", agent.DefaultMinScore),
		MinMeanTopK:           getEnvFloat("RETRIEVAL_MIN_MEAN_TOPK", agent.DefaultMinMeanTopK),
		ForceRAGOnly:          getEnvBool("RETRIEVAL_FORCE_RAG_ONLY"),
		ReturnDraftWhenEnough: getEnvBool("RETRIEVAL_RETURN_DRAFT"),
		MaxContext:            getEnvInt("RETRIEVAL_MAX_CONTEXT", agent.DefaultMaxContext),
	}
}

// qdrantConfigFromEnv assembles Qdrant connection settings from the
// QDRANT_* environment.
func qdrantConfigFromEnv(vectorSize int, createMissing bool) *rag.QdrantConfig {
	return &rag.QdrantConfig{
		Host:          getEnvOrDefault("QDRANT_HOST", "localhost"),
		Port:          getEnvInt("QDRANT_PORT", 6334),
		Collection:    getEnvOrDefault("QDRANT_COLLECTION", "raggate-docs"),
		VectorSize:    uint64(vectorSize), //nolint:gosec // dimensions are bounded
		APIKey:        os.Getenv("QDRANT_API_KEY"),
		UseTLS:        getEnvBool("QDRANT_TLS"),
		CreateMissing: createMissing,
	}
}

// storeOpener returns the StoreOpener matching STORE_BACKEND: the local
// flat store (default) or Qdrant.
func storeOpener() (agent.StoreOpener, error) {
	switch backend := getEnvOrDefault("STORE_BACKEND", "flat"); backend {
	case "flat":
		return nil, nil // agent default
	case "qdrant":
		return func(ctx context.Context, _ string) (rag.VectorStore, error) {
			return rag.NewQdrantStore(ctx, qdrantConfigFromEnv(0, false))
		}, nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (want flat or qdrant): %w", backend, rag.ErrConfiguration)
	}
}
