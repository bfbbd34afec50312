// Package config provides YAML-based configuration for raggate.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so existing workflows are unaffected.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RAGGATE_CONFIG environment variable
//  3. ~/.raggate/config.yaml
//  4. ./raggate.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Index configures corpus chunking and the index directory.
	Index IndexConfig `yaml:"index"`

	// Store configures the vector store backend.
	Store StoreConfig `yaml:"store"`

	// Retrieval configures per-query defaults (top-k, gate thresholds).
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// History configures query-log persistence.
	History HistoryConfig `yaml:"history"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the backend: openai or dummy.
	Provider string `yaml:"provider"`
	// Model is the embedding model name (e.g. "text-embedding-3-small").
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// BaseURL is the embedding API base URL (OpenAI-compatible gateways).
	BaseURL string `yaml:"base_url"`
	// BatchSize is the number of texts encoded per batch.
	BatchSize int `yaml:"batch_size"`
	// MaxRetries is the per-text retry budget against the provider.
	MaxRetries int `yaml:"max_retries"`
	// Seed makes dummy-mode vectors reproducible.
	Seed int64 `yaml:"seed"`
}

// IndexConfig holds corpus chunking and index location settings.
type IndexConfig struct {
	// Dir is the directory holding the paired index artifacts.
	Dir string `yaml:"dir"`
	// ChunkSize is the sliding-window chunk size in characters.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the character overlap between consecutive chunks.
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// StoreConfig holds vector store backend settings.
type StoreConfig struct {
	// Backend selects the store: flat (local files) or qdrant.
	Backend string `yaml:"backend"`
	// Qdrant holds Qdrant-specific settings, used when Backend is "qdrant".
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// RetrievalConfig holds per-query plan defaults.
type RetrievalConfig struct {
	// TopK is the default number of contexts returned per query.
	TopK int `yaml:"top_k"`
	// MinScore is the gate threshold on the best context score.
	MinScore float64 `yaml:"min_score"`
	// MinMeanTopK is the gate threshold on the mean of the top-k scores.
	MinMeanTopK float64 `yaml:"min_mean_topk"`
	// ForceRAGOnly always produces a draft answer from retrieved contexts.
	ForceRAGOnly bool `yaml:"force_rag_only"`
	// ReturnDraftWhenEnough produces a draft when the gate passes.
	ReturnDraftWhenEnough bool `yaml:"return_draft_when_enough"`
	// MaxContext caps the number of contexts used in the draft answer.
	MaxContext int `yaml:"max_context"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var RAGGATE_API_KEY.
	APIKey string `yaml:"api_key"`
	// RateRPS is the sustained per-IP request rate.
	RateRPS float64 `yaml:"rate_rps"`
	// RateBurst is the per-IP burst allowance.
	RateBurst int `yaml:"rate_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// HistoryConfig holds query-log settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_BASE_URL", func(c *Config) string { return c.Embedding.BaseURL }},
	{"EMBEDDING_BATCH_SIZE", func(c *Config) string { return intStr(c.Embedding.BatchSize) }},
	{"EMBEDDING_MAX_RETRIES", func(c *Config) string { return intStr(c.Embedding.MaxRetries) }},
	{"EMBEDDING_SEED", func(c *Config) string { return intStr(int(c.Embedding.Seed)) }},
	{"RAGGATE_INDEX_DIR", func(c *Config) string { return c.Index.Dir }},
	{"RAGGATE_CHUNK_SIZE", func(c *Config) string { return intStr(c.Index.ChunkSize) }},
	{"RAGGATE_CHUNK_OVERLAP", func(c *Config) string { return intStr(c.Index.ChunkOverlap) }},
	{"STORE_BACKEND", func(c *Config) string { return c.Store.Backend }},
	{"QDRANT_HOST", func(c *Config) string { return c.Store.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Store.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Store.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Store.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Store.Qdrant.TLS) }},
	{"RETRIEVAL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.TopK) }},
	{"RETRIEVAL_MIN_SCORE", func(c *Config) string { return floatStr(c.Retrieval.MinScore) }},
	{"RETRIEVAL_MIN_MEAN_TOPK", func(c *Config) string { return floatStr(c.Retrieval.MinMeanTopK) }},
	{"RETRIEVAL_FORCE_RAG_ONLY", func(c *Config) string { return boolStr(c.Retrieval.ForceRAGOnly) }},
	{"RETRIEVAL_RETURN_DRAFT", func(c *Config) string { return boolStr(c.Retrieval.ReturnDraftWhenEnough) }},
	{"RETRIEVAL_MAX_CONTEXT", func(c *Config) string { return intStr(c.Retrieval.MaxContext) }},
	{"SERVER_HOST", func(c *Config) string { return c.Server.Host }},
	{"SERVER_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"RAGGATE_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"SERVER_RATE_RPS", func(c *Config) string { return floatStr(c.Server.RateRPS) }},
	{"SERVER_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"RAGGATE_HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("RAGGATE_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".raggate", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("raggate.yaml"); err == nil {
		return "raggate.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// floatStr converts a float64 to string, returning "" for zero values.
func floatStr(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
