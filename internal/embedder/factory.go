package embedder

import (
	"log/slog"
	"os"
	"time"
)

// Config resolves which client backs the Service. Resolution order:
// an explicit Client, then an explicit APIKey, then the environment
// (EMBEDDING_API_KEY, OPENAI_API_KEY), then the dummy client. New
// never fails because of missing credentials — the dummy client is
// always available.
type Config struct {
	// Client overrides resolution entirely when set.
	Client Client

	// Provider forces a backend: "openai" or "dummy". Empty selects by
	// credential availability.
	Provider string

	// Model is the embedding model name for real providers.
	Model string

	// Dimensions overrides the vector size (dummy size, or a reduced
	// real-model output where supported).
	Dimensions int

	// APIKey and BaseURL configure the real provider explicitly; the
	// environment fills them when empty.
	APIKey  string
	BaseURL string

	// Seed makes dummy-mode vectors reproducible across processes.
	Seed int64

	// BatchSize, MaxRetries, RetryBase, AttemptTimeout and RateRPS are
	// passed through to the Service policy.
	BatchSize      int
	MaxRetries     int
	RetryBase      time.Duration
	AttemptTimeout time.Duration
	RateRPS        float64

	// Logger receives mode selection and retry logs.
	Logger *slog.Logger
}

// New resolves a client from cfg and wraps it in a Service.
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	client, mode := resolveClient(cfg, log)
	return NewService(&ServiceConfig{
		Client:         client,
		Mode:           mode,
		BatchSize:      cfg.BatchSize,
		MaxRetries:     cfg.MaxRetries,
		RetryBase:      cfg.RetryBase,
		AttemptTimeout: cfg.AttemptTimeout,
		RateRPS:        cfg.RateRPS,
		Logger:         log,
	})
}

func resolveClient(cfg *Config, log *slog.Logger) (Client, Mode) {
	if cfg.Client != nil {
		return cfg.Client, ModeReal
	}
	if cfg.Provider == "dummy" {
		log.Info("embedding provider forced to dummy mode")
		return NewDummyClient(cfg.Dimensions, cfg.Seed), ModeDummy
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("EMBEDDING_API_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("EMBEDDING_BASE_URL")
	}

	if apiKey == "" {
		log.Warn("no embedding API key configured, falling back to dummy mode")
		return NewDummyClient(cfg.Dimensions, cfg.Seed), ModeDummy
	}
	return NewOpenAIClient(apiKey, baseURL, cfg.Model, cfg.Dimensions), ModeReal
}
