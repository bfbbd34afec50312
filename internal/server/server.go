// Package server exposes the retrieval agent over HTTP: a query
// endpoint, liveness/readiness probes and a Prometheus metrics
// endpoint. The server is started by the `raggate serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jjellis/raggate/internal/agent"
	"github.com/jjellis/raggate/internal/embedder"
	"github.com/jjellis/raggate/internal/history"
	"github.com/jjellis/raggate/internal/logging"
	"github.com/jjellis/raggate/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
	// Plan is the default retrieval plan applied to every query; per-request
	// fields (top_k) may override it.
	Plan agent.Plan
	// EmbedderMode labels the embedding backend in readiness responses so
	// operators can detect a server running on dummy vectors.
	EmbedderMode embedder.Mode
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready reports ready with no checks.
	Pingers []Pinger
	// History records handled queries when non-nil. Best-effort: a failed
	// append is logged, never surfaced to the client.
	History history.QueryLog
	// RateLimit is the sustained request rate allowed per IP on /api/query
	// (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on /api/query.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry receives the server's Prometheus metrics. Defaults to a
	// fresh registry; inject one to aggregate with process metrics.
	Registry *prometheus.Registry
}

// querier is the interface handleQuery calls to run a retrieval.
// *agent.Agent satisfies it; tests inject a fake.
type querier interface {
	Handle(ctx context.Context, query string, plan agent.Plan) (*agent.Payload, error)
}

// Server is the HTTP server that wraps the retrieval agent.
type Server struct {
	// querier runs retrieval calls; the real agent in production, a fake
	// in tests.
	querier querier
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Query is the user's retrieval query.
	Query string `json:"query"`
	// TopK overrides the server's default top-k when positive.
	TopK int `json:"top_k,omitempty"`
}

// New constructs a Server from the provided agent and config.
func New(a *agent.Agent, cfg *Config) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("server: agent must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		querier: a,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.Registry),
	}
	if cfg.APIKey == "" {
		s.log.Warn("server: no API key configured, /api/query is unauthenticated")
	}
	if cfg.EmbedderMode == embedder.ModeDummy {
		s.log.Warn("server: embedder is in dummy mode, results are token-overlap only — do not serve production traffic")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /api/query",
		authMiddleware(cfg.APIKey, rl.middleware(http.HandlerFunc(s.handleQuery))))
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, s.metrics.httpMiddleware(mux)),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleQuery handles POST /api/query. The response body is the full
// retrieval payload (contexts, gating, stats, optional draft answer).
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	plan := s.cfg.Plan
	if req.TopK > 0 {
		plan.TopK = req.TopK
	}

	start := time.Now()
	payload, err := s.querier.Handle(r.Context(), req.Query, plan)
	elapsed := time.Since(start)
	if err != nil {
		outcome := s.writeQueryError(w, log, err)
		s.metrics.queryRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.queryDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
		return
	}

	s.metrics.queryRequestsTotal.WithLabelValues(payload.Gating.Status).Inc()
	s.metrics.queryDurationSeconds.WithLabelValues(payload.Gating.Status).Observe(elapsed.Seconds())
	s.recordHistory(r.Context(), payload)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error("query encode error", slog.Any("error", err))
	}
}

// writeQueryError maps domain errors to HTTP statuses and returns the
// metrics outcome label.
func (s *Server) writeQueryError(w http.ResponseWriter, log *slog.Logger, err error) string {
	switch {
	case errors.Is(err, rag.ErrNotFound):
		http.Error(w, "index not built yet", http.StatusServiceUnavailable)
		return "not_found"
	case errors.Is(err, rag.ErrDimensionMismatch):
		http.Error(w, "index was built with a different embedding model", http.StatusConflict)
		return "dimension_mismatch"
	case errors.Is(err, rag.ErrConfiguration):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return "bad_request"
	default:
		log.Error("query failed", slog.Any("error", err))
		http.Error(w, "query failed", http.StatusInternalServerError)
		return "error"
	}
}

// recordHistory appends the handled query to the query log, if one is
// configured. Failures are logged and swallowed.
func (s *Server) recordHistory(ctx context.Context, payload *agent.Payload) {
	if s.cfg.History == nil {
		return
	}
	err := s.cfg.History.Append(ctx, history.Entry{
		Query:    payload.Query,
		Status:   payload.Gating.Status,
		TopScore: payload.Gating.TopScore,
		MeanTopK: payload.Gating.MeanTopK,
		Method:   payload.Stats.SearchMethod,
	})
	if err != nil {
		s.log.Warn("query log append failed", slog.Any("error", err))
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
