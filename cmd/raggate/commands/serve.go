package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jjellis/raggate/internal/agent"
	"github.com/jjellis/raggate/internal/embedder"
	"github.com/jjellis/raggate/internal/history"
	"github.com/jjellis/raggate/internal/logging"
	"github.com/jjellis/raggate/internal/rag"
	"github.com/jjellis/raggate/internal/server"
)

// NewServeCmd constructs the `raggate serve` command, which exposes the
// retrieval agent over HTTP.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the raggate HTTP server",
		Long: `Start the raggate HTTP server.

Endpoints:
  POST /api/query   run a retrieval query (Bearer auth when RAGGATE_API_KEY is set)
  GET  /api/health  liveness probe
  GET  /api/ready   readiness probe (index artifacts, backend reachability, embedding mode)
  GET  /metrics     Prometheus metrics

Examples:
  raggate serve
  raggate serve --port 9090
  RAGGATE_API_KEY=secret raggate serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			svc, err := buildEmbedder(log)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}
			if svc.Mode() == embedder.ModeDummy {
				log.Warn("serving with a dummy embedder: configure EMBEDDING_API_KEY before exposing this to users")
			}

			opener, err := storeOpener()
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			a, err := agent.New(&agent.Config{
				Embedder:  svc,
				OpenStore: opener,
				Logger:    log,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			plan := buildPlan()

			pingers, closePingers, err := buildPingers(cmd, plan.IndexDir)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer closePingers()

			// Open the query log. RAGGATE_HISTORY_DB overrides the default
			// path (~/.raggate/history.db). Set to "disabled" to disable.
			var queryLog history.QueryLog
			dbPath := os.Getenv("RAGGATE_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = history.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					ql, qlErr := history.Open(dbPath)
					if qlErr != nil {
						log.Warn("history: failed to open query log, disabling", slog.Any("error", qlErr))
					} else {
						queryLog = ql
						defer func() { _ = ql.Close() }()
						log.Info("history: query log opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via RAGGATE_HISTORY_DB=disabled")
			}

			if host == "" {
				host = getEnvOrDefault("SERVER_HOST", "127.0.0.1")
			}
			if port == 0 {
				port = getEnvInt("SERVER_PORT", 8080)
			}

			srv, err := server.New(a, &server.Config{
				Host:         host,
				Port:         port,
				Logger:       log,
				Plan:         plan,
				EmbedderMode: svc.Mode(),
				Pingers:      pingers,
				History:      queryLog,
				RateLimit:    getEnvFloat("SERVER_RATE_RPS", 0),
				RateBurst:    getEnvInt("SERVER_RATE_BURST", 0),
				APIKey:       os.Getenv("RAGGATE_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default: SERVER_HOST or 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default: SERVER_PORT or 8080)")

	return cmd
}

// buildPingers assembles the readiness probes for the configured store
// backend. The returned close function releases any held connections.
func buildPingers(cmd *cobra.Command, indexDir string) ([]server.Pinger, func(), error) {
	switch backend := getEnvOrDefault("STORE_BACKEND", "flat"); backend {
	case "flat":
		return []server.Pinger{server.NewIndexPinger(indexDir)}, func() {}, nil
	case "qdrant":
		store, err := rag.NewQdrantStore(cmd.Context(), qdrantConfigFromEnv(0, false))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to Qdrant for readiness probes: %w", err)
		}
		return []server.Pinger{store}, func() { _ = store.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q (want flat or qdrant): %w", backend, rag.ErrConfiguration)
	}
}
