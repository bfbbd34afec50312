// Package server — metrics.go registers all Prometheus metrics for the HTTP
// server and exposes the middleware that feeds the request-level instruments.
package server

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics holds all Prometheus metrics owned by the HTTP server.
// A single instance is created in New and stored on Server so that tests can
// inject a fresh prometheus.Registry without polluting the default one.
type serverMetrics struct {
	// queryRequestsTotal counts completed /api/query requests, partitioned
	// by outcome: a gate status ("enough", "insufficient") or an error
	// label ("not_found", "dimension_mismatch", "bad_request", "error").
	queryRequestsTotal *prometheus.CounterVec

	// queryDurationSeconds records the wall-clock duration of each
	// /api/query request, embedding call included.
	queryDurationSeconds *prometheus.HistogramVec

	// httpRequestsTotal counts all HTTP requests handled by the mux,
	// partitioned by method, path, and status code.
	httpRequestsTotal *prometheus.CounterVec

	// httpDurationSeconds records the latency of all HTTP requests.
	httpDurationSeconds *prometheus.HistogramVec
}

// newServerMetrics registers all server metrics against reg and returns the
// populated serverMetrics. promauto.With(reg) is used so that each call
// registers into the provided registry rather than the global default —
// this keeps unit tests hermetic.
func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	factory := promauto.With(reg)

	return &serverMetrics{
		queryRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raggate",
			Subsystem: "query",
			Name:      "requests_total",
			Help:      "Total number of /api/query requests completed, partitioned by outcome.",
		}, []string{"outcome"}),

		queryDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raggate",
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of /api/query requests, embedding call included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "raggate",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the server, partitioned by method, path, and status code.",
		}, []string{"method", "path", "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "raggate",
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

// httpMiddleware feeds the request-level counters and histograms for every
// request passing through the mux.
func (m *serverMetrics) httpMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		timer := prometheus.NewTimer(m.httpDurationSeconds.WithLabelValues(r.Method, r.URL.Path))
		next.ServeHTTP(rw, r)
		timer.ObserveDuration()

		m.httpRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rw.status)).Inc()
	})
}
