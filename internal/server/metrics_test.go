package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeQuerier{payload: enoughPayload()}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	ct := w.Header().Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
}

func Test_Metrics_QueryCounterIncremented(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s := newTestServer(t, &fakeQuerier{payload: enoughPayload()}, func(cfg *Config) {
		cfg.Registry = reg
	})

	for range 3 {
		if w := postQuery(t, s, `{"query":"q"}`); w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
	}

	got := testutil.ToFloat64(s.metrics.queryRequestsTotal.WithLabelValues("enough"))
	if got != 3 {
		t.Errorf("query counter = %f, want 3", got)
	}
}

func Test_Metrics_ErrorOutcomeLabelled(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeQuerier{err: http.ErrHandlerTimeout}, nil)
	if w := postQuery(t, s, `{"query":"q"}`); w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	got := testutil.ToFloat64(s.metrics.queryRequestsTotal.WithLabelValues("error"))
	if got != 1 {
		t.Errorf("error counter = %f, want 1", got)
	}
}

func Test_Metrics_HTTPRequestsCounted(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeQuerier{payload: enoughPayload()}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	s.httpServer.Handler.ServeHTTP(httptest.NewRecorder(), req)

	got := testutil.ToFloat64(s.metrics.httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/health", "200"))
	if got != 1 {
		t.Errorf("http counter = %f, want 1", got)
	}
}
