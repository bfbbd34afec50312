package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	ragagent "github.com/jjellis/raggate/internal/agent"
	"github.com/jjellis/raggate/internal/embedder"
	"github.com/jjellis/raggate/internal/history"
	"github.com/jjellis/raggate/internal/rag"
)

// okHandler is a trivial downstream handler used by middleware tests.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeQuerier returns a canned payload or error.
type fakeQuerier struct {
	payload *ragagent.Payload
	err     error
	lastTop int
}

func (f *fakeQuerier) Handle(_ context.Context, query string, plan ragagent.Plan) (*ragagent.Payload, error) {
	f.lastTop = plan.TopK
	if f.err != nil {
		return nil, f.err
	}
	p := *f.payload
	p.Query = query
	return &p, nil
}

func enoughPayload() *ragagent.Payload {
	return &ragagent.Payload{
		Type: ragagent.PayloadType,
		Contexts: []rag.Context{
			{ID: "a", Text: "first", Score: 0.9},
		},
		Gating: ragagent.Gating{Status: ragagent.StatusEnough, TopScore: 0.9, MeanTopK: 0.9},
		Stats:  ragagent.Stats{TotalResults: 1, AvgScore: 0.9, SearchMethod: "hybrid"},
	}
}

// newTestServer builds a real Server via New, then swaps in the fake
// querier so handler tests don't need an index on disk.
func newTestServer(t *testing.T, fake *fakeQuerier, mutate func(*Config)) *Server {
	t.Helper()

	svc, err := embedder.New(&embedder.Config{Provider: "dummy", Dimensions: 8, Logger: testLogger()})
	if err != nil {
		t.Fatalf("embedder.New() error = %v", err)
	}
	a, err := ragagent.New(&ragagent.Config{Embedder: svc, Logger: testLogger()})
	if err != nil {
		t.Fatalf("agent.New() error = %v", err)
	}

	cfg := &Config{
		Logger:   testLogger(),
		Registry: prometheus.NewRegistry(),
		Plan:     ragagent.Plan{IndexDir: t.TempDir(), TopK: 5},
	}
	if mutate != nil {
		mutate(cfg)
	}
	s, err := New(a, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(s.stopRL)
	s.querier = fake
	return s
}

func postQuery(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	return w
}

func Test_HandleQuery_ReturnsPayload(t *testing.T) {
	t.Parallel()

	fake := &fakeQuerier{payload: enoughPayload()}
	s := newTestServer(t, fake, nil)

	w := postQuery(t, s, `{"query":"fruit dessert recipe"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var payload ragagent.Payload
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Query != "fruit dessert recipe" {
		t.Errorf("payload query = %q", payload.Query)
	}
	if payload.Gating.Status != ragagent.StatusEnough {
		t.Errorf("gating status = %q, want enough", payload.Gating.Status)
	}
	if fake.lastTop != 5 {
		t.Errorf("plan top_k = %d, want server default 5", fake.lastTop)
	}
}

func Test_HandleQuery_TopKOverride(t *testing.T) {
	t.Parallel()

	fake := &fakeQuerier{payload: enoughPayload()}
	s := newTestServer(t, fake, nil)

	if w := postQuery(t, s, `{"query":"q","top_k":2}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if fake.lastTop != 2 {
		t.Errorf("plan top_k = %d, want request override 2", fake.lastTop)
	}
}

func Test_HandleQuery_MissingQuery(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeQuerier{payload: enoughPayload()}, nil)
	if w := postQuery(t, s, `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if w := postQuery(t, s, `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 on invalid body", w.Code)
	}
}

func Test_HandleQuery_ErrorMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"missing index", fmt.Errorf("open: %w", rag.ErrNotFound), http.StatusServiceUnavailable},
		{"stale index", fmt.Errorf("dim: %w", rag.ErrDimensionMismatch), http.StatusConflict},
		{"bad plan", fmt.Errorf("plan: %w", rag.ErrConfiguration), http.StatusBadRequest},
		{"provider down", fmt.Errorf("embed: %w", rag.ErrProvider), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestServer(t, &fakeQuerier{err: tc.err}, nil)
			if w := postQuery(t, s, `{"query":"q"}`); w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func Test_HandleQuery_RecordsHistory(t *testing.T) {
	t.Parallel()

	log, err := history.Open(":memory:")
	if err != nil {
		t.Fatalf("history.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })

	s := newTestServer(t, &fakeQuerier{payload: enoughPayload()}, func(cfg *Config) {
		cfg.History = log
	})
	if w := postQuery(t, s, `{"query":"logged query"}`); w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	entries, err := log.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Query != "logged query" {
		t.Fatalf("history entries = %+v, want the handled query", entries)
	}
	if entries[0].Status != ragagent.StatusEnough {
		t.Errorf("history status = %q, want enough", entries[0].Status)
	}
}

func Test_HandleHealth(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeQuerier{payload: enoughPayload()}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status ok", body)
	}
}

func Test_HandleQuery_AuthEnforced(t *testing.T) {
	t.Parallel()

	s := newTestServer(t, &fakeQuerier{payload: enoughPayload()}, func(cfg *Config) {
		cfg.APIKey = "secret"
	})

	if w := postQuery(t, s, `{"query":"q"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewBufferString(`{"query":"q"}`))
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", w.Code)
	}
}
