// Package embedder converts text into L2-normalized fixed-dimension
// vectors. A Service wraps a provider client with batching, per-item
// retry with exponential backoff, pacing, and normalization; when no
// provider is configured it degrades to a deterministic dummy client
// so indexing and retrieval keep working offline.
package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jjellis/raggate/internal/rag"
)

// Mode identifies which kind of client backs a Service.
type Mode string

const (
	// ModeReal means a remote embedding provider is in use.
	ModeReal Mode = "real"

	// ModeDummy means the deterministic offline client is in use.
	// Dummy vectors are only meaningful relative to each other.
	ModeDummy Mode = "dummy"
)

// Defaults for the retry and batching policy.
const (
	DefaultBatchSize      = 128
	DefaultMaxRetries     = 4
	defaultRetryBase      = 500 * time.Millisecond
	defaultAttemptTimeout = 30 * time.Second

	// normEps guards against division by zero when normalizing.
	normEps = 1e-12
)

// Client embeds a single text. Implementations must be safe for
// concurrent use.
type Client interface {
	// Embed returns the raw (unnormalized) embedding for one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dim reports the vector dimensionality, or 0 when it is only
	// known after the first provider response.
	Dim() int
}

// ServiceConfig controls a Service. Zero values take the defaults
// above; AttemptTimeout <= 0 disables the per-attempt deadline.
type ServiceConfig struct {
	// Client is the provider client. Required.
	Client Client

	// Mode labels the client for observability.
	Mode Mode

	// BatchSize is the number of texts grouped per batch (min 1).
	BatchSize int

	// MaxRetries is the per-text attempt budget against the provider.
	MaxRetries int

	// RetryBase is the first backoff delay; it doubles per attempt.
	RetryBase time.Duration

	// AttemptTimeout bounds each individual provider call.
	AttemptTimeout time.Duration

	// RateRPS paces provider calls; 0 means unpaced.
	RateRPS float64

	// Logger receives retry warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Service is the embedding pipeline entry point. The vector dimension
// is fixed for the lifetime of a Service: either known up front from
// the client or pinned by the first successful embedding.
type Service struct {
	client         Client
	mode           Mode
	batchSize      int
	maxRetries     int
	retryBase      time.Duration
	attemptTimeout time.Duration
	limiter        *rate.Limiter
	log            *slog.Logger

	mu  sync.Mutex
	dim int // guarded by mu; pinned at first success when the client reports 0
}

// NewService wires a Service around an existing client. Most callers
// should use New, which also resolves the client from configuration.
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg == nil || cfg.Client == nil {
		return nil, fmt.Errorf("embedder: client is required: %w", rag.ErrConfiguration)
	}
	s := &Service{
		client:         cfg.Client,
		mode:           cfg.Mode,
		batchSize:      cfg.BatchSize,
		maxRetries:     cfg.MaxRetries,
		retryBase:      cfg.RetryBase,
		attemptTimeout: cfg.AttemptTimeout,
		log:            cfg.Logger,
		dim:            cfg.Client.Dim(),
	}
	if s.mode == "" {
		s.mode = ModeReal
	}
	if s.batchSize < 1 {
		s.batchSize = DefaultBatchSize
	}
	if s.maxRetries < 1 {
		s.maxRetries = DefaultMaxRetries
	}
	if s.retryBase <= 0 {
		s.retryBase = defaultRetryBase
	}
	if s.attemptTimeout == 0 {
		s.attemptTimeout = defaultAttemptTimeout
	}
	if cfg.RateRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateRPS), 1)
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s, nil
}

// Mode reports whether the service talks to a real provider or runs in
// dummy mode.
func (s *Service) Mode() Mode { return s.mode }

// Dim reports the vector dimensionality, or 0 if nothing has been
// embedded yet and the client cannot report it up front.
func (s *Service) Dim() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dim
}

// Encode embeds texts in batches and returns one unit vector per input
// text, in input order. A nil or empty input yields an empty result.
// A text whose retry budget is exhausted fails the whole call — no
// partial results are returned.
func (s *Service) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := s.encodeBatch(ctx, texts[start:end], start)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// encodeBatch embeds one batch item by item so that retry isolation
// stays per text.
func (s *Service) encodeBatch(ctx context.Context, batch []string, offset int) ([][]float32, error) {
	out := make([][]float32, 0, len(batch))
	for i, text := range batch {
		vec, err := s.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedder: text %d: %w", offset+i, err)
		}
		if err := s.checkDim(len(vec)); err != nil {
			return nil, fmt.Errorf("embedder: text %d: %w", offset+i, err)
		}
		out = append(out, normalize(vec))
	}
	return out, nil
}

// checkDim pins the service dimension on the first successful embedding
// and rejects vectors that disagree with it. Encode is called from
// concurrent request handlers, so the pin happens under the lock.
func (s *Service) checkDim(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dim == 0 {
		s.dim = n
	}
	if n != s.dim {
		return fmt.Errorf("provider returned dimension %d, expected %d: %w", n, s.dim, rag.ErrProvider)
	}
	return nil
}

// embedOne runs the retry loop for a single text: up to maxRetries
// attempts with exponential backoff (retryBase doubling per attempt),
// aborting early when the context is cancelled.
func (s *Service) embedOne(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.retryBase << (attempt - 1)
			s.log.Warn("embedding attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.Any("error", lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		vec, err := s.embedAttempt(ctx, text)
		if err == nil {
			return vec, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", s.maxRetries, lastErr)
}

// embedAttempt is one provider call under the per-attempt deadline.
func (s *Service) embedAttempt(ctx context.Context, text string) ([]float32, error) {
	if s.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.attemptTimeout)
		defer cancel()
	}
	return s.client.Embed(ctx, text)
}

// normalize scales vec to unit L2 length in place. An all-zero vector
// stays all-zero (the norm is clamped to normEps, never zero).
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm < normEps {
		norm = normEps
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
