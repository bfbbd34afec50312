package embedder

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// DefaultDummyDim matches the native size of the default real model so
// indexes built in dummy mode have a familiar shape.
const DefaultDummyDim = 1536

// DummyClient produces deterministic embeddings without any provider:
// each token hashes to a signed dimension bucket, so texts sharing
// vocabulary end up with correlated vectors. Useful for offline
// development and tests; the vectors carry no real semantics beyond
// token overlap.
type DummyClient struct {
	dim  int
	seed uint64
}

// NewDummyClient builds a dummy client. dim <= 0 takes
// DefaultDummyDim; the seed perturbs the token-to-bucket mapping so
// distinct seeds yield unrelated vector spaces.
func NewDummyClient(dim int, seed int64) *DummyClient {
	if dim <= 0 {
		dim = DefaultDummyDim
	}
	return &DummyClient{dim: dim, seed: uint64(seed)}
}

// Embed never fails and ignores the context; it exists to satisfy the
// provider contract.
func (c *DummyClient) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, c.dim)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		s := h.Sum64() ^ (c.seed * 0x9e3779b97f4a7c15)
		idx := int(s % uint64(c.dim))
		if s&(1<<63) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	return vec, nil
}

// Dim reports the configured vector size.
func (c *DummyClient) Dim() int { return c.dim }

// tokenize lowercases and splits on anything that is not a letter or
// digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
