package embedder

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/jjellis/raggate/internal/rag"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-3-small"

// modelDims maps known embedding models to their native dimensions.
var modelDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIClient embeds text via an OpenAI-compatible embeddings API.
type OpenAIClient struct {
	api   *openai.Client
	model string
	dims  int
}

// NewOpenAIClient builds a client for the given credentials. baseURL
// selects an OpenAI-compatible gateway when non-empty; dims requests a
// reduced output dimension on models that support it (0 keeps the
// model's native size).
func NewOpenAIClient(apiKey, baseURL, model string, dims int) *OpenAIClient {
	if model == "" {
		model = DefaultModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{
		api:   openai.NewClientWithConfig(cfg),
		model: model,
		dims:  dims,
	}
}

// Embed requests the embedding for one text. Provider failures are
// wrapped as ErrProvider so callers can distinguish them from local
// errors.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.model),
	}
	if c.dims > 0 {
		req.Dimensions = c.dims
	}

	resp, err := c.api.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings call: %w: %v", rag.ErrProvider, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embeddings call returned no data: %w", rag.ErrProvider)
	}
	return resp.Data[0].Embedding, nil
}

// Dim reports the expected vector size: the configured reduction if
// set, the model's native size if known, and 0 otherwise (pinned by
// the first response).
func (c *OpenAIClient) Dim() int {
	if c.dims > 0 {
		return c.dims
	}
	return modelDims[c.model]
}
