package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/ameliahart/conversational_memory/pkg/logger"
	"github.com/ameliahart/conversational_memory/pkg/metrics"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-3-small"

const requestTimeout = 15 * time.Second

// OpenAIClient implements Client against the OpenAI embeddings API.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	log     logger.Logger
	metrics *metrics.Metrics // optional
}

// NewOpenAIClient creates a client for the given API key and model.
// m may be nil when latency should not be recorded.
func NewOpenAIClient(apiKey, model string, log logger.Logger, m *metrics.Metrics) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	return &OpenAIClient{
		client:  &client,
		model:   model,
		log:     log,
		metrics: m,
	}, nil
}

// Embed returns the embedding vector for the given text. Provider failures
// are wrapped in ErrUnavailable so callers can degrade gracefully.
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model: openai.EmbeddingModel(c.model),
	})
	if c.metrics != nil {
		metrics.ObserveDuration(c.metrics.EmbeddingHistogram, start)
	}
	if err != nil {
		c.log.Warn("embedding request failed",
			logger.StringField("model", c.model),
			logger.ErrorField(err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrUnavailable)
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return vec, nil
}
