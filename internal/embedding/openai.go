package embedding

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/DreamCats/kbindex/internal/config"
)

// OpenAIClient implements Client on top of the OpenAI embeddings API.
type OpenAIClient struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIClient creates a new OpenAI embedding client. The API key
// comes from the config, falling back to the OPENAI_API_KEY
// environment variable.
func NewOpenAIClient(cfg *config.EmbeddingConfig) (*OpenAIClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai api_key is required (set embedding.api_key or OPENAI_API_KEY)")
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		switch model {
		case "text-embedding-3-large":
			dimensions = 3072
		default:
			dimensions = 1536
		}
	}

	return &OpenAIClient{
		client:     openai.NewClient(apiKey),
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Embed generates an embedding for a single text
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// Map by response index; the API does not guarantee order.
	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("invalid embedding index: %d", data.Index)
		}
		vec := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vec[i] = float32(v)
		}
		embeddings[data.Index] = vec
	}

	return embeddings, nil
}

// Dimensions returns the dimension of the embeddings
func (c *OpenAIClient) Dimensions() int {
	return c.dimensions
}
