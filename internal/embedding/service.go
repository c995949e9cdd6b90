package embedding

import (
	"context"
	"fmt"

	"github.com/DreamCats/kbindex/internal/config"
)

// Service provides embedding generation functionality. It wraps a
// provider client with input truncation and batching so callers never
// have to think about provider limits.
type Service struct {
	cfg    *config.EmbeddingConfig
	client Client
}

// Client is the interface for embedding API clients
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// NewService creates a new embedding service
func NewService(cfg *config.EmbeddingConfig) (*Service, error) {
	var client Client
	var err error

	switch cfg.Provider {
	case "openai":
		client, err = NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	return &Service{cfg: cfg, client: client}, nil
}

// NewServiceWithClient wires a service around an explicit client.
func NewServiceWithClient(cfg *config.EmbeddingConfig, client Client) *Service {
	return &Service{cfg: cfg, client: client}
}

// Embed generates an embedding for a single text
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	return s.client.Embed(ctx, s.truncate(text))
}

// EmbedBatch generates embeddings for multiple texts, splitting into
// provider-sized batches. Empty texts embed as zero vectors so the
// result always lines up with the input.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	validTexts := make([]string, 0, len(texts))
	validIndices := make([]int, 0, len(texts))
	for i, text := range texts {
		if text != "" {
			validTexts = append(validTexts, s.truncate(text))
			validIndices = append(validIndices, i)
		}
	}

	results := make([][]float32, len(texts))

	batchSize := s.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	for i := 0; i < len(validTexts); i += batchSize {
		end := i + batchSize
		if end > len(validTexts) {
			end = len(validTexts)
		}

		batch := validTexts[i:end]
		embeddings, err := s.client.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", i, end, err)
		}
		if len(embeddings) != len(batch) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(batch), len(embeddings))
		}

		for j, emb := range embeddings {
			results[validIndices[i+j]] = emb
		}
	}

	for i := range results {
		if results[i] == nil {
			results[i] = make([]float32, s.Dimensions())
		}
	}

	return results, nil
}

// Dimensions returns the dimension of the embeddings
func (s *Service) Dimensions() int {
	return s.client.Dimensions()
}

// truncate caps text at the configured character limit, respecting rune
// boundaries. Provider APIs reject over-long inputs outright.
func (s *Service) truncate(text string) string {
	max := s.cfg.MaxChars
	if max <= 0 {
		max = 8000
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
