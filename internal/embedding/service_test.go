package embedding

import (
	"context"
	"strings"
	"testing"

	"github.com/DreamCats/kbindex/internal/config"
)

// recordingClient captures the texts the service hands to the provider.
type recordingClient struct {
	dims    int
	batches [][]string
}

func (c *recordingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	c.batches = append(c.batches, []string{text})
	return make([]float32, c.dims), nil
}

func (c *recordingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	batch := make([]string, len(texts))
	copy(batch, texts)
	c.batches = append(c.batches, batch)
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = make([]float32, c.dims)
	}
	return out, nil
}

func (c *recordingClient) Dimensions() int {
	return c.dims
}

func TestEmbedTruncation(t *testing.T) {
	client := &recordingClient{dims: 4}
	svc := NewServiceWithClient(&config.EmbeddingConfig{MaxChars: 10, BatchSize: 20}, client)

	_, err := svc.Embed(context.Background(), strings.Repeat("x", 25))
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	if len(client.batches) != 1 || len(client.batches[0]) != 1 {
		t.Fatalf("expected one single-item batch, got %v", client.batches)
	}
	if got := len(client.batches[0][0]); got != 10 {
		t.Errorf("expected truncation to 10 chars, got %d", got)
	}
}

func TestEmbedTruncationRuneSafe(t *testing.T) {
	client := &recordingClient{dims: 4}
	svc := NewServiceWithClient(&config.EmbeddingConfig{MaxChars: 3, BatchSize: 20}, client)

	_, err := svc.Embed(context.Background(), "日本語のテキスト")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	sent := client.batches[0][0]
	if sent != "日本語" {
		t.Errorf("expected rune-safe truncation to %q, got %q", "日本語", sent)
	}
}

func TestEmbedEmptyText(t *testing.T) {
	svc := NewServiceWithClient(&config.EmbeddingConfig{}, &recordingClient{dims: 4})
	if _, err := svc.Embed(context.Background(), ""); err == nil {
		t.Error("expected error for empty text")
	}
}

func TestEmbedBatchSplitting(t *testing.T) {
	client := &recordingClient{dims: 4}
	svc := NewServiceWithClient(&config.EmbeddingConfig{BatchSize: 2}, client)

	texts := []string{"a", "b", "c", "d", "e"}
	results, err := svc.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}

	if len(results) != len(texts) {
		t.Fatalf("expected %d results, got %d", len(texts), len(results))
	}
	if len(client.batches) != 3 {
		t.Errorf("expected 3 batches of size <= 2, got %d", len(client.batches))
	}
	for i, batch := range client.batches {
		if len(batch) > 2 {
			t.Errorf("batch %d exceeds batch size: %d items", i, len(batch))
		}
	}
}

func TestEmbedBatchEmptyTextsGetZeroVectors(t *testing.T) {
	client := &recordingClient{dims: 4}
	svc := NewServiceWithClient(&config.EmbeddingConfig{BatchSize: 20}, client)

	results, err := svc.EmbedBatch(context.Background(), []string{"hello", "", "world"})
	if err != nil {
		t.Fatalf("EmbedBatch() error: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if len(results[1]) != 4 {
		t.Errorf("expected zero vector of dims 4 for empty text, got len %d", len(results[1]))
	}
	for _, v := range results[1] {
		if v != 0 {
			t.Errorf("expected zero vector for empty text, got %v", results[1])
			break
		}
	}
	if len(client.batches) != 1 || len(client.batches[0]) != 2 {
		t.Errorf("expected provider to only see 2 non-empty texts, got %v", client.batches)
	}
}
