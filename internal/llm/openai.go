// Package llm provides the chat-model helpers used during retrieval
// and ingestion: query expansion and chart classification. Both degrade
// gracefully; callers treat any error as "skip this step".
package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/DreamCats/kbindex/internal/config"
)

const expansionSystemPrompt = "You are a query expansion assistant. " +
	"Generate 3 short, keyword-focused variations of the user's query " +
	"to help find relevant information in a document database. " +
	"Return only the 3 variations separated by newlines."

// OpenAIClient talks to the OpenAI chat API for query expansion and
// vision-based chart classification.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a chat client. The API key comes from the
// config, falling back to OPENAI_API_KEY.
func NewOpenAIClient(cfg *config.LLMConfig) (*OpenAIClient, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("llm api_key is required (set llm.api_key or OPENAI_API_KEY)")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// ExpandQuery returns up to three short keyword-focused variants of the
// query.
func (c *OpenAIClient) ExpandQuery(ctx context.Context, query string) ([]string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: expansionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		MaxTokens:   60,
		Temperature: 0.5,
	})
	if err != nil {
		return nil, fmt.Errorf("query expansion request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("query expansion returned no choices")
	}

	var variants []string
	for _, line := range strings.Split(resp.Choices[0].Message.Content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		variants = append(variants, line)
		if len(variants) == 3 {
			break
		}
	}
	return variants, nil
}

// IsChart asks the vision model whether the image is a chart, graph or
// diagram.
func (c *OpenAIClient) IsChart(ctx context.Context, image []byte, captionHint string) (bool, error) {
	if len(image) == 0 {
		return false, fmt.Errorf("empty image payload")
	}

	prompt := "Is this a chart, graph, or diagram? Reply YES or NO."
	if captionHint != "" {
		prompt = fmt.Sprintf("Caption: %s\n%s", captionHint, prompt)
	}

	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type:     openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
					},
				},
			},
		},
		MaxTokens: 10,
	})
	if err != nil {
		return false, fmt.Errorf("chart classification request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return false, fmt.Errorf("chart classification returned no choices")
	}

	answer := strings.ToUpper(strings.TrimSpace(resp.Choices[0].Message.Content))
	return strings.Contains(answer, "YES"), nil
}
