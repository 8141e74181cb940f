package agent

import (
	"context"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements Provider using OpenAI or any compatible endpoint
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI provider. PIXELLENS_OPENAI_BASE_URL
// points it at a compatible gateway.
func NewOpenAIProvider(model string) (*OpenAIProvider, error) {
	apiKey := envKey("PIXELLENS_OPENAI_KEY", "OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("PIXELLENS_OPENAI_KEY or OPENAI_API_KEY environment variable required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if base := os.Getenv("PIXELLENS_OPENAI_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

func (p *OpenAIProvider) Name() string { return "openai/" + p.model }

func (p *OpenAIProvider) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		MaxTokens:   1024,
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty response from OpenAI")
	}
	return resp.Choices[0].Message.Content, nil
}
