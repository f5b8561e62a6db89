package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Config holds the OpenAI connection settings.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// Client generates Terraform through the OpenAI chat completion API.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// NewClient creates a configured client. The API key is mandatory;
// callers that have none should run without a client and rely on the
// template fallback.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		api:     openai.NewClient(cfg.APIKey),
		model:   model,
		timeout: cfg.Timeout,
	}, nil
}

// GenerateTerraform sends one chat completion request and returns the
// raw model response.
func (c *Client) GenerateTerraform(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}
