package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/joho/godotenv"

	"github.com/shuangxiangkan/PyCTrace/internal/config"
)

// Messenger abstracts the model call so enrichment is testable offline.
type Messenger interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ClaudeClient talks to the Anthropic API.
type ClaudeClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewClaudeClient builds a client from the environment. A .env file in the
// working directory is honored. ANTHROPIC_API_KEY takes precedence over the
// legacy CLAUDE_API_KEY name.
func NewClaudeClient(cfg config.LLMConfig) (*ClaudeClient, error) {
	_ = godotenv.Load()

	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		key = os.Getenv("CLAUDE_API_KEY")
	}
	if key == "" {
		return nil, fmt.Errorf("llm: no API key; set ANTHROPIC_API_KEY or add it to .env")
	}

	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &ClaudeClient{
		client:    anthropic.NewClient(option.WithAPIKey(key)),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}, nil
}

// Complete sends one prompt and concatenates the text blocks of the reply.
func (c *ClaudeClient) Complete(ctx context.Context, system, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: message request failed: %w", err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("llm: empty response")
	}
	return sb.String(), nil
}
