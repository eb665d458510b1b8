package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"autodidact/models"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type anthropicClient struct {
	client *anthropic.Client
}

func newAnthropicClient(apiKey string) (*anthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &anthropicClient{client: &client}, nil
}

func (c *anthropicClient) Invoke(ctx context.Context, systemPrompt string, history []models.Message) (string, error) {
	anthropicMessages := make([]anthropic.MessageParam, 0, len(history))
	for _, msg := range history {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == models.RoleLearner {
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(block))
		} else {
			anthropicMessages = append(anthropicMessages, anthropic.NewAssistantMessage(block))
		}
	}
	if len(anthropicMessages) == 0 {
		anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(anthropic.NewTextBlock("Begin.")))
	}

	response, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.ModelClaude4Sonnet20250514,
		MaxTokens: 1024,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  anthropicMessages,
	})
	if err != nil {
		log.Printf("[ERROR] Anthropic call failed: %v", err)
		return "", classifyAnthropicError(err)
	}

	var content strings.Builder
	for _, block := range response.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(text.Text)
		}
	}
	return strings.TrimSpace(content.String()), nil
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &AuthError{Provider: "anthropic", Err: err}
		case http.StatusTooManyRequests:
			return &RateLimitError{Provider: "anthropic", Err: err}
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return &TimeoutError{Provider: "anthropic", Err: err}
		}
	}
	return classifyError("anthropic", err)
}
