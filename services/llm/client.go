package llm

import (
	"context"
	"fmt"

	"autodidact/models"
)

// Client is the model-call capability handed to every engine handler.
// Implementations block; timeout and retry policy live with the caller's
// context, not here.
type Client interface {
	Invoke(ctx context.Context, systemPrompt string, history []models.Message) (string, error)
}

// NewClient builds the configured provider backend.
func NewClient(provider, openAIKey, anthropicKey string) (Client, error) {
	switch provider {
	case "openai", "openrouter":
		return newOpenAIClient(openAIKey)
	case "anthropic":
		return newAnthropicClient(anthropicKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}
