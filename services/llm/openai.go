package llm

import (
	"context"
	"fmt"
	"log"
	"strings"

	"autodidact/models"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

type openAIClient struct {
	llm llms.Model
}

func newOpenAIClient(apiKey string) (*openAIClient, error) {
	model, err := openai.New(
		openai.WithModel("gpt-4o-mini"),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}
	return &openAIClient{llm: model}, nil
}

func (c *openAIClient) Invoke(ctx context.Context, systemPrompt string, history []models.Message) (string, error) {
	messageHistory := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, systemPrompt),
	}
	for _, msg := range history {
		msgType := schema.ChatMessageTypeAI
		if msg.Role == models.RoleLearner {
			msgType = schema.ChatMessageTypeHuman
		}
		messageHistory = append(messageHistory, llms.TextParts(msgType, msg.Content))
	}

	resp, err := c.llm.GenerateContent(ctx, messageHistory, llms.WithTemperature(0.7))
	if err != nil {
		log.Printf("[ERROR] OpenAI call failed: %v", err)
		return "", classifyError("openai", err)
	}
	if len(resp.Choices) == 0 {
		return "", &GenericError{Provider: "openai", Err: fmt.Errorf("no choices in response")}
	}

	return strings.TrimSpace(resp.Choices[0].Content), nil
}
