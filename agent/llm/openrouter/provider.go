package openrouter

import (
	"context"
	"fmt"
	"os"

	"github.com/revrost/go-openrouter"

	"github.com/df07/blender-llm/agent/llm"
)

// Provider implements the llm.LLMProvider interface for OpenRouter
type Provider struct {
	client *openrouter.Client
}

// NewProvider creates a new OpenRouter provider with the given API key
func NewProvider(apiKey string) (*Provider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENROUTER_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENROUTER_API_KEY not provided")
		}
	}

	client := openrouter.NewClient(apiKey)
	return &Provider{client: client}, nil
}

// GenerateText generates a text response via OpenRouter
func (p *Provider) GenerateText(ctx context.Context, req *llm.GenerateRequest) (*llm.Response, error) {
	messages := make([]openrouter.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openrouter.SystemMessage(req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		messages = append(messages, openrouter.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: openrouter.Content{Text: msg.Text},
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openrouter.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenRouter API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0]
	return &llm.Response{
		Text:       choice.Message.Content.Text,
		StopReason: string(choice.FinishReason),
	}, nil
}

// ListModels returns a curated list of models available via OpenRouter.
// Anthropic and Google models are excluded since direct providers exist.
func (p *Provider) ListModels() []llm.ModelInfo {
	return []llm.ModelInfo{
		{
			ID:            "openai/gpt-5.1",
			DisplayName:   "GPT-5.1",
			Provider:      "openrouter",
			ContextWindow: 400000,
		},
		{
			ID:            "meta-llama/llama-4-maverick",
			DisplayName:   "Llama 4 Maverick",
			Provider:      "openrouter",
			ContextWindow: 1048576,
		},
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "openrouter"
}
