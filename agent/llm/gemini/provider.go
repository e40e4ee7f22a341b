package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/df07/blender-llm/agent/llm"
)

// Provider implements the llm.LLMProvider interface for Google Gemini
type Provider struct {
	client *genai.Client
}

// NewProvider creates a new Gemini provider with the given API key
func NewProvider(ctx context.Context, apiKey string) (*Provider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Provider{client: client}, nil
}

// GenerateText generates a text response from Gemini
func (p *Provider) GenerateText(ctx context.Context, req *llm.GenerateRequest) (*llm.Response, error) {
	// Gemini has no separate system parameter; prepend the system prompt as
	// the first user message.
	messages := req.Messages
	if req.SystemPrompt != "" {
		messages = append([]llm.Message{{Role: llm.RoleUser, Text: req.SystemPrompt}}, messages...)
	}

	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := "user"
		if msg.Role == llm.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Text}},
		})
	}

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no response from Gemini")
	}

	candidate := resp.Candidates[0]
	var text string
	for _, part := range candidate.Content.Parts {
		text += part.Text
	}

	return &llm.Response{
		Text:       text,
		StopReason: string(candidate.FinishReason),
	}, nil
}

// ListModels returns the Gemini models the workflow is known to work with
func (p *Provider) ListModels() []llm.ModelInfo {
	return []llm.ModelInfo{
		{
			ID:            "gemini-2.5-flash",
			DisplayName:   "Gemini 2.5 Flash",
			Provider:      "gemini",
			ContextWindow: 1048576,
		},
		{
			ID:            "gemini-2.0-flash-001",
			DisplayName:   "Gemini 2.0 Flash",
			Provider:      "gemini",
			ContextWindow: 1048576,
		},
	}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "gemini"
}
