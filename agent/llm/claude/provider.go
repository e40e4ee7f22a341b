package claude

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/df07/blender-llm/agent/llm"
)

// Blender scripts for a fully keyframed scene routinely run a few
// hundred lines, so the default output budget is generous.
const defaultMaxTokens = 8192

// Provider adapts the Anthropic SDK to the llm.LLMProvider interface.
type Provider struct {
	client anthropic.Client
}

// NewProvider reads ANTHROPIC_API_KEY from the environment.
func NewProvider() (*Provider, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}
	return &Provider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

func (p *Provider) GenerateText(ctx context.Context, req *llm.GenerateRequest) (*llm.Response, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		block := anthropic.NewTextBlock(msg.Text)
		if msg.Role == llm.RoleAssistant {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens), // required by the API
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	// A script cut off mid-line would pass through undetected otherwise:
	// truncated Python often still contains every required component.
	if resp.StopReason == anthropic.StopReasonMaxTokens {
		return nil, fmt.Errorf("claude: response truncated at %d tokens", maxTokens)
	}

	return &llm.Response{
		Text:       text.String(),
		StopReason: string(resp.StopReason),
	}, nil
}

func (p *Provider) ListModels() []llm.ModelInfo {
	return []llm.ModelInfo{
		{
			ID:            "claude-sonnet-4-5-20250929",
			DisplayName:   "Claude Sonnet 4.5",
			Provider:      "claude",
			ContextWindow: 200000,
		},
		{
			ID:            "claude-haiku-4-5-20251001",
			DisplayName:   "Claude Haiku 4.5",
			Provider:      "claude",
			ContextWindow: 200000,
		},
	}
}

func (p *Provider) Name() string { return "claude" }
