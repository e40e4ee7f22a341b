package llm

import "context"

// Role represents the role of a message in a conversation
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a provider-agnostic message in a conversation.
// The animation workflow only exchanges plain text with its models, so the
// message shape stays deliberately flat.
type Message struct {
	Role Role
	Text string
}

// ModelInfo provides metadata about an available model
type ModelInfo struct {
	ID            string // Unique identifier (e.g., "gemini-2.5-flash")
	DisplayName   string // User-friendly name (e.g., "Gemini 2.5 Flash")
	Provider      string // Provider name (e.g., "gemini", "claude")
	ContextWindow int    // Maximum context window in tokens
}

// GenerateRequest contains all parameters for generating LLM content
type GenerateRequest struct {
	Model        string    // Model ID to use
	SystemPrompt string    // System prompt (separate from conversation)
	Messages     []Message // Conversation history
	MaxTokens    int       // Response token cap; providers substitute a default when 0
}

// Response represents the LLM's response to a generation request
type Response struct {
	Text       string
	StopReason string // "stop", "max_tokens", etc.
}

// LLMProvider defines the interface that all LLM providers must implement
type LLMProvider interface {
	// GenerateText generates a text response from the LLM
	GenerateText(ctx context.Context, req *GenerateRequest) (*Response, error)

	// ListModels returns the models available from this provider
	ListModels() []ModelInfo

	// Name returns the provider's name (e.g., "gemini", "claude")
	Name() string
}
