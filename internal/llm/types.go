package llm

import "context"

// Provider answers chat completions for the relevancy and summary stages.
// Implementations report upstream failures as apperr.KindLLM errors and
// return ctx errors unchanged in the chain, so stage deadlines map to 504.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name identifies the backend in logs and metrics ("azure", "openai", "ollama").
	Name() string
}

// Role represents the role of a message sender in a conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest contains the parameters for an LLM completion request.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	TopP        float64
	JSONMode    bool
}

// CompletionResponse contains the result of an LLM completion request.
type CompletionResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
	Model        string
	FinishReason string
}

// TotalTokens returns prompt plus completion tokens.
func (r *CompletionResponse) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}
