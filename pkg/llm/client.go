package llm

import (
	"context"

	"github.com/harun/nalar/pkg/history"
)

// ToolSchema describes one tool to the model: a unique name, a description
// and a JSON Schema object for its input.
type ToolSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Request carries everything a provider needs for one model step.
type Request struct {
	Messages     []history.Turn
	MaxTokens    int
	Tools        []ToolSchema
	SystemPrompt string
}

// TokenUsage reports provider-side token accounting for one call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the model's output for one step: an ordered sequence of content
// blocks (text, thinking and/or tool invocations).
type Response struct {
	Blocks []history.ContentBlock
	Usage  TokenUsage
}

// Client is the model client consumed by the turn loop. Implementations must
// honor ctx cancellation so the loop's owner can tear a run down.
type Client interface {
	Generate(ctx context.Context, req Request) (Response, error)
}
