// Package llm defines the inference service contract used by the Axon
// runtime, the model-tier fallback policy, and the concrete providers.
package llm

import "context"

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolType represents the type of tool.
type ToolType string

const (
	ToolTypeFunction ToolType = "function"
)

// FunctionDef defines a function tool.
type FunctionDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters"` // JSON Schema
}

// Tool represents a tool declaration offered to the model.
type Tool struct {
	Type     ToolType    `json:"type"`
	Function FunctionDef `json:"function"`
}

// FunctionCall represents a call to a function tool.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string containing arguments
}

// ToolCall represents a request from the model to call a tool.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     ToolType     `json:"type"`
	Function FunctionCall `json:"function"`
}

// Message is a single unit of communication.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // Used for tool role messages
}

// Citation is a live web-grounding source attached to a response.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// GenerateRequest encapsulates one model turn.
type GenerateRequest struct {
	Model           string    `json:"model"`
	Messages        []Message `json:"messages"`
	Tools           []Tool    `json:"tools,omitempty"`
	EnableGrounding bool      `json:"enable_grounding,omitempty"`
	Temperature     float64   `json:"temperature,omitempty"`
}

// GenerateResult encapsulates the model's output for one turn.
type GenerateResult struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
	Usage     Usage      `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider is the inference service collaborator. Implementations must
// surface overload failures as errors carrying errors.CodeOverloaded so
// the fallback policy can act on them.
type Provider interface {
	// Generate sends one turn to the model and returns its response.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)

	// Embed converts text into a vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}
