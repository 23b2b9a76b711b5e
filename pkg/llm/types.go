// Package llm wraps an OpenAI-compatible chat/function-calling
// endpoint with rate limiting, retry and token accounting.
package llm

// Message is one entry in the reasoning window. Ordering matters: the
// first message is always the system prompt, the second the original
// user task.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall is a function invocation requested by the model. Arguments
// is the raw JSON object string as returned on the wire.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition is the JSON-schema function definition advertised to
// the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Usage mirrors the provider's usage object.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the outcome of one chat turn. Exactly one of Content or
// ToolCalls is typically populated.
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	Usage        Usage
	FinishReason string
}

// Options tune a single chat call.
type Options struct {
	Temperature float64
	MaxTokens   int
	// ToolChoice is "auto", "none" or "required". Empty means "auto"
	// when tools are supplied.
	ToolChoice string
}
