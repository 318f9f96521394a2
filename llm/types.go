package llm

import "context"

// Backend is the interface for language model backends.
type Backend interface {
	// Chat sends a transcript and returns the model's next turn. A
	// backend that cannot serve the request returns a fatal error, never
	// a partial response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
}

// ChatRequest is one round-trip to a backend.
type ChatRequest struct {
	// Messages is the full transcript, in order.
	Messages []Message

	// Tools are the definitions of the tools the model may call.
	Tools []ToolSchema

	// Model overrides the client's default model when non-empty.
	Model string

	// JSONMode forces the model to answer with a single JSON object.
	JSONMode bool
}

// Message is one entry of the transcript.
type Message struct {
	Role    Role
	Content string

	// ToolCallID identifies which requested call a tool-role message
	// answers. Set only on tool messages.
	ToolCallID string

	// IsError marks a tool-role message as a failed execution.
	IsError bool

	// ToolCalls records the calls an assistant message requested. Set
	// only on assistant messages that requested them.
	ToolCalls []ToolCall
}

// Role identifies the message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	// ID is the backend's identifier for this call, echoed back in the
	// matching tool result.
	ID string

	// Name is the tool being called.
	Name string

	// Arguments are the parameters passed to the tool.
	Arguments map[string]any
}

// ChatResponse is the model's next turn: free text, or requested tool
// calls, or both.
type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall

	// Token counts as reported by the backend.
	InputTokens  int
	OutputTokens int

	// StopReason indicates why generation stopped.
	StopReason StopReason
}

// StopReason indicates why the model stopped generating.
type StopReason string

const (
	StopReasonEnd     StopReason = "end_turn"
	StopReasonToolUse StopReason = "tool_use"
	StopReasonLength  StopReason = "max_tokens"
)

// ToolSchema describes a tool to the backend.
type ToolSchema struct {
	// Name of the tool
	Name string `json:"name"`

	// Description of what the tool does
	Description string `json:"description"`

	// InputSchema is the JSON Schema for parameters
	InputSchema map[string]any `json:"input_schema"`
}
