package agent

import (
	"context"
	"encoding/json"
)

// Block roles and types mirror the Anthropic messages wire shapes without
// binding the loop to the SDK; the llmclient adapter does the conversion.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"

	StopEndTurn = "end_turn"
	StopToolUse = "tool_use"
)

// Block is one content block inside a conversation message.
type Block struct {
	Type      string
	Text      string
	ID        string          // tool_use id
	Name      string          // tool name
	Input     json.RawMessage // tool input
	ToolUseID string          // tool_result correlation id
	Content   string          // tool_result payload
	IsError   bool
}

// Message is one conversation turn.
type Message struct {
	Role    string
	Content []Block
}

// ToolSpec is a tool advertised to the model.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Response is one model completion.
type Response struct {
	StopReason string
	Content    []Block
}

// LLM abstracts the chat-with-tools endpoint for testability.
type LLM interface {
	CreateMessage(ctx context.Context, model, system string, tools []ToolSpec, messages []Message) (*Response, error)
}
