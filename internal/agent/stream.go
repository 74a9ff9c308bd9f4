package agent

import (
	"github.com/google/uuid"

	"github.com/kdt-ai/neo-backend/internal/model"
)

// Event types emitted by the streaming run, in issue order.
const (
	EventStatus     = "status"
	EventTool       = "tool"
	EventToolResult = "tool_result"
	EventComplete   = "complete"
)

// Event is one progress notification from a streaming agent run. The HTTP
// layer serializes events as SSE.
type Event struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Message string          `json:"message,omitempty"`
	Tool    string          `json:"tool,omitempty"`
	Rows    int             `json:"rows,omitempty"`
	Data    *model.AgentRun `json:"data,omitempty"`
}

func statusEvent(message string) Event {
	return Event{Type: EventStatus, ID: uuid.NewString(), Message: message}
}

func toolEvent(tool, message string) Event {
	return Event{Type: EventTool, ID: uuid.NewString(), Tool: tool, Message: message}
}

func toolResultEvent(tool string, rows int) Event {
	return Event{Type: EventToolResult, ID: uuid.NewString(), Tool: tool, Rows: rows}
}

func completeEvent(run *model.AgentRun) Event {
	return Event{Type: EventComplete, ID: uuid.NewString(), Data: run}
}
