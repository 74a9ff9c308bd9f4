package model

// ToolCall records one tool invocation inside an agent run.
// ResultPreview keeps at most the first 500 characters of the tool output.
type ToolCall struct {
	Tool          string         `json:"tool"`
	Input         map[string]any `json:"input"`
	ResultPreview string         `json:"result_preview"`
}

// Warning values carried on a terminal but non-error AgentRun.
const (
	WarningMaxTurnsExceeded = "max_turns_exceeded"
)

// Error codes carried on a failed AgentRun.
const (
	ErrMissingAPIKey = "missing_api_key"
	ErrAPIError      = "api_error"
)

// AgentRun is the result of answering one question, whether it was served by
// the router, the semantic cache, or the full agent loop.
type AgentRun struct {
	Answer           string     `json:"answer"`
	ToolCalls        []ToolCall `json:"tool_calls"`
	Insights         []string   `json:"insights"`
	Entities         []Entity   `json:"entities"`
	Model            string     `json:"model,omitempty"`
	TurnsUsed        int        `json:"turns_used"`
	Tier             int        `json:"tier,omitempty"`
	TierName         string     `json:"tier_name,omitempty"`
	Routed           bool       `json:"routed,omitempty"`
	Cached           bool       `json:"cached,omitempty"`
	Similarity       float64    `json:"similarity,omitempty"`
	OriginalQuestion string     `json:"original_question,omitempty"`
	Warning          string     `json:"warning,omitempty"`
	Err              string     `json:"error,omitempty"`
}

// ChatMessage is one prior conversation turn supplied by the caller.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
