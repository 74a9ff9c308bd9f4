// Package agent runs the bounded multi-turn LLM conversation that answers
// Tier 3 questions with the fixed tool catalog, after consulting the router
// and the semantic response cache.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kdt-ai/neo-backend/internal/model"
	"github.com/kdt-ai/neo-backend/internal/semcache"
)

const (
	// DefaultMaxTurns bounds the tool-use loop when the caller does not.
	DefaultMaxTurns = 25

	resultPreviewLen = 500

	maxTurnsAnswer      = "I've reached the maximum number of analysis steps. Here's what I found so far based on my queries."
	notConfiguredAnswer = "The analyst agent is not configured. Please set ANTHROPIC_API_KEY."
)

// QuestionRouter classifies questions before the LLM is involved.
type QuestionRouter interface {
	Route(ctx context.Context, question string) *model.TierResult
}

// ResponseCache is the semantic answer cache consulted for Tier 3 questions.
type ResponseCache interface {
	Lookup(ctx context.Context, question string) (*semcache.Entry, bool)
	Save(ctx context.Context, question, answer string, toolCalls []model.ToolCall, insights []string, entities []model.Entity)
}

// Agent composes router, cache, and LLM loop.
type Agent struct {
	llm      LLM
	tools    *Registry
	router   QuestionRouter
	cache    ResponseCache
	model    string
	maxTurns int
}

// Config wires an Agent. LLM may be nil when no API key is configured; the
// agent then answers with a canned configuration notice. Router and Cache may
// be nil to disable their pre-flight steps.
type Config struct {
	LLM      LLM
	Tools    *Registry
	Router   QuestionRouter
	Cache    ResponseCache
	Model    string
	MaxTurns int
}

// New creates an Agent.
func New(cfg Config) *Agent {
	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Agent{
		llm:      cfg.LLM,
		tools:    cfg.Tools,
		router:   cfg.Router,
		cache:    cfg.Cache,
		model:    cfg.Model,
		maxTurns: maxTurns,
	}
}

// Options tune one run.
type Options struct {
	Model      string
	MaxTurns   int
	History    []model.ChatMessage
	SkipCache  bool
	SkipRouter bool
}

// Run answers a question. Tier 1/2 questions return straight from the
// router; cached Tier 3 questions return from the semantic cache; the rest
// go through the tool-use loop.
func (a *Agent) Run(ctx context.Context, question string, opts Options) *model.AgentRun {
	return normalizeRun(a.run(ctx, question, opts, nil))
}

// normalizeRun replaces nil list fields so responses always carry arrays.
func normalizeRun(run *model.AgentRun) *model.AgentRun {
	if run == nil {
		return nil
	}
	if run.ToolCalls == nil {
		run.ToolCalls = []model.ToolCall{}
	}
	if run.Insights == nil {
		run.Insights = []string{}
	}
	if run.Entities == nil {
		run.Entities = []model.Entity{}
	}
	return run
}

// RunStream is Run with progress events. The returned channel is closed
// after the complete event.
func (a *Agent) RunStream(ctx context.Context, question string, opts Options) <-chan Event {
	events := make(chan Event, 16)
	go func() {
		defer close(events)
		emit := func(e Event) {
			select {
			case events <- e:
			case <-ctx.Done():
			}
		}
		run := normalizeRun(a.run(ctx, question, opts, emit))
		if run != nil {
			emit(completeEvent(run))
		}
	}()
	return events
}

// run is the shared implementation; emit is nil for non-streaming runs.
func (a *Agent) run(ctx context.Context, question string, opts Options, emit func(Event)) *model.AgentRun {
	notify := func(e Event) {
		if emit != nil {
			emit(e)
		}
	}

	followUp := len(opts.History) > 0
	var hints *model.RoutingHints

	// Step 1: router. Tier 1/2 answers skip the LLM entirely.
	if a.router != nil && !opts.SkipRouter && !followUp {
		notify(statusEvent("Checking if I can answer instantly..."))
		routed := a.router.Route(ctx, question)
		if !routed.NeedsAgent {
			return &model.AgentRun{
				Answer:    routed.Answer,
				ToolCalls: []model.ToolCall{},
				Insights:  []string{},
				Entities:  routed.Entities,
				TurnsUsed: 0,
				Tier:      routed.Tier,
				TierName:  routed.TierName,
				Routed:    true,
			}
		}
		hints = routed.Hints
	}

	// Step 2: semantic cache. Follow-up turns always go live.
	if a.cache != nil && !opts.SkipCache && !followUp {
		notify(statusEvent("Checking memory for similar questions..."))
		if entry, ok := a.cache.Lookup(ctx, question); ok {
			return &model.AgentRun{
				Answer:           entry.Answer,
				ToolCalls:        entry.ToolCalls,
				Insights:         entry.Insights,
				Entities:         entry.Entities,
				TurnsUsed:        0,
				Cached:           true,
				Similarity:       entry.Similarity,
				OriginalQuestion: entry.OriginalQuestion,
			}
		}
	}

	// Step 3: the full loop.
	notify(statusEvent("Starting analysis..."))

	if a.llm == nil {
		return &model.AgentRun{
			Answer:    notConfiguredAnswer,
			ToolCalls: []model.ToolCall{},
			Insights:  []string{},
			Entities:  []model.Entity{},
			Err:       model.ErrMissingAPIKey,
		}
	}

	modelID := opts.Model
	if modelID == "" {
		modelID = a.model
	}
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = a.maxTurns
	}

	messages := historyMessages(opts.History)
	messages = append(messages, Message{
		Role:    RoleUser,
		Content: []Block{{Type: BlockText, Text: userContent(question, hints)}},
	})

	st := &RunState{}
	toolCalls := []model.ToolCall{}
	turnsUsed := 0

	for turnsUsed < maxTurns {
		turnsUsed++
		notify(statusEvent(fmt.Sprintf("Thinking... (step %d)", turnsUsed)))

		resp, err := a.llm.CreateMessage(ctx, modelID, systemPrompt, a.tools.Specs(), messages)
		if err != nil {
			slog.Error("[AGENT] LLM call failed", "turn", turnsUsed, "error", err)
			return &model.AgentRun{
				Answer:    fmt.Sprintf("API error: %v", err),
				ToolCalls: toolCalls,
				Insights:  st.Insights,
				Entities:  model.DedupeEntities(st.Entities),
				Model:     modelID,
				TurnsUsed: turnsUsed,
				Err:       model.ErrAPIError,
			}
		}

		switch resp.StopReason {
		case StopEndTurn:
			notify(statusEvent("Composing response..."))
			answer := joinText(resp.Content)
			entities := model.DedupeEntities(st.Entities)

			if a.cache != nil && !opts.SkipCache && !followUp && answer != "" {
				a.cache.Save(ctx, question, answer, toolCalls, st.Insights, entities)
			}

			return &model.AgentRun{
				Answer:    answer,
				ToolCalls: toolCalls,
				Insights:  st.Insights,
				Entities:  entities,
				Model:     modelID,
				TurnsUsed: turnsUsed,
				Tier:      3,
				TierName:  model.TierNameAgent,
			}

		case StopToolUse:
			// tool_result blocks must line up positionally with the
			// tool_use blocks of the assistant turn.
			var results []Block
			for _, block := range resp.Content {
				if block.Type != BlockToolUse {
					continue
				}

				notify(toolEvent(block.Name, a.tools.StatusLabel(block.Name)))
				result := a.tools.Dispatch(ctx, block.Name, block.Input, st)

				if rows, ok := rowCount(result); ok {
					notify(toolResultEvent(block.Name, rows))
				}

				toolCalls = append(toolCalls, model.ToolCall{
					Tool:          block.Name,
					Input:         inputMap(block.Input),
					ResultPreview: truncate(result, resultPreviewLen),
				})
				results = append(results, Block{
					Type:      BlockToolResult,
					ToolUseID: block.ID,
					Content:   result,
				})
			}

			messages = append(messages, Message{Role: RoleAssistant, Content: resp.Content})
			messages = append(messages, Message{Role: RoleUser, Content: results})

		default:
			// Unexpected stop reason; finalize with whatever text exists.
			answer := joinText(resp.Content)
			if answer == "" {
				answer = fmt.Sprintf("Unexpected stop reason: %s", resp.StopReason)
			}
			return &model.AgentRun{
				Answer:    answer,
				ToolCalls: toolCalls,
				Insights:  st.Insights,
				Entities:  model.DedupeEntities(st.Entities),
				Model:     modelID,
				TurnsUsed: turnsUsed,
			}
		}
	}

	return &model.AgentRun{
		Answer:    maxTurnsAnswer,
		ToolCalls: toolCalls,
		Insights:  st.Insights,
		Entities:  model.DedupeEntities(st.Entities),
		Model:     modelID,
		TurnsUsed: turnsUsed,
		Warning:   model.WarningMaxTurnsExceeded,
	}
}

// userContent appends routing hints after the question when the router
// attached suggested queries (cross-database questions).
func userContent(question string, hints *model.RoutingHints) string {
	if hints == nil || len(hints.SuggestedQueries) == 0 {
		return question
	}
	var b strings.Builder
	b.WriteString(question)
	b.WriteString("\n\n(Routing hints: this looks like a ")
	b.WriteString(hints.Hint)
	b.WriteString(" question")
	if len(hints.Sources) > 0 {
		parts := make([]string, len(hints.Sources))
		for i, s := range hints.Sources {
			parts[i] = string(s)
		}
		b.WriteString(" touching " + strings.Join(parts, ", "))
	}
	b.WriteString(". Suggested starting points: ")
	b.WriteString(strings.Join(hints.SuggestedQueries, "; "))
	b.WriteString(")")
	return b.String()
}

func historyMessages(history []model.ChatMessage) []Message {
	msgs := make([]Message, 0, len(history)+1)
	for _, m := range history {
		role := m.Role
		if role != RoleAssistant {
			role = RoleUser
		}
		msgs = append(msgs, Message{Role: role, Content: []Block{{Type: BlockText, Text: m.Content}}})
	}
	return msgs
}

func joinText(blocks []Block) string {
	var b strings.Builder
	for _, block := range blocks {
		if block.Type == BlockText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// rowCount reports the rows array length if the tool result has one.
func rowCount(result string) (int, bool) {
	var payload struct {
		Rows []json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal([]byte(result), &payload); err != nil || payload.Rows == nil {
		return 0, false
	}
	return len(payload.Rows), true
}

func inputMap(input json.RawMessage) map[string]any {
	var m map[string]any
	if len(input) > 0 {
		json.Unmarshal(input, &m)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
