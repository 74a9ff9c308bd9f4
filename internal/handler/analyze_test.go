package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kdt-ai/neo-backend/internal/agent"
	"github.com/kdt-ai/neo-backend/internal/model"
)

type fakeAgent struct {
	run    *model.AgentRun
	events []agent.Event
	gotQ   string
	gotOpt agent.Options
}

func (f *fakeAgent) Run(ctx context.Context, question string, opts agent.Options) *model.AgentRun {
	f.gotQ = question
	f.gotOpt = opts
	return f.run
}

func (f *fakeAgent) RunStream(ctx context.Context, question string, opts agent.Options) <-chan agent.Event {
	ch := make(chan agent.Event, len(f.events))
	for _, e := range f.events {
		ch <- e
	}
	close(ch)
	return ch
}

func TestAnalyze_OK(t *testing.T) {
	fa := &fakeAgent{run: &model.AgentRun{
		Answer:    "the answer",
		ToolCalls: []model.ToolCall{{Tool: "get_researchers"}},
		Insights:  []string{},
		Entities:  []model.Entity{{Type: model.EntityResearcher, ID: "r1", Name: "Ada Chen"}},
		Model:     "m",
		TurnsUsed: 2,
		Tier:      3,
		TierName:  model.TierNameAgent,
	}}

	body := `{"question": "who should we talk to?", "model": "m", "max_turns": 9}`
	req := httptest.NewRequest(http.MethodPost, "/api/neo-analyze", strings.NewReader(body))
	rec := httptest.NewRecorder()
	Analyze(AnalyzeDeps{Agent: fa})(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["question"] != "who should we talk to?" || resp["answer"] != "the answer" {
		t.Fatalf("unexpected response: %v", resp)
	}
	if resp["tier"] != float64(3) {
		t.Fatalf("tier missing: %v", resp)
	}
	if fa.gotOpt.MaxTurns != 9 || fa.gotOpt.Model != "m" {
		t.Fatalf("options not forwarded: %+v", fa.gotOpt)
	}
}

func TestAnalyze_RequiresQuestion(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/neo-analyze", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	Analyze(AnalyzeDeps{Agent: &fakeAgent{}})(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestAnalyzeStream_SSEFrames(t *testing.T) {
	fa := &fakeAgent{events: []agent.Event{
		{Type: agent.EventStatus, ID: "1", Message: "Thinking... (step 1)"},
		{Type: agent.EventTool, ID: "2", Tool: "get_patents", Message: "Searching patents..."},
		{Type: agent.EventComplete, ID: "3", Data: &model.AgentRun{Answer: "done"}},
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/neo-analyze/stream", strings.NewReader(`{"question":"q"}`))
	rec := httptest.NewRecorder()
	AnalyzeStream(AnalyzeDeps{Agent: fa})(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"event: status\n",
		"event: tool\n",
		"event: complete\n",
		`"answer":"done"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("SSE body missing %q:\n%s", want, body)
		}
	}
	// Events must appear in issue order.
	if strings.Index(body, "event: status") > strings.Index(body, "event: complete") {
		t.Fatal("events out of order")
	}
}
