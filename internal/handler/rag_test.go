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
	"github.com/kdt-ai/neo-backend/internal/semcache"
)

type fakeSearcher struct {
	entries []semcache.Entry
}

func (f *fakeSearcher) Search(ctx context.Context, query string, n int) []semcache.Entry {
	if n < len(f.entries) {
		return f.entries[:n]
	}
	return f.entries
}

type fakeLLM struct {
	answer    string
	gotSystem string
	gotMsgs   []agent.Message
}

func (f *fakeLLM) CreateMessage(ctx context.Context, model, system string, tools []agent.ToolSpec, messages []agent.Message) (*agent.Response, error) {
	f.gotSystem = system
	f.gotMsgs = messages
	return &agent.Response{
		StopReason: agent.StopEndTurn,
		Content:    []agent.Block{{Type: agent.BlockText, Text: f.answer}},
	}, nil
}

func TestRagSearch_OK(t *testing.T) {
	deps := RagSearchDeps{Cache: &fakeSearcher{entries: []semcache.Entry{
		{ID: "e1", Question: "what is Epana?", Answer: "An autoimmune company.", Similarity: 0.91},
	}}}

	req := httptest.NewRequest(http.MethodGet, "/api/rag-search?q=epana&n_results=5", nil)
	rec := httptest.NewRecorder()
	RagSearch(deps)(rec, req)

	var resp struct {
		Query           string         `json:"query"`
		Results         []searchResult `json:"results"`
		Count           int            `json:"count"`
		SourcesSearched []string       `json:"sources_searched"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || resp.Results[0].Score != 0.91 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.SourcesSearched) != len(model.AllSources()) {
		t.Fatalf("default sources not echoed: %v", resp.SourcesSearched)
	}
}

func TestRagSearch_RequiresQuery(t *testing.T) {
	rec := httptest.NewRecorder()
	RagSearch(RagSearchDeps{})(rec, httptest.NewRequest(http.MethodGet, "/api/rag-search", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRagAsk_NotConfigured(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/rag-ask", strings.NewReader(`{"question":"q"}`))
	rec := httptest.NewRecorder()
	RagAsk(RagAskDeps{Cache: &fakeSearcher{}, LLM: nil})(rec, req)

	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["error"] != model.ErrMissingAPIKey {
		t.Fatalf("expected missing_api_key, got %v", resp)
	}
}

func TestRagAsk_NoContextNoHistory(t *testing.T) {
	llm := &fakeLLM{answer: "should not be called"}
	req := httptest.NewRequest(http.MethodPost, "/api/rag-ask", strings.NewReader(`{"question":"q"}`))
	rec := httptest.NewRecorder()
	RagAsk(RagAskDeps{Cache: &fakeSearcher{}, LLM: llm})(rec, req)

	var resp map[string]any
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !strings.Contains(resp["answer"].(string), "don't have any relevant documents") {
		t.Fatalf("unexpected answer: %v", resp["answer"])
	}
	if llm.gotMsgs != nil {
		t.Fatal("LLM must not be called without context or history")
	}
}

func TestRagAsk_WithContext(t *testing.T) {
	llm := &fakeLLM{answer: "Epana works on autoimmune T-cell engagers [1]."}
	cache := &fakeSearcher{entries: []semcache.Entry{
		{
			Question: "what is Epana?",
			Answer:   "An autoimmune company.",
			Entities: []model.Entity{{Type: model.EntityCompany, ID: "c1", Name: "Epana"}},
		},
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/rag-ask",
		strings.NewReader(`{"question":"what does Epana do?", "n_context": 3}`))
	rec := httptest.NewRecorder()
	RagAsk(RagAskDeps{Cache: cache, LLM: llm})(rec, req)

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["context_count"] != float64(1) {
		t.Fatalf("unexpected context count: %v", resp)
	}
	if !strings.Contains(resp["answer"].(string), "T-cell engagers") {
		t.Fatalf("unexpected answer: %v", resp["answer"])
	}
	sources := resp["sources"].([]any)
	if len(sources) != 1 {
		t.Fatalf("expected 1 source entity, got %v", sources)
	}

	// The user content carries the retrieved context ahead of the question.
	userText := llm.gotMsgs[len(llm.gotMsgs)-1].Content[0].Text
	if !strings.Contains(userText, "CONTEXT:") || !strings.Contains(userText, "QUESTION: what does Epana do?") {
		t.Fatalf("context not anchored in prompt:\n%s", userText)
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health("1.2.3")(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["status"] != "ok" || resp["version"] != "1.2.3" {
		t.Fatalf("unexpected health payload: %v", resp)
	}
}
