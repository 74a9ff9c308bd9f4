package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kdt-ai/neo-backend/internal/agent"
	"github.com/kdt-ai/neo-backend/internal/model"
)

// AgentRunner is the agent facade the analyze endpoints call.
type AgentRunner interface {
	Run(ctx context.Context, question string, opts agent.Options) *model.AgentRun
	RunStream(ctx context.Context, question string, opts agent.Options) <-chan agent.Event
}

// QuestionObserver records per-question metrics. Nil disables recording.
type QuestionObserver interface {
	ObserveQuestion(tier int, cached bool, turns int)
}

// AnalyzeDeps wires the analyze endpoints.
type AnalyzeDeps struct {
	Agent   AgentRunner
	Metrics QuestionObserver
}

type analyzeRequest struct {
	Question   string              `json:"question"`
	Model      string              `json:"model"`
	MaxTurns   int                 `json:"max_turns"`
	Messages   []model.ChatMessage `json:"messages"`
	SkipCache  bool                `json:"skip_cache"`
	SkipRouter bool                `json:"skip_router"`
}

type analyzeResponse struct {
	Question string `json:"question"`
	*model.AgentRun
}

func decodeAnalyzeRequest(r *http.Request) (*analyzeRequest, string) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, "invalid request body"
	}
	if req.Question == "" {
		return nil, "question is required"
	}
	return &req, ""
}

func (req *analyzeRequest) options() agent.Options {
	return agent.Options{
		Model:      req.Model,
		MaxTurns:   req.MaxTurns,
		History:    req.Messages,
		SkipCache:  req.SkipCache,
		SkipRouter: req.SkipRouter,
	}
}

// Analyze answers a question through router, cache, and agent.
// POST /api/neo-analyze
func Analyze(deps AnalyzeDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, problem := decodeAnalyzeRequest(r)
		if problem != "" {
			writeError(w, http.StatusBadRequest, problem)
			return
		}

		run := deps.Agent.Run(r.Context(), req.Question, req.options())
		if run == nil {
			// Cancelled mid-run; the client is gone anyway.
			return
		}

		slog.Info("[ANALYZE] answered",
			"tier", run.Tier,
			"cached", run.Cached,
			"turns", run.TurnsUsed,
			"tool_calls", len(run.ToolCalls),
		)
		if deps.Metrics != nil {
			deps.Metrics.ObserveQuestion(run.Tier, run.Cached, run.TurnsUsed)
		}
		writeJSON(w, http.StatusOK, analyzeResponse{Question: req.Question, AgentRun: run})
	}
}

// AnalyzeStream is Analyze over Server-Sent Events: status, tool,
// tool_result, and a final complete event.
// POST /api/neo-analyze/stream
func AnalyzeStream(deps AnalyzeDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, problem := decodeAnalyzeRequest(r)
		if problem != "" {
			writeError(w, http.StatusBadRequest, problem)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		for event := range deps.Agent.RunStream(r.Context(), req.Question, req.options()) {
			payload, err := json.Marshal(event)
			if err != nil {
				slog.Error("[ANALYZE] event marshal failed", "error", err)
				continue
			}
			sendEvent(w, flusher, event.Type, string(payload))
		}
	}
}
