package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/kdt-ai/neo-backend/internal/agent"
	"github.com/kdt-ai/neo-backend/internal/model"
	"github.com/kdt-ai/neo-backend/internal/semcache"
)

// defaultAskModel keeps the legacy Q&A endpoint on a fast, cheap model.
const defaultAskModel = "claude-3-5-haiku-20241022"

const askSystemPrompt = `You are a biotech/deeptech analyst for a venture fund.
Answer using ONLY the CONTEXT below - no outside knowledge.
If the information is not in the context, say "I don't have that in the knowledge base."
Cite sources by their document number [1], [2], etc.
Be concise but thorough. Use clear structure when listing multiple items.`

// CacheSearcher is the slice of the semantic cache the legacy endpoints use.
type CacheSearcher interface {
	Search(ctx context.Context, query string, n int) []semcache.Entry
}

// RagSearchDeps wires the legacy direct-search endpoint.
type RagSearchDeps struct {
	Cache CacheSearcher
}

type searchResult struct {
	ID      string  `json:"id"`
	Source  string  `json:"source"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
	URL     string  `json:"url"`
}

// RagSearch ranks previously answered questions by similarity to the query.
// GET /api/rag-search?q=...&sources=...&n_results=10
func RagSearch(deps RagSearchDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q == "" {
			writeError(w, http.StatusBadRequest, "q is required")
			return
		}
		n := 10
		if v, err := strconv.Atoi(r.URL.Query().Get("n_results")); err == nil && v >= 1 && v <= 50 {
			n = v
		}
		var sources []string
		if raw := r.URL.Query().Get("sources"); raw != "" {
			for _, s := range strings.Split(raw, ",") {
				if s = strings.TrimSpace(s); s != "" {
					sources = append(sources, s)
				}
			}
		}
		if sources == nil {
			for _, s := range model.AllSources() {
				sources = append(sources, string(s))
			}
		}

		results := []searchResult{}
		if deps.Cache != nil {
			for _, entry := range deps.Cache.Search(r.Context(), q, n) {
				results = append(results, searchResult{
					ID:      entry.ID,
					Source:  "cache",
					Title:   entry.Question,
					Snippet: snippet(entry.Answer),
					Score:   entry.Similarity,
				})
			}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"query":            q,
			"results":          results,
			"count":            len(results),
			"sources_searched": sources,
		})
	}
}

// RagAskDeps wires the legacy context-anchored Q&A endpoint.
type RagAskDeps struct {
	Cache CacheSearcher
	LLM   agent.LLM
}

type ragAskRequest struct {
	Question   string              `json:"question"`
	NContext   int                 `json:"n_context"`
	Model      string              `json:"model"`
	Messages   []model.ChatMessage `json:"messages"`
	SkipSearch bool                `json:"skip_search"`
}

// RagAsk answers a question anchored to previously cached context, without
// the tool loop.
// POST /api/rag-ask
func RagAsk(deps RagAskDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ragAskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
			writeError(w, http.StatusBadRequest, "question is required")
			return
		}
		if req.NContext <= 0 || req.NContext > 20 {
			req.NContext = 5
		}
		modelID := req.Model
		if modelID == "" {
			modelID = defaultAskModel
		}

		if deps.LLM == nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"question":      req.Question,
				"answer":        "AI Q&A is not configured. Please set ANTHROPIC_API_KEY.",
				"sources":       []any{},
				"context_count": 0,
				"error":         model.ErrMissingAPIKey,
			})
			return
		}

		var contextDocs []semcache.Entry
		if !req.SkipSearch && deps.Cache != nil {
			contextDocs = deps.Cache.Search(r.Context(), req.Question, req.NContext)
		}

		// Without context or history there is nothing grounded to say.
		if len(contextDocs) == 0 && len(req.Messages) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{
				"question":      req.Question,
				"answer":        "I don't have any relevant documents in the knowledge base to answer this question. Try rephrasing or searching for related terms.",
				"sources":       []any{},
				"context_count": 0,
				"model":         modelID,
			})
			return
		}

		messages := make([]agent.Message, 0, len(req.Messages)+1)
		for _, m := range req.Messages {
			role := m.Role
			if role != agent.RoleAssistant {
				role = agent.RoleUser
			}
			messages = append(messages, agent.Message{
				Role:    role,
				Content: []agent.Block{{Type: agent.BlockText, Text: m.Content}},
			})
		}
		messages = append(messages, agent.Message{
			Role:    agent.RoleUser,
			Content: []agent.Block{{Type: agent.BlockText, Text: askUserContent(req.Question, contextDocs)}},
		})

		resp, err := deps.LLM.CreateMessage(r.Context(), modelID, askSystemPrompt, nil, messages)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{
				"question":      req.Question,
				"answer":        fmt.Sprintf("AI service error: %v", err),
				"sources":       []any{},
				"context_count": len(contextDocs),
				"model":         modelID,
				"error":         model.ErrAPIError,
			})
			return
		}

		var answer strings.Builder
		for _, block := range resp.Content {
			if block.Type == agent.BlockText {
				answer.WriteString(block.Text)
			}
		}

		sources := []model.Entity{}
		for _, doc := range contextDocs {
			sources = append(sources, doc.Entities...)
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"question":      req.Question,
			"answer":        answer.String(),
			"sources":       model.DedupeEntities(sources),
			"context_count": len(contextDocs),
			"model":         modelID,
		})
	}
}

// askUserContent formats the retrieved context ahead of the question.
func askUserContent(question string, docs []semcache.Entry) string {
	if len(docs) == 0 {
		return question
	}

	var b strings.Builder
	b.WriteString("CONTEXT:\n")
	for i, doc := range docs {
		fmt.Fprintf(&b, "[%d] Q: %s\n%s\n\n---\n\n", i+1, doc.Question, snippet(doc.Answer))
	}
	b.WriteString("QUESTION: ")
	b.WriteString(question)
	b.WriteString("\n\nAnswer based ONLY on the context above. Cite sources by their document number [1], [2], etc.")
	return b.String()
}

func snippet(s string) string {
	runes := []rune(s)
	if len(runes) <= 1000 {
		return s
	}
	return string(runes[:1000])
}
