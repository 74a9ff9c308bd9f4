// Package router assembles the public HTTP surface.
package router

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kdt-ai/neo-backend/internal/handler"
	"github.com/kdt-ai/neo-backend/internal/middleware"
)

// Dependencies holds all injected services needed by the router.
type Dependencies struct {
	FrontendURL string
	Version     string
	Metrics     *middleware.Metrics
	MetricsReg  *prometheus.Registry
	AdminSecret string

	// AnalyzeLimiter throttles the agent endpoints per client. Nil disables
	// rate limiting.
	AnalyzeLimiter *middleware.RateLimiter

	Agent handler.AgentRunner
	DB    handler.StatsClient

	ResponseCache handler.CacheAdmin
	CacheSearcher handler.CacheSearcher
	QueryCache    interface {
		handler.QueryCacheStats
		ClearCache()
	}

	AskDeps handler.RagAskDeps
}

// adminOnly guards destructive endpoints with a shared-secret header.
func adminOnly(secret string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Secret")
		if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	}
}

// New creates and configures the Chi router with all routes.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(deps.FrontendURL))
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}

	r.Get("/", handler.Health(deps.Version))
	r.Get("/health", handler.Health(deps.Version))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}

	analyzeDeps := handler.AnalyzeDeps{Agent: deps.Agent, Metrics: deps.Metrics}

	// Non-streaming routes get a write timeout against slow readers. The
	// analyze endpoints may legitimately run for minutes (agent loop), so
	// they get a much larger budget; the SSE stream gets none.
	timeout30s := middleware.Timeout(30 * time.Second)

	r.With(timeout30s).Get("/api/rag-search", handler.RagSearch(handler.RagSearchDeps{Cache: deps.CacheSearcher}))
	r.With(middleware.Timeout(60*time.Second)).Post("/api/rag-ask", handler.RagAsk(deps.AskDeps))
	r.With(timeout30s).Get("/api/rag-stats", handler.RagStats(handler.RagStatsDeps{
		ResponseCache: deps.ResponseCache,
		QueryCache:    deps.QueryCache,
	}))

	// The agent endpoints are the only ones that spend LLM budget, so they
	// get the strictest rate limit. The SSE stream stays free of the write
	// timeout.
	analyzeTimeout := middleware.Timeout(10 * time.Minute)
	if deps.AnalyzeLimiter != nil {
		rateLimit := middleware.RateLimit(deps.AnalyzeLimiter)
		r.With(analyzeTimeout, rateLimit).Post("/api/neo-analyze", handler.Analyze(analyzeDeps))
		r.With(rateLimit).Post("/api/neo-analyze/stream", handler.AnalyzeStream(analyzeDeps))
	} else {
		r.With(analyzeTimeout).Post("/api/neo-analyze", handler.Analyze(analyzeDeps))
		r.Post("/api/neo-analyze/stream", handler.AnalyzeStream(analyzeDeps))
	}

	r.With(timeout30s).Get("/api/neo-query", handler.NeoQuery(deps.DB))
	r.With(middleware.Timeout(2*time.Minute)).Get("/api/neo-db-stats", handler.DBStats(deps.DB))

	r.Delete("/api/neo-cache", adminOnly(deps.AdminSecret, handler.ClearCache(handler.ClearCacheDeps{
		ResponseCache: deps.ResponseCache,
		QueryCache:    deps.QueryCache,
	})))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"error": "route not found"})
	})

	return r
}
