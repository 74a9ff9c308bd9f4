package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kdt-ai/neo-backend/internal/agent"
	"github.com/kdt-ai/neo-backend/internal/config"
	"github.com/kdt-ai/neo-backend/internal/dbclient"
	"github.com/kdt-ai/neo-backend/internal/entity"
	"github.com/kdt-ai/neo-backend/internal/handler"
	"github.com/kdt-ai/neo-backend/internal/llmclient"
	"github.com/kdt-ai/neo-backend/internal/middleware"
	"github.com/kdt-ai/neo-backend/internal/model"
	"github.com/kdt-ai/neo-backend/internal/router"
	"github.com/kdt-ai/neo-backend/internal/semantic"
	"github.com/kdt-ai/neo-backend/internal/semcache"
	"github.com/kdt-ai/neo-backend/internal/tier"

	"github.com/prometheus/client_golang/prometheus"
)

const Version = "1.0.0"

// services holds everything wire() builds, so shutdown can close what needs
// closing.
type services struct {
	mux   *chi.Mux
	cache *semcache.Store
}

// wire builds the full dependency graph from configuration. A missing
// ANTHROPIC_API_KEY or embedding service degrades the respective feature
// instead of failing startup.
func wire(cfg *config.Config) (*services, error) {
	db := dbclient.New(cfg.ServiceURLs, cfg.SQLSecret)
	extractor := entity.NewExtractor(cfg.ServiceURLs)

	var sec *semantic.SECClient
	if secURL, ok := cfg.ServiceURLs[model.SourceSECSentinel]; ok && secURL != "" {
		sec = semantic.NewSECClient(secURL)
	}
	functions := semantic.NewFunctions(db, sec)

	questionRouter := tier.New(db, extractor)

	var store *semcache.Store
	if cfg.EmbeddingServiceURL != "" {
		embedder := llmclient.NewEmbeddingClient(cfg.EmbeddingServiceURL, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
		var err error
		store, err = semcache.New(cfg.CacheDBPath,
			embedder,
			time.Duration(cfg.CacheTTLSeconds)*time.Second,
			cfg.CacheThreshold,
		)
		if err != nil {
			return nil, fmt.Errorf("wire: %w", err)
		}
	} else {
		slog.Warn("EMBEDDING_SERVICE_URL not set; semantic response cache disabled")
	}

	var llm agent.LLM
	if cfg.AnthropicAPIKey != "" {
		llm = llmclient.NewAnthropicClient(cfg.AnthropicAPIKey)
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set; Tier 3 agent disabled")
	}

	agentCfg := agent.Config{
		LLM:      llm,
		Tools:    agent.Catalog(agent.CatalogDeps{Functions: functions, DB: db, Extractor: extractor}),
		Router:   questionRouter,
		Model:    cfg.AgentModel,
		MaxTurns: cfg.MaxTurns,
	}
	if store != nil {
		agentCfg.Cache = store
	}
	neoAgent := agent.New(agentCfg)

	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(reg)

	var limiter *middleware.RateLimiter
	if cfg.AnalyzeRateLimit > 0 {
		limiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			MaxRequests: cfg.AnalyzeRateLimit,
			Window:      time.Minute,
		})
	}

	deps := &router.Dependencies{
		FrontendURL:    cfg.FrontendURL,
		Version:        Version,
		Metrics:        metrics,
		MetricsReg:     reg,
		AdminSecret:    cfg.AdminSecret,
		AnalyzeLimiter: limiter,
		Agent:          neoAgent,
		DB:             db,
		QueryCache:     db,
		AskDeps:        handler.RagAskDeps{LLM: llm},
	}
	if store != nil {
		deps.ResponseCache = store
		deps.CacheSearcher = store
		deps.AskDeps.Cache = store
	}

	return &services{mux: router.New(deps), cache: store}, nil
}

func run() error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg := config.Load()

	svc, err := wire(cfg)
	if err != nil {
		return err
	}
	if svc.cache != nil {
		defer svc.cache.Close()
	}

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     svc.mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("neo-backend starting", "version", Version, "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down gracefully", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
