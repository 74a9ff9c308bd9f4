package config

import (
	"testing"

	"github.com/kdt-ai/neo-backend/internal/model"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != 8080 {
		t.Fatalf("unexpected port: %d", cfg.Port)
	}
	if cfg.AgentModel != "claude-sonnet-4-20250514" {
		t.Fatalf("unexpected model: %q", cfg.AgentModel)
	}
	if cfg.MaxTurns != 25 {
		t.Fatalf("unexpected max turns: %d", cfg.MaxTurns)
	}
	if cfg.AnalyzeRateLimit != 10 {
		t.Fatalf("unexpected analyze rate limit: %d", cfg.AnalyzeRateLimit)
	}
	if cfg.CacheTTLSeconds != 3600 || cfg.CacheThreshold != 0.80 {
		t.Fatalf("unexpected cache config: ttl=%d threshold=%g", cfg.CacheTTLSeconds, cfg.CacheThreshold)
	}
	if cfg.EmbeddingModel != "all-MiniLM-L6-v2" || cfg.EmbeddingDimensions != 384 {
		t.Fatalf("unexpected embedding config: %q dim=%d", cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	}
	if len(cfg.ServiceURLs) != 7 {
		t.Fatalf("expected a URL per source, got %d", len(cfg.ServiceURLs))
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("NEO_AGENT_MODEL", "claude-test")
	t.Setenv("NEO_MAX_TURNS", "5")
	t.Setenv("NEO_CACHE_THRESHOLD", "0.9")
	t.Setenv("NEO_RATE_LIMIT", "0")
	t.Setenv("PATENTS_SERVICE_URL", "http://localhost:9001")

	cfg := Load()
	if cfg.AgentModel != "claude-test" || cfg.MaxTurns != 5 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.AnalyzeRateLimit != 0 {
		t.Fatalf("rate limit disable not applied: %d", cfg.AnalyzeRateLimit)
	}
	if cfg.CacheThreshold != 0.9 {
		t.Fatalf("threshold override not applied: %g", cfg.CacheThreshold)
	}
	if cfg.ServiceURLs[model.SourcePatents] != "http://localhost:9001" {
		t.Fatalf("service URL override not applied: %q", cfg.ServiceURLs[model.SourcePatents])
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("NEO_MAX_TURNS", "lots")
	t.Setenv("NEO_CACHE_THRESHOLD", "high")

	cfg := Load()
	if cfg.MaxTurns != 25 || cfg.CacheThreshold != 0.80 {
		t.Fatalf("invalid values should fall back to defaults: %+v", cfg)
	}
}
