package config

import (
	"os"
	"strconv"

	"github.com/kdt-ai/neo-backend/internal/model"
)

// Config holds all application configuration loaded from environment
// variables. It is immutable after Load() returns.
type Config struct {
	Port        int
	Environment string
	FrontendURL string

	AnthropicAPIKey string
	AgentModel      string
	MaxTurns        int

	// AnalyzeRateLimit is the per-client requests-per-minute budget for the
	// agent endpoints. Zero disables rate limiting.
	AnalyzeRateLimit int

	CacheTTLSeconds int
	CacheThreshold  float64
	CacheDBPath     string

	EmbeddingServiceURL string
	EmbeddingModel      string
	EmbeddingDimensions int

	SQLSecret   string
	ServiceURLs map[model.Source]string

	AdminSecret string
}

// Load reads configuration from environment variables. Every variable has a
// workable default; a missing ANTHROPIC_API_KEY disables the agent rather
// than failing startup.
func Load() *Config {
	return &Config{
		Port:        envInt("PORT", 8080),
		Environment: envStr("ENVIRONMENT", "development"),
		FrontendURL: envStr("FRONTEND_URL", "http://localhost:3000"),

		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AgentModel:      envStr("NEO_AGENT_MODEL", "claude-sonnet-4-20250514"),
		MaxTurns:        envInt("NEO_MAX_TURNS", 25),

		AnalyzeRateLimit: envInt("NEO_RATE_LIMIT", 10),

		CacheTTLSeconds: envInt("NEO_CACHE_TTL", 3600),
		CacheThreshold:  envFloat("NEO_CACHE_THRESHOLD", 0.80),
		CacheDBPath:     envStr("NEO_CACHE_DB", "./data/neo_cache.db"),

		EmbeddingServiceURL: envStr("EMBEDDING_SERVICE_URL", ""),
		EmbeddingModel:      envStr("EMBEDDING_MODEL", "all-MiniLM-L6-v2"),
		EmbeddingDimensions: envInt("EMBEDDING_DIMENSIONS", 384),

		SQLSecret: envStr("NEO_SQL_SECRET", ""),
		ServiceURLs: map[model.Source]string{
			model.SourceResearchers: envStr("RESEARCHERS_SERVICE_URL", "https://kdttalentscout.up.railway.app"),
			model.SourcePatents:     envStr("PATENTS_SERVICE_URL", "https://patentwarrior.up.railway.app"),
			model.SourceGrants:      envStr("GRANTS_SERVICE_URL", "https://grants-tracker-production.up.railway.app"),
			model.SourcePolicies:    envStr("POLICIES_SERVICE_URL", "https://policywatch.up.railway.app"),
			model.SourcePortfolio:   envStr("PORTFOLIO_SERVICE_URL", "https://web-production-a9d068.up.railway.app"),
			model.SourceMarketData:  envStr("MARKET_DATA_SERVICE_URL", "https://clinicaltrialsdata.up.railway.app"),
			model.SourceSECSentinel: envStr("SEC_SENTINEL_URL", "https://sec-sentinel-production.up.railway.app"),
		},

		AdminSecret: envStr("NEO_ADMIN_SECRET", ""),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
