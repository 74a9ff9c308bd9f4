package handler

import (
	"context"
	"net/http"

	"github.com/kdt-ai/neo-backend/internal/dbclient"
	"github.com/kdt-ai/neo-backend/internal/semcache"
)

// CacheAdmin is the slice of the semantic cache the stats and admin
// endpoints use.
type CacheAdmin interface {
	Stats(ctx context.Context) semcache.Stats
	Clear(ctx context.Context) error
}

// QueryCacheStats exposes the SQL client's cache counters.
type QueryCacheStats interface {
	CacheStats() dbclient.CacheStats
}

// RagStatsDeps wires the stats endpoint.
type RagStatsDeps struct {
	ResponseCache CacheAdmin
	QueryCache    QueryCacheStats
}

// RagStats reports both cache layers.
// GET /api/rag-stats
func RagStats(deps RagStatsDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{}
		if deps.QueryCache != nil {
			payload["query_cache"] = deps.QueryCache.CacheStats()
		}
		if deps.ResponseCache != nil {
			payload["response_cache"] = deps.ResponseCache.Stats(r.Context())
		}
		writeJSON(w, http.StatusOK, payload)
	}
}

// ClearCacheDeps wires the admin cache-clear endpoint.
type ClearCacheDeps struct {
	ResponseCache CacheAdmin
	QueryCache    interface{ ClearCache() }
}

// ClearCache drops both cache layers.
// DELETE /api/neo-cache — admin-guarded in the router.
func ClearCache(deps ClearCacheDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.QueryCache != nil {
			deps.QueryCache.ClearCache()
		}
		if deps.ResponseCache != nil {
			if err := deps.ResponseCache.Clear(r.Context()); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}
