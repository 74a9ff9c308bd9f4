package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/kdt-ai/neo-backend/internal/dbclient"
	"github.com/kdt-ai/neo-backend/internal/model"
)

// SQLExecutor is the slice of the SQL client the debug endpoint needs.
type SQLExecutor interface {
	ExecuteWithOptions(ctx context.Context, source model.Source, query string, limit int, useCache bool) (*model.QueryResult, error)
}

// NeoQuery is the debug SQL passthrough.
// GET /api/neo-query?database=<source>&query=<sql>
func NeoQuery(db SQLExecutor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source, ok := model.ParseSource(r.URL.Query().Get("database"))
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown database")
			return
		}
		query := r.URL.Query().Get("query")
		if query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}
		limit := dbclient.DefaultLimit
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			limit = v
		}

		result, err := db.ExecuteWithOptions(r.Context(), source, query, limit, true)
		if err != nil {
			status := http.StatusBadGateway
			if dbclient.IsRejected(err) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
