package handler

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kdt-ai/neo-backend/internal/model"
)

// StatsClient is the slice of the SQL client the stats endpoints need.
type StatsClient interface {
	SQLExecutor
	ListTables(ctx context.Context, source model.Source) ([]model.TableInfo, error)
	SourceURL(source model.Source) (string, bool)
	Sources() []model.Source
}

// DBStats reports per-source availability and table row counts. Sources are
// probed concurrently; a failing source is reported unavailable rather than
// failing the endpoint.
// GET /api/neo-db-stats
func DBStats(db StatsClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var mu sync.Mutex
		databases := make(map[string]any)

		g, ctx := errgroup.WithContext(r.Context())
		for _, source := range db.Sources() {
			g.Go(func() error {
				stat := probeSource(ctx, db, source)
				mu.Lock()
				databases[string(source)] = stat
				mu.Unlock()
				return nil
			})
		}
		// Probes record their own failures.
		_ = g.Wait()

		writeJSON(w, http.StatusOK, map[string]any{"databases": databases})
	}
}

func probeSource(ctx context.Context, db StatsClient, source model.Source) map[string]any {
	url, _ := db.SourceURL(source)

	tables, err := db.ListTables(ctx, source)
	if err != nil {
		return map[string]any{"available": false, "url": url, "error": err.Error()}
	}

	counts := make(map[string]any, len(tables))
	for _, table := range tables {
		res, err := db.ExecuteWithOptions(ctx, source,
			fmt.Sprintf("SELECT COUNT(*) as cnt FROM %s", table.Name), 1, true)
		if err != nil || len(res.Rows) == 0 {
			counts[table.Name] = "error"
			continue
		}
		counts[table.Name] = res.Rows[0]["cnt"]
	}

	return map[string]any{"available": true, "url": url, "tables": counts}
}
