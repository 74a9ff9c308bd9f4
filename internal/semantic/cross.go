package semantic

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kdt-ai/neo-backend/internal/model"
)

// SearchEntity looks up an entity name across every SQL source concurrently
// and returns a presence map with per-source match counts. Per-source
// failures are reported inside the map, never as a request failure.
func (f *Functions) SearchEntity(ctx context.Context, name string) (*Result, error) {
	n, err := likeParam(name)
	if err != nil {
		return nil, err
	}

	countQueries := map[model.Source]string{
		model.SourceResearchers: fmt.Sprintf("SELECT COUNT(*) as count FROM researchers WHERE name LIKE '%%%s%%' OR affiliations LIKE '%%%s%%'", n, n),
		model.SourcePatents:     fmt.Sprintf("SELECT COUNT(*) as count FROM patents WHERE primary_assignee LIKE '%%%s%%'", n),
		model.SourceGrants:      fmt.Sprintf("SELECT COUNT(*) as count FROM grants WHERE organization LIKE '%%%s%%'", n),
		model.SourcePolicies:    fmt.Sprintf("SELECT COUNT(*) as count FROM bills WHERE title LIKE '%%%s%%' OR summary LIKE '%%%s%%'", n, n),
		model.SourcePortfolio:   fmt.Sprintf("SELECT COUNT(*) as count FROM companies WHERE name LIKE '%%%s%%'", n),
		model.SourceMarketData:  fmt.Sprintf("SELECT COUNT(*) as count FROM clinical_trials WHERE sponsor LIKE '%%%s%%'", n),
	}

	var mu sync.Mutex
	presence := make(map[string]any, len(countQueries))

	g, gCtx := errgroup.WithContext(ctx)
	for source, query := range countQueries {
		g.Go(func() error {
			res, err := f.db.Execute(gCtx, source, query)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				presence[string(source)] = map[string]any{"found": false, "error": err.Error()}
				return nil
			}
			count := 0
			if len(res.Rows) > 0 {
				count = int(asFloat(res.Rows[0]["count"]))
			}
			presence[string(source)] = map[string]any{"found": count > 0, "count": count}
			return nil
		})
	}
	// Lookups never return an error; failures land in the presence map.
	_ = g.Wait()

	return &Result{
		Payload: map[string]any{
			"entity":  n,
			"sources": presence,
			"_context": queryContext(
				"Cross-source presence check for one entity",
				"entity: "+n,
				"presence across patents, grants, and researchers marks a complete innovation pipeline",
			),
		},
	}, nil
}

// GetCompanyProfile aggregates a 360° view of a company: patent portfolio,
// funding summary, and affiliated researchers, fetched concurrently.
func (f *Functions) GetCompanyProfile(ctx context.Context, name string) (*Result, error) {
	n, err := likeParam(name)
	if err != nil {
		return nil, err
	}

	var (
		patents     *Result
		grants      *Result
		researchers *model.QueryResult
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		patents, err = f.GetPatentPortfolio(gCtx, n)
		return err
	})
	g.Go(func() error {
		var err error
		grants, err = f.GetFundingSummary(gCtx, n)
		return err
	})
	g.Go(func() error {
		var err error
		researchers, err = f.db.Execute(gCtx, model.SourceResearchers, fmt.Sprintf(
			"SELECT id, name, h_index, slope, affiliations, primary_category FROM researchers WHERE affiliations LIKE '%%%s%%' ORDER BY h_index DESC LIMIT 10",
			n,
		))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	payload := map[string]any{
		"company": n,
		"patents": patents.Payload,
		"grants":  grants.Payload,
		"researchers": map[string]any{
			"top_researchers": researchers.Rows,
			"row_count":       researchers.RowCount,
		},
		"_context": queryContext(
			"Unified company profile across patents, grants, and researchers",
			"company: "+n,
			"IP, funding, and talent together describe the company's research moat",
		),
	}

	links := append([]LinkRows{}, patents.Links...)
	links = append(links, grants.Links...)
	links = append(links, LinkRows{Source: model.SourceResearchers, Rows: researchers.Rows})

	return &Result{Payload: payload, Links: links}, nil
}
