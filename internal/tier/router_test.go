package tier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kdt-ai/neo-backend/internal/entity"
	"github.com/kdt-ai/neo-backend/internal/model"
)

type executed struct {
	source model.Source
	query  string
	limit  int
}

// fakeQuerier serves canned results keyed by a substring of the query.
type fakeQuerier struct {
	executed []executed
	results  map[string]*model.QueryResult
	tables   []model.TableInfo
	err      error
}

func (f *fakeQuerier) ExecuteWithOptions(ctx context.Context, source model.Source, query string, limit int, useCache bool) (*model.QueryResult, error) {
	f.executed = append(f.executed, executed{source, query, limit})
	if f.err != nil {
		return nil, f.err
	}
	for needle, res := range f.results {
		if strings.Contains(query, needle) {
			return res, nil
		}
	}
	return &model.QueryResult{Rows: []map[string]any{}}, nil
}

func (f *fakeQuerier) ListTables(ctx context.Context, source model.Source) ([]model.TableInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tables, nil
}

func newTestRouter(q *fakeQuerier) *Router {
	ex := entity.NewExtractor(map[model.Source]string{
		model.SourceResearchers: "https://talent.example.com",
		model.SourcePatents:     "https://patents.example.com",
		model.SourceGrants:      "https://grants.example.com",
		model.SourcePortfolio:   "https://portfolio.example.com",
		model.SourceMarketData:  "https://trials.example.com",
	})
	return New(q, ex)
}

func TestRoute_Tier1PatentCount(t *testing.T) {
	q := &fakeQuerier{results: map[string]*model.QueryResult{
		"COUNT(*) as count FROM patents": {
			Columns:  []string{"count"},
			Rows:     []map[string]any{{"count": float64(2400)}},
			RowCount: 1,
		},
	}}
	r := newTestRouter(q)

	res := r.Route(context.Background(), "How many patents?")
	if res.Tier != 1 || res.NeedsAgent {
		t.Fatalf("expected tier 1, got %+v", res)
	}
	if res.Answer != "2,400" {
		t.Fatalf("expected comma-grouped count, got %q", res.Answer)
	}
	if len(res.Entities) != 0 {
		t.Fatalf("tier 1 counts carry no entities: %+v", res.Entities)
	}
	if q.executed[0].query != "SELECT COUNT(*) as count FROM patents" || q.executed[0].limit != 500 {
		t.Fatalf("unexpected execution: %+v", q.executed[0])
	}
}

func TestRoute_Tier1TotalFunding(t *testing.T) {
	q := &fakeQuerier{results: map[string]*model.QueryResult{
		"SUM(total_cost) as total_funding": {
			Columns:  []string{"total_funding"},
			Rows:     []map[string]any{{"total_funding": float64(222000000000)}},
			RowCount: 1,
		},
	}}
	r := newTestRouter(q)

	res := r.Route(context.Background(), "total grant funding")
	if res.Tier != 1 {
		t.Fatalf("expected tier 1, got %d", res.Tier)
	}
	if res.Answer != "$222,000,000,000" {
		t.Fatalf("expected currency formatting, got %q", res.Answer)
	}
	if !strings.Contains(q.executed[0].query, "WHERE total_cost > 0") {
		t.Fatalf("unexpected SQL: %q", q.executed[0].query)
	}
}

func TestRoute_Tier1ListTables(t *testing.T) {
	q := &fakeQuerier{tables: []model.TableInfo{{Name: "patents"}, {Name: "inventors"}}}
	r := newTestRouter(q)

	res := r.Route(context.Background(), "what tables are in the patents database?")
	if res.Tier != 1 {
		t.Fatalf("expected tier 1, got %+v", res)
	}
	if !strings.Contains(res.Answer, "patents, inventors") {
		t.Fatalf("unexpected answer: %q", res.Answer)
	}
}

func TestRoute_Tier2RisingStars(t *testing.T) {
	q := &fakeQuerier{results: map[string]*model.QueryResult{
		"slope > 3": {
			Columns: []string{"id", "name", "h_index", "slope", "primary_category", "affiliations"},
			Rows: []map[string]any{
				{"id": "r1", "name": "Ada Chen", "h_index": float64(35), "slope": float64(4.1), "primary_category": "immunology"},
				{"id": "r2", "name": "Ben Okafor", "h_index": float64(28), "slope": float64(3.6), "primary_category": "immunology"},
			},
			RowCount: 2,
		},
	}}
	r := newTestRouter(q)

	res := r.Route(context.Background(), "rising stars in immunology")
	if res.Tier != 2 {
		t.Fatalf("expected tier 2, got %+v", res)
	}

	sql := res.GeneratedSQL
	for _, want := range []string{
		"WHERE slope > 3 AND h_index BETWEEN 20 AND 60",
		"(topics LIKE '%immunology%' OR primary_category LIKE '%immunology%')",
		"ORDER BY slope DESC LIMIT 10",
	} {
		if !strings.Contains(sql, want) {
			t.Fatalf("generated SQL missing %q:\n%s", want, sql)
		}
	}
	if !strings.HasPrefix(sql, "SELECT id,") {
		t.Fatalf("select list must include id:\n%s", sql)
	}

	if !strings.Contains(res.Answer, "| Name | H-Index | Slope | Category |") {
		t.Fatalf("expected 4-column table, got:\n%s", res.Answer)
	}
	if len(res.Entities) != 2 {
		t.Fatalf("expected 2 entities, got %d", len(res.Entities))
	}
	if res.Entities[0].URL != "https://talent.example.com/researcher/r1" {
		t.Fatalf("unexpected entity URL: %q", res.Entities[0].URL)
	}
}

func TestRoute_Tier2EmptyRowsFallThrough(t *testing.T) {
	q := &fakeQuerier{} // all queries return zero rows
	r := newTestRouter(q)

	res := r.Route(context.Background(), "rising stars in astrobiology")
	if res.Tier != 3 || !res.NeedsAgent {
		t.Fatalf("empty tier 2 result should fall through to tier 3, got %+v", res)
	}
}

func TestRoute_DemotesOnError(t *testing.T) {
	q := &fakeQuerier{err: errors.New("upstream down")}
	r := newTestRouter(q)

	res := r.Route(context.Background(), "How many patents?")
	if res.Tier != 3 || !res.NeedsAgent {
		t.Fatalf("SQL failure must demote to tier 3, got %+v", res)
	}
}

func TestRoute_CrossDBHint(t *testing.T) {
	r := newTestRouter(&fakeQuerier{})

	res := r.Route(context.Background(), "which researchers with patents should we watch?")
	if res.Tier != 3 {
		t.Fatalf("expected tier 3, got %+v", res)
	}
	if res.Hints == nil || res.Hints.Hint != model.HintCrossDB {
		t.Fatalf("expected cross_db hint, got %+v", res.Hints)
	}
	if len(res.Hints.SuggestedQueries) == 0 {
		t.Fatal("cross_db result should carry suggested queries")
	}
}

func TestRoute_ComplexDefault(t *testing.T) {
	r := newTestRouter(&fakeQuerier{})

	res := r.Route(context.Background(), "For Epana, which researchers should we talk to?")
	if res.Tier != 3 || !res.NeedsAgent {
		t.Fatalf("expected tier 3, got %+v", res)
	}
	if res.Hints.Hint != model.HintComplex {
		t.Fatalf("expected complex hint, got %q", res.Hints.Hint)
	}
	found := false
	for _, s := range res.Hints.Sources {
		if s == model.SourceResearchers {
			found = true
		}
	}
	if !found {
		t.Fatalf("researchers keyword not detected: %+v", res.Hints.Sources)
	}
}

func TestRoute_Totality(t *testing.T) {
	r := newTestRouter(&fakeQuerier{})

	for _, q := range []string{
		"x",
		"???",
		"a very long rambling question about nothing in particular at all",
	} {
		res := r.Route(context.Background(), q)
		if res == nil || res.Tier < 1 || res.Tier > 3 {
			t.Fatalf("route(%q) not total: %+v", q, res)
		}
	}
}

func TestRoute_Deterministic(t *testing.T) {
	q := &fakeQuerier{results: map[string]*model.QueryResult{
		"COUNT(*) as count FROM patents": {
			Columns: []string{"count"},
			Rows:    []map[string]any{{"count": float64(7)}},
		},
	}}
	r := newTestRouter(q)

	a := r.Route(context.Background(), "how many patents?")
	b := r.Route(context.Background(), "how many patents?")
	if a.Tier != b.Tier || a.Answer != b.Answer {
		t.Fatalf("routing not deterministic: %+v vs %+v", a, b)
	}
}

func TestRoute_AggregationCached(t *testing.T) {
	q := &fakeQuerier{results: map[string]*model.QueryResult{
		"GROUP BY status": {
			Columns: []string{"status", "count"},
			Rows: []map[string]any{
				{"status": "RECRUITING", "count": float64(41000)},
				{"status": "COMPLETED", "count": float64(30000)},
			},
		},
	}}
	r := newTestRouter(q)

	first := r.Route(context.Background(), "show me trials by status")
	if first.Tier != 1 {
		t.Fatalf("expected tier 1 aggregation, got %+v", first)
	}
	if !strings.Contains(first.Answer, "RECRUITING: 41,000") {
		t.Fatalf("unexpected aggregation answer:\n%s", first.Answer)
	}

	second := r.Route(context.Background(), "show me trials by status")
	if second.Answer != first.Answer {
		t.Fatal("cached aggregation answer should be identical")
	}
	if len(q.executed) != 1 {
		t.Fatalf("aggregation cache missed: %d executions", len(q.executed))
	}
}

func TestDetectIntents(t *testing.T) {
	intents := detectIntents("how many grants compare to patents by institute")
	has := func(want string) bool {
		for _, i := range intents {
			if i == want {
				return true
			}
		}
		return false
	}
	if !has("count") || !has("compare") || !has("aggregate") {
		t.Fatalf("unexpected intents: %v", intents)
	}
}
