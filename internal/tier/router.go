// Package tier classifies questions into complexity tiers so simple ones
// never reach the LLM. Tier 1 is a single canned scalar or listing, Tier 2 a
// parameterized template with entity extraction, Tier 3 the full agent.
package tier

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kdt-ai/neo-backend/internal/dbclient"
	"github.com/kdt-ai/neo-backend/internal/entity"
	"github.com/kdt-ai/neo-backend/internal/model"
)

// Querier is the subset of the SQL client the router needs. Tier queries run
// with the full safety limit so canned statements are never truncated below
// what their own LIMIT clauses ask for.
type Querier interface {
	ExecuteWithOptions(ctx context.Context, source model.Source, query string, limit int, useCache bool) (*model.QueryResult, error)
	ListTables(ctx context.Context, source model.Source) ([]model.TableInfo, error)
}

// Router classifies and, for Tier 1/2, directly answers questions.
type Router struct {
	db        Querier
	extractor *entity.Extractor
	aggs      *aggCache
}

// New creates a Router.
func New(db Querier, extractor *entity.Extractor) *Router {
	return &Router{
		db:        db,
		extractor: extractor,
		aggs:      newAggCache(aggCacheTTL),
	}
}

// Route classifies a question and executes Tier 1/2 lookups inline. It always
// returns a result; any execution failure demotes the question to Tier 3.
func (r *Router) Route(ctx context.Context, question string) *model.TierResult {
	q := strings.ToLower(strings.TrimSpace(question))

	sources := detectSources(q)
	intents := detectIntents(q)

	if res := r.tryAggregations(ctx, q); res != nil {
		return res
	}
	if res := r.tryTier1(ctx, q); res != nil {
		return res
	}
	if res := r.tryTier2(ctx, q); res != nil {
		return res
	}
	if res := tryCrossDB(q, intents); res != nil {
		return res
	}

	return tier3(sources, intents, model.HintComplex, nil)
}

// detectSources returns every source whose keyword list matches the question.
func detectSources(q string) []model.Source {
	var detected []model.Source
	for _, source := range model.AllSources() {
		for _, kw := range sourceKeywords[source] {
			if strings.Contains(q, kw) {
				detected = append(detected, source)
				break
			}
		}
	}
	return detected
}

// detectIntents returns every intent bucket whose pattern matches.
func detectIntents(q string) []string {
	var intents []string
	for _, p := range intentPatterns {
		if p.re.MatchString(q) {
			intents = append(intents, p.intent)
		}
	}
	return intents
}

// tryAggregations serves the popular-aggregation catalog from the router's
// local TTL cache, running the canned SQL on a miss.
func (r *Router) tryAggregations(ctx context.Context, q string) *model.TierResult {
	for _, agg := range popularAggregations {
		if !agg.re.MatchString(q) {
			continue
		}

		if cached, ok := r.aggs.get(agg.name); ok {
			return tier1Result(cached.answer, cached.rows)
		}

		res, err := r.db.ExecuteWithOptions(ctx, agg.source, agg.sql, dbclient.SafetyLimit, true)
		if err != nil {
			slog.Warn("[ROUTER] aggregation failed, demoting to agent", "aggregation", agg.name, "error", err)
			return tier3([]model.Source{agg.source}, []string{"aggregate"}, model.HintComplex, nil)
		}

		answer := aggregationTable(agg.title, res.Columns, res.Rows)
		r.aggs.set(agg.name, answer, res.Rows)
		return tier1Result(answer, res.Rows)
	}
	return nil
}

// tryTier1 runs the ordered direct-lookup patterns; first match wins.
func (r *Router) tryTier1(ctx context.Context, q string) *model.TierResult {
	for _, p := range tier1Patterns {
		if !p.re.MatchString(q) {
			continue
		}

		if p.sql == "" {
			tables, err := r.db.ListTables(ctx, p.source)
			if err != nil {
				slog.Warn("[ROUTER] tier 1 table listing failed, demoting to agent", "source", p.source, "error", err)
				return tier3([]model.Source{p.source}, nil, model.HintComplex, nil)
			}
			names := make([]string, len(tables))
			for i, t := range tables {
				names[i] = t.Name
			}
			return tier1Result(
				"Tables in "+string(p.source)+" database: "+strings.Join(names, ", "),
				[]map[string]any{{"tables": names}},
			)
		}

		res, err := r.db.ExecuteWithOptions(ctx, p.source, p.sql, dbclient.SafetyLimit, true)
		if err != nil {
			slog.Warn("[ROUTER] tier 1 query failed, demoting to agent", "source", p.source, "error", err)
			return tier3([]model.Source{p.source}, nil, model.HintComplex, nil)
		}
		if len(res.Rows) == 0 || len(res.Columns) == 0 {
			continue
		}

		key := res.Columns[0]
		return tier1Result(formatScalar(key, res.Rows[0][key]), res.Rows[:1])
	}
	return nil
}

// tryTier2 runs the ordered template patterns; first match with rows wins.
func (r *Router) tryTier2(ctx context.Context, q string) *model.TierResult {
	for _, p := range tier2Patterns {
		groups, ok := matchNamed(p.re, q)
		if !ok {
			continue
		}

		query := p.sql(groups)
		res, err := r.db.ExecuteWithOptions(ctx, p.source, query, dbclient.SafetyLimit, true)
		if err != nil {
			slog.Warn("[ROUTER] tier 2 query failed, demoting to agent", "source", p.source, "error", err)
			return tier3([]model.Source{p.source}, nil, model.HintComplex, nil)
		}
		if len(res.Rows) == 0 {
			continue
		}

		return &model.TierResult{
			Tier:         2,
			TierName:     model.TierNameFast,
			Answer:       tier2Table(p.source, res.Rows),
			Data:         res.Rows,
			GeneratedSQL: query,
			Entities:     r.extractor.FromRows(p.source, res.Rows),
		}
	}
	return nil
}

// tryCrossDB matches cross-source phrasings and hands the agent a head start.
func tryCrossDB(q string, intents []string) *model.TierResult {
	for _, p := range crossDBPatterns {
		if p.re.MatchString(q) {
			return tier3(p.sources, intents, model.HintCrossDB, p.suggestedQueries)
		}
	}
	return nil
}

func tier1Result(answer string, rows []map[string]any) *model.TierResult {
	return &model.TierResult{
		Tier:     1,
		TierName: model.TierNameInstant,
		Answer:   answer,
		Data:     rows,
		Entities: []model.Entity{},
	}
}

func tier3(sources []model.Source, intents []string, hint string, suggested []string) *model.TierResult {
	return &model.TierResult{
		Tier:       3,
		TierName:   model.TierNameAgent,
		NeedsAgent: true,
		Entities:   []model.Entity{},
		Hints: &model.RoutingHints{
			Sources:          sources,
			Intents:          intents,
			Hint:             hint,
			SuggestedQueries: suggested,
		},
	}
}
