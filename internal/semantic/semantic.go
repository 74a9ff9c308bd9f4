// Package semantic provides named, parameterized query facades over the
// remote SQL sources. Each function builds validated SQL internally and
// returns a shaped object enriched with a light business-context block,
// as distinct from raw SQL passthrough.
package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/kdt-ai/neo-backend/internal/model"
)

// Querier is the subset of the SQL client the semantic layer needs.
type Querier interface {
	Execute(ctx context.Context, source model.Source, query string) (*model.QueryResult, error)
}

// Result is a shaped semantic-function response. Links carries the rows that
// are eligible for entity extraction, tagged by their source so the extractor
// can match on the tag instead of probing payload keys.
type Result struct {
	Payload map[string]any
	Links   []LinkRows
}

// LinkRows is a batch of result rows attributable to one source.
type LinkRows struct {
	Source model.Source
	Rows   []map[string]any
}

// Functions is the library of semantic query facades.
type Functions struct {
	db  Querier
	sec *SECClient
}

// NewFunctions creates the semantic layer. sec may be nil when the SEC
// Sentinel service is not configured; its functions then report an error
// payload instead of failing the request.
func NewFunctions(db Querier, sec *SECClient) *Functions {
	return &Functions{db: db, sec: sec}
}

// likeParam validates a value bound into a LIKE '%...%' literal. This is the
// only string interpolation the layer performs; values carrying quote
// characters are rejected outright.
func likeParam(value string) (string, error) {
	if strings.ContainsAny(value, `'"`) {
		return "", fmt.Errorf("semantic: filter value must not contain quote characters: %q", value)
	}
	return strings.TrimSpace(value), nil
}

// clampLimit bounds a caller-supplied limit to (0, max].
func clampLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}

// queryContext is the business-context block attached to every payload.
func queryContext(description, criteria, insight string) map[string]any {
	ctx := map[string]any{
		"description": description,
		"insight":     insight,
	}
	if criteria != "" {
		ctx["criteria"] = criteria
	}
	return ctx
}
