package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/kdt-ai/neo-backend/internal/model"
)

// ResearcherFilter holds the optional filters for GetResearchers.
type ResearcherFilter struct {
	MinHIndex   int
	Topic       string
	Affiliation string
	Limit       int
}

// GetResearchers finds researchers matching the filter, ordered by h-index.
func (f *Functions) GetResearchers(ctx context.Context, filter ResearcherFilter) (*Result, error) {
	var where []string
	var criteria []string

	if filter.MinHIndex > 0 {
		where = append(where, fmt.Sprintf("h_index >= %d", filter.MinHIndex))
		criteria = append(criteria, fmt.Sprintf("h-index >= %d", filter.MinHIndex))
	}
	if filter.Topic != "" {
		topic, err := likeParam(filter.Topic)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("(topics LIKE '%%%s%%' OR primary_category LIKE '%%%s%%')", topic, topic))
		criteria = append(criteria, "topic: "+topic)
	}
	if filter.Affiliation != "" {
		aff, err := likeParam(filter.Affiliation)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("affiliations LIKE '%%%s%%'", aff))
		criteria = append(criteria, "affiliation: "+aff)
	}

	query := "SELECT id, name, h_index, slope, affiliations, topics, primary_category, works_count, cited_by_count FROM researchers"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY h_index DESC LIMIT %d", clampLimit(filter.Limit, 20, 100))

	res, err := f.db.Execute(ctx, model.SourceResearchers, query)
	if err != nil {
		return nil, err
	}

	return &Result{
		Payload: map[string]any{
			"rows":      res.Rows,
			"row_count": res.RowCount,
			"_context": queryContext(
				"Researchers matching the given filters, strongest first",
				strings.Join(criteria, ", "),
				"slope is the h-index growth rate; slope > 3 marks very fast growth",
			),
		},
		Links: []LinkRows{{Source: model.SourceResearchers, Rows: res.Rows}},
	}, nil
}

// Trajectory labels derived from slope and current h-index.
const (
	TrajectoryRisingStar  = "rising_star"
	TrajectoryGrowing     = "growing"
	TrajectoryStable      = "stable"
	TrajectoryEstablished = "established"
)

// trajectory classifies a researcher's growth from slope and h-index.
func trajectory(slope, hIndex float64) string {
	switch {
	case slope > 3 && hIndex < 60:
		return TrajectoryRisingStar
	case slope > 1.5:
		return TrajectoryGrowing
	case slope > 0:
		return TrajectoryStable
	default:
		return TrajectoryEstablished
	}
}

// GetResearcherProfile fetches researchers by (partial) name with a computed
// trajectory label on each row.
func (f *Functions) GetResearcherProfile(ctx context.Context, name string) (*Result, error) {
	n, err := likeParam(name)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT id, name, orcid, h_index, i10_index, slope, works_count, cited_by_count, two_yr_citedness, topics, affiliations, primary_category FROM researchers WHERE name LIKE '%%%s%%' ORDER BY h_index DESC LIMIT 5",
		n,
	)
	res, err := f.db.Execute(ctx, model.SourceResearchers, query)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]any, len(res.Rows))
	for i, row := range res.Rows {
		enriched := make(map[string]any, len(row)+1)
		for k, v := range row {
			enriched[k] = v
		}
		enriched["trajectory"] = trajectory(asFloat(row["slope"]), asFloat(row["h_index"]))
		rows[i] = enriched
	}

	return &Result{
		Payload: map[string]any{
			"rows":      rows,
			"row_count": len(rows),
			"_context": queryContext(
				"Researcher profile with trajectory analysis",
				"name: "+n,
				"rising_star = slope > 3 with h-index still below 60",
			),
		},
		Links: []LinkRows{{Source: model.SourceResearchers, Rows: rows}},
	}, nil
}

// RisingStarFilter holds the tunable thresholds for GetRisingStars.
type RisingStarFilter struct {
	MinSlope  float64
	MinHIndex int
	MaxHIndex int
	Topic     string
	Limit     int
}

// GetRisingStars finds researchers whose h-index is growing fastest, ordered
// by slope descending.
func (f *Functions) GetRisingStars(ctx context.Context, filter RisingStarFilter) (*Result, error) {
	minSlope := filter.MinSlope
	if minSlope <= 0 {
		minSlope = 2.0
	}
	minH := filter.MinHIndex
	if minH <= 0 {
		minH = 15
	}
	maxH := filter.MaxHIndex
	if maxH <= 0 {
		maxH = 80
	}

	where := []string{
		fmt.Sprintf("slope >= %g", minSlope),
		fmt.Sprintf("h_index BETWEEN %d AND %d", minH, maxH),
	}
	if filter.Topic != "" {
		topic, err := likeParam(filter.Topic)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("(topics LIKE '%%%s%%' OR primary_category LIKE '%%%s%%')", topic, topic))
	}

	query := fmt.Sprintf(
		"SELECT id, name, h_index, slope, affiliations, topics, primary_category FROM researchers WHERE %s ORDER BY slope DESC LIMIT %d",
		strings.Join(where, " AND "), clampLimit(filter.Limit, 20, 100),
	)
	res, err := f.db.Execute(ctx, model.SourceResearchers, query)
	if err != nil {
		return nil, err
	}

	return &Result{
		Payload: map[string]any{
			"rows":      res.Rows,
			"row_count": res.RowCount,
			"_context": queryContext(
				"Fast-growing researchers (rising stars), steepest growth first",
				fmt.Sprintf("slope >= %g, h-index %d-%d", minSlope, minH, maxH),
				"mid-range h-index with high slope signals emerging talent worth early contact",
			),
		},
		Links: []LinkRows{{Source: model.SourceResearchers, Rows: res.Rows}},
	}, nil
}

// GetResearchersByTopic returns the top researchers in a field by h-index.
func (f *Functions) GetResearchersByTopic(ctx context.Context, topic string, limit int) (*Result, error) {
	return f.GetResearchers(ctx, ResearcherFilter{Topic: topic, Limit: limit})
}

// asFloat coerces a JSON-decoded numeric value; non-numbers become 0.
func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
