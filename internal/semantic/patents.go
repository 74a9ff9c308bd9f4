package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/kdt-ai/neo-backend/internal/model"
)

// PatentFilter holds the optional filters for GetPatents.
type PatentFilter struct {
	Assignee string
	Inventor string
	CPCCode  string
	Days     int
	Keyword  string
	Limit    int
}

const patentColumns = "id, patent_number, title, abstract, grant_date, filing_date, primary_assignee, cpc_codes, claims_count"

// GetPatents searches patents with filters, most recently granted first.
func (f *Functions) GetPatents(ctx context.Context, filter PatentFilter) (*Result, error) {
	var where []string
	var criteria []string

	if filter.Assignee != "" {
		assignee, err := likeParam(filter.Assignee)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("primary_assignee LIKE '%%%s%%'", assignee))
		criteria = append(criteria, "assignee: "+assignee)
	}
	if filter.Inventor != "" {
		inventor, err := likeParam(filter.Inventor)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("id IN (SELECT patent_id FROM inventors WHERE name LIKE '%%%s%%')", inventor))
		criteria = append(criteria, "inventor: "+inventor)
	}
	if filter.CPCCode != "" {
		cpc, err := likeParam(filter.CPCCode)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("cpc_codes LIKE '%%%s%%'", cpc))
		criteria = append(criteria, "CPC: "+cpc)
	}
	if filter.Days > 0 {
		where = append(where, fmt.Sprintf("grant_date >= date('now', '-%d days')", filter.Days))
		criteria = append(criteria, fmt.Sprintf("granted in last %d days", filter.Days))
	}
	if filter.Keyword != "" {
		kw, err := likeParam(filter.Keyword)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("(title LIKE '%%%s%%' OR abstract LIKE '%%%s%%')", kw, kw))
		criteria = append(criteria, "keyword: "+kw)
	}

	query := "SELECT " + patentColumns + " FROM patents"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY grant_date DESC LIMIT %d", clampLimit(filter.Limit, 20, 100))

	res, err := f.db.Execute(ctx, model.SourcePatents, query)
	if err != nil {
		return nil, err
	}

	return &Result{
		Payload: map[string]any{
			"rows":      res.Rows,
			"row_count": res.RowCount,
			"_context": queryContext(
				"Patents matching the given filters, newest grants first",
				strings.Join(criteria, ", "),
				"recent grant dates show where a technology area is actively maturing",
			),
		},
		Links: []LinkRows{{Source: model.SourcePatents, Rows: res.Rows}},
	}, nil
}

// GetPatentPortfolio summarizes a single assignee's patent holdings.
func (f *Functions) GetPatentPortfolio(ctx context.Context, assignee string) (*Result, error) {
	a, err := likeParam(assignee)
	if err != nil {
		return nil, err
	}

	summaryQuery := fmt.Sprintf(
		"SELECT COUNT(*) as count, MIN(filing_date) as earliest, MAX(filing_date) as latest, AVG(claims_count) as avg_claims FROM patents WHERE primary_assignee LIKE '%%%s%%'",
		a,
	)
	summary, err := f.db.Execute(ctx, model.SourcePatents, summaryQuery)
	if err != nil {
		return nil, err
	}

	listQuery := fmt.Sprintf(
		"SELECT %s FROM patents WHERE primary_assignee LIKE '%%%s%%' ORDER BY grant_date DESC LIMIT 50",
		patentColumns, a,
	)
	patents, err := f.db.Execute(ctx, model.SourcePatents, listQuery)
	if err != nil {
		return nil, err
	}

	var summaryRow map[string]any
	if len(summary.Rows) > 0 {
		summaryRow = summary.Rows[0]
	}

	return &Result{
		Payload: map[string]any{
			"assignee": a,
			"summary":  summaryRow,
			"patents":  patents.Rows,
			"_context": queryContext(
				"Patent portfolio overview for one assignee",
				"assignee: "+a,
				"filing span and claim counts indicate portfolio depth and breadth",
			),
		},
		Links: []LinkRows{{Source: model.SourcePatents, Rows: patents.Rows}},
	}, nil
}

// GetInventorsByCompany ranks inventors at a company by patent count.
func (f *Functions) GetInventorsByCompany(ctx context.Context, assignee string, limit int) (*Result, error) {
	a, err := likeParam(assignee)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT i.name, COUNT(*) as patent_count FROM inventors i JOIN patents p ON p.id = i.patent_id WHERE p.primary_assignee LIKE '%%%s%%' GROUP BY i.name ORDER BY patent_count DESC LIMIT %d",
		a, clampLimit(limit, 20, 100),
	)
	res, err := f.db.Execute(ctx, model.SourcePatents, query)
	if err != nil {
		return nil, err
	}

	return &Result{
		Payload: map[string]any{
			"rows":      res.Rows,
			"row_count": res.RowCount,
			"_context": queryContext(
				"Most prolific inventors at the company",
				"assignee: "+a,
				"the top inventors usually anchor the company's core technical program",
			),
		},
	}, nil
}

// SearchPatentsByTopic searches title and abstract for landscape analysis.
func (f *Functions) SearchPatentsByTopic(ctx context.Context, keywords string, limit int) (*Result, error) {
	return f.GetPatents(ctx, PatentFilter{Keyword: keywords, Limit: limit})
}
