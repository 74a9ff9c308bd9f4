package semantic

import (
	"context"
	"fmt"
	"strings"

	"github.com/kdt-ai/neo-backend/internal/model"
)

// GrantFilter holds the optional filters for GetGrants.
type GrantFilter struct {
	Organization string
	PIName       string
	Mechanism    string
	MinAmount    int
	Institute    string
	Keyword      string
	Limit        int
}

const grantColumns = "id, title, abstract, agency, institute, mechanism, total_cost, organization, fiscal_year, start_date, end_date"

// GetGrants searches grants with filters, largest awards first.
func (f *Functions) GetGrants(ctx context.Context, filter GrantFilter) (*Result, error) {
	var where []string
	var criteria []string

	if filter.Organization != "" {
		org, err := likeParam(filter.Organization)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("organization LIKE '%%%s%%'", org))
		criteria = append(criteria, "organization: "+org)
	}
	if filter.PIName != "" {
		pi, err := likeParam(filter.PIName)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("id IN (SELECT grant_id FROM principal_investigators WHERE name LIKE '%%%s%%')", pi))
		criteria = append(criteria, "PI: "+pi)
	}
	if filter.Mechanism != "" {
		mech, err := likeParam(filter.Mechanism)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("mechanism LIKE '%%%s%%'", mech))
		criteria = append(criteria, "mechanism: "+mech)
	}
	if filter.MinAmount > 0 {
		where = append(where, fmt.Sprintf("total_cost >= %d", filter.MinAmount))
		criteria = append(criteria, fmt.Sprintf("total cost >= $%d", filter.MinAmount))
	}
	if filter.Institute != "" {
		inst, err := likeParam(filter.Institute)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("institute LIKE '%%%s%%'", inst))
		criteria = append(criteria, "institute: "+inst)
	}
	if filter.Keyword != "" {
		kw, err := likeParam(filter.Keyword)
		if err != nil {
			return nil, err
		}
		where = append(where, fmt.Sprintf("(title LIKE '%%%s%%' OR abstract LIKE '%%%s%%')", kw, kw))
		criteria = append(criteria, "keyword: "+kw)
	}

	query := "SELECT " + grantColumns + " FROM grants"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY total_cost DESC LIMIT %d", clampLimit(filter.Limit, 20, 100))

	res, err := f.db.Execute(ctx, model.SourceGrants, query)
	if err != nil {
		return nil, err
	}

	return &Result{
		Payload: map[string]any{
			"rows":      res.Rows,
			"row_count": res.RowCount,
			"_context": queryContext(
				"Grants matching the given filters, largest awards first",
				strings.Join(criteria, ", "),
				"large R01/U mechanisms signal sustained institutional commitment to the area",
			),
		},
		Links: []LinkRows{{Source: model.SourceGrants, Rows: res.Rows}},
	}, nil
}

// GetFundingSummary aggregates an organization's grant funding.
func (f *Functions) GetFundingSummary(ctx context.Context, organization string) (*Result, error) {
	org, err := likeParam(organization)
	if err != nil {
		return nil, err
	}

	summary, err := f.db.Execute(ctx, model.SourceGrants, fmt.Sprintf(
		"SELECT COUNT(*) as grant_count, SUM(total_cost) as total_funding, AVG(total_cost) as avg_award FROM grants WHERE organization LIKE '%%%s%%' AND total_cost > 0",
		org,
	))
	if err != nil {
		return nil, err
	}

	byMechanism, err := f.db.Execute(ctx, model.SourceGrants, fmt.Sprintf(
		"SELECT mechanism, COUNT(*) as grant_count, SUM(total_cost) as total_funding FROM grants WHERE organization LIKE '%%%s%%' GROUP BY mechanism ORDER BY total_funding DESC LIMIT 10",
		org,
	))
	if err != nil {
		return nil, err
	}

	topGrants, err := f.db.Execute(ctx, model.SourceGrants, fmt.Sprintf(
		"SELECT %s FROM grants WHERE organization LIKE '%%%s%%' ORDER BY total_cost DESC LIMIT 10",
		grantColumns, org,
	))
	if err != nil {
		return nil, err
	}

	var summaryRow map[string]any
	if len(summary.Rows) > 0 {
		summaryRow = summary.Rows[0]
	}

	return &Result{
		Payload: map[string]any{
			"organization": org,
			"summary":      summaryRow,
			"by_mechanism": byMechanism.Rows,
			"top_grants":   topGrants.Rows,
			"_context": queryContext(
				"Funding overview for one organization",
				"organization: "+org,
				"mechanism mix shows whether funding is exploratory (R21) or programmatic (R01, U)",
			),
		},
		Links: []LinkRows{{Source: model.SourceGrants, Rows: topGrants.Rows}},
	}, nil
}

// GetPIsByOrganization ranks principal investigators at an organization by
// total funding.
func (f *Functions) GetPIsByOrganization(ctx context.Context, organization string, limit int) (*Result, error) {
	org, err := likeParam(organization)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT pi.name, COUNT(*) as grant_count, SUM(g.total_cost) as total_funding FROM principal_investigators pi JOIN grants g ON g.id = pi.grant_id WHERE pi.organization LIKE '%%%s%%' GROUP BY pi.name ORDER BY total_funding DESC LIMIT %d",
		org, clampLimit(limit, 20, 100),
	)
	res, err := f.db.Execute(ctx, model.SourceGrants, query)
	if err != nil {
		return nil, err
	}

	return &Result{
		Payload: map[string]any{
			"rows":      res.Rows,
			"row_count": res.RowCount,
			"_context": queryContext(
				"Top-funded principal investigators at the organization",
				"organization: "+org,
				"a PI's funding concentration shows who actually controls the research agenda",
			),
		},
	}, nil
}

// GetGrantsByTopic searches grant titles and abstracts for a funding landscape.
func (f *Functions) GetGrantsByTopic(ctx context.Context, keywords string, limit int) (*Result, error) {
	return f.GetGrants(ctx, GrantFilter{Keyword: keywords, Limit: limit})
}
