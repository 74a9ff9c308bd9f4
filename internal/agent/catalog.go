package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kdt-ai/neo-backend/internal/entity"
	"github.com/kdt-ai/neo-backend/internal/model"
	"github.com/kdt-ai/neo-backend/internal/semantic"
)

// SQLClient is the slice of the SQL access layer the raw tools need.
type SQLClient interface {
	Execute(ctx context.Context, source model.Source, query string) (*model.QueryResult, error)
	ListTables(ctx context.Context, source model.Source) ([]model.TableInfo, error)
	Describe(ctx context.Context, source model.Source, table string) ([]model.ColumnInfo, error)
}

// CatalogDeps wires the tool implementations.
type CatalogDeps struct {
	Functions *semantic.Functions
	DB        SQLClient
	Extractor *entity.Extractor
}

// Catalog builds the fixed tool registry advertised to the model: semantic
// functions, one raw SQL tool per source, schema introspection, and the
// insight recorder.
func Catalog(deps CatalogDeps) *Registry {
	defs := []*ToolDef{
		// Researchers
		{
			Name:        "get_researchers",
			Description: "Find researchers with optional filters, ranked by h-index. Prefer this over raw SQL for researcher lookups; it handles the JSON topics field.",
			InputSchema: objSchema(map[string]any{
				"min_h_index": intProp("Minimum h-index"),
				"topic":       strProp("Research topic to search for"),
				"affiliation": strProp("Institution to filter by"),
				"limit":       intProp("Max results (default 20)"),
			}),
			StatusLabel: "Finding researchers...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					MinHIndex   int    `json:"min_h_index"`
					Topic       string `json:"topic"`
					Affiliation string `json:"affiliation"`
					Limit       int    `json:"limit"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.GetResearchers(ctx, semantic.ResearcherFilter{
					MinHIndex: in.MinHIndex, Topic: in.Topic, Affiliation: in.Affiliation, Limit: in.Limit,
				})
				return collect(res, err, deps.Extractor, st)
			},
		},
		{
			Name:        "get_researcher_profile",
			Description: "Detailed profile for a researcher by (partial) name, with a trajectory label: rising_star, growing, stable, or established.",
			InputSchema: objSchema(map[string]any{
				"name": strProp("Researcher name, partial match supported"),
			}, "name"),
			StatusLabel: "Getting researcher profile...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Name string `json:"name"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.GetResearcherProfile(ctx, in.Name)
				return collect(res, err, deps.Extractor, st)
			},
		},
		{
			Name:        "get_rising_stars",
			Description: "Researchers whose h-index is growing fastest. Slope above 3 marks very fast growth; the h-index window excludes already-established names.",
			InputSchema: objSchema(map[string]any{
				"min_slope":   numProp("Minimum h-index growth rate (default 2.0)"),
				"min_h_index": intProp("Minimum current h-index (default 15)"),
				"max_h_index": intProp("Maximum h-index (default 80)"),
				"topic":       strProp("Filter by research topic"),
				"limit":       intProp("Max results (default 20)"),
			}),
			StatusLabel: "Finding rising star researchers...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					MinSlope  float64 `json:"min_slope"`
					MinHIndex int     `json:"min_h_index"`
					MaxHIndex int     `json:"max_h_index"`
					Topic     string  `json:"topic"`
					Limit     int     `json:"limit"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.GetRisingStars(ctx, semantic.RisingStarFilter{
					MinSlope: in.MinSlope, MinHIndex: in.MinHIndex, MaxHIndex: in.MaxHIndex, Topic: in.Topic, Limit: in.Limit,
				})
				return collect(res, err, deps.Extractor, st)
			},
		},
		{
			Name:        "get_researchers_by_topic",
			Description: "Top researchers in a research area, ranked by h-index.",
			InputSchema: objSchema(map[string]any{
				"topic": strProp("Research topic, e.g. 'CRISPR', 'mRNA', 'immunotherapy'"),
				"limit": intProp("Max results (default 20)"),
			}, "topic"),
			StatusLabel: "Finding researchers by topic...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Topic string `json:"topic"`
					Limit int    `json:"limit"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.GetResearchersByTopic(ctx, in.Topic, in.Limit)
				return collect(res, err, deps.Extractor, st)
			},
		},

		// Patents
		{
			Name:        "get_patents",
			Description: "Search patents by assignee, inventor, CPC code, recency, or keyword. Newest grants first.",
			InputSchema: objSchema(map[string]any{
				"assignee": strProp("Company or organization that owns the patent"),
				"inventor": strProp("Inventor name"),
				"cpc_code": strProp("CPC classification code, e.g. 'A61K' for pharma"),
				"days":     intProp("Only patents granted in the last N days"),
				"keyword":  strProp("Search in title and abstract"),
				"limit":    intProp("Max results (default 20)"),
			}),
			StatusLabel: "Searching patents...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Assignee string `json:"assignee"`
					Inventor string `json:"inventor"`
					CPCCode  string `json:"cpc_code"`
					Days     int    `json:"days"`
					Keyword  string `json:"keyword"`
					Limit    int    `json:"limit"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.GetPatents(ctx, semantic.PatentFilter{
					Assignee: in.Assignee, Inventor: in.Inventor, CPCCode: in.CPCCode,
					Days: in.Days, Keyword: in.Keyword, Limit: in.Limit,
				})
				return collect(res, err, deps.Extractor, st)
			},
		},
		{
			Name:        "get_patent_portfolio",
			Description: "Complete patent portfolio for an assignee: summary statistics plus the most recent patents.",
			InputSchema: objSchema(map[string]any{
				"assignee": strProp("Company or organization name"),
			}, "assignee"),
			StatusLabel: "Analyzing patent portfolio...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Assignee string `json:"assignee"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.GetPatentPortfolio(ctx, in.Assignee)
				return collect(res, err, deps.Extractor, st)
			},
		},
		{
			Name:        "get_inventors_by_company",
			Description: "Top inventors at a company by patent count.",
			InputSchema: objSchema(map[string]any{
				"assignee": strProp("Company or organization name"),
				"limit":    intProp("Max results (default 20)"),
			}, "assignee"),
			StatusLabel: "Finding key inventors...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Assignee string `json:"assignee"`
					Limit    int    `json:"limit"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.GetInventorsByCompany(ctx, in.Assignee, in.Limit)
				return collect(res, err, deps.Extractor, st)
			},
		},
		{
			Name:        "search_patents_by_topic",
			Description: "Patent landscape search over titles and abstracts.",
			InputSchema: objSchema(map[string]any{
				"keywords": strProp("Keywords to search, e.g. 'mRNA delivery', 'CAR-T'"),
				"limit":    intProp("Max results (default 20)"),
			}, "keywords"),
			StatusLabel: "Searching patent landscape...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Keywords string `json:"keywords"`
					Limit    int    `json:"limit"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.SearchPatentsByTopic(ctx, in.Keywords, in.Limit)
				return collect(res, err, deps.Extractor, st)
			},
		},

		// Grants
		{
			Name:        "get_grants",
			Description: "Search grants by organization, PI, mechanism, amount, institute, or keyword. Largest awards first.",
			InputSchema: objSchema(map[string]any{
				"organization": strProp("Institution receiving the grant"),
				"pi_name":      strProp("Principal investigator name"),
				"mechanism":    strProp("Grant type: R01, R21, SBIR, STTR, K, U"),
				"min_amount":   intProp("Minimum total funding amount"),
				"institute":    strProp("NIH institute, e.g. 'NCI', 'NIAID'"),
				"keyword":      strProp("Search in title and abstract"),
				"limit":        intProp("Max results (default 20)"),
			}),
			StatusLabel: "Searching grants...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Organization string `json:"organization"`
					PIName       string `json:"pi_name"`
					Mechanism    string `json:"mechanism"`
					MinAmount    int    `json:"min_amount"`
					Institute    string `json:"institute"`
					Keyword      string `json:"keyword"`
					Limit        int    `json:"limit"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.GetGrants(ctx, semantic.GrantFilter{
					Organization: in.Organization, PIName: in.PIName, Mechanism: in.Mechanism,
					MinAmount: in.MinAmount, Institute: in.Institute, Keyword: in.Keyword, Limit: in.Limit,
				})
				return collect(res, err, deps.Extractor, st)
			},
		},
		{
			Name:        "get_funding_summary",
			Description: "Funding overview for an organization: totals, mechanism breakdown, and top-funded projects.",
			InputSchema: objSchema(map[string]any{
				"organization": strProp("Institution name"),
			}, "organization"),
			StatusLabel: "Analyzing funding...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Organization string `json:"organization"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.GetFundingSummary(ctx, in.Organization)
				return collect(res, err, deps.Extractor, st)
			},
		},
		{
			Name:        "get_pis_by_organization",
			Description: "Principal investigators at an organization ranked by total funding.",
			InputSchema: objSchema(map[string]any{
				"organization": strProp("Institution name"),
				"limit":        intProp("Max results (default 20)"),
			}, "organization"),
			StatusLabel: "Finding principal investigators...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Organization string `json:"organization"`
					Limit        int    `json:"limit"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.GetPIsByOrganization(ctx, in.Organization, in.Limit)
				return collect(res, err, deps.Extractor, st)
			},
		},
		{
			Name:        "get_grants_by_topic",
			Description: "Funding landscape search over grant titles and abstracts.",
			InputSchema: objSchema(map[string]any{
				"keywords": strProp("Keywords to search, e.g. 'CRISPR', 'mRNA vaccine'"),
				"limit":    intProp("Max results (default 20)"),
			}, "keywords"),
			StatusLabel: "Searching grant landscape...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Keywords string `json:"keywords"`
					Limit    int    `json:"limit"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.GetGrantsByTopic(ctx, in.Keywords, in.Limit)
				return collect(res, err, deps.Extractor, st)
			},
		},

		// Cross-database
		{
			Name:        "search_entity",
			Description: "Find an entity (company, university, person) across every database at once and see where data exists about it.",
			InputSchema: objSchema(map[string]any{
				"name": strProp("Entity name to search for"),
			}, "name"),
			StatusLabel: "Searching across all databases...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Name string `json:"name"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.SearchEntity(ctx, in.Name)
				return collect(res, err, deps.Extractor, st)
			},
		},
		{
			Name:        "get_company_profile",
			Description: "Unified company view: patents owned, grants received, and affiliated researchers in one call.",
			InputSchema: objSchema(map[string]any{
				"name": strProp("Company name"),
			}, "name"),
			StatusLabel: "Building company profile...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Name string `json:"name"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.GetCompanyProfile(ctx, in.Name)
				return collect(res, err, deps.Extractor, st)
			},
		},

		// SEC Sentinel
		{
			Name:        "get_sec_filings",
			Description: "Search SEC filings (8-K, 10-K, 10-Q, S-1, S-3, Form 4) with linked cash-runway status.",
			InputSchema: objSchema(map[string]any{
				"ticker":        strProp("Stock ticker symbol"),
				"form_type":     strProp("Filing type: 8-K, 10-K, 10-Q, S-1, S-3, 4, SC 13D"),
				"days":          intProp("Look back N days (default 30)"),
				"runway_status": enumProp("Filter by runway status", "critical", "low", "moderate", "healthy"),
			}),
			StatusLabel: "Searching SEC filings...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Ticker       string `json:"ticker"`
					FormType     string `json:"form_type"`
					Days         int    `json:"days"`
					RunwayStatus string `json:"runway_status"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.GetSECFilings(ctx, semantic.SECFilingFilter{
					Ticker: in.Ticker, FormType: in.FormType, Days: in.Days, RunwayStatus: in.RunwayStatus,
				})
				return collect(res, err, deps.Extractor, st)
			},
		},
		{
			Name:        "get_companies_by_runway",
			Description: "Companies sorted by months of cash runway, lowest first. Critical runway often precedes fundraising or acquisition.",
			InputSchema: objSchema(map[string]any{
				"max_months": numProp("Maximum runway in months, e.g. 6 for critical only"),
				"min_months": numProp("Minimum runway in months"),
				"limit":      intProp("Max results (default 50)"),
			}),
			StatusLabel: "Checking company runway data...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					MaxMonths float64 `json:"max_months"`
					MinMonths float64 `json:"min_months"`
					Limit     int     `json:"limit"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.GetCompaniesByRunway(ctx, semantic.RunwayFilter{
					MaxMonths: in.MaxMonths, MinMonths: in.MinMonths, Limit: in.Limit,
				})
				return collect(res, err, deps.Extractor, st)
			},
		},
		{
			Name:        "get_insider_transactions",
			Description: "Insider buys and sells (Form 4) with linked runway data. Sells at low-runway companies are a distress marker.",
			InputSchema: objSchema(map[string]any{
				"ticker":           strProp("Stock ticker symbol"),
				"insider_role":     strProp("Filter by role: CEO, CFO, Director"),
				"transaction_type": enumProp("Filter by direction", "buy", "sell"),
				"days":             intProp("Look back N days (default 90)"),
				"min_value":        numProp("Minimum transaction value in dollars"),
			}),
			StatusLabel: "Searching insider transactions...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Ticker          string  `json:"ticker"`
					InsiderRole     string  `json:"insider_role"`
					TransactionType string  `json:"transaction_type"`
					Days            int     `json:"days"`
					MinValue        float64 `json:"min_value"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.Functions.GetInsiderTransactions(ctx, semantic.InsiderFilter{
					Ticker: in.Ticker, InsiderRole: in.InsiderRole, TransactionType: in.TransactionType,
					Days: in.Days, MinValue: in.MinValue,
				})
				return collect(res, err, deps.Extractor, st)
			},
		},
		{
			Name:        "get_runway_alerts",
			Description: "The distress watchlist: critical runway plus recent S-3 filings plus insider sells at at-risk companies.",
			InputSchema: objSchema(map[string]any{}),
			StatusLabel: "Checking runway alerts...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				res, err := deps.Functions.GetRunwayAlerts(ctx)
				return collect(res, err, deps.Extractor, st)
			},
		},
	}

	defs = append(defs, rawSQLTools(deps)...)
	defs = append(defs, introspectionTools(deps)...)
	defs = append(defs, insightTool())

	return NewRegistry(defs)
}

// rawSQLTools builds one query_<source> passthrough per source.
func rawSQLTools(deps CatalogDeps) []*ToolDef {
	descriptions := map[model.Source]string{
		model.SourceResearchers: "Run a SQL SELECT against the researchers database. Tables: researchers (id, name, h_index, slope, topics, affiliations, primary_category), h_index_history, topic_categories.",
		model.SourcePatents:     "Run a SQL SELECT against the patents database. Tables: patents (id, patent_number, title, abstract, grant_date, filing_date, primary_assignee, cpc_codes, claims_count), inventors, cpc_classifications, portfolio_companies, patent_company_relevance.",
		model.SourceGrants:      "Run a SQL SELECT against the grants database. Tables: grants (id, title, abstract, agency, institute, mechanism, total_cost, organization, fiscal_year), principal_investigators, portfolio_companies, entity_links.",
		model.SourcePolicies:    "Run a SQL SELECT against the policies database. Tables: bills (id, title, summary, status), analyses.",
		model.SourcePortfolio:   "Run a SQL SELECT against the portfolio database. Tables: companies (id, name, ticker, modality, competitive_advantage, indications, fund), updates.",
		model.SourceMarketData:  "Run a SQL SELECT against the clinical trials and FDA calendar database. Tables: clinical_trials (id, nct_id, brief_title, status, phase, conditions, interventions, sponsor, enrollment, start_date), fda_events.",
		model.SourceSECSentinel: "Run a SQL SELECT against the SEC filings database. Tables: filings, runway, insider_transactions.",
	}
	labels := map[model.Source]string{
		model.SourceResearchers: "Querying researchers database...",
		model.SourcePatents:     "Querying patents database...",
		model.SourceGrants:      "Querying grants database...",
		model.SourcePolicies:    "Querying policies database...",
		model.SourcePortfolio:   "Querying portfolio database...",
		model.SourceMarketData:  "Querying clinical trials database...",
		model.SourceSECSentinel: "Querying SEC filings database...",
	}

	defs := make([]*ToolDef, 0, len(descriptions))
	for _, source := range model.AllSources() {
		defs = append(defs, &ToolDef{
			Name:        "query_" + string(source),
			Description: descriptions[source],
			InputSchema: objSchema(map[string]any{
				"query": strProp("SQL SELECT query to execute"),
			}, "query"),
			StatusLabel: labels[source],
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Query string `json:"query"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				res, err := deps.DB.Execute(ctx, source, in.Query)
				if err != nil {
					return nil, err
				}
				st.Entities = append(st.Entities, deps.Extractor.FromRows(source, res.Rows)...)
				return res, nil
			},
		})
	}
	return defs
}

func introspectionTools(deps CatalogDeps) []*ToolDef {
	databaseEnum := make([]string, 0, len(model.AllSources()))
	for _, s := range model.AllSources() {
		databaseEnum = append(databaseEnum, string(s))
	}

	return []*ToolDef{
		{
			Name:        "list_tables",
			Description: "List all tables in a database. Use before writing raw SQL.",
			InputSchema: objSchema(map[string]any{
				"database": enumProp("Which database to list tables from", databaseEnum...),
			}, "database"),
			StatusLabel: "Exploring database schema...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Database string `json:"database"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				source, ok := model.ParseSource(in.Database)
				if !ok {
					return nil, fmt.Errorf("unknown database: %s", in.Database)
				}
				return deps.DB.ListTables(ctx, source)
			},
		},
		{
			Name:        "describe_table",
			Description: "Get the column schema for a table.",
			InputSchema: objSchema(map[string]any{
				"database":   enumProp("Which database the table is in", databaseEnum...),
				"table_name": strProp("Name of the table to describe"),
			}, "database", "table_name"),
			StatusLabel: "Examining table structure...",
			Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
				var in struct {
					Database  string `json:"database"`
					TableName string `json:"table_name"`
				}
				if err := unmarshalInput(input, &in); err != nil {
					return nil, err
				}
				source, ok := model.ParseSource(in.Database)
				if !ok {
					return nil, fmt.Errorf("unknown database: %s", in.Database)
				}
				return deps.DB.Describe(ctx, source, in.TableName)
			},
		},
	}
}

func insightTool() *ToolDef {
	return &ToolDef{
		Name:        "append_insight",
		Description: "Record a key finding to highlight in the final response.",
		InputSchema: objSchema(map[string]any{
			"insight": strProp("The business insight to record"),
		}, "insight"),
		StatusLabel: "Recording insight...",
		Handler: func(ctx context.Context, input json.RawMessage, st *RunState) (any, error) {
			var in struct {
				Insight string `json:"insight"`
			}
			if err := unmarshalInput(input, &in); err != nil {
				return nil, err
			}
			st.Insights = append(st.Insights, in.Insight)
			return map[string]any{"status": "insight recorded", "total_insights": len(st.Insights)}, nil
		},
	}
}

// collect merges a semantic result's link rows into the run's entity list.
func collect(res *semantic.Result, err error, ex *entity.Extractor, st *RunState) (any, error) {
	if err != nil {
		return nil, err
	}
	for _, link := range res.Links {
		st.Entities = append(st.Entities, ex.FromRows(link.Source, link.Rows)...)
	}
	return res.Payload, nil
}

func unmarshalInput(input json.RawMessage, out any) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, out); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	return nil
}

// JSON-schema literal helpers.

func objSchema(props map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

func strProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func intProp(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func numProp(desc string) map[string]any {
	return map[string]any{"type": "number", "description": desc}
}

func enumProp(desc string, values ...string) map[string]any {
	return map[string]any{"type": "string", "description": desc, "enum": values}
}
