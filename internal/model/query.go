package model

// Source is an enumerated tag identifying a remote database.
type Source string

const (
	SourceResearchers Source = "researchers"
	SourcePatents     Source = "patents"
	SourceGrants      Source = "grants"
	SourcePolicies    Source = "policies"
	SourcePortfolio   Source = "portfolio"
	SourceMarketData  Source = "market_data"
	SourceSECSentinel Source = "sec_sentinel"
)

// AllSources returns every known Source, in a stable order.
func AllSources() []Source {
	return []Source{
		SourceResearchers,
		SourcePatents,
		SourceGrants,
		SourcePolicies,
		SourcePortfolio,
		SourceMarketData,
		SourceSECSentinel,
	}
}

// ParseSource maps a raw string to a known Source.
func ParseSource(s string) (Source, bool) {
	for _, src := range AllSources() {
		if string(src) == s {
			return src, true
		}
	}
	return "", false
}

// QueryResult is the shape returned by every upstream /api/sql endpoint.
// Row values keep the source's native JSON types (nil, float64, string, bool).
type QueryResult struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// TableInfo is one entry from an upstream /api/sql/tables listing.
type TableInfo struct {
	Name string `json:"name"`
}

// ColumnInfo is one entry from an upstream /api/sql/schema/<table> response.
type ColumnInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	NotNull bool   `json:"notnull"`
	PK      bool   `json:"pk"`
	Default any    `json:"default,omitempty"`
}
