// Package entity maps heterogeneous query result rows to uniform linkable
// Entity records for the response's source list.
package entity

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kdt-ai/neo-backend/internal/model"
)

// maxEntitiesPerExtraction bounds how many rows one result contributes.
const maxEntitiesPerExtraction = 10

// maxNameLen is the display-name ellipsis point.
const maxNameLen = 60

// detailPaths maps each source to its detail-page path segment.
var detailPaths = map[model.Source]string{
	model.SourceResearchers: "/researcher",
	model.SourcePatents:     "/patent",
	model.SourceGrants:      "/grant",
	model.SourcePolicies:    "/bill",
	model.SourcePortfolio:   "/company",
	model.SourceMarketData:  "/trial",
}

// idFallbacks lists id columns tried after "id", per source.
var idFallbacks = map[model.Source][]string{
	model.SourcePatents:    {"patent_id"},
	model.SourceGrants:     {"grant_id"},
	model.SourcePolicies:   {"bill_id"},
	model.SourcePortfolio:  {"company_id"},
	model.SourceMarketData: {"nct_id"},
}

// Extractor turns result rows into Entity records with deep links.
type Extractor struct {
	detailURLs map[model.Source]string
}

// NewExtractor builds an Extractor from the per-source service base URLs.
func NewExtractor(serviceURLs map[model.Source]string) *Extractor {
	urls := make(map[model.Source]string, len(serviceURLs))
	for source, base := range serviceURLs {
		if path, ok := detailPaths[source]; ok {
			urls[source] = strings.TrimRight(base, "/") + path
		}
	}
	return &Extractor{detailURLs: urls}
}

// FromRows extracts up to ten entities from rows belonging to one source.
// Rows without a usable id are skipped.
func (e *Extractor) FromRows(source model.Source, rows []map[string]any) []model.Entity {
	base, ok := e.detailURLs[source]
	if !ok {
		return nil
	}

	var entities []model.Entity
	for _, row := range rows {
		if len(entities) >= maxEntitiesPerExtraction {
			break
		}
		if ent, ok := e.fromRow(source, base, row); ok {
			entities = append(entities, ent)
		}
	}
	return entities
}

func (e *Extractor) fromRow(source model.Source, base string, row map[string]any) (model.Entity, bool) {
	id := rowID(source, row)
	if id == "" {
		return model.Entity{}, false
	}

	ent := model.Entity{
		ID:  id,
		URL: base + "/" + id,
	}

	switch source {
	case model.SourceResearchers:
		name := asString(row["name"])
		if name == "" {
			return model.Entity{}, false
		}
		ent.Type = model.EntityResearcher
		ent.Name = ellipsize(name)
		ent.Meta = "h-index: " + metricOrUnknown(row["h_index"])
	case model.SourcePatents:
		ent.Type = model.EntityPatent
		ent.Name = ellipsize(titleOr(row, "Untitled Patent"))
		ent.Meta = asString(row["patent_number"])
	case model.SourceGrants:
		ent.Type = model.EntityGrant
		ent.Name = ellipsize(titleOr(row, "Untitled Grant"))
		if cost, ok := row["total_cost"].(float64); ok && cost > 0 {
			ent.Meta = formatMoney(cost)
		}
	case model.SourcePolicies:
		ent.Type = model.EntityPolicy
		ent.Name = ellipsize(titleOr(row, "Untitled Bill"))
		ent.Meta = asString(row["status"])
	case model.SourcePortfolio:
		name := asString(row["name"])
		if name == "" {
			name = "Unknown Company"
		}
		ent.Type = model.EntityCompany
		ent.Name = ellipsize(name)
		ent.Meta = asString(row["modality"])
	case model.SourceMarketData:
		ent.Type = model.EntityClinicalTrial
		ent.Name = ellipsize(trimSyncArtifact(titleOr(row, "Untitled Trial", "brief_title", "official_title", "company")))
		ent.Meta = asString(row["status"])
	default:
		return model.Entity{}, false
	}

	return ent, true
}

// rowID picks the id column for a source: "id" first, then source-specific
// fallbacks.
func rowID(source model.Source, row map[string]any) string {
	if id := asString(row["id"]); id != "" {
		return id
	}
	for _, col := range idFallbacks[source] {
		if id := asString(row[col]); id != "" {
			return id
		}
	}
	return ""
}

// asString renders a JSON-decoded scalar as an identifier-safe string.
// Whole floats print without a fractional part so numeric ids stay clean.
func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

func titleOr(row map[string]any, fallback string, cols ...string) string {
	if len(cols) == 0 {
		cols = []string{"title"}
	}
	for _, col := range cols {
		if t := asString(row[col]); t != "" {
			return t
		}
	}
	return fallback
}

// trimSyncArtifact strips the trailing backslash some FDA calendar rows
// carry over from upstream ingestion.
func trimSyncArtifact(s string) string {
	return strings.TrimSpace(strings.TrimRight(s, `\`))
}

func metricOrUnknown(v any) string {
	if s := asString(v); s != "" {
		return s
	}
	return "?"
}

func ellipsize(s string) string {
	runes := []rune(s)
	if len(runes) <= maxNameLen {
		return s
	}
	return string(runes[:maxNameLen]) + "..."
}

// formatMoney renders a dollar amount with comma grouping, no cents.
func formatMoney(amount float64) string {
	return "$" + groupThousands(int64(amount))
}

func groupThousands(n int64) string {
	s := fmt.Sprintf("%d", n)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	for i, digit := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
