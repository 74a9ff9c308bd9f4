package tier

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kdt-ai/neo-backend/internal/model"
)

// formatScalar renders a Tier 1 single-value answer. Funding and cost values
// get currency formatting; other numbers get comma grouping.
func formatScalar(key string, value any) string {
	isMoney := strings.Contains(key, "funding") || strings.Contains(key, "cost")

	switch v := value.(type) {
	case float64:
		if isMoney {
			return "$" + groupThousands(int64(v))
		}
		if v == float64(int64(v)) {
			return groupThousands(int64(v))
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		if isMoney {
			return "$0"
		}
		return "0"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// tier2Table renders the fixed per-source column layout as a Markdown table,
// capped at ten rows.
func tier2Table(source model.Source, rows []map[string]any) string {
	switch source {
	case model.SourceResearchers:
		return markdownTable(rows,
			[]column{{"Name", "name", 30}, {"H-Index", "h_index", 10}, {"Slope", "slope", 10}, {"Category", "primary_category", 20}})
	case model.SourcePatents:
		return markdownTable(rows,
			[]column{{"Title", "title", 40}, {"Patent #", "patent_number", 12}, {"Filing Date", "filing_date", 12}})
	case model.SourceGrants:
		return markdownTable(rows,
			[]column{{"Title", "title", 40}, {"Amount", "total_cost", 14}, {"Institute", "institute", 20}})
	case model.SourceMarketData:
		return markdownTable(rows,
			[]column{{"Title", "brief_title", 40}, {"Status", "status", 20}, {"Phase", "phase", 10}, {"Sponsor", "sponsor", 24}})
	case model.SourcePortfolio:
		return portfolioCard(rows)
	default:
		return fmt.Sprintf("%d rows", len(rows))
	}
}

type column struct {
	header string
	key    string
	width  int
}

func markdownTable(rows []map[string]any, cols []column) string {
	if len(rows) == 0 {
		return "No results found."
	}

	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteString(" | ")
		} else {
			b.WriteString("| ")
		}
		b.WriteString(c.header)
	}
	b.WriteString(" |\n")
	for range cols {
		b.WriteString("|---")
	}
	b.WriteString("|\n")

	shown := rows
	if len(shown) > 10 {
		shown = shown[:10]
	}
	for _, row := range shown {
		b.WriteString("|")
		for _, c := range cols {
			b.WriteString(" ")
			b.WriteString(cellValue(c, row[c.key]))
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func cellValue(c column, v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		s = "?"
	case float64:
		if strings.Contains(c.key, "cost") || strings.Contains(c.key, "funding") {
			s = "$" + groupThousands(int64(val))
		} else if val == float64(int64(val)) {
			s = strconv.FormatInt(int64(val), 10)
		} else {
			s = strconv.FormatFloat(val, 'f', 2, 64)
		}
	case string:
		if val == "" {
			s = "?"
		} else {
			s = val
		}
	default:
		s = fmt.Sprintf("%v", val)
	}
	return truncateCell(s, c.width)
}

func truncateCell(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	return string(runes[:width]) + "…"
}

// portfolioCard renders a single-company info card.
func portfolioCard(rows []map[string]any) string {
	if len(rows) == 0 {
		return "No results found."
	}
	r := rows[0]
	return fmt.Sprintf("**%v**\n- Modality: %v\n- Advantage: %v\n- Indications: %v",
		orUnknown(r["name"]), orUnknown(r["modality"]), orUnknown(r["competitive_advantage"]), orUnknown(r["indications"]))
}

func orUnknown(v any) any {
	if v == nil || v == "" {
		return "?"
	}
	return v
}

// aggregationTable renders a two-or-three column GROUP BY result.
func aggregationTable(title string, columns []string, rows []map[string]any) string {
	var b strings.Builder
	b.WriteString("**" + title + "**\n")
	shown := rows
	if len(shown) > 20 {
		shown = shown[:20]
	}
	for _, row := range shown {
		parts := make([]string, 0, len(columns))
		for _, col := range columns {
			parts = append(parts, formatScalar(col, row[col]))
		}
		b.WriteString("- " + strings.Join(parts, ": ") + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
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
