package tier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kdt-ai/neo-backend/internal/model"
)

// sourceKeywords drive the keyword-detection pass. Matching is substring
// over the lowercased question.
var sourceKeywords = map[model.Source][]string{
	model.SourceResearchers: {"researcher", "scientist", "h-index", "h_index", "talent", "professor", "faculty", "rising star", "hidden gem"},
	model.SourcePatents:     {"patent", "inventor", "intellectual property", "cpc", "assignee"},
	model.SourceGrants:      {"grant", "funding", "nih", "sbir", "r01", "principal investigator"},
	model.SourceSECSentinel: {"sec filing", "runway", "insider", "8-k", "10-k", "10-q", "s-3", "ticker"},
	model.SourceMarketData:  {"clinical trial", "trial", "fda", "phase 1", "phase 2", "phase 3", "sponsor", "nct"},
	model.SourcePortfolio:   {"portfolio", "our compan"},
	model.SourcePolicies:    {"bill", "policy", "policies", "legislation", "regulation"},
}

// intentPatterns bucket a question by phrasing.
var intentPatterns = []struct {
	intent string
	re     *regexp.Regexp
}{
	{"count", regexp.MustCompile(`^how many|count of|number of`)},
	{"top_n", regexp.MustCompile(`top \d+|\btop\b|highest|largest|most cited|best funded`)},
	{"compare", regexp.MustCompile(`compare|versus|\bvs\.?\b|difference between`)},
	{"aggregate", regexp.MustCompile(`\btotal\b|\bsum\b|average|breakdown|by (status|phase|sponsor|institute|category|mechanism)`)},
	{"lookup", regexp.MustCompile(`who is|what is|tell me about|info on|profile`)},
	{"list", regexp.MustCompile(`\blist\b|show me|what are|which`)},
	{"filter", regexp.MustCompile(`at least|more than|over \$?\d|under \$?\d|\bwith\b`)},
	{"cross_db", regexp.MustCompile(`across (all|databases|sources)|combined|360`)},
}

// popularAggregations are canned GROUP BY answers served from the router's
// own TTL cache.
var popularAggregations = []aggregation{
	{
		name:   "trials_by_status",
		re:     regexp.MustCompile(`trials? by status`),
		source: model.SourceMarketData,
		sql:    "SELECT status, COUNT(*) as count FROM clinical_trials GROUP BY status ORDER BY count DESC",
		title:  "Clinical trials by status",
	},
	{
		name:   "trials_by_phase",
		re:     regexp.MustCompile(`trials? by phase`),
		source: model.SourceMarketData,
		sql:    "SELECT phase, COUNT(*) as count FROM clinical_trials GROUP BY phase ORDER BY count DESC",
		title:  "Clinical trials by phase",
	},
	{
		name:   "trials_by_sponsor",
		re:     regexp.MustCompile(`trials? by sponsor`),
		source: model.SourceMarketData,
		sql:    "SELECT sponsor, COUNT(*) as count FROM clinical_trials GROUP BY sponsor ORDER BY count DESC LIMIT 20",
		title:  "Clinical trials by sponsor",
	},
	{
		name:   "grants_by_institute",
		re:     regexp.MustCompile(`grants? by institute`),
		source: model.SourceGrants,
		sql:    "SELECT institute, COUNT(*) as count, SUM(total_cost) as total_funding FROM grants GROUP BY institute ORDER BY total_funding DESC LIMIT 20",
		title:  "Grants by institute",
	},
	{
		name:   "researchers_by_category",
		re:     regexp.MustCompile(`researchers? by (category|field)`),
		source: model.SourceResearchers,
		sql:    "SELECT primary_category, COUNT(*) as count FROM researchers GROUP BY primary_category ORDER BY count DESC LIMIT 20",
		title:  "Researchers by category",
	},
}

type aggregation struct {
	name   string
	re     *regexp.Regexp
	source model.Source
	sql    string
	title  string
}

// tier1Pattern is a direct lookup: one canned statement, one scalar answer.
// An empty sql means "list tables for the source".
type tier1Pattern struct {
	re     *regexp.Regexp
	source model.Source
	sql    string
}

var tier1Patterns = []tier1Pattern{
	{regexp.MustCompile(`how many (researchers?|scientists?)`), model.SourceResearchers, "SELECT COUNT(*) as count FROM researchers"},
	{regexp.MustCompile(`how many patents?`), model.SourcePatents, "SELECT COUNT(*) as count FROM patents"},
	{regexp.MustCompile(`how many grants?`), model.SourceGrants, "SELECT COUNT(*) as count FROM grants"},
	{regexp.MustCompile(`how many (clinical )?trials?`), model.SourceMarketData, "SELECT COUNT(*) as count FROM clinical_trials"},
	{regexp.MustCompile(`how many (companies|portfolio)`), model.SourcePortfolio, "SELECT COUNT(*) as count FROM companies"},
	{regexp.MustCompile(`how many (bills?|policies)`), model.SourcePolicies, "SELECT COUNT(*) as count FROM bills"},
	{regexp.MustCompile(`how many hidden gems?`), model.SourceResearchers, "SELECT COUNT(*) as count FROM researchers WHERE slope > 3 AND h_index BETWEEN 20 AND 60"},
	{regexp.MustCompile(`total (grant )?funding`), model.SourceGrants, "SELECT SUM(total_cost) as total_funding FROM grants WHERE total_cost > 0"},
	{regexp.MustCompile(`what tables.*(researchers?|talent)`), model.SourceResearchers, ""},
	{regexp.MustCompile(`what tables.*patents?`), model.SourcePatents, ""},
	{regexp.MustCompile(`what tables.*grants?`), model.SourceGrants, ""},
	{regexp.MustCompile(`what tables.*portfolio`), model.SourcePortfolio, ""},
	{regexp.MustCompile(`what tables.*(policies|bills?)`), model.SourcePolicies, ""},
	{regexp.MustCompile(`what tables.*(market|trials?)`), model.SourceMarketData, ""},
}

// tier2Pattern is a parameterized template. Templates always select id so
// entity links can be built from the result.
type tier2Pattern struct {
	re     *regexp.Regexp
	source model.Source
	sql    func(m map[string]string) string
}

var tier2Patterns = []tier2Pattern{
	{
		re:     regexp.MustCompile(`(rising stars?|hidden gems?|fast[- ]?growing).*(?:in|for|about) (?P<field>[a-z]+)`),
		source: model.SourceResearchers,
		sql: func(m map[string]string) string {
			return fmt.Sprintf(
				"SELECT id, name, h_index, slope, primary_category, affiliations FROM researchers WHERE slope > 3 AND h_index BETWEEN 20 AND 60 AND (topics LIKE '%%%s%%' OR primary_category LIKE '%%%s%%') ORDER BY slope DESC LIMIT 10",
				m["field"], m["field"],
			)
		},
	},
	{
		re:     regexp.MustCompile(`top (?P<n>\d+)? ?researchers?.*(?:in|for|about) (?P<field>[a-z ]+)`),
		source: model.SourceResearchers,
		sql: func(m map[string]string) string {
			n := m["n"]
			if n == "" {
				n = "10"
			}
			field := strings.TrimSpace(m["field"])
			return fmt.Sprintf(
				"SELECT id, name, h_index, slope, primary_category, affiliations FROM researchers WHERE topics LIKE '%%%s%%' OR primary_category LIKE '%%%s%%' ORDER BY h_index DESC LIMIT %s",
				field, field, n,
			)
		},
	},
	{
		re:     regexp.MustCompile(`patents?.*(?:for|from|by) (?P<company>[a-z0-9][a-z0-9 ]*)`),
		source: model.SourcePatents,
		sql: func(m map[string]string) string {
			company := strings.TrimSpace(m["company"])
			return fmt.Sprintf(
				"SELECT id, title, patent_number, filing_date, primary_assignee FROM patents WHERE primary_assignee LIKE '%%%s%%' OR title LIKE '%%%s%%' ORDER BY filing_date DESC LIMIT 10",
				company, company,
			)
		},
	},
	{
		re:     regexp.MustCompile(`grants?.*(?:in|for|about) (?P<field>[a-z][a-z ']*)`),
		source: model.SourceGrants,
		sql: func(m map[string]string) string {
			field := strings.Trim(strings.TrimSpace(m["field"]), "'")
			return fmt.Sprintf(
				"SELECT id, title, total_cost, institute, fiscal_year FROM grants WHERE title LIKE '%%%s%%' OR abstract LIKE '%%%s%%' ORDER BY total_cost DESC LIMIT 10",
				field, field,
			)
		},
	},
	{
		re:     regexp.MustCompile(`trials?.*(?:for|in|about) (?P<condition>[a-z][a-z ]*)`),
		source: model.SourceMarketData,
		sql: func(m map[string]string) string {
			condition := strings.TrimSpace(m["condition"])
			return fmt.Sprintf(
				"SELECT id, nct_id, brief_title, status, phase, sponsor FROM clinical_trials WHERE conditions LIKE '%%%s%%' OR brief_title LIKE '%%%s%%' ORDER BY start_date DESC LIMIT 10",
				condition, condition,
			)
		},
	},
	{
		re:     regexp.MustCompile(`(?:what is|tell me about|info on) (?P<company>[a-z0-9]+)`),
		source: model.SourcePortfolio,
		sql: func(m map[string]string) string {
			return fmt.Sprintf(
				"SELECT id, name, modality, competitive_advantage, indications FROM companies WHERE name LIKE '%%%s%%' LIMIT 1",
				m["company"],
			)
		},
	},
}

// crossDBPattern marks phrasings that need the agent with cross-source hints.
type crossDBPattern struct {
	re               *regexp.Regexp
	sources          []model.Source
	suggestedQueries []string
}

var crossDBPatterns = []crossDBPattern{
	{
		re:      regexp.MustCompile(`researchers?.*(?:with|holding|and their) patents?|patents?.*by researchers?`),
		sources: []model.Source{model.SourceResearchers, model.SourcePatents},
		suggestedQueries: []string{
			"search_entity to resolve the person across sources",
			"SELECT name FROM inventors — then match against researchers.name",
		},
	},
	{
		re:      regexp.MustCompile(`trials?.*(?:by|from|of) (?:portfolio|our) compan`),
		sources: []model.Source{model.SourceMarketData, model.SourcePortfolio},
		suggestedQueries: []string{
			"SELECT name FROM companies — then filter clinical_trials by sponsor",
		},
	},
	{
		re:      regexp.MustCompile(`(?:grants?|funding).*(?:and|with).*patents?|patents?.*(?:and|with).*grants?`),
		sources: []model.Source{model.SourceGrants, model.SourcePatents},
		suggestedQueries: []string{
			"get_company_profile for a unified patents + grants view",
		},
	},
}

// matchNamed applies a regexp and returns its named captures.
func matchNamed(re *regexp.Regexp, s string) (map[string]string, bool) {
	match := re.FindStringSubmatch(s)
	if match == nil {
		return nil, false
	}
	groups := make(map[string]string)
	for i, name := range re.SubexpNames() {
		if name != "" && i < len(match) {
			groups[name] = match[i]
		}
	}
	return groups, true
}
