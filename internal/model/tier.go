package model

// Tier names as surfaced in responses.
const (
	TierNameInstant = "instant"
	TierNameFast    = "fast"
	TierNameAgent   = "agent"
)

// Routing hint values attached to Tier 3 results.
const (
	HintComplex = "complex"
	HintCrossDB = "cross_db"
)

// RoutingHints is the bundle handed to the agent when a question needs Tier 3.
type RoutingHints struct {
	Sources          []Source `json:"detected_sources"`
	Intents          []string `json:"detected_intents"`
	Hint             string   `json:"hint"`
	SuggestedQueries []string `json:"suggested_queries,omitempty"`
}

// TierResult is the router's classification of one question. Tier 1 and 2
// carry a finished answer; Tier 3 carries hints for the agent.
type TierResult struct {
	Tier         int           `json:"tier"`
	TierName     string        `json:"tier_name"`
	Answer       string        `json:"answer,omitempty"`
	Data         any           `json:"data,omitempty"`
	GeneratedSQL string        `json:"generated_sql,omitempty"`
	Entities     []Entity      `json:"entities"`
	NeedsAgent   bool          `json:"needs_agent"`
	Hints        *RoutingHints `json:"routing_hints,omitempty"`
}
