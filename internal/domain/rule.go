package domain

import "time"

// MatchType selects the matching semantics of a classification rule.
type MatchType string

const (
	MatchContains   MatchType = "contains"
	MatchStartsWith MatchType = "starts_with"
	MatchEndsWith   MatchType = "ends_with"
	MatchRegex      MatchType = "regex"
)

// ClassificationRule is an ordered pattern rule owned by the external rule
// store. The rule classifier only reads an active, ordered snapshot.
type ClassificationRule struct {
	ID         string
	Name       string
	Pattern    string
	MatchType  MatchType
	CategoryID string
	Priority   int
	Active     bool
}

// RuleUsage is emitted when a rule matches, so the caller can persist the
// usage counter and last-applied timestamp in the rule store. The classifier
// itself performs no writes.
type RuleUsage struct {
	RuleID    string
	AppliedAt time.Time
}
