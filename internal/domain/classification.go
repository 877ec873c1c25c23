package domain

import "time"

// ClassificationSource identifies which stage produced a classification.
type ClassificationSource string

const (
	SourceRule  ClassificationSource = "rule"
	SourceAI    ClassificationSource = "ai"
	SourceCache ClassificationSource = "cache"
)

// ClassificationResult is produced fresh per classification attempt and never
// mutated afterwards.
type ClassificationResult struct {
	CategoryID   string
	CategoryName string
	Confidence   float64
	Source       ClassificationSource
	Reasoning    string
	Cached       bool
}

// ReviewState tracks what the user did with an AI suggestion. A suggestion
// that was never looked at stays pending; it is not the same as a rejection.
type ReviewState string

const (
	ReviewPending  ReviewState = "pending"
	ReviewAccepted ReviewState = "accepted"
	ReviewRejected ReviewState = "rejected"
)

// AIUsageRecord is one entry in the append-only usage ledger. A record is
// appended on every provider call (cache hits do not append) and read back to
// compute monthly spend. Retention is an external concern.
type AIUsageRecord struct {
	ID                string
	Timestamp         time.Time
	ModelID           string
	TokensIn          int
	TokensOut         int
	CostUSD           float64
	CategorySuggested string
	Confidence        float64
	Review            ReviewState
}

// BudgetState is derived from the usage ledger for a month; it is never
// stored. PercentageUsed is 0 when the limit is 0, by convention: a zero
// limit with any spend is over-limit but has no meaningful percentage.
type BudgetState struct {
	UsedUSD        float64
	LimitUSD       float64
	RemainingUSD   float64
	PercentageUsed float64
	IsNearLimit    bool
	IsOverLimit    bool
}
