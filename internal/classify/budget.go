package classify

import (
	"context"
	"fmt"
	"time"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

// UsageSummary aggregates the ledger for one calendar month.
type UsageSummary struct {
	TotalRequests     int     `json:"total_requests"`
	TotalTokens       int     `json:"total_tokens"`
	TotalCostUSD      float64 `json:"total_cost_usd"`
	TotalCostBRL      float64 `json:"total_cost_brl"`
	Accepted          int     `json:"confirmed_suggestions"`
	Rejected          int     `json:"rejected_suggestions"`
	AverageConfidence float64 `json:"average_confidence"`
}

// UsageStore is the append-only AI usage ledger. Every provider call
// appends exactly one record; monthly spend is always derived, never
// cached.
type UsageStore interface {
	Append(ctx context.Context, rec domain.AIUsageRecord) error
	Summary(ctx context.Context, year int, month time.Month) (UsageSummary, error)
}

// CheckBudget derives the budget state for the month containing now.
// A negative limit is rejected before anything is read from the ledger.
// The near-limit threshold is a fraction of the limit (0.8 = warn at 80%).
func CheckBudget(ctx context.Context, store UsageStore, now time.Time, limitUSD, threshold float64) (domain.BudgetState, error) {
	if limitUSD < 0 {
		return domain.BudgetState{}, fmt.Errorf("CheckBudget: limit %.2f: %w", limitUSD, domain.ErrInvalidBudgetLimit)
	}

	summary, err := store.Summary(ctx, now.Year(), now.Month())
	if err != nil {
		return domain.BudgetState{}, fmt.Errorf("CheckBudget: reading usage: %w", err)
	}

	used := summary.TotalCostUSD
	pct := 0.0
	if limitUSD > 0 {
		pct = used / limitUSD * 100
	}

	return domain.BudgetState{
		UsedUSD:        used,
		LimitUSD:       limitUSD,
		RemainingUSD:   limitUSD - used,
		PercentageUsed: pct,
		IsNearLimit:    pct >= threshold*100,
		IsOverLimit:    used > limitUSD,
	}, nil
}
