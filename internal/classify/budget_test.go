package classify

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

func TestCost(t *testing.T) {
	tests := []struct {
		name      string
		model     string
		tokensIn  int
		tokensOut int
		want      float64
		wantErr   bool
	}{
		{name: "gpt-4o-mini", model: "gpt-4o-mini", tokensIn: 1_000_000, tokensOut: 1_000_000, want: 0.75},
		{name: "gpt-4o", model: "gpt-4o", tokensIn: 500_000, tokensOut: 100_000, want: 2.25},
		{name: "gpt-4-turbo", model: "gpt-4-turbo", tokensIn: 100_000, tokensOut: 100_000, want: 4.0},
		{name: "gemini flash", model: "gemini-2.5-flash", tokensIn: 1_000_000, tokensOut: 0, want: 0.30},
		{name: "zero tokens", model: "gpt-4o-mini", want: 0},
		{name: "unknown model", model: "gpt-5-ultra", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cost(tt.model, tt.tokensIn, tt.tokensOut)
			if tt.wantErr {
				var ve *domain.ValidationError
				if !errors.As(err, &ve) {
					t.Fatalf("err = %v, want ValidationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Cost() error = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cost() = %v, want %v", got, tt.want)
			}
		})
	}
}

func seedStore(t *testing.T, now time.Time, costs ...float64) *MemoryUsageStore {
	t.Helper()
	store := NewMemoryUsageStore()
	for i, cost := range costs {
		err := store.Append(context.Background(), domain.AIUsageRecord{
			ID:        itoa(i),
			Timestamp: now,
			ModelID:   "gpt-4o-mini",
			CostUSD:   cost,
			Review:    domain.ReviewPending,
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	return store
}

func TestCheckBudget(t *testing.T) {
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)

	t.Run("under limit", func(t *testing.T) {
		store := seedStore(t, now, 2.0, 1.0)
		state, err := CheckBudget(context.Background(), store, now, 10.0, 0.8)
		if err != nil {
			t.Fatalf("CheckBudget() error = %v", err)
		}
		if state.UsedUSD != 3.0 {
			t.Errorf("used = %v, want 3", state.UsedUSD)
		}
		if state.PercentageUsed != 30.0 {
			t.Errorf("percentage = %v, want 30", state.PercentageUsed)
		}
		if state.IsNearLimit || state.IsOverLimit {
			t.Errorf("state = %+v, want neither near nor over", state)
		}
	})

	t.Run("near limit at threshold", func(t *testing.T) {
		store := seedStore(t, now, 8.0)
		state, err := CheckBudget(context.Background(), store, now, 10.0, 0.8)
		if err != nil {
			t.Fatalf("CheckBudget() error = %v", err)
		}
		if !state.IsNearLimit {
			t.Error("80% used should be near limit")
		}
		if state.IsOverLimit {
			t.Error("80% used is not over limit")
		}
	})

	t.Run("exactly at limit is not over", func(t *testing.T) {
		store := seedStore(t, now, 10.0)
		state, err := CheckBudget(context.Background(), store, now, 10.0, 0.8)
		if err != nil {
			t.Fatalf("CheckBudget() error = %v", err)
		}
		if state.IsOverLimit {
			t.Error("used == limit must not be over limit")
		}
	})

	t.Run("over limit", func(t *testing.T) {
		store := seedStore(t, now, 10.5)
		state, err := CheckBudget(context.Background(), store, now, 10.0, 0.8)
		if err != nil {
			t.Fatalf("CheckBudget() error = %v", err)
		}
		if !state.IsOverLimit {
			t.Error("expected over limit")
		}
		if state.RemainingUSD >= 0 {
			t.Errorf("remaining = %v, want negative", state.RemainingUSD)
		}
	})

	t.Run("zero limit has zero percentage", func(t *testing.T) {
		store := seedStore(t, now, 1.0)
		state, err := CheckBudget(context.Background(), store, now, 0, 0.8)
		if err != nil {
			t.Fatalf("CheckBudget() error = %v", err)
		}
		if state.PercentageUsed != 0 {
			t.Errorf("percentage = %v, want 0 for zero limit", state.PercentageUsed)
		}
		if !state.IsOverLimit {
			t.Error("any spend against a zero limit is over")
		}
	})

	t.Run("negative limit rejected", func(t *testing.T) {
		store := seedStore(t, now)
		_, err := CheckBudget(context.Background(), store, now, -1, 0.8)
		if !errors.Is(err, domain.ErrInvalidBudgetLimit) {
			t.Fatalf("err = %v, want ErrInvalidBudgetLimit", err)
		}
	})

	t.Run("only current month counts", func(t *testing.T) {
		store := seedStore(t, now, 5.0)
		lastMonth := now.AddDate(0, -1, 0)
		store.Append(context.Background(), domain.AIUsageRecord{
			ID: "old", Timestamp: lastMonth, CostUSD: 100.0,
		})

		state, err := CheckBudget(context.Background(), store, now, 10.0, 0.8)
		if err != nil {
			t.Fatalf("CheckBudget() error = %v", err)
		}
		if state.UsedUSD != 5.0 {
			t.Errorf("used = %v, want 5 (previous month excluded)", state.UsedUSD)
		}
	})
}

func TestMemoryUsageStoreSummary(t *testing.T) {
	now := time.Date(2026, time.August, 15, 12, 0, 0, 0, time.UTC)
	store := NewMemoryUsageStore()

	records := []domain.AIUsageRecord{
		{ID: "a", Timestamp: now, TokensIn: 100, TokensOut: 50, CostUSD: 0.01, Confidence: 0.9, Review: domain.ReviewAccepted},
		{ID: "b", Timestamp: now, TokensIn: 200, TokensOut: 100, CostUSD: 0.02, Confidence: 0.7, Review: domain.ReviewRejected},
		{ID: "c", Timestamp: now, TokensIn: 100, TokensOut: 50, CostUSD: 0.01, Confidence: 0.8, Review: domain.ReviewPending},
	}
	for _, rec := range records {
		if err := store.Append(context.Background(), rec); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	summary, err := store.Summary(context.Background(), 2026, time.August)
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.TotalRequests != 3 {
		t.Errorf("requests = %d, want 3", summary.TotalRequests)
	}
	if summary.TotalTokens != 600 {
		t.Errorf("tokens = %d, want 600", summary.TotalTokens)
	}
	if summary.Accepted != 1 || summary.Rejected != 1 {
		t.Errorf("accepted/rejected = %d/%d, want 1/1", summary.Accepted, summary.Rejected)
	}
	if math.Abs(summary.AverageConfidence-0.8) > 1e-9 {
		t.Errorf("avg confidence = %v, want 0.8", summary.AverageConfidence)
	}

	if !store.SetReview(context.Background(), "c", domain.ReviewAccepted) {
		t.Fatal("SetReview failed for known id")
	}
	if store.SetReview(context.Background(), "zzz", domain.ReviewAccepted) {
		t.Error("SetReview succeeded for unknown id")
	}
}
