package classify

import (
	"context"
	"sync"
	"time"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

// MemoryUsageStore is an in-process usage ledger. It backs the one-shot
// CLI and tests; the server uses the BigQuery-backed store.
type MemoryUsageStore struct {
	mu      sync.Mutex
	records []domain.AIUsageRecord
}

// NewMemoryUsageStore returns an empty ledger.
func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{}
}

func (s *MemoryUsageStore) Append(_ context.Context, rec domain.AIUsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryUsageStore) Summary(_ context.Context, year int, month time.Month) (UsageSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summary UsageSummary
	confidenceSum := 0.0
	for _, rec := range s.records {
		if rec.Timestamp.Year() != year || rec.Timestamp.Month() != month {
			continue
		}
		summary.TotalRequests++
		summary.TotalTokens += rec.TokensIn + rec.TokensOut
		summary.TotalCostUSD += rec.CostUSD
		confidenceSum += rec.Confidence
		switch rec.Review {
		case domain.ReviewAccepted:
			summary.Accepted++
		case domain.ReviewRejected:
			summary.Rejected++
		}
	}
	if summary.TotalRequests > 0 {
		summary.AverageConfidence = confidenceSum / float64(summary.TotalRequests)
	}
	return summary, nil
}

// SetReview updates the review state of one record. Returns false when
// the id is unknown.
func (s *MemoryUsageStore) SetReview(_ context.Context, id string, state domain.ReviewState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].Review = state
			return true
		}
	}
	return false
}
