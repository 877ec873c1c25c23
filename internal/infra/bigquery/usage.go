package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/guiplbarros-ai/cortex-ingest/internal/classify"
	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

type UsageRow struct {
	UsageID string    `bigquery:"usage_id"` // REQUIRED
	UsageTS time.Time `bigquery:"usage_ts"` // REQUIRED

	ModelID   string `bigquery:"model_id"` // REQUIRED
	TokensIn  int64  `bigquery:"tokens_in"`
	TokensOut int64  `bigquery:"tokens_out"`

	CostUSD float64 `bigquery:"cost_usd"`

	CategorySuggested bigquery.NullString `bigquery:"category_suggested"` // NULLABLE
	Confidence        float64             `bigquery:"confidence"`

	Review string `bigquery:"review"` // pending|accepted|rejected
}

// Append records one AI classification call in the usage ledger.
func (r *Repository) Append(ctx context.Context, rec domain.AIUsageRecord) error {
	row := &UsageRow{
		UsageID:           rec.ID,
		UsageTS:           rec.Timestamp,
		ModelID:           rec.ModelID,
		TokensIn:          int64(rec.TokensIn),
		TokensOut:         int64(rec.TokensOut),
		CostUSD:           rec.CostUSD,
		CategorySuggested: nullString(rec.CategorySuggested),
		Confidence:        rec.Confidence,
		Review:            string(rec.Review),
	}
	if err := r.table(aiUsageTable).Inserter().Put(ctx, row); err != nil {
		return fmt.Errorf("Append: inserting row: %w", err)
	}
	return nil
}

// Summary aggregates the ledger for one calendar month.
func (r *Repository) Summary(ctx context.Context, year int, month time.Month) (classify.UsageSummary, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			COUNT(*) AS total_requests,
			IFNULL(SUM(tokens_in + tokens_out), 0) AS total_tokens,
			IFNULL(SUM(cost_usd), 0) AS total_cost_usd,
			COUNTIF(review = 'accepted') AS accepted,
			COUNTIF(review = 'rejected') AS rejected,
			IFNULL(AVG(confidence), 0) AS average_confidence
		FROM %s
		WHERE EXTRACT(YEAR FROM usage_ts) = @year
		  AND EXTRACT(MONTH FROM usage_ts) = @month
	`, r.qualified(aiUsageTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "year", Value: int64(year)},
		{Name: "month", Value: int64(month)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return classify.UsageSummary{}, fmt.Errorf("Summary: query read: %w", err)
	}

	var row struct {
		TotalRequests     int64   `bigquery:"total_requests"`
		TotalTokens       int64   `bigquery:"total_tokens"`
		TotalCostUSD      float64 `bigquery:"total_cost_usd"`
		Accepted          int64   `bigquery:"accepted"`
		Rejected          int64   `bigquery:"rejected"`
		AverageConfidence float64 `bigquery:"average_confidence"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return classify.UsageSummary{}, fmt.Errorf("Summary: iter next: %w", err)
	}

	return classify.UsageSummary{
		TotalRequests:     int(row.TotalRequests),
		TotalTokens:       int(row.TotalTokens),
		TotalCostUSD:      row.TotalCostUSD,
		Accepted:          int(row.Accepted),
		Rejected:          int(row.Rejected),
		AverageConfidence: row.AverageConfidence,
	}, nil
}

// SetReview updates the review state of one usage record.
func (r *Repository) SetReview(ctx context.Context, usageID string, state domain.ReviewState) error {
	q := r.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET review = @review
		WHERE usage_id = @usage_id
	`, r.qualified(aiUsageTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "review", Value: string(state)},
		{Name: "usage_id", Value: usageID},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("SetReview: running update query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("SetReview: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("SetReview: job error: %w", err)
	}
	return nil
}
