package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/guiplbarros-ai/cortex-ingest/internal/pipeline"
)

// Insert writes a batch of imported transactions. IDs are generated
// here; the dedupe hash travels along so re-imports can be detected.
func (r *Repository) Insert(ctx context.Context, txs []pipeline.ImportedTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]*TransactionRow, 0, len(txs))
	for _, tx := range txs {
		row, err := transactionRow(uuid.NewString(), tx, now)
		if err != nil {
			return fmt.Errorf("Insert: building row for %q: %w", tx.Description, err)
		}
		rows = append(rows, row)
	}

	if err := r.table(transactionsTable).Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("Insert: inserting rows: %w", err)
	}
	return nil
}

// ListHashes returns the dedupe hashes already stored for an account.
func (r *Repository) ListHashes(ctx context.Context, accountID string) (map[string]struct{}, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT hash_dedupe
		FROM %s
		WHERE account_id = @account_id
	`, r.qualified(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListHashes: query read: %w", err)
	}

	hashes := map[string]struct{}{}
	for {
		var row struct {
			HashDedupe string `bigquery:"hash_dedupe"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListHashes: iter next: %w", err)
		}
		hashes[row.HashDedupe] = struct{}{}
	}

	return hashes, nil
}

// ListByDateRange returns stored transactions for an account within the
// given dates, newest first.
func (r *Repository) ListByDateRange(ctx context.Context, accountID string, start, end time.Time) ([]*TransactionRow, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			account_id,
			transaction_date,
			value,
			description,
			kind,
			balance_after,
			document,
			external_id,
			original_value,
			original_currency,
			hash_dedupe,
			category_id,
			category_name,
			classification_source,
			confidence,
			created_ts
		FROM %s
		WHERE account_id = @account_id
		  AND transaction_date >= @start_date
		  AND transaction_date <= @end_date
		ORDER BY transaction_date DESC, created_ts DESC
	`, r.qualified(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: accountID},
		{Name: "start_date", Value: start.Format("2006-01-02")},
		{Name: "end_date", Value: end.Format("2006-01-02")},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListByDateRange: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListByDateRange: iter next: %w", err)
		}
		rows = append(rows, &row)
	}

	return rows, nil
}
