package bigquery

import (
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/guiplbarros-ai/cortex-ingest/internal/pipeline"
)

type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	AccountID string `bigquery:"account_id"` // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Value           float64    `bigquery:"value"`            // REQUIRED FLOAT64
	Description     string     `bigquery:"description"`      // REQUIRED

	Kind string `bigquery:"kind"` // REQUIRED (credito|debito|transferencia|estorno)

	BalanceAfter bigquery.NullFloat64 `bigquery:"balance_after"` // NULLABLE
	Document     bigquery.NullString  `bigquery:"document"`      // NULLABLE
	ExternalID   bigquery.NullString  `bigquery:"external_id"`   // NULLABLE

	OriginalValue    bigquery.NullFloat64 `bigquery:"original_value"`    // NULLABLE
	OriginalCurrency bigquery.NullString  `bigquery:"original_currency"` // NULLABLE

	HashDedupe string `bigquery:"hash_dedupe"` // REQUIRED, unique per account

	CategoryID           bigquery.NullString  `bigquery:"category_id"`           // NULLABLE
	CategoryName         bigquery.NullString  `bigquery:"category_name"`         // NULLABLE
	ClassificationSource bigquery.NullString  `bigquery:"classification_source"` // NULLABLE (rule|ai|cache)
	Confidence           bigquery.NullFloat64 `bigquery:"confidence"`            // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func transactionRow(id string, tx pipeline.ImportedTransaction, now time.Time) (*TransactionRow, error) {
	date, err := civil.ParseDate(tx.Date)
	if err != nil {
		return nil, err
	}

	row := &TransactionRow{
		TransactionID:    id,
		AccountID:        tx.AccountID,
		TransactionDate:  date,
		Value:            tx.Value,
		Description:      tx.Description,
		Kind:             string(tx.Kind),
		Document:         nullString(tx.Document),
		ExternalID:       nullString(tx.ExternalID),
		OriginalCurrency: nullString(tx.OriginalCurrency),
		HashDedupe:       tx.Hash,
		CategoryID:       nullString(tx.CategoryID),
		CategoryName:     nullString(tx.CategoryName),
		Confidence:       bigquery.NullFloat64{Float64: tx.Confidence, Valid: tx.CategoryID != ""},
		CreatedTS:        now,
	}
	if tx.BalanceAfter != nil {
		row.BalanceAfter = bigquery.NullFloat64{Float64: *tx.BalanceAfter, Valid: true}
	}
	if tx.OriginalValue != nil {
		row.OriginalValue = bigquery.NullFloat64{Float64: *tx.OriginalValue, Valid: true}
	}
	if tx.CategoryID != "" {
		row.ClassificationSource = nullString(string(tx.Source))
	}
	return row, nil
}
