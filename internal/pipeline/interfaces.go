package pipeline

import (
	"context"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

// StatementFetcher retrieves raw statement bytes from object storage.
type StatementFetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// TransactionStore is the persistence collaborator for imports. Records
// are handed off by value; the pipeline never reads them back except
// through the hash set.
type TransactionStore interface {
	ListHashes(ctx context.Context, accountID string) (map[string]struct{}, error)
	Insert(ctx context.Context, txs []ImportedTransaction) error
}

// RuleStore provides the active rule snapshot and receives usage
// events when rules match.
type RuleStore interface {
	ListActiveRules(ctx context.Context) ([]domain.ClassificationRule, error)
	RecordUsage(ctx context.Context, usage domain.RuleUsage) error
}

// CategorySource provides the category snapshot handed to the AI
// classifier.
type CategorySource interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
}
