package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

type RuleRow struct {
	RuleID     string `bigquery:"rule_id"`     // REQUIRED
	Name       string `bigquery:"name"`        // REQUIRED
	Pattern    string `bigquery:"pattern"`     // REQUIRED
	MatchType  string `bigquery:"match_type"`  // REQUIRED (contains|starts_with|ends_with|regex)
	CategoryID string `bigquery:"category_id"` // REQUIRED

	Priority int64             `bigquery:"priority"`
	IsActive bigquery.NullBool `bigquery:"is_active"` // NULLABLE, treated as active when unset
}

// ListActiveRules loads every active classification rule. Ordering is
// left to the rule engine, which sorts by priority itself.
func (r *Repository) ListActiveRules(ctx context.Context) ([]domain.ClassificationRule, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			rule_id,
			name,
			pattern,
			match_type,
			category_id,
			priority,
			is_active
		FROM %s
		WHERE is_active IS NULL OR is_active = TRUE
	`, r.qualified(rulesTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListActiveRules: query read: %w", err)
	}

	var rules []domain.ClassificationRule
	for {
		var row RuleRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListActiveRules: iter next: %w", err)
		}
		rules = append(rules, domain.ClassificationRule{
			ID:         row.RuleID,
			Name:       row.Name,
			Pattern:    row.Pattern,
			MatchType:  domain.MatchType(row.MatchType),
			CategoryID: row.CategoryID,
			Priority:   int(row.Priority),
			Active:     true,
		})
	}

	return rules, nil
}

// RecordUsage appends one rule application event.
func (r *Repository) RecordUsage(ctx context.Context, usage domain.RuleUsage) error {
	row := struct {
		RuleID    string    `bigquery:"rule_id"`
		AppliedTS time.Time `bigquery:"applied_ts"`
	}{
		RuleID:    usage.RuleID,
		AppliedTS: usage.AppliedAt,
	}
	if err := r.table(ruleUsageTable).Inserter().Put(ctx, row); err != nil {
		return fmt.Errorf("RecordUsage: inserting row: %w", err)
	}
	return nil
}
