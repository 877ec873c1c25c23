package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

type CategoryRow struct {
	CategoryID string `bigquery:"category_id"` // REQUIRED
	Name       string `bigquery:"name"`        // REQUIRED

	IsActive bigquery.NullBool `bigquery:"is_active"` // NULLABLE
}

// ListCategories returns all active categories ordered by name.
func (r *Repository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			category_id,
			name,
			is_active
		FROM %s
		WHERE is_active IS NULL OR is_active = TRUE
		ORDER BY name
	`, r.qualified(categoriesTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListCategories: query read: %w", err)
	}

	var categories []domain.Category
	for {
		var row CategoryRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListCategories: iter next: %w", err)
		}
		categories = append(categories, domain.Category{ID: row.CategoryID, Name: row.Name})
	}

	return categories, nil
}
