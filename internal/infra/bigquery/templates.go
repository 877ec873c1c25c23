package bigquery

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/guiplbarros-ai/cortex-ingest/internal/statement"
)

type TemplateRow struct {
	TemplateID string `bigquery:"template_id"` // REQUIRED
	Name       string `bigquery:"name"`        // REQUIRED

	Separator   bigquery.NullString `bigquery:"separator"`    // NULLABLE, single char
	HeaderIndex bigquery.NullInt64  `bigquery:"header_index"` // NULLABLE
	MonthFirst  bigquery.NullBool   `bigquery:"month_first"`  // NULLABLE

	ColumnsJSON bigquery.NullString `bigquery:"columns_json"` // NULLABLE, ColumnMapping as JSON
}

func (row *TemplateRow) toTemplate() (*statement.Template, error) {
	tmpl := &statement.Template{
		ID:   row.TemplateID,
		Name: row.Name,
	}
	if row.Separator.Valid && row.Separator.StringVal != "" {
		tmpl.Separator = rune(row.Separator.StringVal[0])
	}
	if row.HeaderIndex.Valid {
		idx := int(row.HeaderIndex.Int64)
		tmpl.HeaderIndex = &idx
	}
	if row.MonthFirst.Valid {
		tmpl.MonthFirst = row.MonthFirst.Bool
	}
	if row.ColumnsJSON.Valid && row.ColumnsJSON.StringVal != "" {
		if err := json.Unmarshal([]byte(row.ColumnsJSON.StringVal), &tmpl.Columns); err != nil {
			return nil, fmt.Errorf("template %s: decoding columns: %w", row.TemplateID, err)
		}
	}
	return tmpl, nil
}

// GetTemplate loads one import template by id. Returns (nil, nil) when
// no template matches.
func (r *Repository) GetTemplate(ctx context.Context, templateID string) (*statement.Template, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			template_id,
			name,
			separator,
			header_index,
			month_first,
			columns_json
		FROM %s
		WHERE template_id = @template_id
		LIMIT 1
	`, r.qualified(templatesTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "template_id", Value: templateID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetTemplate: query read: %w", err)
	}

	var row TemplateRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetTemplate: iter next: %w", err)
	}

	return row.toTemplate()
}

// ListTemplates returns every saved import template.
func (r *Repository) ListTemplates(ctx context.Context) ([]*statement.Template, error) {
	q := r.client.Query(fmt.Sprintf(`
		SELECT
			template_id,
			name,
			separator,
			header_index,
			month_first,
			columns_json
		FROM %s
		ORDER BY name
	`, r.qualified(templatesTable)))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTemplates: query read: %w", err)
	}

	var templates []*statement.Template
	for {
		var row TemplateRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTemplates: iter next: %w", err)
		}
		tmpl, err := row.toTemplate()
		if err != nil {
			return nil, fmt.Errorf("ListTemplates: %w", err)
		}
		templates = append(templates, tmpl)
	}

	return templates, nil
}
