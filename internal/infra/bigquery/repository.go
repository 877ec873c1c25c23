package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

const (
	transactionsTable = "transactions"
	rulesTable        = "classification_rules"
	ruleUsageTable    = "rule_usage"
	categoriesTable   = "categories"
	aiUsageTable      = "ai_usage"
	templatesTable    = "import_templates"
)

// Repository holds a shared BigQuery client for all dataset operations.
// One instance serves the whole process; create it at startup and Close
// it on shutdown.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// New creates a Repository with its own BigQuery client.
func New(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("bigquery.New: creating client: %w", err)
	}
	return &Repository{client: client, projectID: projectID, datasetID: datasetID}, nil
}

// NewWithClient wraps an existing client. The caller keeps ownership of
// the client's lifecycle.
func NewWithClient(client *bigquery.Client, projectID, datasetID string) *Repository {
	return &Repository{client: client, projectID: projectID, datasetID: datasetID}
}

// Close closes the underlying BigQuery client.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

func (r *Repository) table(name string) *bigquery.Table {
	return r.client.DatasetInProject(r.projectID, r.datasetID).Table(name)
}

// qualified returns the dataset-qualified table name for query text.
func (r *Repository) qualified(name string) string {
	return fmt.Sprintf("%s.%s", r.datasetID, name)
}
