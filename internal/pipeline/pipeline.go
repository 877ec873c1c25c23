// Package pipeline orchestrates a statement import end to end: fetch,
// parse, deduplicate, classify, persist. Each stage is a Step operating
// on shared State, so partial pipelines can be assembled for tests and
// for previews.
package pipeline

import (
	"context"
	"fmt"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
	"github.com/guiplbarros-ai/cortex-ingest/internal/statement"
)

// Step is a single stage of the import pipeline.
type Step interface {
	Execute(ctx context.Context, state *State) error
}

// ImportedTransaction is a normalized transaction ready for storage,
// carrying its dedupe hash and whatever classification was resolved.
// Suggestion holds an AI result whose confidence fell below the
// auto-apply threshold; the transaction itself stays unclassified.
type ImportedTransaction struct {
	domain.NormalizedTransaction
	Hash         string
	CategoryID   string
	CategoryName string
	Source       domain.ClassificationSource
	Confidence   float64
	Suggestion   *domain.ClassificationResult
}

// ImportSummary is the outcome reported to the caller after a full run.
type ImportSummary struct {
	Imported           int               `json:"imported"`
	DuplicatesSkipped  int               `json:"duplicates_skipped"`
	RowErrors          []domain.RowError `json:"row_errors,omitempty"`
	ClassifiedByRule   int               `json:"classified_by_rule"`
	ClassifiedByAI     int               `json:"classified_by_ai"`
	PendingSuggestions int               `json:"pending_suggestions"`
	Unclassified       int               `json:"unclassified"`
}

// State is the shared state threaded through all pipeline steps.
type State struct {
	// Inputs.
	Source    string // gs:// URI, or empty when Content is inline
	Content   string
	AccountID string
	Template  *statement.Template

	// Produced by the steps.
	ParseResult  *statement.ParseResult
	Transactions []ImportedTransaction
	Summary      ImportSummary
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []Step
}

// New creates a pipeline with the given steps.
func New(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially, stopping at the first failure.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
	}
	return nil
}

// NewImportPipeline assembles the standard import pipeline. The
// classifier step is included only when aiStep is non-nil; rule
// classification always runs.
func NewImportPipeline(fetcher StatementFetcher, store TransactionStore, ruleStore RuleStore, aiStep *AIClassifyStep) *Pipeline {
	steps := []Step{
		&FetchStep{Fetcher: fetcher},
		&ParseStep{},
		&DedupeStep{Store: store},
		&RuleClassifyStep{Rules: ruleStore},
	}
	if aiStep != nil {
		steps = append(steps, aiStep)
	}
	steps = append(steps, &InsertStep{Store: store})
	return New(steps...)
}
