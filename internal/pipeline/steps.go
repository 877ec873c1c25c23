package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/guiplbarros-ai/cortex-ingest/internal/classify"
	"github.com/guiplbarros-ai/cortex-ingest/internal/dedupe"
	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
	"github.com/guiplbarros-ai/cortex-ingest/internal/logger"
	"github.com/guiplbarros-ai/cortex-ingest/internal/rules"
	"github.com/guiplbarros-ai/cortex-ingest/internal/statement"
)

// FetchStep resolves the statement content. Inline content passes
// through untouched; a gs:// source is fetched from object storage.
type FetchStep struct {
	Fetcher StatementFetcher
}

func (s *FetchStep) Execute(ctx context.Context, state *State) error {
	if state.Content != "" {
		return nil
	}
	if !strings.HasPrefix(state.Source, "gs://") {
		return fmt.Errorf("FetchStep: no inline content and source %q is not a gs:// URI", state.Source)
	}
	if s.Fetcher == nil {
		return errors.New("FetchStep: no fetcher configured")
	}
	data, err := s.Fetcher.Fetch(ctx, state.Source)
	if err != nil {
		return fmt.Errorf("FetchStep: %w", err)
	}
	state.Content = string(data)
	return nil
}

// ParseStep detects the format and parses the statement. A file where
// every row failed is a hard error; the row errors still reach the
// summary so the caller can show what went wrong.
type ParseStep struct{}

func (s *ParseStep) Execute(ctx context.Context, state *State) error {
	result, err := statement.Parse(state.Content, state.Template)
	if err != nil {
		return err
	}
	state.ParseResult = result
	state.Summary.RowErrors = result.RowErrors

	if len(result.Transactions) == 0 {
		return fmt.Errorf("ParseStep: %d rows, %d errors: %w",
			result.Metadata.TotalRows, len(result.RowErrors), domain.ErrNoValidRows)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("format", string(result.Metadata.Format)).
		Int("parsed", len(result.Transactions)).
		Int("skipped", result.Skipped).
		Msg("statement parsed")
	return nil
}

// DedupeStep stamps the account onto each parsed transaction, hashes
// it and drops everything already stored for the account or repeated
// inside the batch.
type DedupeStep struct {
	Store TransactionStore
}

func (s *DedupeStep) Execute(ctx context.Context, state *State) error {
	if state.AccountID == "" {
		return domain.Validationf("missing account id for import")
	}

	existing, err := s.Store.ListHashes(ctx, state.AccountID)
	if err != nil {
		return fmt.Errorf("DedupeStep: listing hashes: %w", err)
	}

	batch := make([]domain.NormalizedTransaction, len(state.ParseResult.Transactions))
	for i, tx := range state.ParseResult.Transactions {
		tx.AccountID = state.AccountID
		batch[i] = tx
	}

	split := dedupe.IdentifyDuplicates(batch, existing)
	state.Summary.DuplicatesSkipped = len(split.Duplicates)

	state.Transactions = make([]ImportedTransaction, len(split.Unique))
	for i, tx := range split.Unique {
		state.Transactions[i] = ImportedTransaction{
			NormalizedTransaction: tx,
			Hash:                  dedupe.HashTransaction(tx),
		}
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int("unique", len(split.Unique)).
		Int("duplicates", len(split.Duplicates)).
		Msg("batch deduplicated")
	return nil
}

// RuleClassifyStep runs the rule engine over every new transaction.
// Rule hits are final; only the remainder is a candidate for AI.
type RuleClassifyStep struct {
	Rules RuleStore
}

func (s *RuleClassifyStep) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)

	ruleset, err := s.Rules.ListActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("RuleClassifyStep: loading rules: %w", err)
	}
	if len(ruleset) == 0 {
		return nil
	}

	matched := 0
	for i := range state.Transactions {
		tx := &state.Transactions[i]
		rule, usage, ok := rules.Classify(tx.Description, ruleset)
		if !ok {
			continue
		}
		result := rules.Result(rule, "")
		tx.CategoryID = result.CategoryID
		tx.Source = domain.SourceRule
		tx.Confidence = result.Confidence
		matched++

		if err := s.Rules.RecordUsage(ctx, usage); err != nil {
			// Usage counters are best-effort; the classification stands.
			log.Warn().Err(err).Str("rule_id", usage.RuleID).Msg("recording rule usage failed")
		}
	}
	state.Summary.ClassifiedByRule = matched
	return nil
}

// AIClassifyStep sends transactions the rules did not cover to the AI
// classifier, in batches. A blown budget stops further AI calls but
// never fails the import; those transactions simply stay unclassified.
// Suggestions below the confidence threshold are not applied either,
// they stay on the transaction as a pending suggestion.
type AIClassifyStep struct {
	Classifier *classify.Classifier
	Categories CategorySource
}

func (s *AIClassifyStep) Execute(ctx context.Context, state *State) error {
	log := logger.FromContext(ctx)

	categories, err := s.Categories.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("AIClassifyStep: loading categories: %w", err)
	}
	if len(categories) == 0 {
		return nil
	}

	var pending []int
	for i := range state.Transactions {
		if state.Transactions[i].CategoryID == "" {
			pending = append(pending, i)
		}
	}

	for start := 0; start < len(pending); start += 100 {
		budget, err := s.Classifier.Budget(ctx)
		if err != nil {
			return fmt.Errorf("AIClassifyStep: checking budget: %w", err)
		}
		if budget.IsOverLimit {
			log.Warn().Float64("used_usd", budget.UsedUSD).Float64("limit_usd", budget.LimitUSD).
				Msg("ai budget exhausted, remaining transactions left unclassified")
			return nil
		}

		end := start + 100
		if end > len(pending) {
			end = len(pending)
		}
		chunk := pending[start:end]

		items := make([]classify.Request, len(chunk))
		for j, idx := range chunk {
			tx := state.Transactions[idx]
			items[j] = classify.Request{
				ID:          strconv.Itoa(idx),
				Description: tx.Description,
				Value:       tx.Value,
				Flow:        domain.FlowTypeForValue(tx.Value),
			}
		}

		batch, err := s.Classifier.ClassifyBatch(ctx, items, categories)
		if err != nil {
			return fmt.Errorf("AIClassifyStep: %w", err)
		}

		threshold := s.Classifier.ConfidenceThreshold()
		for j, item := range batch.Results {
			if item.Result == nil || item.Result.CategoryID == "" {
				if item.Err != "" {
					log.Warn().Str("error", item.Err).Msg("ai classification failed for transaction")
				}
				continue
			}
			tx := &state.Transactions[chunk[j]]
			if item.Result.Confidence < threshold {
				tx.Suggestion = item.Result
				state.Summary.PendingSuggestions++
				continue
			}
			tx.CategoryID = item.Result.CategoryID
			tx.CategoryName = item.Result.CategoryName
			tx.Confidence = item.Result.Confidence
			tx.Source = item.Result.Source
			state.Summary.ClassifiedByAI++
		}
	}
	return nil
}

// InsertStep hands the surviving transactions to storage and closes the
// summary.
type InsertStep struct {
	Store TransactionStore
}

func (s *InsertStep) Execute(ctx context.Context, state *State) error {
	if len(state.Transactions) > 0 {
		if err := s.Store.Insert(ctx, state.Transactions); err != nil {
			return fmt.Errorf("InsertStep: %w", err)
		}
	}

	state.Summary.Imported = len(state.Transactions)
	for _, tx := range state.Transactions {
		if tx.CategoryID == "" {
			state.Summary.Unclassified++
		}
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int("imported", state.Summary.Imported).
		Int("duplicates_skipped", state.Summary.DuplicatesSkipped).
		Int("row_errors", len(state.Summary.RowErrors)).
		Int("by_rule", state.Summary.ClassifiedByRule).
		Int("by_ai", state.Summary.ClassifiedByAI).
		Msg("import finished")
	return nil
}
