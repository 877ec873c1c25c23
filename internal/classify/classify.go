// Package classify resolves transaction categories through an AI
// provider, guarded by a session cache and a monthly budget ledger. The
// order is fixed: cache first (free), budget check second, provider call
// last.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
	"github.com/guiplbarros-ai/cortex-ingest/internal/logger"
)

// defaultMonthlyLimitUSD applies when no limit is configured at all. An
// explicit zero is a real limit: any nonzero spend is then over budget.
const defaultMonthlyLimitUSD = 10.0

// defaultConfidenceThreshold is the minimum confidence for an AI
// suggestion to be auto-applied or cached for reuse.
const defaultConfidenceThreshold = 0.7

// Config tunes the classifier. Zero values fall back to the defaults in
// withDefaults; MonthlyLimitUSD distinguishes unset (nil) from zero.
type Config struct {
	Model               string
	MonthlyLimitUSD     *float64
	NearLimitThreshold  float64
	ConfidenceThreshold float64
	AllowOverride       bool
	Strategy            Strategy
	USDBRLRate          float64
	Concurrency         int
	CallTimeout         time.Duration
}

// Limit wraps a monthly budget limit for Config.
func Limit(v float64) *float64 { return &v }

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.MonthlyLimitUSD == nil {
		c.MonthlyLimitUSD = Limit(defaultMonthlyLimitUSD)
	}
	if c.NearLimitThreshold == 0 {
		c.NearLimitThreshold = 0.8
	}
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = defaultConfidenceThreshold
	}
	if c.Strategy == "" {
		c.Strategy = StrategyBalanced
	}
	if c.USDBRLRate == 0 {
		c.USDBRLRate = 6.0
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 30 * time.Second
	}
	return c
}

// Request is one transaction to classify.
type Request struct {
	ID            string          `json:"id,omitempty"`
	Description   string          `json:"descricao"`
	Value         float64         `json:"valor"`
	Flow          domain.FlowType `json:"tipo"`
	TransactionID string          `json:"transacao_id,omitempty"`
}

// Classifier coordinates cache, budget ledger and provider.
type Classifier struct {
	provider Provider
	store    UsageStore
	cache    *Cache
	cfg      Config
	now      func() time.Time
}

// New builds a classifier. The cache may be shared across classifiers.
// An invalid budget limit is rejected here, before any classification
// can be attempted.
func New(provider Provider, store UsageStore, cache *Cache, cfg Config) (*Classifier, error) {
	cfg = cfg.withDefaults()
	if *cfg.MonthlyLimitUSD < 0 {
		return nil, fmt.Errorf("New: monthly limit %.2f: %w", *cfg.MonthlyLimitUSD, domain.ErrInvalidBudgetLimit)
	}
	if cache == nil {
		cache = NewCache()
	}
	return &Classifier{
		provider: provider,
		store:    store,
		cache:    cache,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// Cache exposes the session cache for the stats and maintenance
// endpoints.
func (c *Classifier) Cache() *Cache { return c.cache }

// Budget returns the current month's budget state.
func (c *Classifier) Budget(ctx context.Context) (domain.BudgetState, error) {
	return CheckBudget(ctx, c.store, c.now(), *c.cfg.MonthlyLimitUSD, c.cfg.NearLimitThreshold)
}

// ConfidenceThreshold is the minimum confidence for auto-applying an AI
// suggestion; below it the suggestion stays pending.
func (c *Classifier) ConfidenceThreshold() float64 { return c.cfg.ConfidenceThreshold }

// Usage returns the ledger summary for the current month, with the BRL
// total derived from the configured rate.
func (c *Classifier) Usage(ctx context.Context) (UsageSummary, error) {
	now := c.now()
	summary, err := c.store.Summary(ctx, now.Year(), now.Month())
	if err != nil {
		return UsageSummary{}, fmt.Errorf("Usage: %w", err)
	}
	summary.TotalCostBRL = summary.TotalCostUSD * c.cfg.USDBRLRate
	return summary, nil
}

// modelResponse is the JSON contract the prompt demands from the model.
type modelResponse struct {
	CategoryID *string `json:"categoria_id"`
	Confidence float64 `json:"confianca"`
	Reasoning  string  `json:"reasoning"`
}

// Classify resolves a category for one transaction. Cache hits return
// immediately and append nothing to the ledger. A blown budget returns
// domain.BudgetExceededError unless the config allows overriding.
func (c *Classifier) Classify(ctx context.Context, req Request, categories []domain.Category) (*domain.ClassificationResult, error) {
	return c.classify(ctx, req, categories, c.cfg.AllowOverride)
}

// ClassifyWithOverride is Classify with the budget override decided per
// call instead of by the classifier config.
func (c *Classifier) ClassifyWithOverride(ctx context.Context, req Request, categories []domain.Category, allowOverride bool) (*domain.ClassificationResult, error) {
	return c.classify(ctx, req, categories, allowOverride)
}

func (c *Classifier) classify(ctx context.Context, req Request, categories []domain.Category, allowOverride bool) (*domain.ClassificationResult, error) {
	log := logger.FromContext(ctx)

	if err := validateRequest(req, categories); err != nil {
		return nil, err
	}

	if entry, ok := c.cache.Get(req.Description, req.Flow); ok && entry.CategoryID != "" {
		log.Debug().Str("descricao", truncate(req.Description, 30)).Msg("classification cache hit")
		return &domain.ClassificationResult{
			CategoryID:   entry.CategoryID,
			CategoryName: entry.CategoryName,
			Confidence:   entry.Confidence,
			Source:       domain.SourceCache,
			Reasoning:    entry.Reasoning + " (cache)",
			Cached:       true,
		}, nil
	}

	budget, err := c.Budget(ctx)
	if err != nil {
		return nil, err
	}
	if budget.IsOverLimit && !allowOverride {
		return nil, &domain.BudgetExceededError{UsedUSD: budget.UsedUSD, LimitUSD: budget.LimitUSD}
	}
	if budget.IsNearLimit {
		log.Warn().
			Float64("used_usd", budget.UsedUSD).
			Float64("limit_usd", budget.LimitUSD).
			Msg("ai budget near limit")
	}

	prompt := Prompt{
		System: SystemPrompt,
		User:   BuildPrompt(req.Description, req.Value, req.Flow, categories),
	}

	callCtx := ctx
	if c.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
	}

	raw, err := c.provider.Complete(callCtx, prompt, c.cfg.Strategy.params())
	if err != nil {
		return nil, err
	}

	var parsed modelResponse
	if err := json.Unmarshal([]byte(cleanModelJSON(raw.Content)), &parsed); err != nil {
		return nil, &domain.ProviderError{
			Err: fmt.Errorf("unparseable model response: %w", err),
		}
	}

	// Only a category id present in the caller's list counts.
	categoryID, categoryName := "", ""
	if parsed.CategoryID != nil {
		for _, cat := range categories {
			if cat.ID == *parsed.CategoryID {
				categoryID = cat.ID
				categoryName = cat.Name
				break
			}
		}
	}

	cost, err := Cost(c.provider.Model(), raw.TokensIn, raw.TokensOut)
	if err != nil {
		return nil, err
	}
	record := domain.AIUsageRecord{
		ID:                uuid.New().String(),
		Timestamp:         c.now().UTC(),
		ModelID:           c.provider.Model(),
		TokensIn:          raw.TokensIn,
		TokensOut:         raw.TokensOut,
		CostUSD:           cost,
		CategorySuggested: categoryID,
		Confidence:        parsed.Confidence,
		Review:            domain.ReviewPending,
	}
	if err := c.store.Append(ctx, record); err != nil {
		return nil, fmt.Errorf("Classify: appending usage record: %w", err)
	}

	if categoryID != "" && parsed.Confidence >= c.cfg.ConfidenceThreshold {
		c.cache.Put(req.Description, req.Flow, categoryID, categoryName, parsed.Confidence, parsed.Reasoning)
	}

	log.Info().
		Str("model", c.provider.Model()).
		Str("categoria", categoryName).
		Float64("confianca", parsed.Confidence).
		Float64("custo_usd", cost).
		Msg("transaction classified")

	return &domain.ClassificationResult{
		CategoryID:   categoryID,
		CategoryName: categoryName,
		Confidence:   parsed.Confidence,
		Source:       domain.SourceAI,
		Reasoning:    parsed.Reasoning,
	}, nil
}

func validateRequest(req Request, categories []domain.Category) error {
	if req.Description == "" {
		return domain.Validationf("missing required field: descricao")
	}
	if req.Flow != domain.FlowIncome && req.Flow != domain.FlowExpense {
		return domain.Validationf("invalid tipo: %q", req.Flow)
	}
	if len(categories) == 0 {
		return domain.Validationf("at least one category is required")
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
