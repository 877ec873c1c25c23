package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/guiplbarros-ai/cortex-ingest/internal/classify"
	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
)

// memStore is an in-memory TransactionStore tracking inserts by hash,
// like the real store's dedupe index.
type memStore struct {
	hashes   map[string]map[string]struct{} // accountID -> hash set
	inserted []ImportedTransaction
}

func newMemStore() *memStore {
	return &memStore{hashes: map[string]map[string]struct{}{}}
}

func (m *memStore) ListHashes(_ context.Context, accountID string) (map[string]struct{}, error) {
	out := map[string]struct{}{}
	for h := range m.hashes[accountID] {
		out[h] = struct{}{}
	}
	return out, nil
}

func (m *memStore) Insert(_ context.Context, txs []ImportedTransaction) error {
	for _, tx := range txs {
		if m.hashes[tx.AccountID] == nil {
			m.hashes[tx.AccountID] = map[string]struct{}{}
		}
		m.hashes[tx.AccountID][tx.Hash] = struct{}{}
	}
	m.inserted = append(m.inserted, txs...)
	return nil
}

type memRuleStore struct {
	rules  []domain.ClassificationRule
	usages []domain.RuleUsage
}

func (m *memRuleStore) ListActiveRules(context.Context) ([]domain.ClassificationRule, error) {
	return m.rules, nil
}

func (m *memRuleStore) RecordUsage(_ context.Context, usage domain.RuleUsage) error {
	m.usages = append(m.usages, usage)
	return nil
}

type memCategories struct {
	categories []domain.Category
}

func (m *memCategories) ListCategories(context.Context) ([]domain.Category, error) {
	return m.categories, nil
}

type fakeFetcher struct {
	data map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, uri string) ([]byte, error) {
	data, ok := f.data[uri]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", uri)
	}
	return data, nil
}

// scriptedProvider answers every prompt with the same category.
type scriptedProvider struct {
	categoryID string
	confidence float64
	calls      int32
}

func (p *scriptedProvider) Model() string { return "gpt-4o-mini" }

func (p *scriptedProvider) Complete(context.Context, classify.Prompt, classify.StrategyParams) (*classify.ProviderResult, error) {
	atomic.AddInt32(&p.calls, 1)
	return &classify.ProviderResult{
		Content:   fmt.Sprintf(`{"categoria_id": %q, "confianca": %v, "reasoning": "mock"}`, p.categoryID, p.confidence),
		TokensIn:  100,
		TokensOut: 20,
	}, nil
}

const importCSV = "Data;Historico;Docto;Valor\n" +
	"25/10/2024;UBER TRIP;1;-23,50\n" +
	"25/10/2024;UBER TRIP;1;-23,50\n" +
	"26/10/2024;IFOOD PEDIDO;2;-45,00\n" +
	"27/10/2024;PADARIA SAO JOSE;3;-12,00\n"

func transportRule() domain.ClassificationRule {
	return domain.ClassificationRule{
		ID: "r-uber", Name: "uber", Pattern: "uber", MatchType: domain.MatchContains,
		CategoryID: "cat-transporte", Priority: 10, Active: true,
	}
}

func newAIStep(t *testing.T, provider classify.Provider, usage classify.UsageStore, cfg classify.Config) *AIClassifyStep {
	t.Helper()
	classifier, err := classify.New(provider, usage, classify.NewCache(), cfg)
	if err != nil {
		t.Fatalf("classify.New() error = %v", err)
	}
	return &AIClassifyStep{
		Classifier: classifier,
		Categories: &memCategories{categories: []domain.Category{{ID: "cat-alimentacao", Name: "Alimentação"}}},
	}
}

func TestImportPipeline(t *testing.T) {
	store := newMemStore()
	ruleStore := &memRuleStore{rules: []domain.ClassificationRule{transportRule()}}
	provider := &scriptedProvider{categoryID: "cat-alimentacao", confidence: 0.9}
	aiStep := newAIStep(t, provider, classify.NewMemoryUsageStore(), classify.Config{})

	p := NewImportPipeline(nil, store, ruleStore, aiStep)
	state := &State{Content: importCSV, AccountID: "acc-1"}

	if err := p.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if state.Summary.Imported != 3 {
		t.Errorf("imported = %d, want 3", state.Summary.Imported)
	}
	if state.Summary.DuplicatesSkipped != 1 {
		t.Errorf("duplicates = %d, want 1 (repeated UBER row)", state.Summary.DuplicatesSkipped)
	}
	if state.Summary.ClassifiedByRule != 1 {
		t.Errorf("by rule = %d, want 1", state.Summary.ClassifiedByRule)
	}
	if state.Summary.ClassifiedByAI != 2 {
		t.Errorf("by ai = %d, want 2", state.Summary.ClassifiedByAI)
	}
	if len(ruleStore.usages) != 1 || ruleStore.usages[0].RuleID != "r-uber" {
		t.Errorf("rule usages = %+v, want one r-uber event", ruleStore.usages)
	}

	for _, tx := range store.inserted {
		if tx.Hash == "" {
			t.Error("inserted transaction without hash")
		}
		if tx.AccountID != "acc-1" {
			t.Errorf("account id = %q", tx.AccountID)
		}
	}
}

func TestImportPipelineReimportIsNoop(t *testing.T) {
	store := newMemStore()
	ruleStore := &memRuleStore{rules: []domain.ClassificationRule{transportRule()}}
	p := NewImportPipeline(nil, store, ruleStore, nil)

	first := &State{Content: importCSV, AccountID: "acc-1"}
	if err := p.Execute(context.Background(), first); err != nil {
		t.Fatalf("first Execute() error = %v", err)
	}
	if first.Summary.Imported != 3 {
		t.Fatalf("first import = %d, want 3", first.Summary.Imported)
	}

	second := &State{Content: importCSV, AccountID: "acc-1"}
	if err := p.Execute(context.Background(), second); err != nil {
		t.Fatalf("second Execute() error = %v", err)
	}
	if second.Summary.Imported != 0 {
		t.Errorf("re-import inserted %d transactions, want 0", second.Summary.Imported)
	}
	if second.Summary.DuplicatesSkipped != 4 {
		t.Errorf("re-import duplicates = %d, want 4", second.Summary.DuplicatesSkipped)
	}
	if len(store.inserted) != 3 {
		t.Errorf("store has %d inserts total, want 3", len(store.inserted))
	}
}

func TestImportPipelineOtherAccountNotDeduped(t *testing.T) {
	store := newMemStore()
	ruleStore := &memRuleStore{}
	p := NewImportPipeline(nil, store, ruleStore, nil)

	if err := p.Execute(context.Background(), &State{Content: importCSV, AccountID: "acc-1"}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	other := &State{Content: importCSV, AccountID: "acc-2"}
	if err := p.Execute(context.Background(), other); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if other.Summary.Imported != 3 {
		t.Errorf("other account imported = %d, want 3", other.Summary.Imported)
	}
}

func TestImportPipelineFetchesFromObjectStorage(t *testing.T) {
	fetcher := &fakeFetcher{data: map[string][]byte{
		"gs://statements/acc-1/out.csv": []byte(importCSV),
	}}
	store := newMemStore()
	p := NewImportPipeline(fetcher, store, &memRuleStore{}, nil)

	state := &State{Source: "gs://statements/acc-1/out.csv", AccountID: "acc-1"}
	if err := p.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if state.Summary.Imported != 3 {
		t.Errorf("imported = %d, want 3", state.Summary.Imported)
	}

	missing := &State{Source: "gs://statements/acc-1/missing.csv", AccountID: "acc-1"}
	if err := p.Execute(context.Background(), missing); err == nil {
		t.Error("expected error for missing object")
	}
}

func TestImportPipelineNoValidRows(t *testing.T) {
	csv := "Data;Historico;Docto;Valor\n" +
		"not-a-date;X;1;abc\n"

	p := NewImportPipeline(nil, newMemStore(), &memRuleStore{}, nil)
	state := &State{Content: csv, AccountID: "acc-1"}

	err := p.Execute(context.Background(), state)
	if !errors.Is(err, domain.ErrNoValidRows) {
		t.Fatalf("err = %v, want ErrNoValidRows", err)
	}
	if len(state.Summary.RowErrors) == 0 {
		t.Error("row errors should be reported even on hard failure")
	}
}

func TestImportPipelineBudgetExhaustedLeavesUnclassified(t *testing.T) {
	usage := classify.NewMemoryUsageStore()
	seed := domain.AIUsageRecord{ID: "seed", Timestamp: time.Now().UTC(), ModelID: "gpt-4o-mini", CostUSD: 11.0}
	if err := usage.Append(context.Background(), seed); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	provider := &scriptedProvider{categoryID: "cat-alimentacao", confidence: 0.9}
	aiStep := newAIStep(t, provider, usage, classify.Config{MonthlyLimitUSD: classify.Limit(10.0)})

	store := newMemStore()
	p := NewImportPipeline(nil, store, &memRuleStore{}, aiStep)
	state := &State{Content: importCSV, AccountID: "acc-1"}

	if err := p.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0 once the monthly limit is hit", provider.calls)
	}
	if state.Summary.Imported != 3 {
		t.Errorf("imported = %d, want 3", state.Summary.Imported)
	}
	if state.Summary.Unclassified != 3 {
		t.Errorf("unclassified = %d, want 3", state.Summary.Unclassified)
	}
}

func TestImportPipelineMissingAccount(t *testing.T) {
	p := NewImportPipeline(nil, newMemStore(), &memRuleStore{}, nil)
	err := p.Execute(context.Background(), &State{Content: importCSV})

	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestImportPipelineLowConfidenceStaysPending(t *testing.T) {
	store := newMemStore()
	provider := &scriptedProvider{categoryID: "cat-alimentacao", confidence: 0.2}
	aiStep := newAIStep(t, provider, classify.NewMemoryUsageStore(), classify.Config{})

	p := NewImportPipeline(nil, store, &memRuleStore{}, aiStep)
	state := &State{Content: importCSV, AccountID: "acc-1"}

	if err := p.Execute(context.Background(), state); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if state.Summary.ClassifiedByAI != 0 {
		t.Errorf("by ai = %d, want 0 below the confidence threshold", state.Summary.ClassifiedByAI)
	}
	if state.Summary.PendingSuggestions != 3 {
		t.Errorf("pending suggestions = %d, want 3", state.Summary.PendingSuggestions)
	}
	if state.Summary.Unclassified != 3 {
		t.Errorf("unclassified = %d, want 3", state.Summary.Unclassified)
	}
	for _, tx := range store.inserted {
		if tx.CategoryID != "" {
			t.Errorf("transaction %q stored with category %q from a low-confidence suggestion", tx.Description, tx.CategoryID)
		}
		if tx.Suggestion == nil || tx.Suggestion.CategoryID != "cat-alimentacao" {
			t.Errorf("transaction %q missing the pending suggestion", tx.Description)
		}
		if tx.Suggestion != nil && tx.Suggestion.Confidence != 0.2 {
			t.Errorf("suggestion confidence = %v, want 0.2", tx.Suggestion.Confidence)
		}
	}
}
