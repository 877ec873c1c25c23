package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/guiplbarros-ai/cortex-ingest/internal/classify"
	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
	"github.com/guiplbarros-ai/cortex-ingest/internal/jobs/inmemory"
	"github.com/guiplbarros-ai/cortex-ingest/internal/pipeline"
	"github.com/guiplbarros-ai/cortex-ingest/internal/statement"
)

type stubProvider struct {
	categoryID string
	confidence float64
}

func (p *stubProvider) Model() string { return "gpt-4o-mini" }

func (p *stubProvider) Complete(context.Context, classify.Prompt, classify.StrategyParams) (*classify.ProviderResult, error) {
	return &classify.ProviderResult{
		Content:   fmt.Sprintf(`{"categoria_id": %q, "confianca": %v, "reasoning": "stub"}`, p.categoryID, p.confidence),
		TokensIn:  100,
		TokensOut: 20,
	}, nil
}

type stubCategories struct{}

func (stubCategories) ListCategories(context.Context) ([]domain.Category, error) {
	return []domain.Category{
		{ID: "cat-transporte", Name: "Transporte"},
		{ID: "cat-alimentacao", Name: "Alimentação"},
	}, nil
}

type stubReviews struct {
	lastID    string
	lastState domain.ReviewState
}

func (s *stubReviews) SetReview(_ context.Context, usageID string, state domain.ReviewState) error {
	s.lastID = usageID
	s.lastState = state
	return nil
}

type stubTemplates struct{}

func (stubTemplates) GetTemplate(_ context.Context, templateID string) (*statement.Template, error) {
	if templateID == "tmpl-1" {
		return &statement.Template{ID: "tmpl-1", Name: "test"}, nil
	}
	return nil, nil
}

// nopStore satisfies pipeline.TransactionStore without persistence.
type nopStore struct{}

func (nopStore) ListHashes(context.Context, string) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}
func (nopStore) Insert(context.Context, []pipeline.ImportedTransaction) error { return nil }

type nopRules struct{}

func (nopRules) ListActiveRules(context.Context) ([]domain.ClassificationRule, error) {
	return nil, nil
}
func (nopRules) RecordUsage(context.Context, domain.RuleUsage) error { return nil }

func newClassifyHandler(t *testing.T) (*ClassifyHandler, *stubReviews) {
	t.Helper()
	classifier, err := classify.New(&stubProvider{categoryID: "cat-transporte", confidence: 0.92},
		classify.NewMemoryUsageStore(), classify.NewCache(), classify.Config{})
	if err != nil {
		t.Fatalf("classify.New() error = %v", err)
	}
	reviews := &stubReviews{}
	return NewClassifyHandler(classifier, stubCategories{}, reviews, zerolog.Nop()), reviews
}

func TestClassifyEndpoint(t *testing.T) {
	h, _ := newClassifyHandler(t)

	body := `{"descricao": "UBER TRIP", "valor": -23.5, "tipo": "despesa"}`
	rec := httptest.NewRecorder()
	h.Classify(rec, httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result domain.ClassificationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.CategoryID != "cat-transporte" || result.Source != domain.SourceAI {
		t.Errorf("result = %+v", result)
	}
}

func TestClassifyEndpointBadRequests(t *testing.T) {
	h, _ := newClassifyHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{`},
		{name: "missing description", body: `{"valor": -10, "tipo": "despesa"}`},
		{name: "unknown flow", body: `{"descricao": "X", "valor": -10, "tipo": "saldo"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Classify(rec, httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader(tt.body)))
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestClassifyBatchEndpoint(t *testing.T) {
	h, _ := newClassifyHandler(t)

	body := `{"items": [
		{"descricao": "UBER TRIP", "valor": -23.5, "tipo": "despesa"},
		{"descricao": "IFOOD", "valor": -45, "tipo": "despesa"}
	]}`
	rec := httptest.NewRecorder()
	h.ClassifyBatch(rec, httptest.NewRequest(http.MethodPost, "/api/classify/batch", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result classify.BatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.Summary.Total != 2 || result.Summary.Successful != 2 {
		t.Errorf("summary = %+v", result.Summary)
	}
}

func TestClassifyEndpointInlineCategories(t *testing.T) {
	// The provider suggests a category the server-side source does not
	// know; resolving it proves the request's own list was used.
	classifier, err := classify.New(&stubProvider{categoryID: "cat-custom", confidence: 0.9},
		classify.NewMemoryUsageStore(), classify.NewCache(), classify.Config{})
	if err != nil {
		t.Fatalf("classify.New() error = %v", err)
	}
	h := NewClassifyHandler(classifier, stubCategories{}, &stubReviews{}, zerolog.Nop())

	body := `{"descricao": "ASSINATURA X", "valor": -19.9, "tipo": "despesa",
		"categories": [{"id": "cat-custom", "name": "Custom"}]}`
	rec := httptest.NewRecorder()
	h.Classify(rec, httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result domain.ClassificationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.CategoryID != "cat-custom" || result.CategoryName != "Custom" {
		t.Errorf("result = %+v, want the inline category applied", result)
	}
}

func TestClassifyEndpointAllowOverride(t *testing.T) {
	store := classify.NewMemoryUsageStore()
	seed := domain.AIUsageRecord{ID: "seed", Timestamp: time.Now().UTC(), ModelID: "gpt-4o-mini", CostUSD: 11.0}
	if err := store.Append(context.Background(), seed); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	classifier, err := classify.New(&stubProvider{categoryID: "cat-transporte", confidence: 0.9},
		store, classify.NewCache(), classify.Config{MonthlyLimitUSD: classify.Limit(10.0)})
	if err != nil {
		t.Fatalf("classify.New() error = %v", err)
	}
	h := NewClassifyHandler(classifier, stubCategories{}, &stubReviews{}, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Classify(rec, httptest.NewRequest(http.MethodPost, "/api/classify",
		strings.NewReader(`{"descricao": "UBER TRIP", "valor": -23.5, "tipo": "despesa"}`)))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status without override = %d, want 429", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Classify(rec, httptest.NewRequest(http.MethodPost, "/api/classify",
		strings.NewReader(`{"descricao": "TAXI CORRIDA", "valor": -18, "tipo": "despesa",
			"config": {"allowOverride": true}}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status with override = %d, body = %s", rec.Code, rec.Body.String())
	}
}

func TestClassifyBatchEndpointConfig(t *testing.T) {
	store := classify.NewMemoryUsageStore()
	seed := domain.AIUsageRecord{ID: "seed", Timestamp: time.Now().UTC(), ModelID: "gpt-4o-mini", CostUSD: 11.0}
	if err := store.Append(context.Background(), seed); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	classifier, err := classify.New(&stubProvider{categoryID: "cat-transporte", confidence: 0.9},
		store, classify.NewCache(), classify.Config{MonthlyLimitUSD: classify.Limit(10.0)})
	if err != nil {
		t.Fatalf("classify.New() error = %v", err)
	}
	h := NewClassifyHandler(classifier, stubCategories{}, &stubReviews{}, zerolog.Nop())

	body := `{"items": [
		{"descricao": "UBER TRIP", "valor": -23.5, "tipo": "despesa"},
		{"descricao": "IFOOD", "valor": -45, "tipo": "despesa"}
	], "config": {"concurrency": 1, "allowOverride": true}}`
	rec := httptest.NewRecorder()
	h.ClassifyBatch(rec, httptest.NewRequest(http.MethodPost, "/api/classify/batch", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var result classify.BatchResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if result.Summary.Successful != 2 {
		t.Errorf("summary = %+v, want 2 successful over budget with override", result.Summary)
	}
}

func TestUsageEndpoint(t *testing.T) {
	h, _ := newClassifyHandler(t)

	rec := httptest.NewRecorder()
	h.Usage(rec, httptest.NewRequest(http.MethodGet, "/api/usage", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload struct {
		Usage  classify.UsageSummary `json:"usage"`
		Budget domain.BudgetState    `json:"budget"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if payload.Budget.LimitUSD != 10.0 {
		t.Errorf("limit = %v, want default 10.0", payload.Budget.LimitUSD)
	}
}

func TestReviewEndpoint(t *testing.T) {
	h, reviews := newClassifyHandler(t)

	rec := httptest.NewRecorder()
	h.Review(rec, httptest.NewRequest(http.MethodPost, "/api/usage/u-1/review",
		strings.NewReader(`{"review": "accepted"}`)), "u-1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if reviews.lastID != "u-1" || reviews.lastState != domain.ReviewAccepted {
		t.Errorf("review recorded = (%q, %q)", reviews.lastID, reviews.lastState)
	}

	rec = httptest.NewRecorder()
	h.Review(rec, httptest.NewRequest(http.MethodPost, "/api/usage/u-1/review",
		strings.NewReader(`{"review": "maybe"}`)), "u-1")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for invalid review state", rec.Code)
	}
}

func TestCacheEndpoints(t *testing.T) {
	h, _ := newClassifyHandler(t)

	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats classify.CacheStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decoding stats: %v", err)
	}
	if stats.MaxSize == 0 {
		t.Error("max size should be set")
	}

	rec = httptest.NewRecorder()
	h.CacheClear(rec, httptest.NewRequest(http.MethodPost, "/api/cache/clear", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("clear status = %d", rec.Code)
	}
}

func newImportHandler(t *testing.T) (*ImportHandler, *inmemory.Store) {
	t.Helper()
	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(10, 1, jobStore)
	t.Cleanup(func() { _ = queue.Close() })

	p := pipeline.NewImportPipeline(nil, nopStore{}, nopRules{}, nil)
	return NewImportHandler(p, stubTemplates{}, queue, jobStore, zerolog.Nop()), jobStore
}

const importBody = `{"account_id": "acc-1", "content": "Data;Historico;Docto;Valor\n25/10/2024;UBER TRIP;1;-23,50\n"}`

func TestImportEndpointSync(t *testing.T) {
	h, _ := newImportHandler(t)

	rec := httptest.NewRecorder()
	h.Import(rec, httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(importBody)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var summary pipeline.ImportSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if summary.Imported != 1 {
		t.Errorf("imported = %d, want 1", summary.Imported)
	}
}

func TestImportEndpointValidation(t *testing.T) {
	h, _ := newImportHandler(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "missing account", body: `{"content": "x"}`, want: http.StatusBadRequest},
		{name: "missing source and content", body: `{"account_id": "acc-1"}`, want: http.StatusBadRequest},
		{name: "async without source", body: `{"account_id": "acc-1", "content": "x", "async": true}`, want: http.StatusBadRequest},
		{name: "unknown template", body: `{"account_id": "acc-1", "content": "x", "template_id": "nope"}`, want: http.StatusBadRequest},
		{name: "unparseable content", body: `{"account_id": "acc-1", "content": "Data;Historico;Docto;Valor\nbad;X;1;abc\n"}`, want: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Import(rec, httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d, body = %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestImportEndpointAsync(t *testing.T) {
	h, jobStore := newImportHandler(t)

	body := `{"account_id": "acc-1", "source": "gs://statements/out.csv", "async": true}`
	rec := httptest.NewRecorder()
	h.Import(rec, httptest.NewRequest(http.MethodPost, "/api/import", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp["job_id"] == "" {
		t.Fatal("response should carry a job id")
	}

	job, err := jobStore.GetJob(context.Background(), resp["job_id"])
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.AccountID != "acc-1" || job.Source != "gs://statements/out.csv" {
		t.Errorf("stored job = %+v", job)
	}

	rec = httptest.NewRecorder()
	h.GetJob(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.JobID, nil), job.JobID)
	if rec.Code != http.StatusOK {
		t.Errorf("GetJob status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ListJobs(rec, httptest.NewRequest(http.MethodGet, "/api/jobs?account_id=acc-1", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("ListJobs status = %d", rec.Code)
	}
}
