package classify

import (
	"context"
	"sync"

	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
	"github.com/guiplbarros-ai/cortex-ingest/internal/logger"
)

const maxBatchSize = 100

// BatchResultItem is the outcome for one batch position. Exactly one of
// Result, Err or Skipped is meaningful.
type BatchResultItem struct {
	ID      string                       `json:"id"`
	Result  *domain.ClassificationResult `json:"result,omitempty"`
	Err     string                       `json:"error,omitempty"`
	Skipped bool                         `json:"skipped,omitempty"`
}

// BatchSummary aggregates one batch run.
type BatchSummary struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Cached     int `json:"cached"`
	APICalls   int `json:"api_calls"`
}

// BatchResult holds per-item outcomes in input order plus the derived
// summary.
type BatchResult struct {
	Results []BatchResultItem `json:"results"`
	Summary BatchSummary      `json:"summary"`
}

// BatchOptions adjust one batch run. Zero values defer to the
// classifier config.
type BatchOptions struct {
	Concurrency   int
	AllowOverride *bool
}

// ClassifyBatch classifies up to 100 transactions with a bounded worker
// pool. One item failing never aborts the batch; a cancelled context
// stops dispatching and reports the undispatched remainder as skipped,
// not failed.
func (c *Classifier) ClassifyBatch(ctx context.Context, items []Request, categories []domain.Category) (*BatchResult, error) {
	return c.ClassifyBatchOpts(ctx, items, categories, BatchOptions{})
}

// ClassifyBatchOpts is ClassifyBatch with per-call concurrency and
// budget override settings.
func (c *Classifier) ClassifyBatchOpts(ctx context.Context, items []Request, categories []domain.Category, opts BatchOptions) (*BatchResult, error) {
	log := logger.FromContext(ctx)

	if len(items) == 0 {
		return nil, domain.Validationf("batch must contain at least 1 item")
	}
	if len(items) > maxBatchSize {
		return nil, domain.Validationf("batch size %d exceeds maximum of %d", len(items), maxBatchSize)
	}

	concurrency := c.cfg.Concurrency
	if opts.Concurrency > 0 {
		concurrency = opts.Concurrency
	}
	allowOverride := c.cfg.AllowOverride
	if opts.AllowOverride != nil {
		allowOverride = *opts.AllowOverride
	}

	results := make([]BatchResultItem, len(items))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				item := items[idx]
				if ctx.Err() != nil {
					results[idx] = BatchResultItem{ID: item.ID, Skipped: true}
					continue
				}
				res, err := c.classify(ctx, item, categories, allowOverride)
				if err != nil {
					if ctx.Err() != nil {
						results[idx] = BatchResultItem{ID: item.ID, Skipped: true}
						continue
					}
					results[idx] = BatchResultItem{ID: item.ID, Err: err.Error()}
					continue
				}
				results[idx] = BatchResultItem{ID: item.ID, Result: res}
			}
		}()
	}

dispatch:
	for i := range items {
		select {
		case <-ctx.Done():
			for j := i; j < len(items); j++ {
				results[j] = BatchResultItem{ID: items[j].ID, Skipped: true}
			}
			break dispatch
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	summary := BatchSummary{Total: len(items)}
	for _, r := range results {
		switch {
		case r.Skipped:
			summary.Skipped++
		case r.Err != "":
			summary.Failed++
		case r.Result != nil:
			summary.Successful++
			if r.Result.Cached {
				summary.Cached++
			} else {
				summary.APICalls++
			}
		}
	}

	log.Info().
		Int("total", summary.Total).
		Int("successful", summary.Successful).
		Int("failed", summary.Failed).
		Int("cached", summary.Cached).
		Int("api_calls", summary.APICalls).
		Msg("batch classification finished")

	return &BatchResult{Results: results, Summary: summary}, nil
}
