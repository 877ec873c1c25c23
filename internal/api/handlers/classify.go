package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/guiplbarros-ai/cortex-ingest/internal/api/middleware"
	"github.com/guiplbarros-ai/cortex-ingest/internal/classify"
	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
	"github.com/guiplbarros-ai/cortex-ingest/internal/pipeline"
)

// ReviewStore updates the review state of AI usage records.
type ReviewStore interface {
	SetReview(ctx context.Context, usageID string, state domain.ReviewState) error
}

// ClassifyHandler handles classification and usage endpoints.
type ClassifyHandler struct {
	classifier *classify.Classifier
	categories pipeline.CategorySource
	reviews    ReviewStore
	log        zerolog.Logger
}

// NewClassifyHandler creates a new classification handler.
func NewClassifyHandler(classifier *classify.Classifier, categories pipeline.CategorySource, reviews ReviewStore, log zerolog.Logger) *ClassifyHandler {
	return &ClassifyHandler{
		classifier: classifier,
		categories: categories,
		reviews:    reviews,
		log:        log,
	}
}

func writeClassifyError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		middleware.WriteError(w, http.StatusBadRequest, ve.Error())
		return
	}
	var be *domain.BudgetExceededError
	if errors.As(err, &be) {
		middleware.WriteError(w, http.StatusTooManyRequests, be.Error())
		return
	}
	log.Error().Err(err).Msg("Classification failed")
	middleware.WriteError(w, http.StatusInternalServerError, "Classification failed")
}

// categoryPayload is a candidate category supplied inline with a
// classification request.
type categoryPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// resolveCategories prefers the categories carried by the request and
// falls back to the configured category source.
func (h *ClassifyHandler) resolveCategories(ctx context.Context, inline []categoryPayload) ([]domain.Category, error) {
	if len(inline) > 0 {
		categories := make([]domain.Category, len(inline))
		for i, c := range inline {
			categories[i] = domain.Category{ID: c.ID, Name: c.Name}
		}
		return categories, nil
	}
	return h.categories.ListCategories(ctx)
}

// Classify handles POST /api/classify
func (h *ClassifyHandler) Classify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		classify.Request
		Categories []categoryPayload `json:"categories"`
		Config     struct {
			AllowOverride *bool `json:"allowOverride"`
		} `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	categories, err := h.resolveCategories(ctx, req.Categories)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list categories")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}

	var result *domain.ClassificationResult
	if req.Config.AllowOverride != nil {
		result, err = h.classifier.ClassifyWithOverride(ctx, req.Request, categories, *req.Config.AllowOverride)
	} else {
		result, err = h.classifier.Classify(ctx, req.Request, categories)
	}
	if err != nil {
		writeClassifyError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// ClassifyBatch handles POST /api/classify/batch
func (h *ClassifyHandler) ClassifyBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Items      []classify.Request `json:"items"`
		Categories []categoryPayload  `json:"categories"`
		Config     struct {
			Concurrency   int   `json:"concurrency"`
			AllowOverride *bool `json:"allowOverride"`
		} `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	categories, err := h.resolveCategories(ctx, req.Categories)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list categories")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}

	result, err := h.classifier.ClassifyBatchOpts(ctx, req.Items, categories, classify.BatchOptions{
		Concurrency:   req.Config.Concurrency,
		AllowOverride: req.Config.AllowOverride,
	})
	if err != nil {
		writeClassifyError(w, h.log, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, result)
}

// Usage handles GET /api/usage
func (h *ClassifyHandler) Usage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	usage, err := h.classifier.Usage(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read usage ledger")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to read usage")
		return
	}
	budget, err := h.classifier.Budget(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to compute budget state")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to compute budget")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"usage":  usage,
		"budget": budget,
	})
}

// Review handles POST /api/usage/{id}/review
func (h *ClassifyHandler) Review(w http.ResponseWriter, r *http.Request, usageID string) {
	var req struct {
		Review string `json:"review"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	state := domain.ReviewState(req.Review)
	if state != domain.ReviewAccepted && state != domain.ReviewRejected {
		middleware.WriteError(w, http.StatusBadRequest, "review must be accepted or rejected")
		return
	}

	if err := h.reviews.SetReview(r.Context(), usageID, state); err != nil {
		h.log.Error().Err(err).Str("usage_id", usageID).Msg("Failed to update review")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to update review")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"usage_id": usageID,
		"review":   req.Review,
	})
}

// CacheStats handles GET /api/cache/stats
func (h *ClassifyHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.classifier.Cache().Stats())
}

// CacheClear handles POST /api/cache/clear
func (h *ClassifyHandler) CacheClear(w http.ResponseWriter, r *http.Request) {
	h.classifier.Cache().Clear()
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}
