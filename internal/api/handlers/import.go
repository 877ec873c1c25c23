package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/guiplbarros-ai/cortex-ingest/internal/api/middleware"
	"github.com/guiplbarros-ai/cortex-ingest/internal/domain"
	"github.com/guiplbarros-ai/cortex-ingest/internal/jobs"
	"github.com/guiplbarros-ai/cortex-ingest/internal/pipeline"
	"github.com/guiplbarros-ai/cortex-ingest/internal/statement"
)

// TemplateSource resolves saved import templates by id.
type TemplateSource interface {
	GetTemplate(ctx context.Context, templateID string) (*statement.Template, error)
}

// ImportRequest is the body of POST /api/import. Either Content carries
// the statement inline or Source points at a gs:// object.
type ImportRequest struct {
	AccountID  string `json:"account_id"`
	Source     string `json:"source,omitempty"`
	Content    string `json:"content,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	Async      bool   `json:"async,omitempty"`
}

// ImportHandler handles statement import endpoints.
type ImportHandler struct {
	pipeline  *pipeline.Pipeline
	templates TemplateSource
	publisher jobs.Publisher
	jobStore  jobs.JobStore
	log       zerolog.Logger
}

// NewImportHandler creates a new import handler.
func NewImportHandler(p *pipeline.Pipeline, templates TemplateSource, publisher jobs.Publisher, jobStore jobs.JobStore, log zerolog.Logger) *ImportHandler {
	return &ImportHandler{
		pipeline:  p,
		templates: templates,
		publisher: publisher,
		jobStore:  jobStore,
		log:       log,
	}
}

// Import handles POST /api/import
func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.AccountID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	if req.Source == "" && req.Content == "" {
		middleware.WriteError(w, http.StatusBadRequest, "source or content is required")
		return
	}

	if req.Async {
		if req.Source == "" {
			middleware.WriteError(w, http.StatusBadRequest, "async import requires a source URI")
			return
		}
		job := &jobs.ImportStatementJob{
			AccountID:  req.AccountID,
			Source:     req.Source,
			TemplateID: req.TemplateID,
		}
		if err := h.publisher.PublishImport(ctx, job); err != nil {
			h.log.Error().Err(err).Msg("Failed to enqueue import job")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue import job")
			return
		}

		h.log.Info().Str("job_id", job.JobID).Str("account_id", req.AccountID).Msg("Import job enqueued")
		middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
			"job_id": job.JobID,
			"status": string(job.Status),
		})
		return
	}

	state, err := h.buildState(ctx, req)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.pipeline.Execute(ctx, state); err != nil {
		h.writeImportError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, state.Summary)
}

func (h *ImportHandler) buildState(ctx context.Context, req ImportRequest) (*pipeline.State, error) {
	state := &pipeline.State{
		Source:    req.Source,
		Content:   req.Content,
		AccountID: req.AccountID,
	}
	if req.TemplateID != "" {
		tmpl, err := h.templates.GetTemplate(ctx, req.TemplateID)
		if err != nil {
			return nil, err
		}
		if tmpl == nil {
			return nil, errors.New("unknown template: " + req.TemplateID)
		}
		state.Template = tmpl
	}
	return state, nil
}

func (h *ImportHandler) writeImportError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		middleware.WriteError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, domain.ErrFormatNotRecognized),
		errors.Is(err, domain.ErrHeaderNotFound),
		errors.Is(err, domain.ErrNoValidRows):
		middleware.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error().Err(err).Msg("Import failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Import failed")
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *ImportHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *ImportHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{
		AccountID: query.Get("account_id"),
		Status:    jobs.JobStatus(query.Get("status")),
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.jobStore.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}
