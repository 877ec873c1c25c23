package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/guiplbarros-ai/cortex-ingest/internal/api/handlers"
	"github.com/guiplbarros-ai/cortex-ingest/internal/api/middleware"
	"github.com/guiplbarros-ai/cortex-ingest/internal/classify"
	"github.com/guiplbarros-ai/cortex-ingest/internal/config"
	"github.com/guiplbarros-ai/cortex-ingest/internal/gcs"
	infraBQ "github.com/guiplbarros-ai/cortex-ingest/internal/infra/bigquery"
	"github.com/guiplbarros-ai/cortex-ingest/internal/jobs"
	"github.com/guiplbarros-ai/cortex-ingest/internal/jobs/inmemory"
	"github.com/guiplbarros-ai/cortex-ingest/internal/logger"
	"github.com/guiplbarros-ai/cortex-ingest/internal/pipeline"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.BigQuery.ProjectID == "" {
		log.Fatal().Msg("BQ_PROJECT_ID is required")
	}

	ctx := context.Background()

	repo, err := infraBQ.New(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery repository")
	}
	defer repo.Close()

	fetcher, err := gcs.NewFetcher(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage fetcher")
	}
	defer fetcher.Close()

	var provider classify.Provider
	switch cfg.AI.Provider {
	case "gemini":
		provider, err = classify.NewGeminiProvider(ctx, cfg.AI.Model)
	default:
		provider, err = classify.NewOpenAIProvider(cfg.AI.APIKey, cfg.AI.Model)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create AI provider")
	}

	classifier, err := classify.New(provider, repo, classify.NewCache(), classify.Config{
		Model:               cfg.AI.Model,
		MonthlyLimitUSD:     classify.Limit(cfg.AI.MonthlyLimitUSD),
		NearLimitThreshold:  cfg.AI.NearLimitThreshold,
		ConfidenceThreshold: cfg.AI.ConfidenceThreshold,
		AllowOverride:       cfg.AI.AllowOverride,
		Strategy:            cfg.AI.Strategy,
		USDBRLRate:          cfg.AI.USDBRLRate,
		Concurrency:         cfg.AI.Concurrency,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create classifier")
	}

	aiStep := &pipeline.AIClassifyStep{Classifier: classifier, Categories: repo}
	importPipeline := pipeline.NewImportPipeline(fetcher, repo, repo, aiStep)

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Jobs.QueueSize, cfg.Jobs.Workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		importJob, ok := job.(*jobs.ImportStatementJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		jobLog := logger.WithFields(log, map[string]interface{}{
			"job_id":     importJob.JobID,
			"account_id": importJob.AccountID,
		})
		jobLog.Info().Str("source", importJob.Source).Msg("Processing import job")

		state := &pipeline.State{
			Source:    importJob.Source,
			AccountID: importJob.AccountID,
		}
		if importJob.TemplateID != "" {
			tmpl, err := repo.GetTemplate(ctx, importJob.TemplateID)
			if err != nil {
				return err
			}
			state.Template = tmpl
		}

		ctx = logger.WithContext(ctx, jobLog)
		if err := importPipeline.Execute(ctx, state); err != nil {
			jobLog.Error().Err(err).Msg("Import job failed")
			return err
		}

		importJob.Summary = &state.Summary
		jobLog.Info().
			Int("imported", state.Summary.Imported).
			Int("duplicates", state.Summary.DuplicatesSkipped).
			Msg("Import job completed")
		return nil
	}

	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	classifyHandler := handlers.NewClassifyHandler(classifier, repo, repo, log)
	importHandler := handlers.NewImportHandler(importPipeline, repo, jobQueue, jobStore, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/classify", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			classifyHandler.Classify(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/classify/batch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			classifyHandler.ClassifyBatch(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/usage", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			classifyHandler.Usage(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/usage/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		rest := strings.TrimPrefix(r.URL.Path, "/api/usage/")
		usageID, ok := strings.CutSuffix(rest, "/review")
		if !ok || usageID == "" {
			middleware.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		classifyHandler.Review(w, r, usageID)
	})

	mux.HandleFunc("/api/cache/stats", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			classifyHandler.CacheStats(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/cache/clear", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			classifyHandler.CacheClear(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/import", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			importHandler.Import(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			importHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			importHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
