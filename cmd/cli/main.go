package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/guiplbarros-ai/cortex-ingest/internal/classify"
	"github.com/guiplbarros-ai/cortex-ingest/internal/config"
	"github.com/guiplbarros-ai/cortex-ingest/internal/gcs"
	infraBQ "github.com/guiplbarros-ai/cortex-ingest/internal/infra/bigquery"
	"github.com/guiplbarros-ai/cortex-ingest/internal/logger"
	"github.com/guiplbarros-ai/cortex-ingest/internal/pipeline"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "import":
		runImport(log)
	case "upload":
		runUpload(log)
	case "usage":
		runUsage(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Cortex Ingest CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  import    Parse and import a bank statement (local file or gs:// URI)")
	fmt.Println("  upload    Upload a statement file to GCS")
	fmt.Println("  usage     Show the monthly AI usage ledger and budget state")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

func mustLoadConfig(log zerolog.Logger) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.BigQuery.ProjectID == "" {
		log.Fatal().Msg("BQ_PROJECT_ID is required")
	}
	return cfg
}

func newRepository(ctx context.Context, cfg *config.Config, log zerolog.Logger) *infraBQ.Repository {
	repo, err := infraBQ.New(ctx, cfg.BigQuery.ProjectID, cfg.BigQuery.DatasetID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery repository")
	}
	return repo
}

func newClassifier(ctx context.Context, cfg *config.Config, repo *infraBQ.Repository, log zerolog.Logger) *classify.Classifier {
	var provider classify.Provider
	var err error
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
	return classifier
}

func runImport(log zerolog.Logger) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	accountID := fs.String("account", "", "Account ID to import into")
	filePath := fs.String("file", "", "Path to a local statement file")
	gcsURI := fs.String("gcs-uri", "", "GCS URI of the statement (e.g. gs://bucket/out.csv)")
	templateID := fs.String("template", "", "Saved import template ID")
	noAI := fs.Bool("no-ai", false, "Skip AI classification of unmatched transactions")
	fs.Parse(os.Args[2:])

	if *accountID == "" {
		log.Fatal().Msg("Error: --account is required")
	}
	if *filePath == "" && *gcsURI == "" {
		log.Fatal().Msg("Error: --file or --gcs-uri is required")
	}

	cfg := mustLoadConfig(log)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := newRepository(ctx, cfg, log)
	defer repo.Close()

	state := &pipeline.State{AccountID: *accountID, Source: *gcsURI}

	var fetcher pipeline.StatementFetcher
	if *filePath != "" {
		content, err := os.ReadFile(*filePath)
		if err != nil {
			log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read statement file")
		}
		state.Content = string(content)
	} else {
		f, err := gcs.NewFetcher(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage fetcher")
		}
		defer f.Close()
		fetcher = f
	}

	if *templateID != "" {
		tmpl, err := repo.GetTemplate(ctx, *templateID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load template")
		}
		if tmpl == nil {
			log.Fatal().Str("template", *templateID).Msg("Template not found")
		}
		state.Template = tmpl
	}

	var aiStep *pipeline.AIClassifyStep
	if !*noAI {
		classifier := newClassifier(ctx, cfg, repo, log)
		aiStep = &pipeline.AIClassifyStep{Classifier: classifier, Categories: repo}
	}

	p := pipeline.NewImportPipeline(fetcher, repo, repo, aiStep)

	log.Info().Str("account_id", *accountID).Msg("Starting import")
	if err := p.Execute(ctx, state); err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	out, _ := json.MarshalIndent(state.Summary, "", "  ")
	fmt.Println(string(out))
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", "", "GCS bucket name")
	objectName := fs.String("object", "", "GCS object name (defaults to filename)")
	filePath := fs.String("file", "", "Path to local statement file")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}
	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	content, err := os.ReadFile(*filePath)
	if err != nil {
		log.Fatal().Err(err).Str("file", *filePath).Msg("Failed to read file")
	}

	ctx := logger.WithContext(context.Background(), log)

	f, err := gcs.NewFetcher(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer f.Close()

	uri, err := f.Upload(ctx, *bucketName, *objectName, content)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, uri)
}

func runUsage(log zerolog.Logger) {
	cfg := mustLoadConfig(log)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	repo := newRepository(ctx, cfg, log)
	defer repo.Close()

	classifier := newClassifier(ctx, cfg, repo, log)

	usage, err := classifier.Usage(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read usage ledger")
	}
	budget, err := classifier.Budget(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to compute budget state")
	}

	out, _ := json.MarshalIndent(map[string]interface{}{
		"usage":  usage,
		"budget": budget,
	}, "", "  ")
	fmt.Println(string(out))
}
