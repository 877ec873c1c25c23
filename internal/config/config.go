package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/guiplbarros-ai/cortex-ingest/internal/classify"
)

type Config struct {
	Server   ServerConfig
	BigQuery BigQueryConfig
	GCS      GCSConfig
	AI       AIConfig
	Jobs     JobsConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type BigQueryConfig struct {
	ProjectID string
	DatasetID string
}

type GCSConfig struct {
	Bucket string
}

type AIConfig struct {
	Provider string // openai or gemini
	Model    string
	APIKey   string

	// MonthlyLimitUSD of 0 is a real limit, not "unset"; any nonzero
	// spend is then over budget.
	MonthlyLimitUSD     float64
	NearLimitThreshold  float64
	ConfidenceThreshold float64
	AllowOverride       bool

	Strategy    classify.Strategy
	USDBRLRate  float64
	Concurrency int
}

type JobsConfig struct {
	QueueSize int
	Workers   int
}

// Load reads configuration from a .env file when one exists, falling
// back to plain environment variables.
func Load() (*Config, error) {
	for _, envFile := range []string{".env", "../.env"} {
		if err := godotenv.Load(envFile); err == nil {
			break
		}
	}

	readTimeout, _ := strconv.Atoi(getEnv("SERVER_READ_TIMEOUT", "15"))
	writeTimeout, _ := strconv.Atoi(getEnv("SERVER_WRITE_TIMEOUT", "30"))

	return &Config{
		Server: ServerConfig{
			Port:         getEnv("SERVER_PORT", "8080"),
			ReadTimeout:  time.Duration(readTimeout) * time.Second,
			WriteTimeout: time.Duration(writeTimeout) * time.Second,
		},
		BigQuery: BigQueryConfig{
			ProjectID: getEnv("BQ_PROJECT_ID", ""),
			DatasetID: getEnv("BQ_DATASET_ID", "cortex"),
		},
		GCS: GCSConfig{
			Bucket: getEnv("GCS_BUCKET", ""),
		},
		AI: AIConfig{
			Provider:            getEnv("AI_PROVIDER", "openai"),
			Model:               getEnv("AI_MODEL", "gpt-4o-mini"),
			APIKey:              getEnv("OPENAI_API_KEY", ""),
			MonthlyLimitUSD:     getEnvFloat("AI_MONTHLY_LIMIT_USD", 10.0),
			NearLimitThreshold:  getEnvFloat("AI_NEAR_LIMIT_THRESHOLD", 0.8),
			ConfidenceThreshold: getEnvFloat("AI_CONFIDENCE_THRESHOLD", 0.7),
			AllowOverride:       getEnv("AI_ALLOW_BUDGET_OVERRIDE", "false") == "true",
			Strategy:            classify.Strategy(getEnv("AI_STRATEGY", string(classify.StrategyBalanced))),
			USDBRLRate:          getEnvFloat("USD_BRL_RATE", 6.0),
			Concurrency:         getEnvInt("AI_CONCURRENCY", 5),
		},
		Jobs: JobsConfig{
			QueueSize: getEnvInt("JOB_QUEUE_SIZE", 100),
			Workers:   getEnvInt("JOB_WORKERS", 5),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
