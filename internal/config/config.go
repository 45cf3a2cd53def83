package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	API       APIConfig
	Cache     CacheConfig
	View      ViewConfig
	Log       LogConfig
	Telemetry TelemetryConfig
	Export    ExportConfig
	BigQuery  BigQueryConfig
	Notion    NotionConfig
}

type ServerConfig struct {
	Port string
	Host string
}

// APIConfig points at the transactions service the client talks to.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type CacheConfig struct {
	StaleTime         time.Duration
	GCTime            time.Duration
	RefetchWorkers    int
	RefetchQueueSize  int
	RefetchMaxRetries int
}

type ViewConfig struct {
	PageSize int
	Locale   string
	Currency string
}

type LogConfig struct {
	Level string
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
}

type ExportConfig struct {
	GCSBucket string
}

type BigQueryConfig struct {
	ProjectID string
	Dataset   string
	Table     string
}

type NotionConfig struct {
	Token      string
	DatabaseID string
}

func Load() (*Config, error) {
	apiTimeout, err := getDurationEnv("API_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	staleTime, err := getDurationEnv("CACHE_STALE_TIME", 2*time.Minute)
	if err != nil {
		return nil, err
	}
	gcTime, err := getDurationEnv("CACHE_GC_TIME", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	refetchWorkers, err := getIntEnv("REFETCH_WORKERS", 2)
	if err != nil {
		return nil, err
	}
	refetchQueueSize, err := getIntEnv("REFETCH_QUEUE_SIZE", 100)
	if err != nil {
		return nil, err
	}
	refetchRetries, err := getIntEnv("REFETCH_MAX_RETRIES", 1)
	if err != nil {
		return nil, err
	}
	pageSize, err := getIntEnv("PAGE_SIZE", 10)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Host: getEnv("HOST", "0.0.0.0"),
		},
		API: APIConfig{
			BaseURL: strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:3333"), "/"),
			Timeout: apiTimeout,
		},
		Cache: CacheConfig{
			StaleTime:         staleTime,
			GCTime:            gcTime,
			RefetchWorkers:    refetchWorkers,
			RefetchQueueSize:  refetchQueueSize,
			RefetchMaxRetries: refetchRetries,
		},
		View: ViewConfig{
			PageSize: pageSize,
			Locale:   getEnv("LOCALE", "pt-BR"),
			Currency: getEnv("CURRENCY", "BRL"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "finance-tracker-web"),
			Environment:  getEnv("OTEL_ENVIRONMENT", "development"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", ""),
		},
		Export: ExportConfig{
			GCSBucket: getEnv("GCS_BUCKET", ""),
		},
		BigQuery: BigQueryConfig{
			ProjectID: getEnv("BQ_PROJECT_ID", ""),
			Dataset:   getEnv("BQ_DATASET", "finance"),
			Table:     getEnv("BQ_TABLE", "client_transactions"),
		},
		Notion: NotionConfig{
			Token:      getEnv("NOTION_TOKEN", ""),
			DatabaseID: getEnv("NOTION_DB_ID", ""),
		},
	}

	if cfg.API.BaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL must not be empty")
	}
	if cfg.View.PageSize < 1 {
		return nil, fmt.Errorf("PAGE_SIZE must be at least 1, got %d", cfg.View.PageSize)
	}
	if cfg.Cache.RefetchWorkers < 1 {
		return nil, fmt.Errorf("REFETCH_WORKERS must be at least 1, got %d", cfg.Cache.RefetchWorkers)
	}
	if cfg.Cache.RefetchMaxRetries < 0 {
		return nil, fmt.Errorf("REFETCH_MAX_RETRIES must not be negative, got %d", cfg.Cache.RefetchMaxRetries)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getIntEnv(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
