package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Oracle   OracleConfig
	Store    StoreConfig
	GitLab   GitLabConfig
	Pipeline PipelineConfig
	OTel     OTelConfig
	Env      string
	Port     string
	NodeID   int64
	RunDir   string
}

type OracleConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// StoreConfig selects and configures the work item backend. Backend is
// "file" or "gitlab".
type StoreConfig struct {
	Backend string
	FileDir string
}

type GitLabConfig struct {
	Token     string
	BaseURL   string
	ProjectID string
}

type PipelineConfig struct {
	RedisURL       string
	RedisStream    string
	RedisGroup     string
	RedisDLQStream string
	RedisConsumer  string
	MaxAttempts    int
	MinLineLength  int
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
	ServiceTypeCLI    ServiceType = "cli"
)

// Load loads configuration from environment variables. In development it
// loads from a service-specific .env file first, falling back to .env.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("PRDSYNC_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:    getEnv("PRDSYNC_ENV", "development"),
		Port:   getEnv("PORT", "8080"),
		NodeID: int64(getEnvInt("NODE_ID", 1)),
		RunDir: getEnv("RUN_ARTIFACT_DIR", ".prdsync/runs"),
		Oracle: OracleConfig{
			APIKey:    getEnv("OPENAI_API_KEY", ""),
			BaseURL:   getEnv("OPENAI_BASE_URL", ""),
			Model:     getEnv("ORACLE_MODEL", "gpt-4o-mini"),
			MaxTokens: getEnvInt("ORACLE_MAX_TOKENS", 16384),
		},
		Store: StoreConfig{
			Backend: getEnv("STORE_BACKEND", "file"),
			FileDir: getEnv("STORE_FILE_DIR", ".prdsync/store"),
		},
		GitLab: GitLabConfig{
			// Instance URL for self-hosted GitLab, e.g. https://gitlab.example.com.
			// Empty means hosted gitlab.com via the client's default.
			Token:     getEnv("GITLAB_TOKEN", ""),
			BaseURL:   getEnv("GITLAB_BASE_URL", ""),
			ProjectID: getEnv("GITLAB_PROJECT_ID", ""),
		},
		Pipeline: PipelineConfig{
			RedisURL:       getEnv("REDIS_URL", "redis://localhost:6379/0"),
			RedisStream:    getEnv("REDIS_STREAM", "prdsync_runs"),
			RedisGroup:     getEnv("REDIS_CONSUMER_GROUP", "prdsync_group"),
			RedisDLQStream: getEnv("REDIS_DLQ_STREAM", "prdsync_runs_dlq"),
			RedisConsumer:  getEnv("REDIS_CONSUMER_NAME", "worker"),
			MaxAttempts:    getEnvInt("PIPELINE_MAX_ATTEMPTS", 3),
			MinLineLength:  getEnvInt("SIGNIFICANCE_MIN_LINE_LENGTH", 3),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "prdsync"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
		},
	}

	switch cfg.Store.Backend {
	case "file":
		if cfg.Store.FileDir == "" {
			return Config{}, fmt.Errorf("STORE_FILE_DIR is required for the file backend")
		}
	case "gitlab":
		if !cfg.GitLab.Enabled() {
			return Config{}, fmt.Errorf("GITLAB_TOKEN and GITLAB_PROJECT_ID are required for the gitlab backend")
		}
	default:
		return Config{}, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c OracleConfig) Enabled() bool {
	return c.APIKey != ""
}

func (c GitLabConfig) Enabled() bool {
	return c.Token != "" && c.ProjectID != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}
