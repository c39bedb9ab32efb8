package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ameliahart/conversational_memory/pkg/logger"
)

// Storage backends selectable via STORAGE_BACKEND.
const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StorageS3       = "s3"
	StoragePostgres = "postgres"
)

// Embedding providers selectable via EMBEDDING_PROVIDER.
const (
	EmbeddingOpenAI = "openai"
	EmbeddingStatic = "static"
)

// Token estimators selectable via TOKEN_ESTIMATOR.
const (
	EstimatorHeuristic = "heuristic"
	EstimatorTiktoken  = "tiktoken"
)

// AppConfig holds all application configuration
type AppConfig struct {
	// Service configuration
	ServiceName string `env:"SERVICE_NAME" yaml:"service_name" default:"conversational-memory"`
	Version     string `env:"VERSION" yaml:"version" default:"dev"`
	Environment string `env:"ENVIRONMENT" yaml:"environment" default:"development"`

	// Server configuration
	Port            int           `env:"PORT" yaml:"port" default:"8080"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" yaml:"request_timeout" default:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" default:"15s"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging,inline"`

	// Monitoring configuration
	Monitoring MonitoringConfig `yaml:"monitoring,inline"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage,inline"`

	// Embedding configuration
	Embedding EmbeddingConfig `yaml:"embedding,inline"`

	// Memory behaviour configuration
	Memory MemoryConfig `yaml:"memory,inline"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" yaml:"level" default:"info"`
	Format string `env:"LOG_FORMAT" yaml:"format" default:"json"`
}

// MonitoringConfig holds monitoring configuration
type MonitoringConfig struct {
	HealthCheckTimeout time.Duration `env:"HEALTH_CHECK_TIMEOUT" yaml:"health_check_timeout" default:"10s"`
	MetricsEnabled     bool          `env:"METRICS_ENABLED" yaml:"metrics_enabled" default:"true"`
	MetricsPort        int           `env:"METRICS_PORT" yaml:"metrics_port" default:"9090"`
}

// StorageConfig selects and configures the document store backend.
type StorageConfig struct {
	Backend string `env:"STORAGE_BACKEND" yaml:"backend" default:"memory"`

	// File backend
	Directory string `env:"STORAGE_DIRECTORY" yaml:"directory" default:"./data"`

	// S3 backend
	S3Bucket string `env:"S3_BUCKET" yaml:"s3_bucket"`
	S3Region string `env:"S3_REGION" yaml:"s3_region" default:"eu-west-1"`
	S3Prefix string `env:"S3_PREFIX" yaml:"s3_prefix" default:"memory"`

	// Postgres backend. Pool sizing goes in the DSN (pgxpool understands
	// pool_max_conns and friends as query parameters).
	PostgresDSN    string        `env:"POSTGRES_DSN" yaml:"postgres_dsn"`
	ConnectTimeout time.Duration `env:"POSTGRES_CONNECT_TIMEOUT" yaml:"connect_timeout" default:"10s"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider string `env:"EMBEDDING_PROVIDER" yaml:"provider" default:"openai"`
	APIKey   string `env:"OPENAI_API_KEY" yaml:"api_key"`
	Model    string `env:"EMBEDDING_MODEL" yaml:"model" default:"text-embedding-3-small"`
}

// MemoryConfig tunes context assembly and the writeback pipeline.
type MemoryConfig struct {
	MaxContextTokens   int    `env:"MAX_CONTEXT_TOKENS" yaml:"max_context_tokens" default:"2000"`
	TokenEstimator     string `env:"TOKEN_ESTIMATOR" yaml:"token_estimator" default:"heuristic"`
	WritebackQueueSize int    `env:"WRITEBACK_QUEUE_SIZE" yaml:"writeback_queue_size" default:"256"`
	WritebackWorkers   int    `env:"WRITEBACK_WORKERS" yaml:"writeback_workers" default:"4"`
}

// Validate validates the configuration and returns an error if invalid
func (c *AppConfig) Validate() error {
	var result error

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		result = multierror.Append(result, fmt.Errorf("log_level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		result = multierror.Append(result, fmt.Errorf("log_format must be either 'json' or 'text', got %q", c.Logging.Format))
	}

	if c.Port < 1 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("port must be between 1 and 65535, got %d", c.Port))
	}

	if c.RequestTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("request_timeout must be greater than 0"))
	}

	switch c.Storage.Backend {
	case StorageMemory, StorageFile:
	case StorageS3:
		if c.Storage.S3Bucket == "" {
			result = multierror.Append(result, fmt.Errorf("s3_bucket is required when storage_backend is %q", StorageS3))
		}
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			result = multierror.Append(result, fmt.Errorf("postgres_dsn is required when storage_backend is %q", StoragePostgres))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("storage_backend must be one of [memory, file, s3, postgres], got %q", c.Storage.Backend))
	}

	switch c.Embedding.Provider {
	case EmbeddingOpenAI:
		if c.Embedding.APIKey == "" {
			result = multierror.Append(result, fmt.Errorf("openai_api_key is required when embedding_provider is %q", EmbeddingOpenAI))
		}
	case EmbeddingStatic:
	default:
		result = multierror.Append(result, fmt.Errorf("embedding_provider must be one of [openai, static], got %q", c.Embedding.Provider))
	}

	if c.Memory.TokenEstimator != EstimatorHeuristic && c.Memory.TokenEstimator != EstimatorTiktoken {
		result = multierror.Append(result, fmt.Errorf("token_estimator must be either 'heuristic' or 'tiktoken', got %q", c.Memory.TokenEstimator))
	}

	if c.Memory.MaxContextTokens <= 0 {
		result = multierror.Append(result, fmt.Errorf("max_context_tokens must be greater than 0"))
	}

	if c.Memory.WritebackQueueSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("writeback_queue_size must be greater than 0"))
	}

	if c.Memory.WritebackWorkers <= 0 {
		result = multierror.Append(result, fmt.Errorf("writeback_workers must be greater than 0"))
	}

	return result
}

// GetLogLevel returns the parsed logger level
func (c *AppConfig) GetLogLevel() logger.Level {
	return logger.ParseLevel(c.Logging.Level)
}

// IsProduction returns true if running in production environment
func (c *AppConfig) IsProduction() bool {
	return strings.ToLower(c.Environment) == "production"
}

// LogConfig logs the current configuration (without sensitive data)
func (c *AppConfig) LogConfig(log logger.Logger) {
	log.Info("Application configuration loaded",
		logger.StringField("service_name", c.ServiceName),
		logger.StringField("version", c.Version),
		logger.StringField("environment", c.Environment),
		logger.IntField("port", c.Port),
		logger.StringField("log_level", c.Logging.Level),
		logger.StringField("log_format", c.Logging.Format),
		logger.StringField("storage_backend", c.Storage.Backend),
		logger.StringField("embedding_provider", c.Embedding.Provider),
		logger.StringField("token_estimator", c.Memory.TokenEstimator),
		logger.IntField("max_context_tokens", c.Memory.MaxContextTokens),
		logger.BoolField("metrics_enabled", c.Monitoring.MetricsEnabled),
	)
}
