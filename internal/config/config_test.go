package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameliahart/conversational_memory/pkg/config"
	"github.com/ameliahart/conversational_memory/pkg/logger"
)

func TestDefaultsLoadWithoutFile(t *testing.T) {
	t.Setenv("EMBEDDING_PROVIDER", "static")

	var cfg AppConfig
	require.NoError(t, config.GetConfig(&cfg, "", false))

	assert.Equal(t, "conversational-memory", cfg.ServiceName)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, StorageMemory, cfg.Storage.Backend)
	assert.Equal(t, EmbeddingStatic, cfg.Embedding.Provider)
	assert.Equal(t, EstimatorHeuristic, cfg.Memory.TokenEstimator)
	assert.Equal(t, 2000, cfg.Memory.MaxContextTokens)
	assert.Equal(t, 256, cfg.Memory.WritebackQueueSize)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORAGE_BACKEND", "file")
	t.Setenv("STORAGE_DIRECTORY", "/tmp/memories")
	t.Setenv("EMBEDDING_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("MAX_CONTEXT_TOKENS", "4000")

	var cfg AppConfig
	require.NoError(t, config.GetConfig(&cfg, "", false))

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, logger.DebugLevel, cfg.GetLogLevel())
	assert.Equal(t, StorageFile, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/memories", cfg.Storage.Directory)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, 4000, cfg.Memory.MaxContextTokens)
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *AppConfig) { c.Logging.Level = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *AppConfig) { c.Logging.Format = "xml" },
			wantErr: "log_format",
		},
		{
			name:    "port out of range",
			mutate:  func(c *AppConfig) { c.Port = 70000 },
			wantErr: "port",
		},
		{
			name:    "unknown storage backend",
			mutate:  func(c *AppConfig) { c.Storage.Backend = "dynamo" },
			wantErr: "storage_backend",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *AppConfig) { c.Storage.Backend = StorageS3 },
			wantErr: "s3_bucket",
		},
		{
			name:    "postgres without dsn",
			mutate:  func(c *AppConfig) { c.Storage.Backend = StoragePostgres },
			wantErr: "postgres_dsn",
		},
		{
			name:    "openai without key",
			mutate:  func(c *AppConfig) { c.Embedding.APIKey = "" },
			wantErr: "openai_api_key",
		},
		{
			name:    "unknown token estimator",
			mutate:  func(c *AppConfig) { c.Memory.TokenEstimator = "words" },
			wantErr: "token_estimator",
		},
		{
			name:    "zero writeback workers",
			mutate:  func(c *AppConfig) { c.Memory.WritebackWorkers = 0 },
			wantErr: "writeback_workers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidConfigPasses(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestGetLogLevelMapping(t *testing.T) {
	tests := []struct {
		level string
		want  logger.Level
	}{
		{"debug", logger.DebugLevel},
		{"info", logger.InfoLevel},
		{"warn", logger.WarnLevel},
		{"warning", logger.WarnLevel},
		{"error", logger.ErrorLevel},
		{"anything-else", logger.InfoLevel},
	}

	for _, tt := range tests {
		cfg := AppConfig{Logging: LoggingConfig{Level: tt.level}}
		assert.Equal(t, tt.want, cfg.GetLogLevel(), tt.level)
	}
}

func validConfig() AppConfig {
	return AppConfig{
		Port:           8080,
		RequestTimeout: 30 * time.Second,
		Logging:        LoggingConfig{Level: "info", Format: "json"},
		Storage:        StorageConfig{Backend: StorageMemory},
		Embedding:      EmbeddingConfig{Provider: EmbeddingOpenAI, APIKey: "sk-test"},
		Memory: MemoryConfig{
			MaxContextTokens:   2000,
			TokenEstimator:     EstimatorHeuristic,
			WritebackQueueSize: 256,
			WritebackWorkers:   4,
		},
	}
}
