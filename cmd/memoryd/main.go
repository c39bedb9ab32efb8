package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ameliahart/conversational_memory/internal/config"
	"github.com/ameliahart/conversational_memory/internal/context_assembler"
	"github.com/ameliahart/conversational_memory/internal/document_store"
	"github.com/ameliahart/conversational_memory/internal/embedding"
	"github.com/ameliahart/conversational_memory/internal/episodic_memory"
	"github.com/ameliahart/conversational_memory/internal/memory_service"
	"github.com/ameliahart/conversational_memory/internal/memory_settings"
	"github.com/ameliahart/conversational_memory/internal/memory_writeback"
	"github.com/ameliahart/conversational_memory/internal/semantic_memory"
	"github.com/ameliahart/conversational_memory/internal/server"
	"github.com/ameliahart/conversational_memory/internal/short_term_memory"
	pkgconfig "github.com/ameliahart/conversational_memory/pkg/config"
	"github.com/ameliahart/conversational_memory/pkg/health"
	"github.com/ameliahart/conversational_memory/pkg/logger"
	"github.com/ameliahart/conversational_memory/pkg/metrics"
	"github.com/ameliahart/conversational_memory/pkg/tokencount"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cfg config.AppConfig
	if err := pkgconfig.GetConfig(&cfg, os.Getenv("CONFIG_FILE"), true); err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.NewLogger(logger.Config{
		Level:   cfg.GetLogLevel(),
		Format:  cfg.Logging.Format,
		Service: cfg.ServiceName,
	})
	cfg.LogConfig(logg)

	m := metrics.NewMetrics()

	store, closeStore, err := newDocumentStore(ctx, cfg, logg)
	if err != nil {
		logg.Error("Failed to initialize document store", logger.ErrorField(err))
		os.Exit(1)
	}
	defer closeStore()

	embedder, err := newEmbedder(cfg, logg, m)
	if err != nil {
		logg.Error("Failed to initialize embedding client", logger.ErrorField(err))
		os.Exit(1)
	}

	estimator, err := newEstimator(cfg)
	if err != nil {
		logg.Error("Failed to initialize token estimator", logger.ErrorField(err))
		os.Exit(1)
	}

	shortTerm := short_term_memory.New(short_term_memory.Config{Store: store, Logger: logg})
	semantic := semantic_memory.New(semantic_memory.Config{
		Store:    store,
		Embedder: embedder,
		Logger:   logg,
		Metrics:  m,
	})
	episodic := episodic_memory.New(episodic_memory.Config{Store: store, Logger: logg})
	settings := memory_settings.New(memory_settings.Config{Store: store, Logger: logg})

	assembler := context_assembler.New(context_assembler.Config{
		ShortTerm: shortTerm,
		Semantic:  semantic,
		Episodic:  episodic,
		Settings:  settings,
		Estimator: estimator,
		Logger:    logg,
		Metrics:   m,
	})

	recorder := memory_writeback.New(memory_writeback.Config{
		ShortTerm: shortTerm,
		Semantic:  semantic,
		Settings:  settings,
		Logger:    logg,
		Metrics:   m,
		QueueSize: cfg.Memory.WritebackQueueSize,
		Workers:   cfg.Memory.WritebackWorkers,
	})

	svc := memory_service.New(memory_service.Config{
		ShortTerm: shortTerm,
		Semantic:  semantic,
		Episodic:  episodic,
		Settings:  settings,
		Assembler: assembler,
		Recorder:  recorder,
		Logger:    logg,
	})
	defer svc.Close()

	checker := health.New(cfg.Monitoring.HealthCheckTimeout, logg)
	checker.Add(storeCheck(store))

	if cfg.Monitoring.MetricsEnabled {
		go func() {
			if err := m.Serve(ctx, cfg.Monitoring.MetricsPort); err != nil {
				logg.Error("Metrics server failed", logger.ErrorField(err))
			}
		}()
	}

	srv := server.New(server.Config{
		Service:          svc,
		Health:           checker,
		Logger:           logg,
		Port:             cfg.Port,
		DefaultMaxTokens: cfg.Memory.MaxContextTokens,
		RequestTimeout:   cfg.RequestTimeout,
	})

	if err := srv.Run(ctx); err != nil {
		logg.Error("HTTP server failed", logger.ErrorField(err))
		os.Exit(1)
	}
	logg.Info("Shutdown complete")
}

// newDocumentStore builds the configured backend and returns it with a
// close function for whatever resources it holds.
func newDocumentStore(ctx context.Context, cfg config.AppConfig, logg logger.Logger) (document_store.Store, func(), error) {
	noop := func() {}

	switch cfg.Storage.Backend {
	case config.StorageMemory:
		return document_store.NewMemoryStore(), noop, nil

	case config.StorageFile:
		return document_store.NewFileStore(
			document_store.NewLocalBlobProvider(cfg.Storage.Directory)), noop, nil

	case config.StorageS3:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Storage.S3Region))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client := document_store.NewAWSS3Client(s3.NewFromConfig(awsCfg))
		return document_store.NewFileStore(
			document_store.NewS3BlobProvider(cfg.Storage.S3Bucket, cfg.Storage.S3Prefix, client)), noop, nil

	case config.StoragePostgres:
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Storage.ConnectTimeout)
		defer cancel()
		store, err := document_store.NewPostgresStore(connectCtx, cfg.Storage.PostgresDSN, logg)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func newEmbedder(cfg config.AppConfig, logg logger.Logger, m *metrics.Metrics) (embedding.Client, error) {
	switch cfg.Embedding.Provider {
	case config.EmbeddingOpenAI:
		return embedding.NewOpenAIClient(cfg.Embedding.APIKey, cfg.Embedding.Model, logg, m)
	case config.EmbeddingStatic:
		return embedding.NewStaticClient(), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
}

func newEstimator(cfg config.AppConfig) (tokencount.Estimator, error) {
	if cfg.Memory.TokenEstimator == config.EstimatorTiktoken {
		return tokencount.NewTiktoken()
	}
	return tokencount.NewHeuristic(), nil
}

// storeCheck probes the document store. A missing probe document is a
// healthy answer; only transport or backend failures count against it.
func storeCheck(store document_store.Store) health.Check {
	return health.NewCheckFunc("document_store", func(ctx context.Context) error {
		if pg, ok := store.(*document_store.PostgresStore); ok {
			return pg.Ping(ctx)
		}
		_, err := store.Get(ctx, "health", "probe")
		if errors.Is(err, document_store.ErrNotFound) {
			return nil
		}
		return err
	})
}
