package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jittakal/kafblockstore/internal/blockgen"
	"github.com/jittakal/kafblockstore/internal/config"
	"github.com/jittakal/kafblockstore/internal/config/dto"
	"github.com/jittakal/kafblockstore/internal/coordinator"
	"github.com/jittakal/kafblockstore/internal/kafka"
	"github.com/jittakal/kafblockstore/internal/observability"
	"github.com/jittakal/kafblockstore/internal/server"
	"github.com/jittakal/kafblockstore/internal/storage"
	"github.com/jittakal/kafblockstore/internal/supervisor"
	"github.com/jittakal/kafblockstore/pkg/block"
	pkgstorage "github.com/jittakal/kafblockstore/pkg/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Priority: CLI flag > CONFIG_PATH env var > default path
	var cfgPath string
	if *configPath != "" {
		cfgPath = *configPath
	} else if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		cfgPath = envPath
	} else {
		cfgPath = "config/application.yaml"
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	})
	logger.Info("starting kafka block store",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
		"stream", cfg.Receiver.StreamID,
		"host", cfg.Receiver.Host,
	)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	// Storage format and compression
	format := block.FormatParquet
	if cfg.Storage.Format == "avro" {
		format = block.FormatAvro
	}
	compression := cfg.Storage.Compression
	if compression == "" {
		if format == block.FormatParquet {
			compression = "snappy"
		} else {
			compression = "gzip"
		}
	}

	handler, err := createStorageHandler(cfg, format, compression, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create storage handler: %w", err)
	}

	coordClient, err := coordinator.NewHTTPClient(coordinator.Config{
		BaseURL: cfg.Coordinator.Endpoint,
		Timeout: time.Duration(cfg.Coordinator.TimeoutMS) * time.Millisecond,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create coordinator client: %w", err)
	}

	sup := supervisor.New(supervisor.Config{
		StreamID: cfg.Receiver.StreamID,
		Host:     cfg.Receiver.Host,
	}, handler, coordClient, logger)

	gen := blockgen.New(blockgen.Config{
		StreamID:      cfg.Receiver.StreamID,
		Interval:      time.Duration(cfg.Block.IntervalMS) * time.Millisecond,
		QueueCapacity: cfg.Block.QueueCapacity,
		RateLimit:     cfg.Block.RateLimit,
	}, sup, logger, metrics)
	sup.Attach(gen)

	src, err := kafka.NewSaramaSource(kafka.SourceConfig{
		BootstrapServers:    cfg.Kafka.BootstrapServers,
		Topics:              cfg.Kafka.Topics,
		GroupID:             cfg.Kafka.GroupID,
		SecurityProtocol:    cfg.Kafka.SecurityProtocol,
		SASLMechanism:       cfg.Kafka.SASLMechanism,
		SASLUsername:        cfg.Kafka.SASLUsername,
		SASLPassword:        cfg.Kafka.SASLPassword,
		AWSRegion:           cfg.Kafka.AWSRegion,
		AutoOffsetReset:     cfg.Kafka.AutoOffsetReset,
		SessionTimeoutMS:    cfg.Kafka.SessionTimeoutMS,
		HeartbeatIntervalMS: cfg.Kafka.HeartbeatIntervalMS,
		MaxPollIntervalMS:   cfg.Kafka.MaxPollIntervalMS,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("failed to create kafka source: %w", err)
	}

	stopCh := make(chan string, 1)
	app := &receiverApp{
		generator:  gen,
		supervisor: sup,
		stopCh:     stopCh,
	}

	controlPort := 0
	var controller server.Controller
	if cfg.Observability.Control.Enabled {
		controlPort = cfg.Observability.Control.Port
		controller = app
	}

	httpServer := server.NewServer(
		cfg.Observability.Health.Port,
		cfg.Observability.Metrics.Port,
		controlPort,
		app,
		controller,
		registry,
		logger,
	)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}

	sourceErrChan := make(chan error, 1)
	go func() {
		sourceErrChan <- src.Run(ctx, sup)
	}()

	logger.Info("application started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	stopMessage := "shutdown"
	select {
	case <-sigChan:
		logger.Info("received termination signal")
		stopMessage = "terminated by signal"
	case msg := <-stopCh:
		logger.Info("stop requested via control endpoint", "message", msg)
		stopMessage = msg
	case err := <-sourceErrChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("source failed", "error", err)
			stopMessage = fmt.Sprintf("source failure: %v", err)
		}
	}

	// Graceful shutdown: stop intake first, then drain the generator.
	logger.Info("initiating graceful shutdown", "message", stopMessage)

	if err := src.Close(); err != nil {
		logger.Error("failed to close source", "error", err)
	}
	cancel()

	gracePeriod := time.Duration(cfg.Shutdown.GracePeriodSeconds) * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracePeriod)
	defer shutdownCancel()

	if err := sup.Stop(shutdownCtx, stopMessage); err != nil {
		logger.Error("supervisor stop reported errors", "error", err)
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown reported errors", "error", err)
	}

	logger.Info("application stopped successfully")
	return nil
}

// createStorageHandler builds the storage handler for the configured backend.
func createStorageHandler(
	cfg *dto.ApplicationConfig,
	format block.FileFormat,
	compression string,
	slogger *slog.Logger,
	metrics *observability.Metrics,
) (pkgstorage.Handler, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryHandler(cfg.Receiver.Host, slogger, metrics), nil
	case "file":
		return storage.NewFileHandler(storage.FileConfig{
			BasePath: cfg.Storage.File.BasePath,
		}, cfg.Receiver.Host, format, compression, slogger, metrics)
	case "s3":
		return storage.NewS3Handler(storage.S3Config{
			Bucket:       cfg.Storage.S3.Bucket,
			Region:       cfg.Storage.S3.Region,
			Prefix:       cfg.Storage.Prefix,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
			SSEEnabled:   cfg.Storage.S3.SSEEnabled,
			SSEKMSKeyID:  cfg.Storage.S3.SSEKMSKeyID,
		}, cfg.Receiver.Host, format, compression, slogger, metrics)
	case "gcs":
		return storage.NewGCSHandler(storage.GCSConfig{
			Bucket:               cfg.Storage.GCS.Bucket,
			ProjectID:            cfg.Storage.GCS.ProjectID,
			Prefix:               cfg.Storage.Prefix,
			CredentialsFile:      cfg.Storage.GCS.CredentialsFile,
			CredentialsJSON:      os.Getenv("GCP_CREDENTIALS_JSON"),
			Endpoint:             cfg.Storage.GCS.Endpoint,
			UseDefaultCredential: cfg.Storage.GCS.UseDefaultCredential,
		}, cfg.Receiver.Host, format, compression, slogger, metrics)
	case "azure":
		accountKey := cfg.Storage.Azure.AccountKey
		if accountKey == "" {
			accountKey = os.Getenv("AZURE_STORAGE_ACCOUNT_KEY")
		}
		return storage.NewAzureHandler(storage.AzureConfig{
			AccountName:   cfg.Storage.Azure.AccountName,
			AccountKey:    accountKey,
			ContainerName: cfg.Storage.Azure.Container,
			Prefix:        cfg.Storage.Prefix,
			Endpoint:      cfg.Storage.Azure.Endpoint,
		}, cfg.Receiver.Host, format, compression, slogger, metrics)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (supported: memory, file, s3, azure, gcs)", cfg.Storage.Backend)
	}
}

// receiverApp implements server.HealthChecker and server.Controller on
// top of the supervisor and the block generator.
type receiverApp struct {
	generator  *blockgen.Generator
	supervisor *supervisor.Supervisor
	stopCh     chan string
	stopOnce   sync.Once
}

func (a *receiverApp) Liveness() bool {
	// The process is alive as long as it can answer; a stopped
	// generator during graceful shutdown must not trigger a restart.
	return true
}

func (a *receiverApp) Readiness(ctx context.Context) bool {
	return a.generator.State() == blockgen.StateStarted
}

func (a *receiverApp) GetStatus() map[string]string {
	return map[string]string{
		"generator": a.generator.State().String(),
	}
}

func (a *receiverApp) RequestStop(message string) {
	a.stopOnce.Do(func() {
		a.stopCh <- message
	})
}

func (a *receiverApp) CleanupOldBlocks(thresholdUnixMS int64) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.supervisor.CleanupOldBlocks(ctx, time.UnixMilli(thresholdUnixMS))
}

func (a *receiverApp) UpdateRatioAndRelocation(ratios []float64, relocation map[int]string) {
	a.supervisor.UpdateRatioAndRelocation(ratios, relocation)
}
