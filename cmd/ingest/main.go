package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gobelinus/review-system-microservice-sub000/internal/config"
	"github.com/gobelinus/review-system-microservice-sub000/internal/ingestion"
	"github.com/gobelinus/review-system-microservice-sub000/internal/logger"
	"github.com/gobelinus/review-system-microservice-sub000/internal/notify"
	"github.com/gobelinus/review-system-microservice-sub000/internal/repository"
	"github.com/gobelinus/review-system-microservice-sub000/internal/storage"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "review-ingest",
	})
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	provider := flag.String("provider", "", "Restrict ingestion to one provider (agoda, booking, expedia)")
	prefix := flag.String("prefix", "", "Object key prefix to scan, overrides the configured prefix")
	maxFiles := flag.Int("max-files", 0, "Maximum number of files to process, 0 uses the configured cap")
	sweep := flag.Bool("sweep", false, "Reset stuck in-progress files and exit")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(db); err != nil {
			appLogger.WithError(err).Fatal("Failed to run migrations")
		}
	}

	providerRepo := repository.NewProviderRepository(db)
	reviewRepo := repository.NewReviewRepository(db)
	trackingRepo := repository.NewTrackingRepository(db)
	jobRepo := repository.NewJobRepository(db)

	objectStorage, err := storage.NewS3Storage(&storage.S3Config{
		Endpoint:  cfg.S3.Endpoint,
		Region:    cfg.S3.Region,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		UseSSL:    cfg.S3.UseSSL,
		Bucket:    cfg.S3.Bucket,
		PageSize:  cfg.S3.PageSize,
		MaxPages:  cfg.S3.MaxPages,
	}, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize object storage")
	}

	validator := ingestion.NewValidator(cfg.Ingestion.MaxReviewAgeYears)
	processor := ingestion.NewReviewProcessor(validator, providerRepo, reviewRepo, cfg.Ingestion.ChunkSize, appLogger)

	var notifier ingestion.Notifier
	if webhook := notify.NewWebhookNotifier(notify.WebhookConfig{
		URL:        cfg.Webhook.URL,
		Secret:     cfg.Webhook.Secret,
		Timeout:    cfg.Webhook.Timeout,
		RetryCount: cfg.Webhook.RetryCount,
	}, appLogger); webhook != nil {
		notifier = webhook
	}

	service := ingestion.NewService(ingestion.ServiceConfig{
		Workers:            cfg.Ingestion.Workers,
		BatchSize:          cfg.Ingestion.BatchSize,
		Prefix:             cfg.S3.Prefix,
		MaxFilesPerTrigger: cfg.Ingestion.MaxFilesPerTrig,
		Retry: ingestion.RetryConfig{
			MaxAttempts: cfg.Ingestion.RetryMaxAttempts,
			BaseDelay:   cfg.Ingestion.RetryBaseDelay,
			MaxDelay:    cfg.Ingestion.RetryMaxDelay,
		},
		ShutdownTimeout:      cfg.Ingestion.ShutdownTimeout,
		StuckAfter:           cfg.Ingestion.StuckAfter,
		FailureRateThreshold: cfg.Health.FailureRateThreshold,
		StalenessWindow:      time.Duration(cfg.Health.StalenessHours) * time.Hour,
		MaxBacklog:           cfg.Health.MaxBacklog,
	}, objectStorage, processor, trackingRepo, jobRepo, notifier, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		appLogger.Info("Received shutdown signal, canceling...")
		cancel()
	}()

	if *sweep {
		reset := service.SweepStuckFiles(ctx)
		appLogger.WithField(logger.FieldCount, reset).Info("Stuck-file sweep completed")
		return
	}

	appLogger.WithFields(logger.Fields{
		"provider":  *provider,
		"prefix":    *prefix,
		"max_files": *maxFiles,
	}).Info("Starting ingestion run")

	result, err := service.Trigger(ctx, ingestion.TriggerRequest{
		Provider:    *provider,
		Prefix:      *prefix,
		MaxFiles:    *maxFiles,
		TriggeredBy: "cli",
	})
	if err != nil {
		appLogger.WithError(err).Fatal("Ingestion run failed")
	}

	fmt.Println(result.Summary)
}
