package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gobelinus/review-system-microservice-sub000/internal/api"
	"github.com/gobelinus/review-system-microservice-sub000/internal/api/middleware"
	"github.com/gobelinus/review-system-microservice-sub000/internal/config"
	"github.com/gobelinus/review-system-microservice-sub000/internal/ingestion"
	"github.com/gobelinus/review-system-microservice-sub000/internal/logger"
	"github.com/gobelinus/review-system-microservice-sub000/internal/notify"
	"github.com/gobelinus/review-system-microservice-sub000/internal/repository"
	"github.com/gobelinus/review-system-microservice-sub000/internal/storage"
)

func main() {
	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
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

	serviceCfg := ingestion.ServiceConfig{
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
		SweepInterval:        cfg.Ingestion.SweepInterval,
		FailureRateThreshold: cfg.Health.FailureRateThreshold,
		StalenessWindow:      time.Duration(cfg.Health.StalenessHours) * time.Hour,
		MaxBacklog:           cfg.Health.MaxBacklog,
	}
	if cfg.Cleanup.Enabled {
		serviceCfg.RetentionDays = cfg.Cleanup.RetentionDays
		serviceCfg.CleanupInterval = cfg.Cleanup.Interval
	}

	service := ingestion.NewService(serviceCfg, objectStorage, processor, trackingRepo, jobRepo, notifier, appLogger)
	service.Start()

	router := api.SetupRouter(api.RouterConfig{
		Service:      service,
		TrackingRepo: trackingRepo,
		ReviewRepo:   reviewRepo,
		ProviderRepo: providerRepo,
		Logger:       appLogger,
		Mode:         cfg.Server.Mode,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Ingestion.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("HTTP server forced to shutdown")
	}
	if err := service.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Ingestion service shutdown incomplete")
	}

	appLogger.Info("Server exited")
}
