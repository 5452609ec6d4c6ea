package api

import (
	"github.com/gin-gonic/gin"

	"github.com/gobelinus/review-system-microservice-sub000/internal/api/handler"
	"github.com/gobelinus/review-system-microservice-sub000/internal/api/middleware"
	"github.com/gobelinus/review-system-microservice-sub000/internal/ingestion"
	"github.com/gobelinus/review-system-microservice-sub000/internal/logger"
	"github.com/gobelinus/review-system-microservice-sub000/internal/repository"
)

// RouterConfig holds the collaborators and settings the router needs.
type RouterConfig struct {
	Service      *ingestion.Service
	TrackingRepo *repository.TrackingRepository
	ReviewRepo   *repository.ReviewRepository
	ProviderRepo *repository.ProviderRepository
	Logger       *logger.Logger
	Mode         string
	CORS         middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes.
// Parameters:
//   - cfg: router collaborators and settings.
// Returns:
//   - *gin.Engine: configured router.
func SetupRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = logger.GetDefault()
	}

	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler(cfg.Service)
	ingestionHandler := handler.NewIngestionHandler(cfg.Service, cfg.TrackingRepo, cfg.Logger)
	reviewHandler := handler.NewReviewHandler(cfg.ReviewRepo, cfg.ProviderRepo)

	// Liveness for the process, health for the pipeline.
	r.GET("/health", healthHandler.Liveness)
	r.GET("/health/pipeline", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/ingestion/trigger", ingestionHandler.Trigger)
		v1.GET("/ingestion/statistics", ingestionHandler.Statistics)

		v1.GET("/ingestion/jobs", ingestionHandler.ListJobs)
		v1.GET("/ingestion/jobs/:id", ingestionHandler.GetJob)
		v1.POST("/ingestion/jobs/:id/cancel", ingestionHandler.CancelJob)
		v1.POST("/ingestion/jobs/:id/retry", ingestionHandler.RetryJob)

		v1.GET("/reviews/stats", reviewHandler.Stats)
		v1.GET("/providers", reviewHandler.Providers)
	}

	return r
}
