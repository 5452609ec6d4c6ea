package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/gobelinus/review-system-microservice-sub000/internal/ingestion"
	"github.com/gobelinus/review-system-microservice-sub000/internal/logger"
	"github.com/gobelinus/review-system-microservice-sub000/internal/repository"
)

// IngestionHandler handles ingestion trigger and job lifecycle endpoints.
type IngestionHandler struct {
	service      *ingestion.Service
	trackingRepo *repository.TrackingRepository
	logger       *logger.Logger
}

// NewIngestionHandler creates a new ingestion handler.
// Parameters:
//   - service: ingestion orchestration service.
//   - trackingRepo: tracking repository for statistics queries.
//   - log: logger instance.
// Returns:
//   - *IngestionHandler: initialized handler.
func NewIngestionHandler(service *ingestion.Service, trackingRepo *repository.TrackingRepository, log *logger.Logger) *IngestionHandler {
	return &IngestionHandler{
		service:      service,
		trackingRepo: trackingRepo,
		logger:       log,
	}
}

// TriggerRequest represents the trigger API request.
type TriggerRequest struct {
	Provider string `json:"provider"`
	Prefix   string `json:"prefix"`
	MaxFiles int    `json:"max_files"`
	Async    bool   `json:"async"`
}

// Trigger handles the manual ingestion trigger endpoint. Synchronous runs
// block until the summary is available; asynchronous runs return 202 with
// the job ID.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *IngestionHandler) Trigger(c *gin.Context) {
	ctx := c.Request.Context()

	var req TriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.CtxWarn(ctx, "Invalid trigger request: client_ip=%s, error=%v", c.ClientIP(), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger.CtxInfo(ctx, "Received ingestion trigger: provider=%s, max_files=%d, async=%v, client_ip=%s",
		req.Provider, req.MaxFiles, req.Async, c.ClientIP())

	result, err := h.service.Trigger(ctx, ingestion.TriggerRequest{
		Provider:    req.Provider,
		Prefix:      req.Prefix,
		MaxFiles:    req.MaxFiles,
		Async:       req.Async,
		TriggeredBy: c.ClientIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, ingestion.ErrInvalidTrigger):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, ingestion.ErrRunInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, ingestion.ErrShuttingDown):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	if req.Async {
		c.JSON(http.StatusAccepted, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetJob returns one job record by ID.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *IngestionHandler) GetJob(c *gin.Context) {
	job, err := h.service.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"job":              job,
		"progress_percent": job.ProgressPercent(),
	})
}

// ListJobs returns the most recent jobs, newest first.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *IngestionHandler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	jobs, err := h.service.ListJobs(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "count": len(jobs)})
}

// CancelJob cancels an in-flight job.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *IngestionHandler) CancelJob(c *gin.Context) {
	job, err := h.service.CancelJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrIllegalJobTransition):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"job": job})
}

// RetryJob creates a new job replaying a failed job's parameters.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *IngestionHandler) RetryJob(c *gin.Context) {
	result, err := h.service.RetryJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrJobNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, ingestion.ErrNotRetryable):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, ingestion.ErrRunInProgress):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusAccepted, result)
}

// Statistics returns file tracking statistics, optionally filtered by
// provider via the provider query parameter.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *IngestionHandler) Statistics(c *gin.Context) {
	stats, err := h.trackingRepo.Statistics(c.Request.Context(), c.Query("provider"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
