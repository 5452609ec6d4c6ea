package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gobelinus/review-system-microservice-sub000/internal/ingestion"
)

// HealthHandler exposes liveness and pipeline health endpoints.
type HealthHandler struct {
	service *ingestion.Service
}

// NewHealthHandler creates a new health handler.
// Parameters:
//   - service: ingestion service used for pipeline health evaluation.
// Returns:
//   - *HealthHandler: initialized handler.
func NewHealthHandler(service *ingestion.Service) *HealthHandler {
	return &HealthHandler{service: service}
}

// Liveness reports process liveness only; it never touches the database.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Health reports pipeline health derived from the trailing processing
// window. DOWN maps to 503 so load balancers can act on it.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *HealthHandler) Health(c *gin.Context) {
	report, err := h.service.Health(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := http.StatusOK
	if report.State == ingestion.HealthDown {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}
