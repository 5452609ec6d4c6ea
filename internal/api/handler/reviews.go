package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gobelinus/review-system-microservice-sub000/internal/repository"
)

// ReviewHandler exposes read-side review endpoints.
type ReviewHandler struct {
	reviewRepo   *repository.ReviewRepository
	providerRepo *repository.ProviderRepository
}

// NewReviewHandler creates a new review handler.
// Parameters:
//   - reviewRepo: review repository.
//   - providerRepo: provider reference repository.
// Returns:
//   - *ReviewHandler: initialized handler.
func NewReviewHandler(reviewRepo *repository.ReviewRepository, providerRepo *repository.ProviderRepository) *ReviewHandler {
	return &ReviewHandler{reviewRepo: reviewRepo, providerRepo: providerRepo}
}

// Stats returns review counts grouped by provider.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ReviewHandler) Stats(c *gin.Context) {
	counts, err := h.reviewRepo.CountsGroupedByProvider(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{
		"total_reviews": total,
		"by_provider":   counts,
	})
}

// Providers returns the known provider reference rows.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ReviewHandler) Providers(c *gin.Context) {
	providers, err := h.providerRepo.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": providers, "count": len(providers)})
}
