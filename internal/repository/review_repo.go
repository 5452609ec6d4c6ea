package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/gobelinus/review-system-microservice-sub000/internal/domain"
)

// ReviewRepository handles normalized review persistence.
type ReviewRepository struct {
	db *gorm.DB
}

// NewReviewRepository creates a new ReviewRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ReviewRepository: repository instance bound to db.
func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// ExistsByBusinessKey checks whether a review with the business key
// (providerCode, providerReviewID) already exists.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - providerCode: provider code part of the business key.
//   - providerReviewID: provider-assigned review ID part of the business key.
// Returns:
//   - bool: true if a record exists.
//   - error: non-nil if the lookup fails.
func (r *ReviewRepository) ExistsByBusinessKey(ctx context.Context, providerCode string, providerReviewID int64) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Review{}).
		Where("provider_code = ? AND provider_review_id = ?", providerCode, providerReviewID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateChunk persists one bounded chunk of reviews inside a single
// transaction. A failure rolls the whole chunk back; no partial chunk is
// ever visible.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - reviews: chunk of reviews to insert.
// Returns:
//   - error: non-nil if the transaction fails.
func (r *ReviewRepository) CreateChunk(ctx context.Context, reviews []*domain.Review) error {
	if len(reviews) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(reviews).Error
	})
	if err != nil {
		return fmt.Errorf("failed to persist review chunk of %d: %w", len(reviews), err)
	}
	return nil
}

// CountByProvider counts reviews for a provider; an empty code counts all.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - providerCode: provider code filter; empty means all providers.
// Returns:
//   - int64: number of matching reviews.
//   - error: non-nil if the query fails.
func (r *ReviewRepository) CountByProvider(ctx context.Context, providerCode string) (int64, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&domain.Review{})
	if providerCode != "" {
		query = query.Where("provider_code = ?", providerCode)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountsGroupedByProvider returns review counts keyed by provider code.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - map[string]int64: review count per provider code.
//   - error: non-nil if the query fails.
func (r *ReviewRepository) CountsGroupedByProvider(ctx context.Context) (map[string]int64, error) {
	type row struct {
		ProviderCode string
		Total        int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).Model(&domain.Review{}).
		Select("provider_code, count(*) as total").
		Group("provider_code").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, rr := range rows {
		counts[rr.ProviderCode] = rr.Total
	}
	return counts, nil
}
