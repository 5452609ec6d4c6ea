package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gobelinus/review-system-microservice-sub000/internal/domain"
)

// ProviderRepository handles provider reference data operations.
type ProviderRepository struct {
	db *gorm.DB
}

// NewProviderRepository creates a new ProviderRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ProviderRepository: repository instance bound to db.
func NewProviderRepository(db *gorm.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

// GetByCode retrieves a provider by its code.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - code: provider code.
// Returns:
//   - *domain.Provider: provider record if found.
//   - error: gorm.ErrRecordNotFound if absent, other errors on failure.
func (r *ProviderRepository) GetByCode(ctx context.Context, code string) (*domain.Provider, error) {
	var provider domain.Provider
	if err := r.db.WithContext(ctx).First(&provider, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &provider, nil
}

// GetOrCreate resolves a provider by code, inserting a defaulted row when the
// code has not been seen before. Concurrent creators race on the unique code
// index; the loser falls back to fetching the winner's row.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - code: lowercased provider code.
//   - defaults: template applied on first sighting; nil uses built-in defaults.
// Returns:
//   - *domain.Provider: resolved provider record.
//   - error: non-nil if neither insert nor fetch succeeds.
func (r *ProviderRepository) GetOrCreate(ctx context.Context, code string, defaults *domain.Provider) (*domain.Provider, error) {
	provider := domain.Provider{
		ID:          uuid.New().String(),
		Code:        code,
		Name:        code,
		Active:      true,
		RatingScale: 10,
	}
	if defaults != nil {
		provider.Name = defaults.Name
		provider.Active = defaults.Active
		if defaults.RatingScale > 0 {
			provider.RatingScale = defaults.RatingScale
		}
		provider.Languages = defaults.Languages
	}

	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoNothing: true,
	}).Create(&provider).Error; err != nil {
		return nil, err
	}

	// Insert may have been a no-op when another caller won the race or the
	// row already existed, so always read back the canonical row.
	return r.GetByCode(ctx, code)
}

// List retrieves all providers ordered by code.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - []domain.Provider: all provider records.
//   - error: non-nil if the query fails.
func (r *ProviderRepository) List(ctx context.Context) ([]domain.Provider, error) {
	var providers []domain.Provider
	if err := r.db.WithContext(ctx).Order("code").Find(&providers).Error; err != nil {
		return nil, err
	}
	return providers, nil
}
