package ingestion

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gobelinus/review-system-microservice-sub000/internal/domain"
	"github.com/gobelinus/review-system-microservice-sub000/internal/logger"
	"github.com/gobelinus/review-system-microservice-sub000/internal/repository"
)

// BatchStatus summarizes the outcome of one processed batch.
// Values include BatchCompleted and BatchFailed.
type BatchStatus string

const (
	BatchCompleted BatchStatus = "COMPLETED"
	BatchFailed    BatchStatus = "FAILED"
)

// BatchResult aggregates counts for one processed batch. Status is COMPLETED
// only when zero records were invalid or errored; inspect the counts, not
// just the status, to know how much was persisted.
type BatchResult struct {
	ProcessedCount int         `json:"processed_count"`
	ValidCount     int         `json:"valid_count"`
	InvalidCount   int         `json:"invalid_count"`
	DuplicateCount int         `json:"duplicate_count"`
	Errors         []string    `json:"errors,omitempty"`
	Status         BatchStatus `json:"status"`
}

// ReviewProcessor validates, transforms, and persists batches of raw records.
type ReviewProcessor struct {
	validator    *Validator
	providerRepo *repository.ProviderRepository
	reviewRepo   *repository.ReviewRepository
	chunkSize    int
	logger       *logger.Logger
}

// NewReviewProcessor creates a ReviewProcessor.
// Parameters:
//   - validator: record validator.
//   - providerRepo: provider reference repository.
//   - reviewRepo: review persistence repository.
//   - chunkSize: rows per persistence transaction; values below 1 fall back to 100.
//   - log: logger instance; nil uses the default logger.
// Returns:
//   - *ReviewProcessor: initialized processor.
func NewReviewProcessor(
	validator *Validator,
	providerRepo *repository.ProviderRepository,
	reviewRepo *repository.ReviewRepository,
	chunkSize int,
	log *logger.Logger,
) *ReviewProcessor {
	if chunkSize < 1 {
		chunkSize = 100
	}
	if log == nil {
		log = logger.GetDefault()
	}
	return &ReviewProcessor{
		validator:    validator,
		providerRepo: providerRepo,
		reviewRepo:   reviewRepo,
		chunkSize:    chunkSize,
		logger:       log,
	}
}

// ProcessBatch validates, transforms, dedups, and persists one batch of raw
// records. Invalid records and duplicates are counted and skipped, never
// fatal. Valid entities flush to storage in bounded chunks, one transaction
// per chunk; a chunk failure aborts that chunk and surfaces as a fatal batch
// error without automatic retry.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - sourceKey: source object key the batch came from.
//   - raws: parsed raw records.
// Returns:
//   - *BatchResult: aggregate counts; always populated, even on error.
//   - error: non-nil only for persistence or provider-resolution failures.
func (p *ReviewProcessor) ProcessBatch(ctx context.Context, sourceKey string, raws []RawReview) (*BatchResult, error) {
	result := &BatchResult{Status: BatchCompleted}
	providers := make(map[string]*domain.Provider)
	seen := make(map[string]struct{}, len(raws))
	pending := make([]*domain.Review, 0, len(raws))

	for i := range raws {
		raw := &raws[i]
		result.ProcessedCount++

		if violations := p.validator.Validate(raw); len(violations) > 0 {
			result.InvalidCount++
			result.Errors = append(result.Errors, formatViolations(raw, violations))
			continue
		}

		code := strings.ToLower(strings.TrimSpace(raw.Platform))
		provider, ok := providers[code]
		if !ok {
			var err error
			provider, err = p.providerRepo.GetOrCreate(ctx, code, nil)
			if err != nil {
				result.Status = BatchFailed
				result.Errors = append(result.Errors, fmt.Sprintf("provider %q: %v", code, err))
				return result, fmt.Errorf("failed to resolve provider %q: %w", code, err)
			}
			providers[code] = provider
		}

		// In-batch duplicate check first, then the store.
		businessKey := fmt.Sprintf("%s:%d", code, raw.Comment.HotelReviewID)
		if _, dup := seen[businessKey]; dup {
			result.DuplicateCount++
			continue
		}
		exists, err := p.reviewRepo.ExistsByBusinessKey(ctx, code, raw.Comment.HotelReviewID)
		if err != nil {
			result.Status = BatchFailed
			result.Errors = append(result.Errors, fmt.Sprintf("dedup check %s: %v", businessKey, err))
			return result, fmt.Errorf("failed to check business key %s: %w", businessKey, err)
		}
		if exists {
			result.DuplicateCount++
			continue
		}

		seen[businessKey] = struct{}{}
		result.ValidCount++
		pending = append(pending, buildReview(raw, provider, sourceKey))
	}

	if err := p.flushChunks(ctx, pending); err != nil {
		result.Status = BatchFailed
		result.Errors = append(result.Errors, err.Error())
		return result, err
	}

	if result.InvalidCount > 0 || len(result.Errors) > 0 {
		result.Status = BatchFailed
	}
	return result, nil
}

// flushChunks persists pending reviews in bounded chunks, each inside its
// own transaction.
func (p *ReviewProcessor) flushChunks(ctx context.Context, pending []*domain.Review) error {
	for start := 0; start < len(pending); start += p.chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + p.chunkSize
		if end > len(pending) {
			end = len(pending)
		}
		if err := p.reviewRepo.CreateChunk(ctx, pending[start:end]); err != nil {
			return err
		}
	}
	return nil
}

// buildReview transforms a validated raw record into the normalized entity.
func buildReview(raw *RawReview, provider *domain.Provider, sourceKey string) *domain.Review {
	rating, _ := raw.Comment.Rating.Float64()
	reviewDate, _ := ParseReviewDate(raw.Comment.ReviewDate)

	scale := provider.RatingScale
	if scale <= 0 {
		scale = 10
	}

	review := &domain.Review{
		ID:               uuid.New().String(),
		ProviderCode:     provider.Code,
		ProviderReviewID: raw.Comment.HotelReviewID,
		HotelID:          raw.HotelID,
		HotelName:        raw.HotelName,
		Rating:           rating,
		NormalizedRating: rating / scale * 10,
		RatingText:       raw.Comment.RatingText,
		Title:            raw.Comment.ReviewTitle,
		Comments:         raw.Comment.ReviewComments,
		ReviewDate:       reviewDate,
		ContentHash:      contentHash(raw.Comment.ReviewComments),
		SourceKey:        sourceKey,
		CreatedAt:        time.Now().UTC(),
	}

	if info := raw.Comment.ReviewerInfo; info != nil {
		review.ReviewerCountry = info.CountryName
		review.ReviewerName = info.DisplayMemberName
		review.ReviewerGroup = info.ReviewGroupName
		review.RoomType = info.RoomTypeName
		review.LengthOfStay = info.LengthOfStay
	}

	return review
}

// contentHash fingerprints the comment text for near-duplicate detection:
// lowercased with whitespace collapsed, so trivial reformatting maps to the
// same hash.
func contentHash(comments string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(comments)), " ")
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// formatViolations renders all violations of one record into a single line.
func formatViolations(raw *RawReview, violations []Violation) string {
	parts := make([]string, len(violations))
	for i, v := range violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("review %d (hotel %d): %s", raw.Comment.HotelReviewID, raw.HotelID, strings.Join(parts, "; "))
}
