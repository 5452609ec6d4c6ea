package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/gobelinus/review-system-microservice-sub000/internal/domain"
)

// ErrTrackingNotFound marks a tracking record lookup by ID that matched nothing.
var ErrTrackingNotFound = errors.New("file tracking record not found")

// TrackingStats aggregates file tracking counts and derived rates.
type TrackingStats struct {
	Total       int64   `json:"total"`
	Pending     int64   `json:"pending"`
	InProgress  int64   `json:"in_progress"`
	Completed   int64   `json:"completed"`
	Failed      int64   `json:"failed"`
	Skipped     int64   `json:"skipped"`
	SuccessRate float64 `json:"success_rate"`
	FailureRate float64 `json:"failure_rate"`
}

// TrackingRepository is the idempotency and recovery ledger for source files.
// One row per (source_key, fingerprint) pair; the unique index is the real
// guard against concurrent duplicate creation.
type TrackingRepository struct {
	db *gorm.DB
}

// NewTrackingRepository creates a new TrackingRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *TrackingRepository: repository instance bound to db.
func NewTrackingRepository(db *gorm.DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

// IsAlreadyProcessed reports whether a COMPLETED record exists for exactly
// this (key, fingerprint) pair. A different fingerprint for the same key is
// a distinct file version and returns false.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: source object key.
//   - fingerprint: source object integrity token.
// Returns:
//   - bool: true if the pair completed before.
//   - error: non-nil if the lookup fails.
func (r *TrackingRepository) IsAlreadyProcessed(ctx context.Context, key, fingerprint string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.FileTrackingRecord{}).
		Where("source_key = ? AND fingerprint = ? AND status = ?", key, fingerprint, domain.FileStatusCompleted).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// CreateOrGet inserts a PENDING record for the pair, or returns the existing
// one. Safe under concurrent callers racing to create the same pair: the
// insert is OnConflict-DoNothing against the unique index, and a losing
// insert resolves to fetching the winner's row instead of erroring.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - rec: candidate record; ID and status are assigned here.
// Returns:
//   - *domain.FileTrackingRecord: the canonical record for the pair.
//   - bool: true if this call created the record, false if it already existed.
//   - error: non-nil if neither insert nor fetch succeeds.
func (r *TrackingRepository) CreateOrGet(ctx context.Context, rec *domain.FileTrackingRecord) (*domain.FileTrackingRecord, bool, error) {
	candidate := *rec
	candidate.ID = uuid.New().String()
	candidate.Status = domain.FileStatusPending

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "source_key"}, {Name: "fingerprint"}},
		DoNothing: true,
	}).Create(&candidate)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to create tracking record for %q: %w", rec.SourceKey, res.Error)
	}
	if res.RowsAffected > 0 {
		return &candidate, true, nil
	}

	existing, err := r.GetByPair(ctx, rec.SourceKey, rec.Fingerprint)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByID retrieves a tracking record by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: tracking record ID.
// Returns:
//   - *domain.FileTrackingRecord: record if found.
//   - error: ErrTrackingNotFound if absent, other errors on failure.
func (r *TrackingRepository) GetByID(ctx context.Context, id string) (*domain.FileTrackingRecord, error) {
	var rec domain.FileTrackingRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTrackingNotFound, id)
		}
		return nil, err
	}
	return &rec, nil
}

// GetByPair retrieves a tracking record by its (key, fingerprint) identity.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: source object key.
//   - fingerprint: source object integrity token.
// Returns:
//   - *domain.FileTrackingRecord: record if found.
//   - error: ErrTrackingNotFound if absent, other errors on failure.
func (r *TrackingRepository) GetByPair(ctx context.Context, key, fingerprint string) (*domain.FileTrackingRecord, error) {
	var rec domain.FileTrackingRecord
	if err := r.db.WithContext(ctx).
		First(&rec, "source_key = ? AND fingerprint = ?", key, fingerprint).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s@%s", ErrTrackingNotFound, key, fingerprint)
		}
		return nil, err
	}
	return &rec, nil
}

// MarkStarted transitions a record to IN_PROGRESS and stamps started-at.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: tracking record ID.
// Returns:
//   - error: ErrTrackingNotFound if the ID does not exist.
func (r *TrackingRepository) MarkStarted(ctx context.Context, id string) error {
	return r.mutate(ctx, id, func(rec *domain.FileTrackingRecord) {
		now := time.Now().UTC()
		rec.Status = domain.FileStatusInProgress
		rec.StartedAt = &now
		rec.ErrorMessage = ""
	})
}

// MarkCompleted transitions a record to COMPLETED with final counts.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: tracking record ID.
//   - processed: records successfully persisted.
//   - failed: records that failed validation or transform.
// Returns:
//   - error: ErrTrackingNotFound if the ID does not exist.
func (r *TrackingRepository) MarkCompleted(ctx context.Context, id string, processed, failed int) error {
	return r.mutate(ctx, id, func(rec *domain.FileTrackingRecord) {
		now := time.Now().UTC()
		rec.Status = domain.FileStatusCompleted
		rec.RecordsProcessed = processed
		rec.RecordsFailed = failed
		rec.CompletedAt = &now
	})
}

// MarkFailed transitions a record to FAILED with a bounded error message.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: tracking record ID.
//   - errorMessage: failure description; truncated to the column bound.
// Returns:
//   - error: ErrTrackingNotFound if the ID does not exist.
func (r *TrackingRepository) MarkFailed(ctx context.Context, id, errorMessage string) error {
	return r.mutate(ctx, id, func(rec *domain.FileTrackingRecord) {
		now := time.Now().UTC()
		rec.Status = domain.FileStatusFailed
		rec.ErrorMessage = domain.TruncateTrackingError(errorMessage)
		rec.CompletedAt = &now
	})
}

// MarkSkipped transitions a record to SKIPPED.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: tracking record ID.
//   - reason: why the file was skipped.
// Returns:
//   - error: ErrTrackingNotFound if the ID does not exist.
func (r *TrackingRepository) MarkSkipped(ctx context.Context, id, reason string) error {
	return r.mutate(ctx, id, func(rec *domain.FileTrackingRecord) {
		now := time.Now().UTC()
		rec.Status = domain.FileStatusSkipped
		rec.ErrorMessage = domain.TruncateTrackingError(reason)
		rec.CompletedAt = &now
	})
}

// ResetToPending returns a record to PENDING so a future run retries the
// file. Used by the stuck-work sweeper.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: tracking record ID.
// Returns:
//   - error: ErrTrackingNotFound if the ID does not exist.
func (r *TrackingRepository) ResetToPending(ctx context.Context, id string) error {
	return r.mutate(ctx, id, func(rec *domain.FileTrackingRecord) {
		rec.Status = domain.FileStatusPending
		rec.StartedAt = nil
		rec.CompletedAt = nil
		rec.ErrorMessage = ""
	})
}

// mutate loads, mutates, and saves one record inside a transaction.
func (r *TrackingRepository) mutate(ctx context.Context, id string, fn func(*domain.FileTrackingRecord)) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec domain.FileTrackingRecord
		if err := tx.First(&rec, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrTrackingNotFound, id)
			}
			return err
		}
		fn(&rec)
		return tx.Save(&rec).Error
	})
}

// FindStuck returns IN_PROGRESS records whose processing started before the
// cutoff, candidates left behind by a crashed worker.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - olderThan: started-at cutoff.
// Returns:
//   - []domain.FileTrackingRecord: stuck records, oldest first.
//   - error: non-nil if the query fails.
func (r *TrackingRepository) FindStuck(ctx context.Context, olderThan time.Time) ([]domain.FileTrackingRecord, error) {
	var recs []domain.FileTrackingRecord
	if err := r.db.WithContext(ctx).
		Where("status = ? AND started_at IS NOT NULL AND started_at < ?", domain.FileStatusInProgress, olderThan).
		Order("started_at").
		Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// DeleteOlderThan bulk-deletes terminal-status records older than the
// retention cutoff. Non-terminal records are never deleted here regardless
// of age.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - cutoff: created-at cutoff.
//   - statuses: terminal statuses eligible for deletion.
// Returns:
//   - int64: number of rows removed.
//   - error: non-nil if the delete fails.
func (r *TrackingRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time, statuses []domain.FileStatus) (int64, error) {
	if len(statuses) == 0 {
		statuses = domain.TerminalFileStatuses()
	}
	res := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", statuses, cutoff).
		Delete(&domain.FileTrackingRecord{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// Statistics aggregates tracking counts, optionally filtered by provider.
// Rates are 0 when there is no history.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - provider: provider code filter; empty means all providers.
// Returns:
//   - *TrackingStats: aggregated counts and derived rates.
//   - error: non-nil if a count query fails.
func (r *TrackingRepository) Statistics(ctx context.Context, provider string) (*TrackingStats, error) {
	stats := &TrackingStats{}

	counts := []struct {
		status domain.FileStatus
		target *int64
	}{
		{domain.FileStatusPending, &stats.Pending},
		{domain.FileStatusInProgress, &stats.InProgress},
		{domain.FileStatusCompleted, &stats.Completed},
		{domain.FileStatusFailed, &stats.Failed},
		{domain.FileStatusSkipped, &stats.Skipped},
	}

	for _, c := range counts {
		query := r.db.WithContext(ctx).Model(&domain.FileTrackingRecord{}).Where("status = ?", c.status)
		if provider != "" {
			query = query.Where("provider = ?", provider)
		}
		if err := query.Count(c.target).Error; err != nil {
			return nil, err
		}
	}

	stats.Total = stats.Pending + stats.InProgress + stats.Completed + stats.Failed + stats.Skipped
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(stats.Total)
		stats.FailureRate = float64(stats.Failed) / float64(stats.Total)
	}
	return stats, nil
}

// CountCompletedSince counts COMPLETED records that finished after the cutoff.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - since: completed-at cutoff.
// Returns:
//   - int64: number of matching records.
//   - error: non-nil if the query fails.
func (r *TrackingRepository) CountCompletedSince(ctx context.Context, since time.Time) (int64, error) {
	return r.countStatusSince(ctx, domain.FileStatusCompleted, since)
}

// CountFailedSince counts FAILED records that finished after the cutoff.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - since: completed-at cutoff.
// Returns:
//   - int64: number of matching records.
//   - error: non-nil if the query fails.
func (r *TrackingRepository) CountFailedSince(ctx context.Context, since time.Time) (int64, error) {
	return r.countStatusSince(ctx, domain.FileStatusFailed, since)
}

func (r *TrackingRepository) countStatusSince(ctx context.Context, status domain.FileStatus, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.FileTrackingRecord{}).
		Where("status = ? AND completed_at IS NOT NULL AND completed_at > ?", status, since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
