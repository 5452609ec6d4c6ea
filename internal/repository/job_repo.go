package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gobelinus/review-system-microservice-sub000/internal/domain"
)

// ErrJobNotFound marks a job lookup by ID that matched nothing.
var ErrJobNotFound = errors.New("processing job not found")

// ErrIllegalJobTransition marks a job status change the state machine forbids.
var ErrIllegalJobTransition = errors.New("illegal job status transition")

// JobRepository handles processing job records.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new PENDING job record with a fresh ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job template; ID and status are assigned here.
// Returns:
//   - *domain.ProcessingJob: persisted job record.
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, job *domain.ProcessingJob) (*domain.ProcessingJob, error) {
	job.ID = uuid.New().String()
	job.Status = domain.JobStatusPending
	if job.SucceededFiles == nil {
		job.SucceededFiles = domain.StringArray{}
	}
	if job.FailedFileKeys == nil {
		job.FailedFileKeys = domain.StringArray{}
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create processing job: %w", err)
	}
	return job, nil
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.ProcessingJob: job record if found.
//   - error: ErrJobNotFound if absent, other errors on failure.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ProcessingJob, error) {
	var job domain.ProcessingJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, err
	}
	return &job, nil
}

// ListRecent retrieves the most recently created jobs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of jobs to return.
// Returns:
//   - []domain.ProcessingJob: jobs ordered newest first.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]domain.ProcessingJob, error) {
	var jobs []domain.ProcessingJob
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// Transition moves a job to the next status, enforcing the state machine.
// Terminal jobs admit no further transitions.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - next: target status.
//   - mutate: optional extra mutation applied with the transition; may be nil.
// Returns:
//   - *domain.ProcessingJob: job record after the transition.
//   - error: ErrJobNotFound or ErrIllegalJobTransition as appropriate.
func (r *JobRepository) Transition(ctx context.Context, id string, next domain.JobStatus, mutate func(*domain.ProcessingJob)) (*domain.ProcessingJob, error) {
	var job domain.ProcessingJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrJobNotFound, id)
			}
			return err
		}
		if !job.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", ErrIllegalJobTransition, job.Status, next)
		}
		now := time.Now().UTC()
		job.Status = next
		switch next {
		case domain.JobStatusInProgress:
			job.StartedAt = &now
		case domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusCancelled:
			job.CompletedAt = &now
		}
		if mutate != nil {
			mutate(&job)
		}
		return tx.Save(&job).Error
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// RecordFileOutcome appends one file outcome to the owning job and updates
// its progress counters. All job mutation funnels through load-mutate-save
// under a transaction; callers never share in-memory job state.
// An outcome arriving after the job reached a terminal state is dropped;
// terminal records stay frozen.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - fileKey: source object key the outcome belongs to.
//   - reviews: reviews persisted from the file.
//   - failed: true when the file failed processing.
// Returns:
//   - error: ErrJobNotFound if the ID does not exist.
func (r *JobRepository) RecordFileOutcome(ctx context.Context, id, fileKey string, reviews int, failed bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job domain.ProcessingJob
		if err := tx.First(&job, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrJobNotFound, id)
			}
			return err
		}
		if job.Status.IsTerminal() {
			return nil
		}
		if failed {
			job.FailedFiles++
			job.FailedFileKeys = append(job.FailedFileKeys, fileKey)
		} else {
			job.ProcessedFiles++
			job.SucceededFiles = append(job.SucceededFiles, fileKey)
			job.TotalReviews += reviews
		}
		return tx.Save(&job).Error
	})
}

// SetTotalFiles stores the post-filter file count the run owns.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - total: number of files dispatched in this run.
// Returns:
//   - error: ErrJobNotFound if the ID does not exist.
func (r *JobRepository) SetTotalFiles(ctx context.Context, id string, total int) error {
	res := r.db.WithContext(ctx).Model(&domain.ProcessingJob{}).
		Where("id = ?", id).
		Update("total_files", total)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return nil
}
