package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/gobelinus/review-system-microservice-sub000/internal/domain"
)

func TestJobLifecycle(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	job, err := repo.Create(ctx, &domain.ProcessingJob{Provider: "agoda", MaxFiles: 10})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("status: got %s, want PENDING", job.Status)
	}
	if job.ID == "" {
		t.Error("job should get an ID assigned")
	}

	job, err = repo.Transition(ctx, job.ID, domain.JobStatusInProgress, nil)
	if err != nil {
		t.Fatalf("Transition to IN_PROGRESS: %v", err)
	}
	if job.StartedAt == nil {
		t.Error("started_at should be stamped")
	}

	job, err = repo.Transition(ctx, job.ID, domain.JobStatusCompleted, nil)
	if err != nil {
		t.Fatalf("Transition to COMPLETED: %v", err)
	}
	if job.CompletedAt == nil {
		t.Error("completed_at should be stamped")
	}

	// Terminal jobs admit no further transitions.
	_, err = repo.Transition(ctx, job.ID, domain.JobStatusCancelled, nil)
	if !errors.Is(err, ErrIllegalJobTransition) {
		t.Errorf("error: got %v, want ErrIllegalJobTransition", err)
	}
}

func TestJobIllegalTransitions(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	job, err := repo.Create(ctx, &domain.ProcessingJob{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// PENDING cannot jump straight to COMPLETED.
	_, err = repo.Transition(ctx, job.ID, domain.JobStatusCompleted, nil)
	if !errors.Is(err, ErrIllegalJobTransition) {
		t.Errorf("error: got %v, want ErrIllegalJobTransition", err)
	}

	// But it can be cancelled before starting.
	if _, err := repo.Transition(ctx, job.ID, domain.JobStatusCancelled, nil); err != nil {
		t.Errorf("PENDING -> CANCELLED should be legal: %v", err)
	}
}

func TestRecordFileOutcome(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	job, err := repo.Create(ctx, &domain.ProcessingJob{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Transition(ctx, job.ID, domain.JobStatusInProgress, nil); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	if err := repo.RecordFileOutcome(ctx, job.ID, "a.jl", 50, false); err != nil {
		t.Fatalf("RecordFileOutcome success: %v", err)
	}
	if err := repo.RecordFileOutcome(ctx, job.ID, "b.jl", 0, true); err != nil {
		t.Fatalf("RecordFileOutcome failure: %v", err)
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ProcessedFiles != 1 || got.FailedFiles != 1 {
		t.Errorf("file counters: got %d/%d, want 1/1", got.ProcessedFiles, got.FailedFiles)
	}
	if got.TotalReviews != 50 {
		t.Errorf("total reviews: got %d, want 50", got.TotalReviews)
	}
	if len(got.SucceededFiles) != 1 || got.SucceededFiles[0] != "a.jl" {
		t.Errorf("succeeded files: got %v", got.SucceededFiles)
	}
	if len(got.FailedFileKeys) != 1 || got.FailedFileKeys[0] != "b.jl" {
		t.Errorf("failed file keys: got %v", got.FailedFileKeys)
	}
}

func TestRecordFileOutcomeAfterTerminalIsDropped(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	ctx := context.Background()

	job, err := repo.Create(ctx, &domain.ProcessingJob{})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := repo.Transition(ctx, job.ID, domain.JobStatusInProgress, nil); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if _, err := repo.Transition(ctx, job.ID, domain.JobStatusCancelled, nil); err != nil {
		t.Fatalf("Transition to CANCELLED: %v", err)
	}

	// A worker finishing just after the cancel must not mutate the record.
	if err := repo.RecordFileOutcome(ctx, job.ID, "late.jl", 10, false); err != nil {
		t.Fatalf("RecordFileOutcome after cancel: %v", err)
	}

	got, err := repo.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ProcessedFiles != 0 || got.TotalReviews != 0 {
		t.Errorf("terminal job mutated: processed %d, reviews %d, want 0/0", got.ProcessedFiles, got.TotalReviews)
	}
	if len(got.SucceededFiles) != 0 {
		t.Errorf("succeeded files: got %v, want empty", got.SucceededFiles)
	}
}

func TestJobProgressPercent(t *testing.T) {
	job := &domain.ProcessingJob{TotalFiles: 4, ProcessedFiles: 1, FailedFiles: 1}
	if got := job.ProgressPercent(); got != 50 {
		t.Errorf("progress: got %v, want 50", got)
	}

	empty := &domain.ProcessingJob{}
	if got := empty.ProgressPercent(); got != 0 {
		t.Errorf("progress with no files: got %v, want 0", got)
	}
}

func TestGetJobNotFound(t *testing.T) {
	repo := NewJobRepository(newTestDB(t))
	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrJobNotFound) {
		t.Errorf("error: got %v, want ErrJobNotFound", err)
	}
}
