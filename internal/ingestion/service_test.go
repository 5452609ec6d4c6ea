package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/gobelinus/review-system-microservice-sub000/internal/domain"
	"github.com/gobelinus/review-system-microservice-sub000/internal/repository"
)

func reviewLine(reviewID int64) string {
	return fmt.Sprintf(`{"hotelId": 10984, "platform": "agoda", "hotelName": "Oscar Saigon Hotel", "comment": {"hotelReviewId": %d, "rating": 6.4, "ratingText": "Good", "reviewTitle": "Nice", "reviewComments": "Hotel was fine", "reviewDate": "2025-04-10"}}`, reviewID)
}

func reviewFile(ids ...int64) string {
	lines := make([]string, len(ids))
	for i, id := range ids {
		lines[i] = reviewLine(id)
	}
	return strings.Join(lines, "\n")
}

type serviceFixture struct {
	service      *Service
	store        *fakeStorage
	db           *gorm.DB
	trackingRepo *repository.TrackingRepository
	jobRepo      *repository.JobRepository
}

func newServiceFixture(t *testing.T) *serviceFixture {
	return newServiceFixtureWithConfig(t, ServiceConfig{
		Workers:              2,
		BatchSize:            100,
		MaxFilesPerTrigger:   100,
		Retry:                fastRetryConfig(2),
		StuckAfter:           time.Hour,
		StalenessWindow:      24 * time.Hour,
		FailureRateThreshold: 0.1,
	})
}

func newServiceFixtureWithConfig(t *testing.T, cfg ServiceConfig) *serviceFixture {
	t.Helper()
	db := newTestDB(t)
	trackingRepo := repository.NewTrackingRepository(db)
	jobRepo := repository.NewJobRepository(db)
	store := newFakeStorage()

	service := NewService(cfg, store, newTestProcessor(t, db), trackingRepo, jobRepo, nil, nil)

	return &serviceFixture{
		service:      service,
		store:        store,
		db:           db,
		trackingRepo: trackingRepo,
		jobRepo:      jobRepo,
	}
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (f *serviceFixture) trackingStatus(t *testing.T, key string) domain.FileStatus {
	t.Helper()
	var rec domain.FileTrackingRecord
	if err := f.db.First(&rec, "source_key = ?", key).Error; err != nil {
		return ""
	}
	return rec.Status
}

func (f *serviceFixture) trigger(t *testing.T) *domain.ProcessingJob {
	t.Helper()
	result, err := f.service.Trigger(context.Background(), TriggerRequest{Prefix: "reviews/"})
	if err != nil {
		t.Fatalf("Trigger returned error: %v", err)
	}
	job, err := f.jobRepo.GetByID(context.Background(), result.JobID)
	if err != nil {
		t.Fatalf("load job: %v", err)
	}
	return job
}

func TestTriggerRunWithMixedOutcomes(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Now().UTC()
	f.store.put("reviews/agoda/a.jl", reviewFile(100, 101), now)
	f.store.put("reviews/agoda/b.jl", reviewFile(200, 201), now)
	f.store.failDownload("reviews/agoda/b.jl", errors.New("403 AccessDenied"))

	job := f.trigger(t)

	if job.Status != domain.JobStatusCompleted {
		t.Errorf("job status: got %s, want COMPLETED (file failures do not fail the run)", job.Status)
	}
	if job.TotalFiles != 2 {
		t.Errorf("total files: got %d, want 2", job.TotalFiles)
	}
	if job.ProcessedFiles != 1 {
		t.Errorf("processed files: got %d, want 1", job.ProcessedFiles)
	}
	if job.FailedFiles != 1 {
		t.Errorf("failed files: got %d, want 1", job.FailedFiles)
	}
	if job.TotalReviews != 2 {
		t.Errorf("total reviews: got %d, want 2", job.TotalReviews)
	}
	if len(job.FailedFileKeys) != 1 || job.FailedFileKeys[0] != "reviews/agoda/b.jl" {
		t.Errorf("failed file keys: got %v, want [reviews/agoda/b.jl]", job.FailedFileKeys)
	}

	var tracked []domain.FileTrackingRecord
	if err := f.db.Order("source_key").Find(&tracked).Error; err != nil {
		t.Fatalf("load tracking records: %v", err)
	}
	if len(tracked) != 2 {
		t.Fatalf("tracking records: got %d, want 2", len(tracked))
	}
	if tracked[0].Status != domain.FileStatusCompleted {
		t.Errorf("a.jl status: got %s, want COMPLETED", tracked[0].Status)
	}
	if tracked[0].RecordsProcessed != 2 {
		t.Errorf("a.jl records processed: got %d, want 2", tracked[0].RecordsProcessed)
	}
	if tracked[1].Status != domain.FileStatusFailed {
		t.Errorf("b.jl status: got %s, want FAILED", tracked[1].Status)
	}
	if tracked[1].ErrorMessage == "" {
		t.Error("b.jl should carry an error message")
	}
}

func TestSecondRunRetriesFailedAndSkipsCompleted(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Now().UTC()
	f.store.put("reviews/agoda/a.jl", reviewFile(100, 101), now)
	f.store.put("reviews/agoda/b.jl", reviewFile(200, 201), now)
	f.store.failDownload("reviews/agoda/b.jl", errors.New("403 AccessDenied"))
	f.trigger(t)

	// The failure was environmental; the next run picks b.jl up again,
	// while the completed a.jl version is excluded during discovery.
	f.store.failDownload("reviews/agoda/b.jl", nil)
	job := f.trigger(t)

	if job.TotalFiles != 1 {
		t.Errorf("total files: got %d, want 1", job.TotalFiles)
	}
	if job.ProcessedFiles != 1 {
		t.Errorf("processed files: got %d, want 1", job.ProcessedFiles)
	}
	if job.TotalReviews != 2 {
		t.Errorf("total reviews: got %d, want 2", job.TotalReviews)
	}

	var count int64
	if err := f.db.Model(&domain.Review{}).Count(&count).Error; err != nil {
		t.Fatalf("count reviews: %v", err)
	}
	if count != 4 {
		t.Errorf("persisted reviews: got %d, want 4", count)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	f := newServiceFixture(t)
	f.store.put("reviews/agoda/a.jl", reviewFile(100, 101), time.Now().UTC())
	f.trigger(t)

	downloadsAfterFirst := f.store.downloads
	job := f.trigger(t)

	if job.TotalFiles != 0 {
		t.Errorf("total files on rerun: got %d, want 0", job.TotalFiles)
	}
	if f.store.downloads != downloadsAfterFirst {
		t.Errorf("rerun should not download anything: %d -> %d", downloadsAfterFirst, f.store.downloads)
	}
}

func TestReuploadedFileIsNewVersion(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Now().UTC()
	f.store.put("reviews/agoda/a.jl", reviewFile(100, 101), now)
	f.trigger(t)

	// Same key, different content: a distinct fingerprint, so it is
	// processed independently of the completed earlier version.
	f.store.put("reviews/agoda/a.jl", reviewFile(100, 101, 102), now.Add(time.Hour))
	job := f.trigger(t)

	if job.TotalFiles != 1 {
		t.Errorf("total files: got %d, want 1", job.TotalFiles)
	}
	if job.ProcessedFiles != 1 {
		t.Errorf("processed files: got %d, want 1", job.ProcessedFiles)
	}
	// 100 and 101 dedup against the first upload; only 102 is new.
	if job.TotalReviews != 1 {
		t.Errorf("total reviews: got %d, want 1", job.TotalReviews)
	}
}

func TestTriggerValidation(t *testing.T) {
	f := newServiceFixture(t)

	testCases := []struct {
		name string
		req  TriggerRequest
	}{
		{name: "negative max files", req: TriggerRequest{MaxFiles: -1}},
		{name: "max files over cap", req: TriggerRequest{MaxFiles: 1000}},
		{name: "unknown provider", req: TriggerRequest{Provider: "tripadvisor"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.Trigger(context.Background(), tc.req)
			if !errors.Is(err, ErrInvalidTrigger) {
				t.Errorf("error: got %v, want ErrInvalidTrigger", err)
			}
		})
	}
}

func TestProviderFilterNarrowsPrefix(t *testing.T) {
	f := newServiceFixture(t)
	now := time.Now().UTC()
	f.store.put("reviews/agoda/a.jl", reviewFile(100), now)
	f.store.put("reviews/booking/b.jl", reviewFile(200), now)

	result, err := f.service.Trigger(context.Background(), TriggerRequest{Provider: "agoda", Prefix: "reviews/"})
	if err != nil {
		t.Fatalf("Trigger returned error: %v", err)
	}
	job, err := f.jobRepo.GetByID(context.Background(), result.JobID)
	if err != nil {
		t.Fatalf("load job: %v", err)
	}

	if job.TotalFiles != 1 {
		t.Errorf("total files: got %d, want 1 (only the agoda folder)", job.TotalFiles)
	}
}

func TestRetryJobRequiresFailedStatus(t *testing.T) {
	f := newServiceFixture(t)
	f.store.put("reviews/agoda/a.jl", reviewFile(100), time.Now().UTC())
	job := f.trigger(t)

	_, err := f.service.RetryJob(context.Background(), job.ID)
	if !errors.Is(err, ErrNotRetryable) {
		t.Errorf("error: got %v, want ErrNotRetryable", err)
	}
}

func TestCancelTerminalJobRejected(t *testing.T) {
	f := newServiceFixture(t)
	f.store.put("reviews/agoda/a.jl", reviewFile(100), time.Now().UTC())
	job := f.trigger(t)

	_, err := f.service.CancelJob(context.Background(), job.ID)
	if !errors.Is(err, repository.ErrIllegalJobTransition) {
		t.Errorf("error: got %v, want ErrIllegalJobTransition", err)
	}
}

func TestCancelAsyncJobResetsInFlightFile(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()
	key := "reviews/agoda/a.jl"
	f.store.put(key, reviewFile(100), time.Now().UTC())
	gate := f.store.gateDownload(key)
	defer close(gate)

	result, err := f.service.Trigger(ctx, TriggerRequest{Prefix: "reviews/", Async: true})
	if err != nil {
		t.Fatalf("Trigger returned error: %v", err)
	}
	if result.JobID == "" {
		t.Fatal("async trigger should return a job ID")
	}

	// The worker is now blocked inside the download.
	waitFor(t, 2*time.Second, "file to reach IN_PROGRESS", func() bool {
		return f.trackingStatus(t, key) == domain.FileStatusInProgress
	})

	job, err := f.service.CancelJob(ctx, result.JobID)
	if err != nil {
		t.Fatalf("CancelJob returned error: %v", err)
	}
	if job.Status != domain.JobStatusCancelled {
		t.Errorf("job status: got %s, want CANCELLED", job.Status)
	}

	// The in-flight file goes back to PENDING so a future run retries it.
	waitFor(t, 2*time.Second, "file to reset to PENDING", func() bool {
		return f.trackingStatus(t, key) == domain.FileStatusPending
	})

	if err := f.service.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown after cancel: %v", err)
	}

	got, err := f.jobRepo.GetByID(ctx, result.JobID)
	if err != nil {
		t.Fatalf("load job: %v", err)
	}
	if got.Status != domain.JobStatusCancelled {
		t.Errorf("final job status: got %s, want CANCELLED", got.Status)
	}
	if got.ProcessedFiles != 0 || got.TotalReviews != 0 {
		t.Errorf("cancelled job counters: got %d files, %d reviews, want 0/0", got.ProcessedFiles, got.TotalReviews)
	}
}

func TestShutdownForceCancelsBlockedRun(t *testing.T) {
	f := newServiceFixtureWithConfig(t, ServiceConfig{
		Workers:            1,
		BatchSize:          100,
		MaxFilesPerTrigger: 100,
		Retry:              fastRetryConfig(2),
		ShutdownTimeout:    50 * time.Millisecond,
	})
	ctx := context.Background()
	key := "reviews/agoda/a.jl"
	f.store.put(key, reviewFile(100), time.Now().UTC())
	gate := f.store.gateDownload(key)
	defer close(gate)

	result, err := f.service.Trigger(ctx, TriggerRequest{Prefix: "reviews/", Async: true})
	if err != nil {
		t.Fatalf("Trigger returned error: %v", err)
	}
	waitFor(t, 2*time.Second, "file to reach IN_PROGRESS", func() bool {
		return f.trackingStatus(t, key) == domain.FileStatusInProgress
	})

	// The blocked run cannot drain within the window, so shutdown
	// force-cancels it and reports the timeout.
	err = f.service.Shutdown(ctx)
	if err == nil {
		t.Fatal("Shutdown should report the drain timeout")
	}
	if !strings.Contains(err.Error(), "drain timed out") {
		t.Errorf("shutdown error: got %q, want drain timeout", err)
	}

	job, err := f.jobRepo.GetByID(ctx, result.JobID)
	if err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != domain.JobStatusCancelled {
		t.Errorf("job status after force-cancel: got %s, want CANCELLED", job.Status)
	}
	if got := f.trackingStatus(t, key); got != domain.FileStatusPending {
		t.Errorf("file status after force-cancel: got %s, want PENDING", got)
	}

	_, err = f.service.Trigger(ctx, TriggerRequest{Prefix: "reviews/"})
	if !errors.Is(err, ErrShuttingDown) {
		t.Errorf("trigger while draining: got %v, want ErrShuttingDown", err)
	}
}

func TestSweepStuckFiles(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	rec, _, err := f.trackingRepo.CreateOrGet(ctx, &domain.FileTrackingRecord{
		SourceKey:   "reviews/agoda/stuck.jl",
		Fingerprint: "abc",
	})
	if err != nil {
		t.Fatalf("create tracking record: %v", err)
	}
	if err := f.trackingRepo.MarkStarted(ctx, rec.ID); err != nil {
		t.Fatalf("mark started: %v", err)
	}
	// Backdate started_at past the stuck threshold.
	old := time.Now().UTC().Add(-3 * time.Hour)
	if err := f.db.Model(&domain.FileTrackingRecord{}).Where("id = ?", rec.ID).
		Update("started_at", old).Error; err != nil {
		t.Fatalf("backdate record: %v", err)
	}

	reset := f.service.SweepStuckFiles(ctx)
	if reset != 1 {
		t.Errorf("reset count: got %d, want 1", reset)
	}

	got, err := f.trackingRepo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	if got.Status != domain.FileStatusPending {
		t.Errorf("status after sweep: got %s, want PENDING", got.Status)
	}
}

func TestHealth(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	// No history at all reports DOWN, not a vacuous UP.
	report, err := f.service.Health(ctx)
	if err != nil {
		t.Fatalf("Health returned error: %v", err)
	}
	if report.State != HealthDown {
		t.Errorf("state with no history: got %s, want DOWN", report.State)
	}

	now := time.Now().UTC()
	f.store.put("reviews/agoda/a.jl", reviewFile(100, 101), now)
	f.trigger(t)

	report, err = f.service.Health(ctx)
	if err != nil {
		t.Fatalf("Health returned error: %v", err)
	}
	if report.State != HealthUp {
		t.Errorf("state after clean run: got %s, want UP (report: %+v)", report.State, report)
	}
	if report.CompletedFiles != 1 {
		t.Errorf("completed files: got %d, want 1", report.CompletedFiles)
	}

	// A failing file pushes the failure rate to 50%, far past the 10%
	// threshold doubled.
	f.store.put("reviews/agoda/b.jl", reviewFile(200), now)
	f.store.failDownload("reviews/agoda/b.jl", errors.New("403 AccessDenied"))
	f.trigger(t)

	report, err = f.service.Health(ctx)
	if err != nil {
		t.Fatalf("Health returned error: %v", err)
	}
	if report.State != HealthDown {
		t.Errorf("state at 50%% failure rate: got %s, want DOWN (report: %+v)", report.State, report)
	}
}

func TestHealthBacklogExceedsCapacity(t *testing.T) {
	f := newServiceFixtureWithConfig(t, ServiceConfig{
		Workers:              2,
		MaxFilesPerTrigger:   100,
		FailureRateThreshold: 0.1,
		MaxBacklog:           2,
	})
	ctx := context.Background()

	done, _, err := f.trackingRepo.CreateOrGet(ctx, &domain.FileTrackingRecord{SourceKey: "done.jl", Fingerprint: "f0"})
	if err != nil {
		t.Fatalf("create tracking record: %v", err)
	}
	if err := f.trackingRepo.MarkCompleted(ctx, done.ID, 1, 0); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("pending-%d.jl", i)
		if _, _, err := f.trackingRepo.CreateOrGet(ctx, &domain.FileTrackingRecord{SourceKey: key, Fingerprint: "f1"}); err != nil {
			t.Fatalf("create pending record: %v", err)
		}
	}

	report, err := f.service.Health(ctx)
	if err != nil {
		t.Fatalf("Health returned error: %v", err)
	}
	if report.State != HealthDown {
		t.Errorf("state with 3 pending over capacity 2: got %s, want DOWN (report: %+v)", report.State, report)
	}
	if report.PendingFiles != 3 {
		t.Errorf("pending files: got %d, want 3", report.PendingFiles)
	}
	found := false
	for _, issue := range report.Issues {
		if strings.Contains(issue, "backlog") {
			found = true
		}
	}
	if !found {
		t.Errorf("issues should name the backlog: %v", report.Issues)
	}
}
