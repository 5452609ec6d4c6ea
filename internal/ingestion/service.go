package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gobelinus/review-system-microservice-sub000/internal/domain"
	"github.com/gobelinus/review-system-microservice-sub000/internal/logger"
	"github.com/gobelinus/review-system-microservice-sub000/internal/repository"
	"github.com/gobelinus/review-system-microservice-sub000/internal/storage"
)

// ErrRunInProgress rejects a manual trigger while another one is active.
// Triggers are never queued; the caller retries once the active run ends.
var ErrRunInProgress = errors.New("an ingestion run is already in progress")

// ErrInvalidTrigger marks a trigger request that failed validation.
var ErrInvalidTrigger = errors.New("invalid trigger request")

// ErrNotRetryable rejects retrying a job that is not in FAILED state.
var ErrNotRetryable = errors.New("only failed jobs can be retried")

// ErrShuttingDown rejects work while the service drains.
var ErrShuttingDown = errors.New("service is shutting down")

// Notifier receives terminal job transitions. Implementations must not
// block job completion on delivery.
type Notifier interface {
	JobFinished(ctx context.Context, job *domain.ProcessingJob)
}

// ServiceConfig holds orchestration parameters.
type ServiceConfig struct {
	Workers              int
	BatchSize            int
	Prefix               string
	MaxFilesPerTrigger   int
	Retry                RetryConfig
	ShutdownTimeout      time.Duration
	StuckAfter           time.Duration
	SweepInterval        time.Duration
	RetentionDays        int
	CleanupInterval      time.Duration
	FailureRateThreshold float64
	StalenessWindow      time.Duration
	MaxBacklog           int
}

// TriggerRequest describes one manual ingestion trigger.
type TriggerRequest struct {
	Provider    string
	Prefix      string
	MaxFiles    int
	Async       bool
	TriggeredBy string
}

// TriggerResult is the immediate answer to a trigger: a summary string for
// synchronous runs, a job ID for asynchronous ones.
type TriggerResult struct {
	JobID   string `json:"job_id"`
	Summary string `json:"summary,omitempty"`
}

// Service drives the ingestion pipeline: discovery, idempotency filtering,
// bounded-concurrency file processing, and job lifecycle management.
type Service struct {
	cfg          ServiceConfig
	storage      storage.ObjectStorage
	lister       *Lister
	parser       *LineParser
	processor    *ReviewProcessor
	trackingRepo *repository.TrackingRepository
	jobRepo      *repository.JobRepository
	notifier     Notifier
	logger       *logger.Logger

	mu          sync.Mutex
	activeJobID string
	cancels     map[string]context.CancelFunc
	draining    bool

	runWG sync.WaitGroup
	bgWG  sync.WaitGroup
	stop  chan struct{}
}

// NewService creates the orchestration service.
// Parameters:
//   - cfg: orchestration parameters; zero values fall back to defaults.
//   - store: object storage collaborator.
//   - processor: transform and dedup persister.
//   - trackingRepo: file tracking ledger.
//   - jobRepo: processing job repository.
//   - notifier: optional terminal-transition notifier; may be nil.
//   - log: logger instance; nil uses the default logger.
// Returns:
//   - *Service: initialized service; background sweepers start via Start.
func NewService(
	cfg ServiceConfig,
	store storage.ObjectStorage,
	processor *ReviewProcessor,
	trackingRepo *repository.TrackingRepository,
	jobRepo *repository.JobRepository,
	notifier Notifier,
	log *logger.Logger,
) *Service {
	if log == nil {
		log = logger.GetDefault()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 5
	}
	if cfg.MaxFilesPerTrigger < 1 {
		cfg.MaxFilesPerTrigger = 100
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = 2 * time.Hour
	}
	if cfg.StalenessWindow <= 0 {
		cfg.StalenessWindow = 24 * time.Hour
	}
	if cfg.MaxBacklog < 1 {
		cfg.MaxBacklog = 10 * cfg.MaxFilesPerTrigger
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}

	return &Service{
		cfg:          cfg,
		storage:      store,
		lister:       NewLister(store, log),
		parser:       NewLineParser(cfg.BatchSize, log),
		processor:    processor,
		trackingRepo: trackingRepo,
		jobRepo:      jobRepo,
		notifier:     notifier,
		logger:       log,
		cancels:      make(map[string]context.CancelFunc),
		stop:         make(chan struct{}),
	}
}

// Trigger starts an ingestion run. Synchronous runs block until the summary
// is available; asynchronous runs return the job ID immediately and progress
// is observed via GetJob. Only one manual trigger may be active at a time.
// Parameters:
//   - ctx: context for the synchronous path and for bookkeeping calls.
//   - req: trigger parameters.
// Returns:
//   - *TriggerResult: job ID, plus the summary for synchronous runs.
//   - error: ErrInvalidTrigger, ErrRunInProgress, ErrShuttingDown, or a
//     job-creation failure.
func (s *Service) Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error) {
	if req.MaxFiles < 0 {
		return nil, fmt.Errorf("%w: maxFiles must be positive", ErrInvalidTrigger)
	}
	if req.MaxFiles > s.cfg.MaxFilesPerTrigger {
		return nil, fmt.Errorf("%w: maxFiles %d exceeds cap %d", ErrInvalidTrigger, req.MaxFiles, s.cfg.MaxFilesPerTrigger)
	}
	if req.MaxFiles == 0 {
		req.MaxFiles = s.cfg.MaxFilesPerTrigger
	}
	if req.Provider != "" && !domain.IsKnownProviderCode(strings.ToLower(req.Provider)) {
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidTrigger, req.Provider)
	}

	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return nil, ErrShuttingDown
	}
	if s.activeJobID != "" {
		s.mu.Unlock()
		return nil, ErrRunInProgress
	}
	// Reserve the slot before the job row exists so a racing trigger is
	// rejected, then fill in the real ID below.
	s.activeJobID = "pending"
	s.mu.Unlock()

	job, err := s.jobRepo.Create(ctx, &domain.ProcessingJob{
		Provider:    strings.ToLower(req.Provider),
		Prefix:      s.effectivePrefix(req),
		MaxFiles:    req.MaxFiles,
		TriggeredBy: req.TriggeredBy,
		Async:       req.Async,
	})
	if err != nil {
		s.releaseActive("pending")
		return nil, fmt.Errorf("failed to create job record: %w", err)
	}

	s.mu.Lock()
	s.activeJobID = job.ID
	s.mu.Unlock()

	if !req.Async {
		defer s.releaseActive(job.ID)
		summary := s.runJob(ctx, job.ID, req)
		return &TriggerResult{JobID: job.ID, Summary: summary}, nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[job.ID] = cancel
	s.mu.Unlock()

	s.runWG.Add(1)
	go func() {
		defer s.runWG.Done()
		defer cancel()
		defer func() {
			s.mu.Lock()
			delete(s.cancels, job.ID)
			s.mu.Unlock()
			s.releaseActive(job.ID)
		}()
		s.runJob(runCtx, job.ID, req)
	}()

	return &TriggerResult{JobID: job.ID}, nil
}

func (s *Service) releaseActive(id string) {
	s.mu.Lock()
	if s.activeJobID == id {
		s.activeJobID = ""
	}
	s.mu.Unlock()
}

// effectivePrefix narrows discovery to the provider's folder when a provider
// filter is requested; files are laid out as <prefix>/<provider>/<file>.
func (s *Service) effectivePrefix(req TriggerRequest) string {
	prefix := req.Prefix
	if prefix == "" {
		prefix = s.cfg.Prefix
	}
	if req.Provider != "" {
		prefix = path.Join(prefix, strings.ToLower(req.Provider)) + "/"
	}
	return prefix
}

// fileResult is one worker's report to the job-state owner goroutine.
type fileResult struct {
	key     string
	reviews int
	skipped bool
	failed  bool
}

// runJob executes one discovered-to-completed run and returns the summary
// string. All job-record mutation happens on this goroutine or the collector
// it owns; workers only report results over the channel.
func (s *Service) runJob(ctx context.Context, jobID string, req TriggerRequest) string {
	ctx = logger.SetJobID(ctx, jobID)
	start := time.Now()

	if _, err := s.jobRepo.Transition(ctx, jobID, domain.JobStatusInProgress, nil); err != nil {
		logger.CtxError(ctx, "Failed to start job: %v", err)
		return fmt.Sprintf("Ingestion failed to start: %v", err)
	}

	files, err := s.discover(ctx, req)
	if err != nil {
		return s.failJob(ctx, jobID, start, err)
	}

	if err := s.jobRepo.SetTotalFiles(ctx, jobID, len(files)); err != nil {
		logger.CtxWarn(ctx, "Failed to record total files: %v", err)
	}

	logger.CtxInfo(ctx, "Dispatching %d files with %d workers", len(files), s.cfg.Workers)

	results := make(chan fileResult, s.cfg.Workers)
	collectorDone := make(chan struct{})

	// Single owner for job progress mutation; completion order across
	// workers is not deterministic, so counters are never updated from
	// worker goroutines directly.
	go func() {
		defer close(collectorDone)
		for res := range results {
			if res.skipped {
				continue
			}
			if err := s.jobRepo.RecordFileOutcome(context.Background(), jobID, res.key, res.reviews, res.failed); err != nil {
				logger.CtxError(ctx, "Failed to record outcome for %s: %v", res.key, err)
			}
		}
	}()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Workers)
	for _, file := range files {
		file := file
		group.Go(func() error {
			results <- s.processFile(groupCtx, req, file)
			return nil
		})
	}
	_ = group.Wait()
	close(results)
	<-collectorDone

	cancelled := ctx.Err() != nil
	job := s.finishJob(ctx, jobID, cancelled)
	if job == nil {
		return "Ingestion finished but job record could not be updated"
	}

	summary := fmt.Sprintf("Ingestion %s: %d/%d files processed, %d failed, %d reviews ingested in %s",
		strings.ToLower(string(job.Status)), job.ProcessedFiles, job.TotalFiles, job.FailedFiles,
		job.TotalReviews, time.Since(start).Round(time.Millisecond))
	logger.CtxInfo(ctx, "%s", summary)

	if s.notifier != nil {
		s.notifier.JobFinished(context.Background(), job)
	}
	return summary
}

// discover lists candidate files with retry on transient listing failures
// and drops versions already tracked as completed.
func (s *Service) discover(ctx context.Context, req TriggerRequest) ([]storage.ObjectInfo, error) {
	prefix := s.effectivePrefix(req)

	var listed []storage.ObjectInfo
	err := Retry(ctx, s.cfg.Retry, "list objects", storage.IsTransient, func() error {
		var listErr error
		listed, listErr = s.lister.List(ctx, prefix, nil)
		return listErr
	})
	if err != nil {
		return nil, err
	}

	files := make([]storage.ObjectInfo, 0, len(listed))
	for _, obj := range listed {
		done, err := s.trackingRepo.IsAlreadyProcessed(ctx, obj.Key, obj.Fingerprint)
		if err != nil {
			return nil, fmt.Errorf("idempotency check for %q: %w", obj.Key, err)
		}
		if done {
			logger.CtxDebug(ctx, "Skipping already processed file %s", obj.Key)
			continue
		}
		files = append(files, obj)
		if len(files) >= req.MaxFiles {
			break
		}
	}
	return files, nil
}

func (s *Service) failJob(ctx context.Context, jobID string, start time.Time, cause error) string {
	job, err := s.jobRepo.Transition(ctx, jobID, domain.JobStatusFailed, func(j *domain.ProcessingJob) {
		j.ErrorMessage = domain.TruncateTrackingError(cause.Error())
	})
	if err != nil {
		logger.CtxError(ctx, "Failed to mark job failed: %v", err)
		return fmt.Sprintf("Ingestion failed: %v", cause)
	}
	if s.notifier != nil {
		s.notifier.JobFinished(context.Background(), job)
	}
	return fmt.Sprintf("Ingestion failed after %s: %v", time.Since(start).Round(time.Millisecond), cause)
}

func (s *Service) finishJob(ctx context.Context, jobID string, cancelled bool) *domain.ProcessingJob {
	target := domain.JobStatusCompleted
	if cancelled {
		target = domain.JobStatusCancelled
	}
	job, err := s.jobRepo.Transition(context.Background(), jobID, target, nil)
	if err != nil {
		// A concurrent cancel may have already moved the job to a
		// terminal state; report the stored record as-is.
		if existing, getErr := s.jobRepo.GetByID(context.Background(), jobID); getErr == nil {
			return existing
		}
		logger.CtxError(ctx, "Failed to finish job: %v", err)
		return nil
	}
	return job
}

// processFile runs the full per-file pipeline: tracking, download with
// retry, streaming parse, validate, transform, chunked persist, outcome.
// Failures here never cancel sibling files.
func (s *Service) processFile(ctx context.Context, req TriggerRequest, file storage.ObjectInfo) fileResult {
	ctx = logger.SetFileKey(ctx, file.Key)
	result := fileResult{key: file.Key}

	rec, created, err := s.trackingRepo.CreateOrGet(ctx, &domain.FileTrackingRecord{
		SourceKey:    file.Key,
		Fingerprint:  file.Fingerprint,
		Size:         file.Size,
		LastModified: file.LastModified,
		Provider:     providerFromKey(file.Key, req.Provider),
	})
	if err != nil {
		logger.CtxError(ctx, "Failed to create tracking record: %v", err)
		result.failed = true
		return result
	}
	// FAILED versions stay retryable on later runs; IN_PROGRESS belongs to
	// another attempt and finished versions are done.
	if !created && (rec.Status == domain.FileStatusInProgress ||
		rec.Status == domain.FileStatusCompleted || rec.Status == domain.FileStatusSkipped) {
		logger.CtxInfo(ctx, "Skipping file in status %s", rec.Status)
		result.skipped = true
		return result
	}

	if err := s.trackingRepo.MarkStarted(ctx, rec.ID); err != nil {
		logger.CtxError(ctx, "Failed to mark file started: %v", err)
		result.failed = true
		return result
	}

	processed, invalid, err := s.ingestFile(ctx, file)
	switch {
	case err != nil && errors.Is(err, context.Canceled):
		// Reset so a future run retries the file; no partial chunk is
		// visible because cancellation is observed at batch boundaries.
		if resetErr := s.trackingRepo.ResetToPending(context.Background(), rec.ID); resetErr != nil {
			logger.CtxError(ctx, "Failed to reset cancelled file: %v", resetErr)
		}
		result.skipped = true
	case err != nil:
		logger.CtxError(ctx, "File processing failed: %v", err)
		if markErr := s.trackingRepo.MarkFailed(context.Background(), rec.ID, err.Error()); markErr != nil {
			logger.CtxError(ctx, "Failed to mark file failed: %v", markErr)
		}
		result.failed = true
	default:
		if markErr := s.trackingRepo.MarkCompleted(ctx, rec.ID, processed, invalid); markErr != nil {
			logger.CtxError(ctx, "Failed to mark file completed: %v", markErr)
		}
		result.reviews = processed
		logger.FromContext(ctx).WithFields(logger.Fields{
			logger.FieldCount: processed,
			"invalid":         invalid,
		}).Info("File completed")
	}
	return result
}

// ingestFile downloads and streams one file through the processor.
// Returns the number of reviews persisted and of records rejected by
// validation.
func (s *Service) ingestFile(ctx context.Context, file storage.ObjectInfo) (processed, invalid int, err error) {
	var body io.ReadCloser
	err = Retry(ctx, s.cfg.Retry, "download "+file.Key, storage.IsTransient, func() error {
		var dlErr error
		body, dlErr = s.storage.Download(ctx, file.Key)
		return dlErr
	})
	if err != nil {
		return 0, 0, err
	}
	defer body.Close()

	var batchErrs []string
	stats, err := s.parser.ParseBatches(ctx, body, func(ctx context.Context, batch []RawReview) error {
		res, batchErr := s.processor.ProcessBatch(ctx, file.Key, batch)
		if res != nil {
			processed += res.ValidCount
			invalid += res.InvalidCount
			for _, msg := range res.Errors {
				logger.CtxWarn(ctx, "Record rejected: %s", msg)
			}
		}
		if batchErr != nil {
			batchErrs = append(batchErrs, batchErr.Error())
		}
		return batchErr
	})
	if err != nil {
		return processed, invalid, err
	}
	if len(batchErrs) > 0 {
		return processed, invalid, fmt.Errorf("%d of %d batches failed: %s",
			stats.BatchErrors, stats.BatchesEmitted, strings.Join(batchErrs, "; "))
	}

	logger.FromContext(ctx).WithFields(logger.Fields{
		"lines":        stats.LinesSeen,
		"parsed":       stats.RecordsParsed,
		"parse_errors": stats.ParseErrors,
		"batches":      stats.BatchesEmitted,
	}).Debug("File streamed")
	return processed, invalid, nil
}

// providerFromKey derives the provider label for a tracking record from the
// key's path segments, falling back to the requested filter.
func providerFromKey(key, requested string) string {
	for _, segment := range strings.Split(key, "/") {
		if domain.IsKnownProviderCode(strings.ToLower(segment)) {
			return strings.ToLower(segment)
		}
	}
	return strings.ToLower(requested)
}

// CancelJob cancels an in-flight asynchronous job and transitions it to
// CANCELLED. Terminal jobs are rejected.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.ProcessingJob: job record after cancellation.
//   - error: ErrJobNotFound or ErrIllegalJobTransition.
func (s *Service) CancelJob(ctx context.Context, id string) (*domain.ProcessingJob, error) {
	job, err := s.jobRepo.Transition(ctx, id, domain.JobStatusCancelled, nil)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return job, nil
}

// RetryJob creates a brand-new job replaying a FAILED job's parameters.
// The terminal record is never mutated.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: FAILED job ID to replay.
// Returns:
//   - *TriggerResult: the new job's trigger result.
//   - error: ErrNotRetryable when the source job is not FAILED.
func (s *Service) RetryJob(ctx context.Context, id string) (*TriggerResult, error) {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusFailed {
		return nil, fmt.Errorf("%w: job %s is %s", ErrNotRetryable, id, job.Status)
	}
	return s.Trigger(ctx, TriggerRequest{
		Provider:    job.Provider,
		Prefix:      job.Prefix,
		MaxFiles:    job.MaxFiles,
		Async:       true,
		TriggeredBy: "retry of " + id,
	})
}

// GetJob retrieves a job record by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.ProcessingJob: job record if found.
//   - error: ErrJobNotFound if absent.
func (s *Service) GetJob(ctx context.Context, id string) (*domain.ProcessingJob, error) {
	return s.jobRepo.GetByID(ctx, id)
}

// ListJobs retrieves the most recent jobs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum number of jobs; values below 1 fall back to 20.
// Returns:
//   - []domain.ProcessingJob: jobs ordered newest first.
//   - error: non-nil if the query fails.
func (s *Service) ListJobs(ctx context.Context, limit int) ([]domain.ProcessingJob, error) {
	if limit < 1 {
		limit = 20
	}
	return s.jobRepo.ListRecent(ctx, limit)
}

// Start launches the background sweepers: stuck-file recovery and retention
// cleanup. Call once after construction; Shutdown stops them.
// Parameters: none.
// Returns: none.
func (s *Service) Start() {
	if s.cfg.SweepInterval > 0 {
		s.bgWG.Add(1)
		go s.sweepLoop()
	}
	if s.cfg.CleanupInterval > 0 && s.cfg.RetentionDays > 0 {
		s.bgWG.Add(1)
		go s.cleanupLoop()
	}
}

// sweepLoop periodically resets stuck IN_PROGRESS tracking records so a
// future run retries them.
func (s *Service) sweepLoop() {
	defer s.bgWG.Done()
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.SweepStuckFiles(context.Background())
		}
	}
}

// SweepStuckFiles resets IN_PROGRESS records older than the stuck threshold
// back to PENDING. The threshold is deliberately much longer than any normal
// file, to distinguish slow from crashed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - int: number of records reset.
func (s *Service) SweepStuckFiles(ctx context.Context) int {
	cutoff := time.Now().Add(-s.cfg.StuckAfter)
	stuck, err := s.trackingRepo.FindStuck(ctx, cutoff)
	if err != nil {
		s.logger.WithError(err).Error("Stuck-file sweep failed")
		return 0
	}

	reset := 0
	for _, rec := range stuck {
		if err := s.trackingRepo.ResetToPending(ctx, rec.ID); err != nil {
			s.logger.WithField(logger.FieldFileKey, rec.SourceKey).WithError(err).
				Error("Failed to reset stuck file")
			continue
		}
		reset++
		s.logger.WithFields(logger.Fields{
			logger.FieldFileKey: rec.SourceKey,
			"started_at":        rec.StartedAt,
		}).Warn("Reset stuck file to pending")
	}
	return reset
}

// cleanupLoop periodically deletes terminal tracking rows past retention.
func (s *Service) cleanupLoop() {
	defer s.bgWG.Done()
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
			removed, err := s.trackingRepo.DeleteOlderThan(context.Background(), cutoff, domain.TerminalFileStatuses())
			if err != nil {
				s.logger.WithError(err).Error("Retention cleanup failed")
				continue
			}
			if removed > 0 {
				s.logger.WithField(logger.FieldCount, removed).Info("Retention cleanup removed old tracking records")
			}
		}
	}
}

// Shutdown drains in-flight runs up to the configured timeout, then
// force-cancels whatever remains. New triggers are rejected immediately.
// Parameters:
//   - ctx: context bounding the wait in addition to the configured timeout.
// Returns:
//   - error: non-nil when the drain timed out and work was force-cancelled.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()
	close(s.stop)

	done := make(chan struct{})
	go func() {
		s.runWG.Wait()
		s.bgWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
	case <-ctx.Done():
	}

	// Drain window elapsed; force-cancel in-flight jobs.
	s.mu.Lock()
	for id, cancel := range s.cancels {
		s.logger.WithField(logger.FieldJobID, id).Warn("Force-cancelling job at shutdown")
		cancel()
	}
	s.mu.Unlock()

	<-done
	return fmt.Errorf("shutdown drain timed out after %s", s.cfg.ShutdownTimeout)
}
