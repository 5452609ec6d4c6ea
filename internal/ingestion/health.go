package ingestion

import (
	"context"
	"fmt"
	"time"
)

// HealthState is the coarse pipeline health classification.
// Values include HealthUp, HealthDegraded, and HealthDown.
type HealthState string

const (
	HealthUp       HealthState = "UP"
	HealthDegraded HealthState = "DEGRADED"
	HealthDown     HealthState = "DOWN"
)

// HealthReport describes pipeline health derived from the trailing
// processing window.
type HealthReport struct {
	State          HealthState `json:"state"`
	FailureRate    float64     `json:"failure_rate"`
	CompletedFiles int64       `json:"completed_files"`
	FailedFiles    int64       `json:"failed_files"`
	PendingFiles   int64       `json:"pending_files"`
	WindowHours    float64     `json:"window_hours"`
	Issues         []string    `json:"issues,omitempty"`
	CheckedAt      time.Time   `json:"checked_at"`
}

// Health evaluates pipeline health over the trailing staleness window.
// A failure rate above the threshold degrades the pipeline; no completed
// files in the whole window, or a rate at double the threshold, marks it
// down. A pending backlog above the configured capacity also marks it
// down: the pipeline is accepting files faster than it clears them. A
// pipeline with no history at all reports DOWN with an explicit issue
// rather than a vacuous UP.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - *HealthReport: classification plus the numbers behind it.
//   - error: non-nil when the underlying counts cannot be read.
func (s *Service) Health(ctx context.Context) (*HealthReport, error) {
	now := time.Now().UTC()
	since := now.Add(-s.cfg.StalenessWindow)

	completed, err := s.trackingRepo.CountCompletedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count completed files: %w", err)
	}
	failed, err := s.trackingRepo.CountFailedSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count failed files: %w", err)
	}
	stats, err := s.trackingRepo.Statistics(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read tracking statistics: %w", err)
	}

	report := &HealthReport{
		State:          HealthUp,
		CompletedFiles: completed,
		FailedFiles:    failed,
		PendingFiles:   stats.Pending,
		WindowHours:    s.cfg.StalenessWindow.Hours(),
		CheckedAt:      now,
	}

	total := completed + failed
	if total == 0 {
		report.State = HealthDown
		report.Issues = append(report.Issues, fmt.Sprintf("no files processed in the last %.0fh", report.WindowHours))
	} else {
		report.FailureRate = float64(failed) / float64(total)
		threshold := s.cfg.FailureRateThreshold
		if threshold <= 0 {
			threshold = 0.5
		}

		switch {
		case report.FailureRate >= 2*threshold || completed == 0:
			report.State = HealthDown
			report.Issues = append(report.Issues, fmt.Sprintf("failure rate %.0f%% critically above threshold %.0f%%",
				report.FailureRate*100, threshold*100))
		case report.FailureRate > threshold:
			report.State = HealthDegraded
			report.Issues = append(report.Issues, fmt.Sprintf("failure rate %.0f%% above threshold %.0f%%",
				report.FailureRate*100, threshold*100))
		}
	}

	if s.cfg.MaxBacklog > 0 && stats.Pending > int64(s.cfg.MaxBacklog) {
		report.State = HealthDown
		report.Issues = append(report.Issues, fmt.Sprintf("backlog of %d pending files exceeds capacity %d",
			stats.Pending, s.cfg.MaxBacklog))
	}

	return report, nil
}
