package domain

import "time"

// JobStatus represents the status of a processing job.
// Values include JobStatusPending, JobStatusInProgress, JobStatusCompleted,
// JobStatusFailed, and JobStatusCancelled.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusInProgress JobStatus = "IN_PROGRESS"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// IsTerminal reports whether the status admits no further transitions.
// A retry of a FAILED job creates a brand-new job record, it never mutates
// the terminal one.
// Parameters: none.
// Returns:
//   - bool: true for COMPLETED, FAILED, or CANCELLED.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the job state machine permits moving from
// s to next. PENDING is the only initial state.
// Parameters:
//   - next: candidate next status.
// Returns:
//   - bool: true if the transition is legal.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusInProgress || next == JobStatusFailed || next == JobStatusCancelled
	case JobStatusInProgress:
		return next == JobStatusCompleted || next == JobStatusFailed || next == JobStatusCancelled
	}
	return false
}

// ProcessingJob represents one ingestion run and its progress metadata.
// Per-file outcome lists are append-only and bounded by the files actually
// attempted in this run.
type ProcessingJob struct {
	ID             string      `gorm:"type:text;primaryKey" json:"id"`
	Status         JobStatus   `gorm:"type:text;index:idx_jobs_status;default:PENDING" json:"status"`
	Provider       string      `gorm:"type:text" json:"provider,omitempty"`
	Prefix         string      `gorm:"type:text" json:"prefix,omitempty"`
	MaxFiles       int         `gorm:"default:0" json:"max_files"`
	TotalFiles     int         `gorm:"default:0" json:"total_files"`
	ProcessedFiles int         `gorm:"default:0" json:"processed_files"`
	FailedFiles    int         `gorm:"default:0" json:"failed_files"`
	TotalReviews   int         `gorm:"default:0" json:"total_reviews"`
	ErrorMessage   string      `gorm:"type:text" json:"error_message,omitempty"`
	TriggeredBy    string      `gorm:"type:text" json:"triggered_by,omitempty"`
	Async          bool        `gorm:"default:false" json:"async"`
	SucceededFiles StringArray `gorm:"type:text" json:"succeeded_files"`
	FailedFileKeys StringArray `gorm:"type:text" json:"failed_file_keys"`
	StartedAt      *time.Time  `json:"started_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// TableName returns the database table name for ProcessingJob.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (ProcessingJob) TableName() string {
	return "processing_jobs"
}

// ProgressPercent reports job completion against the post-filter file count,
// the files this run actually owns. Already-completed files excluded during
// discovery are not part of the denominator.
// Parameters: none.
// Returns:
//   - float64: completion percentage in [0, 100].
func (j *ProcessingJob) ProgressPercent() float64 {
	if j.TotalFiles == 0 {
		return 0
	}
	return float64(j.ProcessedFiles+j.FailedFiles) / float64(j.TotalFiles) * 100
}
