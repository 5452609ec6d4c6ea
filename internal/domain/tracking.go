package domain

import "time"

// FileStatus represents the processing status of a tracked source file.
// Values include FileStatusPending, FileStatusInProgress, FileStatusCompleted,
// FileStatusFailed, and FileStatusSkipped.
type FileStatus string

const (
	FileStatusPending    FileStatus = "PENDING"
	FileStatusInProgress FileStatus = "IN_PROGRESS"
	FileStatusCompleted  FileStatus = "COMPLETED"
	FileStatusFailed     FileStatus = "FAILED"
	FileStatusSkipped    FileStatus = "SKIPPED"
)

// IsTerminal reports whether the status admits no further transitions.
// Parameters: none.
// Returns:
//   - bool: true for COMPLETED, FAILED, or SKIPPED.
func (s FileStatus) IsTerminal() bool {
	switch s {
	case FileStatusCompleted, FileStatusFailed, FileStatusSkipped:
		return true
	}
	return false
}

// TerminalFileStatuses returns the statuses eligible for retention cleanup.
// Parameters: none.
// Returns:
//   - []FileStatus: terminal statuses.
func TerminalFileStatuses() []FileStatus {
	return []FileStatus{FileStatusCompleted, FileStatusFailed, FileStatusSkipped}
}

// MaxTrackingErrorLen bounds the stored error message on a tracking record.
const MaxTrackingErrorLen = 2000

// FileTrackingRecord is the idempotency and recovery ledger for one source
// file version. The (source_key, fingerprint) pair is unique: a re-upload of
// the same key with different content is a distinct, independently tracked
// version.
type FileTrackingRecord struct {
	ID               string     `gorm:"type:text;primaryKey" json:"id"`
	SourceKey        string     `gorm:"type:text;not null;index:idx_tracking_key_fp,unique" json:"source_key"`
	Fingerprint      string     `gorm:"type:text;not null;index:idx_tracking_key_fp,unique" json:"fingerprint"`
	Size             int64      `json:"size"`
	LastModified     *time.Time `json:"last_modified,omitempty"`
	Status           FileStatus `gorm:"type:text;index:idx_tracking_status;default:PENDING" json:"status"`
	RecordsProcessed int        `gorm:"default:0" json:"records_processed"`
	RecordsFailed    int        `gorm:"default:0" json:"records_failed"`
	ErrorMessage     string     `gorm:"type:text" json:"error_message,omitempty"`
	Provider         string     `gorm:"type:text;index:idx_tracking_provider" json:"provider,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName returns the database table name for FileTrackingRecord.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (FileTrackingRecord) TableName() string {
	return "file_tracking_records"
}

// TruncateTrackingError bounds an error message to MaxTrackingErrorLen runes
// so oversized provider errors never overflow the column.
// Parameters:
//   - msg: raw error message.
// Returns:
//   - string: message truncated to the bounded length.
func TruncateTrackingError(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxTrackingErrorLen {
		return msg
	}
	return string(runes[:MaxTrackingErrorLen])
}
