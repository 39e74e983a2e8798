package models

import "time"

// Session statuses. A session starts RUNNING and is moved exactly once to a
// terminal status when the run ends or is interrupted.
const (
	StatusRunning             = "RUNNING"
	StatusCompleted           = "COMPLETED"
	StatusCompletedWithErrors = "COMPLETED_WITH_ERRORS"
	StatusFailed              = "FAILED"
	StatusInterrupted         = "INTERRUPTED"
	StatusNoFiles             = "NO_FILES"
	StatusDryRunCompleted     = "DRY_RUN_COMPLETED"
)

// Per-file transfer statuses.
const (
	TransferCompleted   = "COMPLETED"
	TransferDryRun      = "DRY_RUN"
	TransferInterrupted = "INTERRUPTED"
)

// SyncSession is one synchronization run as recorded in the database.
// ResumedFromID is zero when the session was not a resume.
type SyncSession struct {
	ID                int64
	SyncDate          time.Time
	FilesTransferred  int64
	DuplicatesFound   int64
	DuplicatesRenamed int64
	ErrorsCount       int64
	SkippedFiles      int64
	AlreadyProcessed  int64
	TotalSizeBytes    int64
	DurationSeconds   float64
	SourcePath        string
	DestPath          string
	Status            string
	ResumedFromID     int64
}

// TransferRecord is one attempted file transfer. Rows are append-only; a file
// retried in a later session gets a new record.
type TransferRecord struct {
	ID           int64
	SyncID       int64
	SourceFile   string
	DestFile     string
	FileHash     string
	FileSize     int64
	TransferDate time.Time
	IsDuplicate  bool
	Status       string
}

// SyncError is one recorded error. FilePath is empty for run-level errors.
type SyncError struct {
	ID        int64
	SyncID    int64
	Message   string
	FilePath  string
	ErrorDate time.Time
}

// Counters is the aggregate snapshot persisted into a session row.
type Counters struct {
	FilesTransferred  int64
	DuplicatesFound   int64
	DuplicatesRenamed int64
	ErrorsCount       int64
	SkippedFiles      int64
	AlreadyProcessed  int64
	TotalSizeBytes    int64
}

// ProcessedFile is a completed transfer from an earlier session, used to seed
// the duplicate registry on resume.
type ProcessedFile struct {
	SourceFile string
	DestFile   string
	FileHash   string
}

// SessionDetail bundles a session with its per-file and error breakdown.
type SessionDetail struct {
	Session    SyncSession
	FileCount  int64
	TotalBytes int64
	Errors     []SyncError
}
