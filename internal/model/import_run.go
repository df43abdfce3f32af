package model

import "time"

// RunStatus is the persisted lifecycle state of an import run.
type RunStatus string

// Run statuses.
const (
	RunProcessing RunStatus = "processing"
	RunComplete   RunStatus = "complete"
	RunFailed     RunStatus = "failed"
)

// MappingMode selects how raw rows become canonical fields.
type MappingMode string

// Mapping modes.
const (
	ModePreset MappingMode = "preset"
	ModeManual MappingMode = "manual"
)

// SourceCSV is the run source when no preset drives the import.
const SourceCSV = "csv"

// RunSummary is the cumulative outcome of an import run.
type RunSummary struct {
	ErrorsCSVURL string `json:"errorsCsvUrl,omitempty"`
	Total        int    `json:"total"`
	Added        int    `json:"added"`
	Duplicates   int    `json:"duplicates"`
	Errors       int    `json:"errors"`
	Skipped      int    `json:"skipped,omitempty"`
	ErrorCount   int    `json:"errorCount,omitempty"`
}

// ImportRun is one file-import attempt. JobID is the opaque upload token the
// client carries in every chunk request.
type ImportRun struct {
	CreatedAt       time.Time
	UpdatedAt       time.Time
	HeartbeatAt     time.Time
	LeaseExpiresAt  time.Time
	FinishedAt      *time.Time
	Mapping         map[Field]string
	ID              string
	UserID          string
	JobID           string
	Source          string
	FileName        string
	FileType        string
	SourcePath      string
	BrokerAccountID string
	FailureReason   string
	Status          RunStatus
	Mode            MappingMode
	Summary         RunSummary
	LastRowIndex    int
	ProcessedBytes  int64
	TotalBytes      int64
}

// IsActive reports whether the run still accepts chunks.
func (r *ImportRun) IsActive() bool {
	return r.Status == RunProcessing
}

// LeaseExpired reports whether a processing run has gone without a
// heartbeat past its lease.
func (r *ImportRun) LeaseExpired(now time.Time) bool {
	return r.Status == RunProcessing && !r.LeaseExpiresAt.IsZero() && now.After(r.LeaseExpiresAt)
}

// Instrument is a tradable symbol known to the store.
type Instrument struct {
	CreatedAt time.Time
	ID        string
	Symbol    string
	Type      InstrumentType
}
