// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
)

// RunFilter narrows run listings.
type RunFilter struct {
	UserID string
	Status model.RunStatus
	Limit  int
}

// RunProgress is the per-chunk mutation applied to a run.
type RunProgress struct {
	HeartbeatAt    time.Time
	LeaseExpiresAt time.Time
	// FailureReason is the last chunk's hard failure; empty clears it.
	FailureReason  string
	Summary        model.RunSummary
	LastRowIndex   int
	ProcessedBytes int64
	TotalBytes     int64
}

// RunStore persists import runs.
type RunStore interface {
	CreateRun(ctx context.Context, run *model.ImportRun) error
	GetRunByJob(ctx context.Context, userID, jobID string) (*model.ImportRun, error)
	GetActiveRun(ctx context.Context, userID string) (*model.ImportRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.ImportRun, error)
	UpdateRunMapping(ctx context.Context, runID string, mode model.MappingMode, source string, mapping map[model.Field]string) error
	UpdateRunProgress(ctx context.Context, runID string, progress RunProgress) error
	FinishRun(ctx context.Context, runID string, status model.RunStatus, reason string, at time.Time) error
	ExpireStaleRuns(ctx context.Context, now time.Time) (int, error)
}

// InsertOutcome reports what a single all-or-nothing insert call did.
type InsertOutcome struct {
	Inserted   int
	Duplicates int
}

// ExecutionStore writes canonical executions. InsertExecutions is atomic:
// either every non-duplicate row is written or none is. Rows whose unique
// hash already exists are skipped and counted as duplicates.
type ExecutionStore interface {
	InsertExecutions(ctx context.Context, executions []model.Execution) (InsertOutcome, error)
	CountExecutions(ctx context.Context, userID string) (int, error)
	ListExecutionsByRun(ctx context.Context, runID string) ([]model.Execution, error)
}

// InstrumentStore resolves tradable symbols.
type InstrumentStore interface {
	FindOrCreateInstrument(ctx context.Context, symbol string, kind model.InstrumentType) (*model.Instrument, error)
}

// Storage is the full persistence contract.
type Storage interface {
	RunStore
	ExecutionStore
	InstrumentStore

	Migrate(ctx context.Context) error
	Close() error
}

// BlobStore holds uploaded source files and generated artifacts.
type BlobStore interface {
	Put(ctx context.Context, path, contentType string, data []byte) error
	Get(ctx context.Context, path string) ([]byte, error)
	SignedURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

// Matcher turns stored executions into round-trip trades.
type Matcher interface {
	MatchExecutions(ctx context.Context, userID, runID string) error
}

// InstrumentResolver maps a symbol to an instrument id.
type InstrumentResolver interface {
	Resolve(ctx context.Context, symbol string, kind model.InstrumentType) (string, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
