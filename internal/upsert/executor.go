// Package upsert writes normalized executions in batches, classifying store
// failures into inserted, duplicate and failed rows.
package upsert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-trades-must-flow/internal/common"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/service"
)

// Strategy selects how a failing batch is handled.
type Strategy string

// Strategies.
const (
	// StrategyBisect halves failing batches until the bad rows are isolated.
	StrategyBisect Strategy = "bisect"
	// StrategyCoarse treats a unique violation as a fully duplicate batch and
	// any other failure as a fully failed batch.
	StrategyCoarse Strategy = "coarse"
)

// Limits.
const (
	MaxBatchSize     = 1000
	DefaultBatchSize = 500
	DefaultMaxDepth  = 10
)

// DefaultRetry waits 250ms, 500ms and 1s between attempts.
var DefaultRetry = service.RetryOptions{
	MaxAttempts:  4,
	InitialDelay: 250 * time.Millisecond,
	MaxDelay:     time.Second,
	Multiplier:   2,
}

// ParseStrategy validates a configured strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyBisect, "":
		return StrategyBisect, nil
	case StrategyCoarse:
		return StrategyCoarse, nil
	default:
		return "", fmt.Errorf("%w: unknown insert strategy %q", common.ErrInvalidConfig, s)
	}
}

// Inserter is the store call the executor drives.
type Inserter interface {
	InsertExecutions(ctx context.Context, executions []model.Execution) (service.InsertOutcome, error)
}

// Failure is one execution the store would not accept.
type Failure struct {
	Err       error
	Execution model.Execution
}

// Result counts what happened to every execution handed to Execute.
type Result struct {
	Failures   []Failure
	Inserted   int
	Duplicates int
}

// Failed is the number of executions that were not written.
func (r Result) Failed() int {
	return len(r.Failures)
}

func (r *Result) merge(o Result) {
	r.Inserted += o.Inserted
	r.Duplicates += o.Duplicates
	r.Failures = append(r.Failures, o.Failures...)
}

func failAll(batch []model.Execution, err error) Result {
	res := Result{Failures: make([]Failure, len(batch))}
	for i, e := range batch {
		res.Failures[i] = Failure{Execution: e, Err: err}
	}
	return res
}

// Options configure an Executor.
type Options struct {
	Strategy  Strategy
	Retry     service.RetryOptions
	BatchSize int
	MaxDepth  int
}

// Executor writes executions through an Inserter.
type Executor struct {
	store Inserter
	opts  Options
}

// NewExecutor creates an executor, filling unset options with defaults.
func NewExecutor(store Inserter, opts Options) *Executor {
	if opts.Strategy == "" {
		opts.Strategy = StrategyBisect
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize > MaxBatchSize {
		opts.BatchSize = MaxBatchSize
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetry
	}
	return &Executor{store: store, opts: opts}
}

// Execute writes executions in bounded batches. Ordinary duplicate-key
// conditions are counted, never returned as errors.
func (e *Executor) Execute(ctx context.Context, executions []model.Execution) Result {
	var res Result
	for start := 0; start < len(executions); start += e.opts.BatchSize {
		end := min(start+e.opts.BatchSize, len(executions))
		batch := executions[start:end]

		switch e.opts.Strategy {
		case StrategyCoarse:
			res.merge(e.Coarse(ctx, batch))
		default:
			res.merge(e.Bisect(ctx, batch))
		}
	}
	return res
}

// Coarse inserts the batch in one call. A unique violation marks the whole
// batch duplicate.
func (e *Executor) Coarse(ctx context.Context, batch []model.Execution) Result {
	if len(batch) == 0 {
		return Result{}
	}

	out, err := e.insert(ctx, batch)
	switch {
	case err == nil:
		return Result{Inserted: out.Inserted, Duplicates: out.Duplicates}
	case errors.Is(err, common.ErrDuplicateEntry):
		return Result{Duplicates: len(batch)}
	default:
		slog.Warn("Batch insert failed", "rows", len(batch), "error", err)
		return failAll(batch, err)
	}
}

// Bisect inserts the batch, recursively halving it on failure so one bad row
// does not sink its siblings. Past the depth limit the remaining rows fail.
func (e *Executor) Bisect(ctx context.Context, batch []model.Execution) Result {
	return e.bisect(ctx, batch, 0)
}

func (e *Executor) bisect(ctx context.Context, batch []model.Execution, depth int) Result {
	if len(batch) == 0 {
		return Result{}
	}

	out, err := e.insert(ctx, batch)
	if err == nil {
		return Result{Inserted: out.Inserted, Duplicates: out.Duplicates}
	}

	if len(batch) == 1 {
		if errors.Is(err, common.ErrDuplicateEntry) {
			return Result{Duplicates: 1}
		}
		return failAll(batch, err)
	}

	// Splitting cannot help when the store refuses every write or keeps
	// timing out.
	if !splittable(ctx, err) {
		slog.Warn("Batch insert failed", "rows", len(batch), "error", err)
		return failAll(batch, err)
	}

	if depth >= e.opts.MaxDepth {
		slog.Warn("Bisection depth exhausted", "rows", len(batch), "depth", depth, "error", err)
		return failAll(batch, fmt.Errorf("bisection depth %d exhausted: %w", depth, err))
	}

	mid := len(batch) / 2
	res := e.bisect(ctx, batch[:mid], depth+1)
	res.merge(e.bisect(ctx, batch[mid:], depth+1))
	return res
}

func splittable(ctx context.Context, err error) bool {
	switch {
	case ctx.Err() != nil:
		return false
	case errors.Is(err, common.ErrPermissionDenied):
		return false
	case errors.Is(err, common.ErrMaxRetries):
		return false
	default:
		return true
	}
}

// insert runs one store call with bounded retry on transient errors.
func (e *Executor) insert(ctx context.Context, batch []model.Execution) (service.InsertOutcome, error) {
	var out service.InsertOutcome
	err := common.WithRetry(ctx, func() error {
		var err error
		out, err = e.store.InsertExecutions(ctx, batch)
		return err
	}, e.opts.Retry)
	return out, err
}
