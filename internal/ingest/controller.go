// Package ingest drives a file import end to end: it stores and sniffs the
// upload, proposes a mapping, and commits the file in bounded row windows
// while persisting a resume cursor on the run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/the-trades-must-flow/internal/common"
	"github.com/Veraticus/the-trades-must-flow/internal/errreport"
	"github.com/Veraticus/the-trades-must-flow/internal/instrument"
	"github.com/Veraticus/the-trades-must-flow/internal/mapping"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/normalize"
	"github.com/Veraticus/the-trades-must-flow/internal/preset"
	"github.com/Veraticus/the-trades-must-flow/internal/service"
	"github.com/Veraticus/the-trades-must-flow/internal/sniffer"
	"github.com/Veraticus/the-trades-must-flow/internal/upsert"
)

// Chunk limits.
const (
	MaxChunkSize     = 5000
	DefaultChunkSize = 1000
	DefaultLeaseTTL  = 30 * time.Minute
)

// Controller errors.
var (
	ErrRunNotFound    = errors.New("import run not found")
	ErrRunNotActive   = common.ErrRunNotActive
	ErrAlreadyStarted = errors.New("import has already started")
)

// Options tune a Controller.
type Options struct {
	// Location interprets timestamps that carry no zone.
	Location        *time.Location
	Upsert          upsert.Options
	PresetThreshold float64
	SampleSize      int
	LeaseTTL        time.Duration
	ErrorsURLTTL    time.Duration
}

// Deps are the collaborators a Controller drives.
type Deps struct {
	Storage  service.Storage
	Blobs    service.BlobStore
	Presets  *preset.Registry
	Matcher  service.Matcher
	Resolver service.InstrumentResolver
}

// Controller implements start, configure and commit-chunk.
type Controller struct {
	store    service.Storage
	blobs    service.BlobStore
	presets  *preset.Registry
	matcher  service.Matcher
	resolver service.InstrumentResolver
	executor *upsert.Executor
	reporter *errreport.Reporter
	now      func() time.Time
	locks    [jobLockStripes]sync.Mutex
	opts     Options
}

// New creates a controller, filling unset options with defaults.
func New(deps Deps, opts Options) *Controller {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.PresetThreshold <= 0 {
		opts.PresetThreshold = preset.DefaultThreshold
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = sniffer.DefaultSampleSize
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = DefaultLeaseTTL
	}
	if deps.Presets == nil {
		deps.Presets = preset.Default()
	}

	return &Controller{
		store:    deps.Storage,
		blobs:    deps.Blobs,
		presets:  deps.Presets,
		matcher:  deps.Matcher,
		resolver: deps.Resolver,
		executor: upsert.NewExecutor(deps.Storage, opts.Upsert),
		reporter: errreport.NewReporter(deps.Blobs, opts.ErrorsURLTTL),
		now:      time.Now,
		opts:     opts,
	}
}

// jobLockStripes bounds the number of job locks held by a controller.
const jobLockStripes = 64

// lockJob serializes chunk processing per job within this process. Jobs that
// share a stripe also wait on each other. Across processes the store's
// status guard keeps finished runs finished.
func (c *Controller) lockJob(jobID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(jobID))
	mu := &c.locks[h.Sum32()%jobLockStripes]
	mu.Lock()
	return mu.Unlock
}

// StartRequest is an uploaded file.
type StartRequest struct {
	UserID          string
	FileName        string
	FileType        string
	BrokerAccountID string
	Data            []byte
}

// PresetProposal describes the best preset for a file.
type PresetProposal struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// StartResult is everything a client needs to confirm the mapping.
type StartResult struct {
	Run     *model.ImportRun  `json:"-"`
	Preset  *PresetProposal   `json:"preset,omitempty"`
	Mapping mapping.Mapping   `json:"mapping"`
	JobID   string            `json:"jobId"`
	RunID   string            `json:"runId"`
	Type    sniffer.FileType  `json:"fileType"`
	Mode    model.MappingMode `json:"mode"`
	Headers []string          `json:"headers"`
	Sample  []model.RawRow    `json:"sample"`
}

// Start stores the file, sniffs it, proposes a mapping and creates the run.
func (c *Controller) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user is required", common.ErrInvalidRequest)
	}
	if len(req.Data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", common.ErrInvalidRequest)
	}

	ft, err := sniffer.DetectFileType(req.FileName, req.FileType, req.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrUnsupportedFile, err)
	}
	sample, err := sniffer.Sniff(req.Data, ft, c.opts.SampleSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidRequest, err)
	}

	if active, activeErr := c.store.GetActiveRun(ctx, req.UserID); activeErr == nil {
		slog.Warn("Starting import while another run is processing",
			"user_id", req.UserID,
			"active_run_id", active.ID,
			"active_job_id", active.JobID)
	}

	now := c.now().UTC()
	jobID := uuid.NewString()
	run := &model.ImportRun{
		ID:              uuid.NewString(),
		UserID:          req.UserID,
		JobID:           jobID,
		Status:          model.RunProcessing,
		FileName:        req.FileName,
		FileType:        string(ft),
		SourcePath:      path.Join(req.UserID, jobID, "source."+string(ft)),
		BrokerAccountID: strings.TrimSpace(req.BrokerAccountID),
		TotalBytes:      sample.TotalBytes,
		CreatedAt:       now,
		HeartbeatAt:     now,
		LeaseExpiresAt:  now.Add(c.opts.LeaseTTL),
	}

	result := &StartResult{
		Run:     run,
		JobID:   jobID,
		RunID:   run.ID,
		Type:    ft,
		Headers: sample.Headers,
		Sample:  sample.Rows,
		Mapping: mapping.AutoMap(sample.Headers),
	}

	match := c.presets.Match(sample.Headers, sample.Rows)
	if match.Preset != nil {
		result.Preset = &PresetProposal{ID: match.Preset.ID, Label: match.Preset.Label, Score: match.Score}
	}
	if match.Preset != nil && match.Score >= c.opts.PresetThreshold {
		run.Mode = model.ModePreset
		run.Source = match.Preset.ID
	} else {
		run.Mode = model.ModeManual
		run.Source = model.SourceCSV
		run.Mapping = result.Mapping
	}
	result.Mode = run.Mode

	if err := c.blobs.Put(ctx, run.SourcePath, ft.ContentType(), req.Data); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}
	if err := c.store.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to create import run: %w", err)
	}

	slog.Info("Import started",
		"user_id", run.UserID,
		"job_id", run.JobID,
		"run_id", run.ID,
		"file_type", ft,
		"mode", run.Mode,
		"source", run.Source,
		"preset_score", match.Score)
	return result, nil
}

// ConfigureRequest overrides the proposed mapping before the first chunk.
type ConfigureRequest struct {
	Mapping  map[string]string `json:"mapping,omitempty"`
	Mode     model.MappingMode `json:"mode"`
	PresetID string            `json:"presetId,omitempty"`
}

// Configure applies a user override of mode, preset or manual mapping.
func (c *Controller) Configure(ctx context.Context, userID, jobID string, req ConfigureRequest) (*model.ImportRun, error) {
	defer c.lockJob(jobID)()

	run, err := c.loadRun(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if !run.IsActive() {
		return nil, fmt.Errorf("%w: status %s", ErrRunNotActive, run.Status)
	}
	if run.LastRowIndex > 0 || run.Summary.Total > 0 {
		return nil, ErrAlreadyStarted
	}

	switch req.Mode {
	case model.ModePreset:
		id := req.PresetID
		if id == "" && run.Mode == model.ModePreset {
			id = run.Source
		}
		p, ok := c.presets.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: unknown preset %q", common.ErrInvalidRequest, id)
		}
		run.Mode, run.Source, run.Mapping = model.ModePreset, p.ID, nil

	case model.ModeManual:
		m, convErr := mapping.FromStrings(req.Mapping)
		if convErr != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrInvalidRequest, convErr)
		}
		if len(m) == 0 {
			m = run.Mapping
		}
		headers, hdrErr := c.headers(ctx, run)
		if hdrErr != nil {
			return nil, hdrErr
		}
		if valErr := m.Validate(headers); valErr != nil {
			return nil, fmt.Errorf("%w: %w", common.ErrInvalidRequest, valErr)
		}
		run.Mode, run.Source, run.Mapping = model.ModeManual, model.SourceCSV, m

	default:
		return nil, fmt.Errorf("%w: unknown mode %q", common.ErrInvalidRequest, req.Mode)
	}

	if err := c.store.UpdateRunMapping(ctx, run.ID, run.Mode, run.Source, run.Mapping); err != nil {
		return nil, fmt.Errorf("failed to save mapping: %w", err)
	}
	slog.Info("Import mapping configured",
		"job_id", jobID,
		"mode", run.Mode,
		"source", run.Source)
	return run, nil
}

func (c *Controller) headers(ctx context.Context, run *model.ImportRun) ([]string, error) {
	data, err := c.blobs.Get(ctx, run.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load upload: %w", err)
	}
	w, err := sniffer.ReadWindow(data, sniffer.FileType(run.FileType), 0, 1)
	if err != nil {
		return nil, err
	}
	return w.Headers, nil
}

func (c *Controller) loadRun(ctx context.Context, userID, jobID string) (*model.ImportRun, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("%w: user and job are required", common.ErrInvalidRequest)
	}
	run, err := c.store.GetRunByJob(ctx, userID, jobID)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: job %s", ErrRunNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	return run, nil
}

// Run returns the run a job token belongs to.
func (c *Controller) Run(ctx context.Context, userID, jobID string) (*model.ImportRun, error) {
	return c.loadRun(ctx, userID, jobID)
}

// Runs lists a user's runs, newest first.
func (c *Controller) Runs(ctx context.Context, filter service.RunFilter) ([]model.ImportRun, error) {
	return c.store.ListRuns(ctx, filter)
}

// ExpireStale fails processing runs whose lease has lapsed.
func (c *Controller) ExpireStale(ctx context.Context) (int, error) {
	n, err := c.store.ExpireStaleRuns(ctx, c.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		common.LogInfo(ctx, "Expired stale import runs", common.Fields{"count": n})
	}
	return n, nil
}

// ChunkRequest asks for one window of rows to be committed.
type ChunkRequest struct {
	// StartAtRow overrides Offset when resuming after a crash.
	StartAtRow *int   `json:"startAtRow,omitempty"`
	JobID      string `json:"jobId"`
	Offset     int    `json:"offset"`
	Limit      int    `json:"limit"`
}

// ChunkResponse reports one chunk. Added, Duplicates and Errors count this
// chunk only; Summary is cumulative for the run.
type ChunkResponse struct {
	ErrorsCSVURL   string             `json:"errorsCsvUrl,omitempty"`
	Message        string             `json:"message"`
	ErrorDetails   []errreport.Detail `json:"errorDetails,omitempty"`
	Summary        model.RunSummary   `json:"summary"`
	ProcessedRows  int                `json:"processedRows"`
	Added          int                `json:"added"`
	Duplicates     int                `json:"duplicates"`
	Errors         int                `json:"errors"`
	Skipped        int                `json:"skipped,omitempty"`
	ErrorCount     int                `json:"errorCount,omitempty"`
	NextOffset     int                `json:"nextOffset"`
	ProcessedBytes int64              `json:"processedBytes"`
	TotalBytes     int64              `json:"totalBytes"`
	Complete       bool               `json:"complete"`
}

// ChunkFailure is a hard chunk failure. The response carries the rejected
// rows so the caller can show them.
type ChunkFailure struct {
	Response *ChunkResponse
	Reason   string
	Status   int
	// RunOpen is set when later chunks may still be committed.
	RunOpen  bool
}

func (f *ChunkFailure) Error() string {
	return f.Reason
}

func validateChunk(req ChunkRequest) error {
	switch {
	case strings.TrimSpace(req.JobID) == "":
		return fmt.Errorf("%w: jobId is required", common.ErrInvalidRequest)
	case req.Offset < 0:
		return fmt.Errorf("%w: offset must be >= 0", common.ErrInvalidRequest)
	case req.Limit < 1 || req.Limit > MaxChunkSize:
		return fmt.Errorf("%w: limit must be between 1 and %d", common.ErrInvalidRequest, MaxChunkSize)
	case req.StartAtRow != nil && *req.StartAtRow < 0:
		return fmt.Errorf("%w: startAtRow must be >= 0", common.ErrInvalidRequest)
	}
	return nil
}

// CommitChunk processes one bounded window of the job's file. Windows behind
// the run's recorded progress are acknowledged without work.
func (c *Controller) CommitChunk(ctx context.Context, userID string, req ChunkRequest) (*ChunkResponse, error) {
	if err := validateChunk(req); err != nil {
		return nil, err
	}
	defer c.lockJob(req.JobID)()

	run, err := c.loadRun(ctx, userID, req.JobID)
	if err != nil {
		return nil, err
	}

	offset := req.Offset
	if req.StartAtRow != nil {
		offset = *req.StartAtRow
	}
	logger := slog.With("job_id", run.JobID, "run_id", run.ID, "offset", offset, "limit", req.Limit)

	switch {
	case run.Status == model.RunComplete:
		return c.noWork(run, "import already complete", true), nil
	case !run.IsActive():
		return nil, fmt.Errorf("%w: status %s", ErrRunNotActive, run.Status)
	case run.LeaseExpired(c.now()):
		if finErr := c.store.FinishRun(ctx, run.ID, model.RunFailed, "lease expired", c.now()); finErr != nil {
			logger.Warn("Failed to expire run", "error", finErr)
		}
		return nil, fmt.Errorf("%w: lease expired", ErrRunNotActive)
	case offset < run.LastRowIndex:
		logger.Info("Chunk already processed", "last_row_index", run.LastRowIndex)
		return c.noWork(run, "chunk already processed", false), nil
	case offset > run.LastRowIndex && req.StartAtRow == nil:
		return nil, fmt.Errorf("%w: offset %d skips rows after %d; set startAtRow to skip them",
			common.ErrInvalidRequest, offset, run.LastRowIndex)
	}

	data, err := c.blobs.Get(ctx, run.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load upload: %w", err)
	}

	window, err := sniffer.ReadWindow(data, sniffer.FileType(run.FileType), offset, req.Limit)
	if err != nil {
		reason := fmt.Sprintf("failed to parse file: %v", err)
		return nil, c.reject(ctx, run, reason, &ChunkResponse{Message: reason, Summary: run.Summary, NextOffset: offset}, true)
	}

	if len(window.Rows) == 0 {
		if offset == 0 {
			reason := "file contains no data rows"
			return nil, c.reject(ctx, run, reason, &ChunkResponse{Message: reason, Summary: run.Summary}, true)
		}
		return c.complete(ctx, run, window, logger)
	}

	plan, err := c.plan(run, window.Headers)
	if err != nil {
		return nil, err
	}

	out := plan.process(window.Rows)
	instrument.Annotate(ctx, c.resolver, out.executions)

	var written upsert.Result
	if len(out.executions) > 0 {
		written = c.executor.Execute(ctx, out.executions)
		out.addFailures(written.Failures)
	}

	resp := &ChunkResponse{
		ProcessedRows:  len(window.Rows),
		Added:          written.Inserted,
		Duplicates:     written.Duplicates,
		Errors:         len(out.bad),
		Skipped:        out.skipped,
		NextOffset:     window.NextIndex,
		ProcessedBytes: window.ProcessedBytes,
		TotalBytes:     window.TotalBytes,
	}

	summary := run.Summary
	summary.Total += resp.ProcessedRows
	summary.Added += resp.Added
	summary.Duplicates += resp.Duplicates
	summary.Errors += resp.Errors
	summary.Skipped += resp.Skipped
	summary.ErrorCount = summary.Errors

	if len(out.bad) > 0 {
		if url := c.reporter.Publish(ctx, run.UserID, run.ID, out.bad); url != "" {
			summary.ErrorsCSVURL = url
		}
	}
	resp.Summary = summary
	resp.ErrorsCSVURL = summary.ErrorsCSVURL
	resp.ErrorCount = summary.ErrorCount

	// Every row was rejected: the mapping does not fit this stretch of the
	// file rather than a few rows being noisy. Skipped rows are not rejects.
	allFailed := len(out.bad) > 0 && len(out.bad) == resp.ProcessedRows
	if allFailed {
		resp.ErrorDetails = errreport.Details(out.bad)
		resp.Message = fmt.Sprintf("all %d rows in chunk failed", len(out.bad))
	}

	now := c.now().UTC()
	progress := service.RunProgress{
		FailureReason:  resp.Message,
		Summary:        summary,
		LastRowIndex:   max(run.LastRowIndex, window.NextIndex),
		ProcessedBytes: window.ProcessedBytes,
		TotalBytes:     window.TotalBytes,
		HeartbeatAt:    now,
		LeaseExpiresAt: now.Add(c.opts.LeaseTTL),
	}
	if err := c.store.UpdateRunProgress(ctx, run.ID, progress); err != nil {
		return nil, fmt.Errorf("failed to record progress: %w", err)
	}
	run.Summary = summary
	run.LastRowIndex = progress.LastRowIndex

	// The run stays open for the next chunk unless this was the last one.
	if allFailed {
		return nil, c.reject(ctx, run, resp.Message, resp, window.EOF)
	}

	logger.Info("Chunk committed",
		"rows", resp.ProcessedRows,
		"added", resp.Added,
		"duplicates", resp.Duplicates,
		"errors", resp.Errors,
		"skipped", resp.Skipped)

	if window.EOF {
		return c.finish(ctx, run, resp, logger)
	}
	resp.Message = fmt.Sprintf("processed %d rows", resp.ProcessedRows)
	return resp, nil
}

func (c *Controller) noWork(run *model.ImportRun, message string, complete bool) *ChunkResponse {
	return &ChunkResponse{
		Message:        message,
		Summary:        run.Summary,
		ErrorsCSVURL:   run.Summary.ErrorsCSVURL,
		ErrorCount:     run.Summary.ErrorCount,
		NextOffset:     run.LastRowIndex,
		ProcessedBytes: run.ProcessedBytes,
		TotalBytes:     run.TotalBytes,
		Complete:       complete,
	}
}

// reject reports a hard chunk failure. When final is set the run is marked
// failed; otherwise it stays open and the caller may commit the next chunk.
func (c *Controller) reject(ctx context.Context, run *model.ImportRun, reason string, resp *ChunkResponse, final bool) error {
	logger := slog.With("job_id", run.JobID, "run_id", run.ID)
	logger.Warn("Import chunk failed", "reason", reason, "final", final)

	if final {
		if err := c.store.FinishRun(ctx, run.ID, model.RunFailed, reason, c.now()); err != nil {
			logger.Warn("Failed to mark run failed", "error", err)
		} else {
			c.triggerMatching(ctx, run, logger)
		}
	}
	return &ChunkFailure{Status: http.StatusBadRequest, Reason: reason, Response: resp, RunOpen: !final}
}

// complete handles a window past the last row.
func (c *Controller) complete(ctx context.Context, run *model.ImportRun, window *sniffer.Window, logger *slog.Logger) (*ChunkResponse, error) {
	resp := &ChunkResponse{
		Summary:        run.Summary,
		ErrorsCSVURL:   run.Summary.ErrorsCSVURL,
		ErrorCount:     run.Summary.ErrorCount,
		NextOffset:     max(run.LastRowIndex, window.NextIndex),
		ProcessedBytes: window.TotalBytes,
		TotalBytes:     window.TotalBytes,
	}
	return c.finish(ctx, run, resp, logger)
}

// finish marks the run complete and triggers matching when rows were added.
func (c *Controller) finish(ctx context.Context, run *model.ImportRun, resp *ChunkResponse, logger *slog.Logger) (*ChunkResponse, error) {
	if err := c.store.FinishRun(ctx, run.ID, model.RunComplete, "", c.now()); err != nil {
		return nil, fmt.Errorf("failed to complete run: %w", err)
	}
	resp.Complete = true
	resp.Message = "import complete"

	logger.Info("Import complete",
		"total", run.Summary.Total,
		"added", run.Summary.Added,
		"duplicates", run.Summary.Duplicates,
		"errors", run.Summary.Errors)

	c.triggerMatching(ctx, run, logger)
	return resp, nil
}

// triggerMatching hands a finished run's new executions to the matcher.
func (c *Controller) triggerMatching(ctx context.Context, run *model.ImportRun, logger *slog.Logger) {
	if run.Summary.Added == 0 || c.matcher == nil {
		return
	}
	if err := c.matcher.MatchExecutions(ctx, run.UserID, run.ID); err != nil {
		logger.Warn("Matching trigger failed", "error", err)
	}
}

// plan resolves how rows of this run become fields.
func (c *Controller) plan(run *model.ImportRun, headers []string) (*rowPlan, error) {
	p := &rowPlan{
		ctx: normalize.RowContext{
			UserID:          run.UserID,
			BrokerAccountID: run.BrokerAccountID,
			ImportRunID:     run.ID,
		},
	}

	if run.Mode == model.ModePreset {
		ps, ok := c.presets.Get(run.Source)
		if !ok {
			return nil, fmt.Errorf("%w: unknown preset %q", common.ErrInvalidConfig, run.Source)
		}
		p.preset = ps
		p.normalizer = normalize.New(normalize.Options{Location: c.opts.Location, StrictSide: ps.StrictSide})
		return p, nil
	}

	p.mapping = run.Mapping
	if len(p.mapping) == 0 {
		p.mapping = mapping.AutoMap(headers)
	}
	p.normalizer = normalize.New(normalize.Options{Location: c.opts.Location})
	return p, nil
}
