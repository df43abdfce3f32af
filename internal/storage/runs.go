package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/the-trades-must-flow/internal/common"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/service"
)

// LeaseExpiredReason is recorded on runs failed by ExpireStaleRuns.
const LeaseExpiredReason = "lease expired"

const runColumns = `id, user_id, job_id, status, source, mode, mapping, file_name, file_type,
	source_path, broker_account_id, failure_reason, total, added, duplicates, errors, skipped,
	error_count, errors_csv_url, last_row_index, processed_bytes, total_bytes, created_at,
	updated_at, finished_at, heartbeat_at, lease_expires_at`

func encodeMapping(m map[model.Field]string) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode mapping: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeMapping(s sql.NullString) (map[model.Field]string, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[model.Field]string
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("failed to decode mapping: %w", err)
	}
	return m, nil
}

// CreateRun inserts a new import run.
func (s *SQLiteStorage) CreateRun(ctx context.Context, run *model.ImportRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(run); err != nil {
		return err
	}

	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = run.CreatedAt
	if run.Source == "" {
		run.Source = model.SourceCSV
	}
	if run.Mode == "" {
		run.Mode = model.ModePreset
	}

	mapping, err := encodeMapping(run.Mapping)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO import_runs (
			id, user_id, job_id, status, source, mode, mapping, file_name, file_type,
			source_path, broker_account_id, total_bytes, created_at, updated_at,
			heartbeat_at, lease_expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.UserID, run.JobID, string(run.Status), run.Source, string(run.Mode), mapping,
		nullString(run.FileName), nullString(run.FileType), nullString(run.SourcePath),
		nullString(run.BrokerAccountID), run.TotalBytes,
		formatTime(run.CreatedAt), formatTime(run.UpdatedAt),
		formatNullTime(run.HeartbeatAt), formatNullTime(run.LeaseExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", classifySQLite(err))
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.ImportRun, error) {
	var (
		run                                    model.ImportRun
		status, mode                           string
		mapping, fileName, fileType            sql.NullString
		sourcePath, brokerAccount, reason, url sql.NullString
		created, updated                       sql.NullString
		finished, heartbeat, lease             sql.NullString
	)
	err := row.Scan(
		&run.ID, &run.UserID, &run.JobID, &status, &run.Source, &mode, &mapping,
		&fileName, &fileType, &sourcePath, &brokerAccount, &reason,
		&run.Summary.Total, &run.Summary.Added, &run.Summary.Duplicates, &run.Summary.Errors,
		&run.Summary.Skipped, &run.Summary.ErrorCount, &url,
		&run.LastRowIndex, &run.ProcessedBytes, &run.TotalBytes,
		&created, &updated, &finished, &heartbeat, &lease,
	)
	if err != nil {
		return nil, err
	}

	run.Status = model.RunStatus(status)
	run.Mode = model.MappingMode(mode)
	run.FileName = fileName.String
	run.FileType = fileType.String
	run.SourcePath = sourcePath.String
	run.BrokerAccountID = brokerAccount.String
	run.FailureReason = reason.String
	run.Summary.ErrorsCSVURL = url.String

	if run.Mapping, err = decodeMapping(mapping); err != nil {
		return nil, err
	}
	if run.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if run.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if run.HeartbeatAt, err = parseTime(heartbeat); err != nil {
		return nil, err
	}
	if run.LeaseExpiresAt, err = parseTime(lease); err != nil {
		return nil, err
	}
	if finished.Valid {
		at, parseErr := parseTime(finished)
		if parseErr != nil {
			return nil, parseErr
		}
		run.FinishedAt = &at
	}
	return &run, nil
}

// GetRunByJob returns the run a job token was issued for. Runs belonging to
// other users are never returned.
func (s *SQLiteStorage) GetRunByJob(ctx context.Context, userID, jobID string) (*model.ImportRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(jobID, "jobID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM import_runs WHERE user_id = ? AND job_id = ?`, userID, jobID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run for job %s: %w", jobID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", classifySQLite(err))
	}
	return run, nil
}

// GetActiveRun returns the user's most recent processing run.
func (s *SQLiteStorage) GetActiveRun(ctx context.Context, userID string) (*model.ImportRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM import_runs
		WHERE user_id = ? AND status = ? ORDER BY created_at DESC LIMIT 1`,
		userID, string(model.RunProcessing))
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active run for %s: %w", userID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active run: %w", classifySQLite(err))
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *SQLiteStorage) ListRuns(ctx context.Context, filter service.RunFilter) ([]model.ImportRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + runColumns + ` FROM import_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", classifySQLite(err))
	}
	defer func() { _ = rows.Close() }()

	var runs []model.ImportRun
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan run: %w", scanErr)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// UpdateRunMapping records the mapping mode chosen for a run.
func (s *SQLiteStorage) UpdateRunMapping(ctx context.Context, runID string, mode model.MappingMode, source string, mapping map[model.Field]string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(runID, "runID"); err != nil {
		return err
	}

	encoded, err := encodeMapping(mapping)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_runs SET mode = ?, source = ?, mapping = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(mode), source, encoded, formatTime(time.Now()), runID, string(model.RunProcessing))
	if err != nil {
		return fmt.Errorf("failed to update run mapping: %w", classifySQLite(err))
	}
	return s.requireProcessing(ctx, res, runID)
}

// UpdateRunProgress writes the cumulative summary and cursor after a chunk.
func (s *SQLiteStorage) UpdateRunProgress(ctx context.Context, runID string, p service.RunProgress) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(runID, "runID"); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE import_runs SET
			total = ?, added = ?, duplicates = ?, errors = ?, skipped = ?, error_count = ?,
			errors_csv_url = COALESCE(?, errors_csv_url), failure_reason = ?,
			last_row_index = ?, processed_bytes = ?, total_bytes = ?,
			heartbeat_at = ?, lease_expires_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		p.Summary.Total, p.Summary.Added, p.Summary.Duplicates, p.Summary.Errors,
		p.Summary.Skipped, p.Summary.ErrorCount, nullString(p.Summary.ErrorsCSVURL),
		nullString(p.FailureReason),
		p.LastRowIndex, p.ProcessedBytes, p.TotalBytes,
		formatNullTime(p.HeartbeatAt), formatNullTime(p.LeaseExpiresAt), formatTime(time.Now()),
		runID, string(model.RunProcessing))
	if err != nil {
		return fmt.Errorf("failed to update run progress: %w", classifySQLite(err))
	}
	return s.requireProcessing(ctx, res, runID)
}

// FinishRun moves a processing run to a terminal status. A run that already
// finished is left alone and reported as ErrRunNotActive.
func (s *SQLiteStorage) FinishRun(ctx context.Context, runID string, status model.RunStatus, reason string, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(runID, "runID"); err != nil {
		return err
	}
	if err := validateStatus(status); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE import_runs SET status = ?, failure_reason = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(status), nullString(reason), formatTime(at), formatTime(at), runID, string(model.RunProcessing))
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", classifySQLite(err))
	}
	return s.requireProcessing(ctx, res, runID)
}

// ExpireStaleRuns fails every processing run whose lease ended before now.
func (s *SQLiteStorage) ExpireStaleRuns(ctx context.Context, now time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	stamp := formatTime(now)
	res, err := s.db.ExecContext(ctx, `
		UPDATE import_runs SET status = ?, failure_reason = ?, finished_at = ?, updated_at = ?
		WHERE status = ? AND lease_expires_at IS NOT NULL AND lease_expires_at < ?`,
		string(model.RunFailed), LeaseExpiredReason, stamp, stamp,
		string(model.RunProcessing), stamp)
	if err != nil {
		return 0, fmt.Errorf("failed to expire runs: %w", classifySQLite(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count expired runs: %w", err)
	}
	return int(n), nil
}

// requireProcessing explains an update guarded on processing status that
// matched nothing: the run is either missing or no longer processing.
func (s *SQLiteStorage) requireProcessing(ctx context.Context, res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM import_runs WHERE id = ?`, runID).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("run %s: %w", runID, common.ErrNotFound)
	case err != nil:
		return fmt.Errorf("failed to get run status: %w", classifySQLite(err))
	}
	return fmt.Errorf("run %s: %w: status %s", runID, common.ErrRunNotActive, status)
}
