package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-trades-must-flow/internal/common"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/service"
)

// PostgresStorage implements the Storage interface on a pgx connection pool.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to the database at dsn.
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	if err := validateString(dsn, "dsn"); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: database.url: %w", common.ErrInvalidConfig, err)
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", classifyPostgres(err))
	}
	return &PostgresStorage{pool: pool}, nil
}

// Close releases the pool.
func (p *PostgresStorage) Close() error {
	p.pool.Close()
	return nil
}

// classifyPostgres maps SQLSTATE codes onto the common error taxonomy.
func classifyPostgres(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		if pgconn.Timeout(err) {
			return fmt.Errorf("%w: %w", common.ErrTransient, err)
		}
		return err
	}

	code := pgErr.Code
	switch {
	case code == "23505":
		return fmt.Errorf("%w: %w", common.ErrDuplicateEntry, err)
	case strings.HasPrefix(code, "23"):
		return fmt.Errorf("%w: %w", common.ErrConstraint, err)
	case code == "42501", strings.HasPrefix(code, "28"):
		return fmt.Errorf("%w: %w", common.ErrPermissionDenied, err)
	case code == "40001", code == "40P01", code == "57P03",
		strings.HasPrefix(code, "53"), strings.HasPrefix(code, "08"):
		return fmt.Errorf("%w: %w", common.ErrTransient, err)
	case code == "22P02", code == "22003":
		return fmt.Errorf("%w: %w", common.ErrConstraint, err)
	default:
		return err
	}
}

// pgMigration is one step of the Postgres schema.
type pgMigration struct {
	Description string
	Statements  []string
	Version     int
}

var pgMigrations = []pgMigration{
	{
		Version:     1,
		Description: "Initial schema",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS import_runs (
				id UUID PRIMARY KEY,
				user_id TEXT NOT NULL,
				job_id TEXT NOT NULL,
				status TEXT NOT NULL CHECK (status IN ('processing', 'complete', 'failed')),
				source TEXT NOT NULL DEFAULT 'csv',
				mode TEXT NOT NULL DEFAULT 'preset',
				mapping JSONB,
				file_name TEXT,
				file_type TEXT,
				source_path TEXT,
				broker_account_id TEXT,
				failure_reason TEXT,
				total INTEGER NOT NULL DEFAULT 0,
				added INTEGER NOT NULL DEFAULT 0,
				duplicates INTEGER NOT NULL DEFAULT 0,
				errors INTEGER NOT NULL DEFAULT 0,
				skipped INTEGER NOT NULL DEFAULT 0,
				error_count INTEGER NOT NULL DEFAULT 0,
				errors_csv_url TEXT,
				last_row_index INTEGER NOT NULL DEFAULT 0,
				processed_bytes BIGINT NOT NULL DEFAULT 0,
				total_bytes BIGINT NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL,
				finished_at TIMESTAMPTZ,
				UNIQUE (user_id, job_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_import_runs_user_status ON import_runs(user_id, status, created_at)`,
			`CREATE TABLE IF NOT EXISTS instruments (
				id UUID PRIMARY KEY,
				symbol TEXT NOT NULL,
				type TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				UNIQUE (symbol, type)
			)`,
			`CREATE TABLE IF NOT EXISTS executions (
				id UUID PRIMARY KEY,
				user_id TEXT NOT NULL,
				broker_account_id TEXT,
				import_run_id UUID REFERENCES import_runs(id),
				instrument_id UUID REFERENCES instruments(id),
				timestamp TIMESTAMPTZ NOT NULL,
				symbol TEXT NOT NULL CHECK (symbol <> ''),
				side TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
				quantity NUMERIC NOT NULL CHECK (quantity <> 0),
				price NUMERIC NOT NULL CHECK (price >= 0),
				fees NUMERIC NOT NULL DEFAULT 0,
				currency TEXT,
				venue TEXT,
				order_id TEXT,
				exec_id TEXT,
				instrument_type TEXT NOT NULL DEFAULT 'equity',
				expiry DATE,
				strike NUMERIC,
				option_type TEXT,
				multiplier NUMERIC,
				underlying TEXT,
				line_number INTEGER,
				unique_hash TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				UNIQUE (user_id, unique_hash)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_executions_run ON executions(import_run_id)`,
			`CREATE INDEX IF NOT EXISTS idx_executions_user_symbol ON executions(user_id, symbol, timestamp)`,
		},
	},
	{
		Version:     2,
		Description: "Add run leases",
		Statements: []string{
			`ALTER TABLE import_runs ADD COLUMN IF NOT EXISTS heartbeat_at TIMESTAMPTZ`,
			`ALTER TABLE import_runs ADD COLUMN IF NOT EXISTS lease_expires_at TIMESTAMPTZ`,
			`CREATE INDEX IF NOT EXISTS idx_import_runs_lease ON import_runs(status, lease_expires_at)`,
		},
	},
	{
		Version:     3,
		Description: "Add position effect to executions",
		Statements: []string{
			`ALTER TABLE executions ADD COLUMN IF NOT EXISTS effect TEXT NOT NULL DEFAULT ''`,
		},
	},
}

// Migrate applies all pending schema migrations.
func (p *PostgresStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := p.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", classifyPostgres(err))
	}

	var current int
	if err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to get schema version: %w", classifyPostgres(err))
	}

	for _, m := range pgMigrations {
		if m.Version <= current {
			continue
		}
		err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
			for _, stmt := range m.Statements {
				if _, err := tx.Exec(ctx, stmt); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", stmt, err)
				}
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d failed: %w", m.Version, classifyPostgres(err))
		}
		slog.Info("Applied migration",
			"version", m.Version,
			"description", m.Description)
	}

	var final int
	if err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&final); err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", classifyPostgres(err))
	}
	if final != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, final)
	}
	return nil
}

// SchemaVersion reports the applied schema version, zero before the first
// migration.
func (p *PostgresStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var v int
	err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&v)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", classifyPostgres(err))
	}
	return v, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func mappingArg(m map[model.Field]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode mapping: %w", err)
	}
	return string(data), nil
}

// CreateRun inserts a new import run.
func (p *PostgresStorage) CreateRun(ctx context.Context, run *model.ImportRun) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(run); err != nil {
		return err
	}

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	run.UpdatedAt = run.CreatedAt
	if run.Source == "" {
		run.Source = model.SourceCSV
	}
	if run.Mode == "" {
		run.Mode = model.ModePreset
	}
	mapping, err := mappingArg(run.Mapping)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO import_runs (
			id, user_id, job_id, status, source, mode, mapping, file_name, file_type,
			source_path, broker_account_id, total_bytes, created_at, updated_at,
			heartbeat_at, lease_expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		run.ID, run.UserID, run.JobID, string(run.Status), run.Source, string(run.Mode), mapping,
		nullable(run.FileName), nullable(run.FileType), nullable(run.SourcePath),
		nullable(run.BrokerAccountID), run.TotalBytes, run.CreatedAt.UTC(), run.UpdatedAt.UTC(),
		nullableTime(run.HeartbeatAt), nullableTime(run.LeaseExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", classifyPostgres(err))
	}
	return nil
}

const pgRunColumns = `id::text, user_id, job_id, status, source, mode, mapping::text, file_name, file_type,
	source_path, broker_account_id, failure_reason, total, added, duplicates, errors, skipped,
	error_count, errors_csv_url, last_row_index, processed_bytes, total_bytes, created_at,
	updated_at, finished_at, heartbeat_at, lease_expires_at`

func scanPgRun(row pgx.Row) (*model.ImportRun, error) {
	var (
		run                                model.ImportRun
		status, mode                       string
		mapping, fileName, fileType        *string
		sourcePath, broker, reason, csvURL *string
		finished, heartbeat, lease         *time.Time
	)
	err := row.Scan(
		&run.ID, &run.UserID, &run.JobID, &status, &run.Source, &mode, &mapping,
		&fileName, &fileType, &sourcePath, &broker, &reason,
		&run.Summary.Total, &run.Summary.Added, &run.Summary.Duplicates, &run.Summary.Errors,
		&run.Summary.Skipped, &run.Summary.ErrorCount, &csvURL,
		&run.LastRowIndex, &run.ProcessedBytes, &run.TotalBytes,
		&run.CreatedAt, &run.UpdatedAt, &finished, &heartbeat, &lease,
	)
	if err != nil {
		return nil, err
	}

	run.Status = model.RunStatus(status)
	run.Mode = model.MappingMode(mode)
	run.FileName = deref(fileName)
	run.FileType = deref(fileType)
	run.SourcePath = deref(sourcePath)
	run.BrokerAccountID = deref(broker)
	run.FailureReason = deref(reason)
	run.Summary.ErrorsCSVURL = deref(csvURL)
	run.FinishedAt = finished
	if heartbeat != nil {
		run.HeartbeatAt = *heartbeat
	}
	if lease != nil {
		run.LeaseExpiresAt = *lease
	}
	if mapping != nil && *mapping != "" {
		if err := json.Unmarshal([]byte(*mapping), &run.Mapping); err != nil {
			return nil, fmt.Errorf("failed to decode mapping: %w", err)
		}
	}
	return &run, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// GetRunByJob returns the run a job token was issued for.
func (p *PostgresStorage) GetRunByJob(ctx context.Context, userID, jobID string) (*model.ImportRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(jobID, "jobID"); err != nil {
		return nil, err
	}

	run, err := scanPgRun(p.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM import_runs WHERE user_id = $1 AND job_id = $2`, userID, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run for job %s: %w", jobID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", classifyPostgres(err))
	}
	return run, nil
}

// GetActiveRun returns the user's most recent processing run.
func (p *PostgresStorage) GetActiveRun(ctx context.Context, userID string) (*model.ImportRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	run, err := scanPgRun(p.pool.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM import_runs
		WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`,
		userID, string(model.RunProcessing)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("active run for %s: %w", userID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active run: %w", classifyPostgres(err))
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (p *PostgresStorage) ListRuns(ctx context.Context, filter service.RunFilter) ([]model.ImportRun, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `SELECT ` + pgRunColumns + ` FROM import_runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", classifyPostgres(err))
	}
	defer rows.Close()

	var runs []model.ImportRun
	for rows.Next() {
		run, scanErr := scanPgRun(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan run: %w", scanErr)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// requireProcessing explains an update guarded on processing status that
// matched nothing.
func (p *PostgresStorage) requireProcessing(ctx context.Context, tag pgconn.CommandTag, runID string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	err := p.pool.QueryRow(ctx, `SELECT status FROM import_runs WHERE id = $1`, runID).Scan(&status)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return fmt.Errorf("run %s: %w", runID, common.ErrNotFound)
	case err != nil:
		return fmt.Errorf("failed to get run status: %w", classifyPostgres(err))
	}
	return fmt.Errorf("run %s: %w: status %s", runID, common.ErrRunNotActive, status)
}

// UpdateRunMapping records the mapping mode chosen for a run.
func (p *PostgresStorage) UpdateRunMapping(ctx context.Context, runID string, mode model.MappingMode, source string, mapping map[model.Field]string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(runID, "runID"); err != nil {
		return err
	}
	encoded, err := mappingArg(mapping)
	if err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE import_runs SET mode = $1, source = $2, mapping = $3::jsonb, updated_at = now()
		WHERE id = $4 AND status = $5`, string(mode), source, encoded, runID, string(model.RunProcessing))
	if err != nil {
		return fmt.Errorf("failed to update run mapping: %w", classifyPostgres(err))
	}
	return p.requireProcessing(ctx, tag, runID)
}

// UpdateRunProgress writes the cumulative summary and cursor after a chunk.
func (p *PostgresStorage) UpdateRunProgress(ctx context.Context, runID string, prog service.RunProgress) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(runID, "runID"); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE import_runs SET
			total = $1, added = $2, duplicates = $3, errors = $4, skipped = $5, error_count = $6,
			errors_csv_url = COALESCE($7, errors_csv_url), failure_reason = $8,
			last_row_index = $9, processed_bytes = $10, total_bytes = $11,
			heartbeat_at = $12, lease_expires_at = $13, updated_at = now()
		WHERE id = $14 AND status = $15`,
		prog.Summary.Total, prog.Summary.Added, prog.Summary.Duplicates, prog.Summary.Errors,
		prog.Summary.Skipped, prog.Summary.ErrorCount, nullable(prog.Summary.ErrorsCSVURL),
		nullable(prog.FailureReason),
		prog.LastRowIndex, prog.ProcessedBytes, prog.TotalBytes,
		nullableTime(prog.HeartbeatAt), nullableTime(prog.LeaseExpiresAt), runID,
		string(model.RunProcessing))
	if err != nil {
		return fmt.Errorf("failed to update run progress: %w", classifyPostgres(err))
	}
	return p.requireProcessing(ctx, tag, runID)
}

// FinishRun moves a processing run to a terminal status.
func (p *PostgresStorage) FinishRun(ctx context.Context, runID string, status model.RunStatus, reason string, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(runID, "runID"); err != nil {
		return err
	}
	if err := validateStatus(status); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE import_runs SET status = $1, failure_reason = $2, finished_at = $3, updated_at = $3
		WHERE id = $4 AND status = $5`, string(status), nullable(reason), at.UTC(), runID, string(model.RunProcessing))
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", classifyPostgres(err))
	}
	return p.requireProcessing(ctx, tag, runID)
}

// ExpireStaleRuns fails every processing run whose lease ended before now.
func (p *PostgresStorage) ExpireStaleRuns(ctx context.Context, now time.Time) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	tag, err := p.pool.Exec(ctx, `
		UPDATE import_runs SET status = $1, failure_reason = $2, finished_at = $3, updated_at = $3
		WHERE status = $4 AND lease_expires_at IS NOT NULL AND lease_expires_at < $3`,
		string(model.RunFailed), LeaseExpiredReason, now.UTC(), string(model.RunProcessing))
	if err != nil {
		return 0, fmt.Errorf("failed to expire runs: %w", classifyPostgres(err))
	}
	return int(tag.RowsAffected()), nil
}

const pgInsertExecution = `
	INSERT INTO executions (
		id, user_id, broker_account_id, import_run_id, instrument_id, timestamp, symbol,
		side, effect, quantity, price, fees, currency, venue, order_id, exec_id,
		instrument_type, expiry, strike, option_type, multiplier, underlying,
		line_number, unique_hash
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11::numeric, $12::numeric,
		$13, $14, $15, $16, $17, $18::date, $19::numeric, $20, $21::numeric, $22, $23, $24)
	ON CONFLICT (user_id, unique_hash) DO NOTHING`

// InsertExecutions queues every row in one batch inside a transaction.
// Conflicting hashes are counted as duplicates; any other failure rolls the
// whole call back.
func (p *PostgresStorage) InsertExecutions(ctx context.Context, executions []model.Execution) (service.InsertOutcome, error) {
	var outcome service.InsertOutcome
	if err := validateContext(ctx); err != nil {
		return outcome, err
	}
	if len(executions) == 0 {
		return outcome, nil
	}

	batch := &pgx.Batch{}
	for i := range executions {
		e := &executions[i]
		if err := validateExecution(e); err != nil {
			return outcome, fmt.Errorf("execution at line %d: %w", e.LineNumber, err)
		}
		var strike, mult any
		if e.Strike.Valid {
			strike = e.Strike.Decimal.String()
		}
		if !e.Multiplier.IsZero() {
			mult = e.Multiplier.String()
		}
		batch.Queue(pgInsertExecution,
			e.ID, e.UserID, nullable(e.BrokerAccountID), nullable(e.ImportRunID),
			nullable(e.InstrumentID), e.Timestamp.UTC(), e.Symbol,
			string(e.Side), string(e.Effect), e.Quantity.String(), e.Price.String(), e.Fees.String(),
			nullable(e.Currency), nullable(e.Venue), nullable(e.OrderID), nullable(e.ExecID),
			string(e.InstrumentType), nullable(e.Expiry), strike, nullable(string(e.OptionType)),
			mult, nullable(e.Underlying), e.LineNumber, authoritativeHash(e),
		)
	}

	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for i := range executions {
			tag, execErr := br.Exec()
			if execErr != nil {
				_ = br.Close()
				return fmt.Errorf("failed to insert execution at line %d: %w", executions[i].LineNumber, execErr)
			}
			if tag.RowsAffected() == 0 {
				outcome.Duplicates++
			} else {
				outcome.Inserted++
			}
		}
		return br.Close()
	})
	if err != nil {
		return service.InsertOutcome{}, classifyPostgres(err)
	}
	return outcome, nil
}

// CountExecutions returns how many executions a user has stored.
func (p *PostgresStorage) CountExecutions(ctx context.Context, userID string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var count int
	if err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM executions WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count executions: %w", classifyPostgres(err))
	}
	return count, nil
}

// ListExecutionsByRun returns the executions a run added, in file order.
func (p *PostgresStorage) ListExecutionsByRun(ctx context.Context, runID string) ([]model.Execution, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(runID, "runID"); err != nil {
		return nil, err
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id::text, user_id, broker_account_id, import_run_id::text, instrument_id::text,
			timestamp, symbol, side, effect, quantity::text, price::text, fees::text, currency,
			venue, order_id, exec_id, instrument_type, to_char(expiry, 'YYYY-MM-DD'), strike::text,
			option_type, multiplier::text, underlying, line_number, unique_hash
		FROM executions WHERE import_run_id = $1 ORDER BY line_number, timestamp`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", classifyPostgres(err))
	}
	defer rows.Close()

	var out []model.Execution
	for rows.Next() {
		var (
			e                                        model.Execution
			side, effect, kind                       string
			quantity, price, fees                    string
			broker, run, instrument                  *string
			currency, venue, orderID, execID, expiry *string
			strike, optionType, mult, underlying     *string
			line                                     *int32
		)
		if err := rows.Scan(
			&e.ID, &e.UserID, &broker, &run, &instrument, &e.Timestamp, &e.Symbol,
			&side, &effect, &quantity, &price, &fees, &currency, &venue, &orderID, &execID,
			&kind, &expiry, &strike, &optionType, &mult, &underlying, &line, &e.UniqueHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		e.Quantity = decimal.RequireFromString(quantity)
		e.Price = decimal.RequireFromString(price)
		e.Fees = decimal.RequireFromString(fees)
		if strike != nil {
			e.Strike = decimal.NewNullDecimal(decimal.RequireFromString(*strike))
		}
		if mult != nil {
			e.Multiplier = decimal.RequireFromString(*mult)
		}
		if line != nil {
			e.LineNumber = int(*line)
		}
		e.Timestamp = e.Timestamp.UTC()
		e.BrokerAccountID = deref(broker)
		e.ImportRunID = deref(run)
		e.InstrumentID = deref(instrument)
		e.Side = model.Side(side)
		e.Effect = model.Effect(effect)
		e.InstrumentType = model.InstrumentType(kind)
		e.Currency = deref(currency)
		e.Venue = deref(venue)
		e.OrderID = deref(orderID)
		e.ExecID = deref(execID)
		e.Expiry = deref(expiry)
		e.OptionType = model.OptionType(deref(optionType))
		e.Underlying = deref(underlying)
		out = append(out, e)
	}
	return out, rows.Err()
}

// FindOrCreateInstrument returns the instrument for symbol and kind,
// creating it on first sight.
func (p *PostgresStorage) FindOrCreateInstrument(ctx context.Context, symbol string, kind model.InstrumentType) (*model.Instrument, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if err := validateString(symbol, "symbol"); err != nil {
		return nil, err
	}
	if kind == "" {
		kind = model.InstrumentEquity
	}

	inst := &model.Instrument{Symbol: symbol, Type: kind}
	err := p.pool.QueryRow(ctx, `
		WITH ins AS (
			INSERT INTO instruments (id, symbol, type, created_at) VALUES ($1, $2, $3, now())
			ON CONFLICT (symbol, type) DO NOTHING
			RETURNING id, created_at
		)
		SELECT id::text, created_at FROM ins
		UNION ALL
		SELECT id::text, created_at FROM instruments WHERE symbol = $2 AND type = $3
		LIMIT 1`,
		uuid.NewString(), symbol, string(kind)).Scan(&inst.ID, &inst.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create instrument: %w", classifyPostgres(err))
	}
	return inst, nil
}
