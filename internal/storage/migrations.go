package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries []string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query '%s': %w", query, err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`CREATE TABLE IF NOT EXISTS import_runs (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					job_id TEXT NOT NULL,
					status TEXT NOT NULL CHECK (status IN ('processing', 'complete', 'failed')),
					source TEXT NOT NULL DEFAULT 'csv',
					mode TEXT NOT NULL DEFAULT 'preset',
					mapping TEXT,
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
					processed_bytes INTEGER NOT NULL DEFAULT 0,
					total_bytes INTEGER NOT NULL DEFAULT 0,
					created_at TEXT NOT NULL,
					updated_at TEXT NOT NULL,
					finished_at TEXT
				)`,
				`CREATE UNIQUE INDEX idx_import_runs_job ON import_runs(user_id, job_id)`,
				`CREATE INDEX idx_import_runs_user_status ON import_runs(user_id, status, created_at)`,

				`CREATE TABLE IF NOT EXISTS instruments (
					id TEXT PRIMARY KEY,
					symbol TEXT NOT NULL,
					type TEXT NOT NULL,
					created_at TEXT NOT NULL,
					UNIQUE (symbol, type)
				)`,

				`CREATE TABLE IF NOT EXISTS executions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					broker_account_id TEXT,
					import_run_id TEXT REFERENCES import_runs(id),
					instrument_id TEXT REFERENCES instruments(id),
					timestamp TEXT NOT NULL,
					symbol TEXT NOT NULL CHECK (symbol <> ''),
					side TEXT NOT NULL CHECK (side IN ('buy', 'sell')),
					quantity TEXT NOT NULL,
					price TEXT NOT NULL,
					fees TEXT NOT NULL DEFAULT '0',
					currency TEXT,
					venue TEXT,
					order_id TEXT,
					exec_id TEXT,
					instrument_type TEXT NOT NULL DEFAULT 'equity',
					expiry TEXT,
					strike TEXT,
					option_type TEXT,
					multiplier TEXT,
					underlying TEXT,
					line_number INTEGER,
					unique_hash TEXT NOT NULL,
					created_at TEXT NOT NULL,
					UNIQUE (user_id, unique_hash)
				)`,
				`CREATE INDEX idx_executions_run ON executions(import_run_id)`,
				`CREATE INDEX idx_executions_user_symbol ON executions(user_id, symbol, timestamp)`,
			})
		},
	},
	{
		Version:     2,
		Description: "Add run leases",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`ALTER TABLE import_runs ADD COLUMN heartbeat_at TEXT`,
				`ALTER TABLE import_runs ADD COLUMN lease_expires_at TEXT`,
				`CREATE INDEX idx_import_runs_lease ON import_runs(status, lease_expires_at)`,
			})
		},
	},
	{
		Version:     3,
		Description: "Add position effect to executions",
		Up: func(tx *sql.Tx) error {
			return execAll(tx, []string{
				`ALTER TABLE executions ADD COLUMN effect TEXT NOT NULL DEFAULT ''`,
			})
		},
	},
}

// SchemaVersion reports the applied schema version.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var v int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return v, nil
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	// Get current version
	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	// Apply migrations
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		// Update version
		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	// Verify we're at the expected schema version
	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
