package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-trades-must-flow/internal/config"
	"github.com/Veraticus/the-trades-must-flow/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Initialize or update the database schema to the latest version.

Works against the configured database.driver: the embedded SQLite file
or a Postgres database at database.url.`,
		RunE: runMigrate,
	}

	// Flags
	cmd.Flags().Bool("status", false, "Show current migration status without applying changes")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	status, _ := cmd.Flags().GetBool("status")
	ctx := cmd.Context()

	store, cfg, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	target := cfg.Path
	if cfg.Driver != config.DriverSQLite {
		target = cfg.Driver
	}

	current, err := store.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	if status {
		slog.Info("📊 Database Migration Status")
		slog.Info("Database", "driver", cfg.Driver, "target", target)
		slog.Info("Schema version",
			"current", current,
			"latest", storage.ExpectedSchemaVersion)
		if current < storage.ExpectedSchemaVersion {
			slog.Warn("Migrations pending", "count", storage.ExpectedSchemaVersion-current)
		}
		return nil
	}

	slog.Info("🗄️  Running database migrations...",
		"driver", cfg.Driver,
		"target", target,
		"from_version", current)

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("✅ Database migrations completed successfully!", "version", storage.ExpectedSchemaVersion)

	return nil
}
