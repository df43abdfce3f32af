package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/the-trades-must-flow/internal/blob"
	"github.com/Veraticus/the-trades-must-flow/internal/config"
	"github.com/Veraticus/the-trades-must-flow/internal/ingest"
	"github.com/Veraticus/the-trades-must-flow/internal/instrument"
	"github.com/Veraticus/the-trades-must-flow/internal/matching"
	"github.com/Veraticus/the-trades-must-flow/internal/service"
	"github.com/Veraticus/the-trades-must-flow/internal/storage"
)

// TRADES_IMPORT_CHUNK_SIZE maps onto import.chunk_size.
var envKeyReplacer = strings.NewReplacer(".", "_")

// migrator is the schema surface both stores share.
type migrator interface {
	service.Storage
	SchemaVersion(ctx context.Context) (int, error)
}

// openStore connects the configured database without migrating it.
func openStore(ctx context.Context) (migrator, *config.DatabaseConfig, error) {
	cfg, err := config.LoadDatabaseConfig()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Driver {
	case config.DriverPostgres:
		store, err := storage.NewPostgresStorage(ctx, cfg.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return store, cfg, nil
	default:
		store, err := storage.NewSQLiteStorage(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		return store, cfg, nil
	}
}

// initStorage opens the configured database and applies migrations.
func initStorage(ctx context.Context) (service.Storage, error) {
	store, _, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initBlobs opens the configured blob store. The local store is also
// returned so the server can serve its signed links.
func initBlobs() (service.BlobStore, *blob.LocalStore, error) {
	cfg, err := config.LoadStorageConfig()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Driver {
	case config.DriverSupabase:
		store, err := blob.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.Bucket)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create supabase store: %w", err)
		}
		return store, nil, nil
	default:
		secret := cfg.SigningSecret
		if secret == "" {
			// Links minted without a secret only verify within this process.
			secret = "trades-local"
			slog.Debug("No signing secret configured for local blobs")
		}
		store, err := blob.NewLocalStore(cfg.Path, cfg.PublicURL, secret)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create local store: %w", err)
		}
		return store, store, nil
	}
}

// app bundles everything a command needs to drive imports.
type app struct {
	store  service.Storage
	files  *blob.LocalStore
	ctrl   *ingest.Controller
	config *config.ImportConfig
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		slog.Warn("Failed to close storage", "error", err)
	}
}

// newApp wires storage, blobs and the ingest controller from config.
func newApp(ctx context.Context) (*app, error) {
	importCfg, err := config.LoadImportConfig()
	if err != nil {
		return nil, err
	}

	blobs, files, err := initBlobs()
	if err != nil {
		return nil, err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return nil, err
	}

	matchCfg := config.LoadMatchingConfig()
	matcher := matching.New(matchCfg.WebhookURL, matchCfg.Token)
	ctrl := ingest.New(ingest.Deps{
		Storage:  store,
		Blobs:    blobs,
		Matcher:  matcher,
		Resolver: instrument.NewResolver(store, instrument.DefaultTTL),
	}, importCfg.IngestOptions())

	return &app{store: store, files: files, ctrl: ctrl, config: importCfg}, nil
}
