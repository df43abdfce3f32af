// Package testutil provides shared test environments for the import pipeline:
// an in-memory store with migrations applied and a blob store rooted in the
// test's temporary directory.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/the-trades-must-flow/internal/blob"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/service"
	"github.com/Veraticus/the-trades-must-flow/internal/storage"
)

// TestDB bundles the stores an import needs.
type TestDB struct {
	Storage *storage.SQLiteStorage
	Blobs   *blob.LocalStore
	t       *testing.T
}

// SetupTestDB creates a migrated in-memory database and a local blob store.
// Both are cleaned up when the test ends.
//
// Example:
//
//	db := testutil.SetupTestDB(t)
//	ctrl := ingest.New(ingest.Deps{Storage: db.Storage, Blobs: db.Blobs}, ingest.Options{})
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup func(context.Context, service.Storage) error
	// SignedURLBase makes the blob store return HMAC signed links under this
	// base instead of file URLs.
	SignedURLBase  string
	SkipMigrations bool
}

// SetupTestDBWithOptions creates a test database with custom options.
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	ctx := context.Background()

	if !opts.SkipMigrations {
		if err := store.Migrate(ctx); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	blobs, err := blob.NewLocalStore(t.TempDir(), opts.SignedURLBase, "test-secret")
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return &TestDB{
		Storage: store,
		Blobs:   blobs,
		t:       t,
	}
}

// MustGetRun loads a run by job token or fails the test.
func (db *TestDB) MustGetRun(userID, jobID string) *model.ImportRun {
	db.t.Helper()
	run, err := db.Storage.GetRunByJob(context.Background(), userID, jobID)
	if err != nil {
		db.t.Fatalf("failed to load run %s: %v", jobID, err)
	}
	return run
}

// MustCountExecutions counts a user's stored executions or fails the test.
func (db *TestDB) MustCountExecutions(userID string) int {
	db.t.Helper()
	n, err := db.Storage.CountExecutions(context.Background(), userID)
	if err != nil {
		db.t.Fatalf("failed to count executions: %v", err)
	}
	return n
}

// MustReadBlob reads a stored blob or fails the test.
func (db *TestDB) MustReadBlob(key string) []byte {
	db.t.Helper()
	data, err := db.Blobs.Get(context.Background(), key)
	if err != nil {
		db.t.Fatalf("failed to read blob %s: %v", key, err)
	}
	return data
}
