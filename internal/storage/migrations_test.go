package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrations_Ordered(t *testing.T) {
	require.Len(t, migrations, ExpectedSchemaVersion)
	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, m.Description)
		assert.NotEmpty(t, m.Description)
	}

	require.Len(t, pgMigrations, ExpectedSchemaVersion)
	for i, m := range pgMigrations {
		assert.Equal(t, i+1, m.Version, m.Description)
		assert.NotEmpty(t, m.Statements)
	}
}

func TestMigrations_Indexes(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	for _, name := range []string{
		"idx_import_runs_job",
		"idx_import_runs_user_status",
		"idx_import_runs_lease",
		"idx_executions_run",
		"idx_executions_user_symbol",
	} {
		var count int
		err := store.db.QueryRow(`
			SELECT COUNT(*) FROM sqlite_master
			WHERE type='index' AND name=?
		`, name).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "index %s was not created", name)
	}
}

func TestMigrations_LeaseAndEffectColumns(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	columns := func(table string) map[string]bool {
		rows, err := store.db.Query(`SELECT name FROM pragma_table_info(?)`, table)
		require.NoError(t, err)
		defer func() { _ = rows.Close() }()

		out := make(map[string]bool)
		for rows.Next() {
			var name string
			require.NoError(t, rows.Scan(&name))
			out[name] = true
		}
		require.NoError(t, rows.Err())
		return out
	}

	runs := columns("import_runs")
	assert.True(t, runs["heartbeat_at"])
	assert.True(t, runs["lease_expires_at"])
	assert.True(t, columns("executions")["effect"])
}

func TestMigrations_FreshDatabaseVersion(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	v, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	require.NoError(t, store.Migrate(ctx))
	v, err = store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, v)
}
