package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/the-trades-must-flow/internal/common"
	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/service"
)

func TestClassifyPostgres(t *testing.T) {
	tests := map[string]error{
		"23505": common.ErrDuplicateEntry,
		"23514": common.ErrConstraint,
		"23503": common.ErrConstraint,
		"42501": common.ErrPermissionDenied,
		"28P01": common.ErrPermissionDenied,
		"40001": common.ErrTransient,
		"40P01": common.ErrTransient,
		"53300": common.ErrTransient,
		"57P03": common.ErrTransient,
		"08006": common.ErrTransient,
		"22P02": common.ErrConstraint,
	}
	for code, want := range tests {
		t.Run(code, func(t *testing.T) {
			assert.ErrorIs(t, classifyPostgres(&pgconn.PgError{Code: code}), want)
		})
	}

	plain := errors.New("plain")
	assert.Equal(t, plain, classifyPostgres(plain))
	assert.NoError(t, classifyPostgres(nil))
}

// TestPostgresStorage runs against a real database when TRADES_TEST_DATABASE_URL is set.
func TestPostgresStorage(t *testing.T) {
	dsn := os.Getenv("TRADES_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TRADES_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	store, err := NewPostgresStorage(ctx, dsn)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	require.NoError(t, store.Migrate(ctx))

	userID := "pg-" + uuid.NewString()
	run := &model.ImportRun{
		ID:             uuid.NewString(),
		UserID:         userID,
		JobID:          uuid.NewString(),
		Status:         model.RunProcessing,
		LeaseExpiresAt: time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.CreateRun(ctx, run))

	executions := createTestExecutions(run.ID, 3)
	for i := range executions {
		executions[i].UserID = userID
	}
	outcome, err := store.InsertExecutions(ctx, executions)
	require.NoError(t, err)
	assert.Equal(t, service.InsertOutcome{Inserted: 3}, outcome)

	outcome, err = store.InsertExecutions(ctx, createTestExecutionsFor(userID, run.ID, 3))
	require.NoError(t, err)
	assert.Equal(t, service.InsertOutcome{Duplicates: 3}, outcome)

	stored, err := store.ListExecutionsByRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	n, err := store.ExpireStaleRuns(ctx, time.Now())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	got, err := store.GetRunByJob(ctx, userID, run.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, got.Status)
}

func createTestExecutionsFor(userID, runID string, count int) []model.Execution {
	out := createTestExecutions(runID, count)
	for i := range out {
		out[i].UserID = userID
	}
	return out
}
