package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/the-trades-must-flow/internal/model"
	"github.com/Veraticus/the-trades-must-flow/internal/service"
)

// TestStorageValidation tests that validation is applied at the storage layer.
func TestStorageValidation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	t.Run("nil context validation", func(t *testing.T) {
		// These tests intentionally pass nil to verify validation
		run := &model.ImportRun{ID: "r1", UserID: "u1", JobID: "j1", Status: model.RunProcessing}

		if err := store.CreateRun(nil, run); err == nil || !strings.Contains(err.Error(), "context cannot be nil") { //nolint:staticcheck
			t.Errorf("CreateRun should fail with nil context, got: %v", err)
		}

		if _, err := store.GetRunByJob(nil, "u1", "j1"); err == nil || !strings.Contains(err.Error(), "context cannot be nil") { //nolint:staticcheck
			t.Errorf("GetRunByJob should fail with nil context, got: %v", err)
		}

		if _, err := store.ListRuns(nil, service.RunFilter{}); err == nil || !strings.Contains(err.Error(), "context cannot be nil") { //nolint:staticcheck
			t.Errorf("ListRuns should fail with nil context, got: %v", err)
		}

		if _, err := store.InsertExecutions(nil, nil); err == nil || !strings.Contains(err.Error(), "context cannot be nil") { //nolint:staticcheck
			t.Errorf("InsertExecutions should fail with nil context, got: %v", err)
		}

		if _, err := store.ExpireStaleRuns(nil, time.Now()); err == nil || !strings.Contains(err.Error(), "context cannot be nil") { //nolint:staticcheck
			t.Errorf("ExpireStaleRuns should fail with nil context, got: %v", err)
		}

		if err := store.Migrate(nil); err == nil || !strings.Contains(err.Error(), "context cannot be nil") { //nolint:staticcheck
			t.Errorf("Migrate should fail with nil context, got: %v", err)
		}

		if _, err := store.SchemaVersion(nil); err == nil || !strings.Contains(err.Error(), "context cannot be nil") { //nolint:staticcheck
			t.Errorf("SchemaVersion should fail with nil context, got: %v", err)
		}
	})

	t.Run("empty string validation", func(t *testing.T) {
		ctx := context.Background()

		if _, err := store.GetRunByJob(ctx, "", "j1"); err == nil || !strings.Contains(err.Error(), "string parameter cannot be empty") {
			t.Errorf("GetRunByJob should fail with empty userID, got: %v", err)
		}

		if _, err := store.GetActiveRun(ctx, "   "); err == nil || !strings.Contains(err.Error(), "string parameter cannot be empty") {
			t.Errorf("GetActiveRun should fail with whitespace userID, got: %v", err)
		}

		if err := store.FinishRun(ctx, "", model.RunComplete, "", time.Now()); err == nil || !strings.Contains(err.Error(), "string parameter cannot be empty") {
			t.Errorf("FinishRun should fail with empty runID, got: %v", err)
		}

		if _, err := store.FindOrCreateInstrument(ctx, " ", model.InstrumentEquity); err == nil || !strings.Contains(err.Error(), "string parameter cannot be empty") {
			t.Errorf("FindOrCreateInstrument should fail with empty symbol, got: %v", err)
		}
	})

	t.Run("nil parameter validation", func(t *testing.T) {
		ctx := context.Background()

		if err := store.CreateRun(ctx, nil); err == nil || !strings.Contains(err.Error(), "parameter cannot be nil") {
			t.Errorf("CreateRun should fail with nil run, got: %v", err)
		}
	})

	t.Run("invalid status validation", func(t *testing.T) {
		ctx := context.Background()

		if err := store.FinishRun(ctx, "r1", "paused", "", time.Now()); err == nil || !strings.Contains(err.Error(), "invalid run status") {
			t.Errorf("FinishRun should fail with unknown status, got: %v", err)
		}
	})
}

// TestExecutionValidation tests that a batch with one invalid execution writes nothing.
func TestExecutionValidation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	run := createTestRun(t, store, "u1", "job-1")
	executions := createTestExecutions(run.ID, 3)
	executions[2].UserID = ""

	if _, err := store.InsertExecutions(ctx, executions); err == nil || !strings.Contains(err.Error(), "missing user ID") {
		t.Fatalf("InsertExecutions should reject an execution without a user, got: %v", err)
	}

	n, err := store.CountExecutions(ctx, "u1")
	if err != nil {
		t.Fatalf("CountExecutions failed: %v", err)
	}
	if n != 0 {
		t.Errorf("CountExecutions = %d, want 0 after a rejected batch", n)
	}
}
