package stores

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// setupTestStore creates a migrated store in a temporary directory
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func strPtr(s string) *string { return &s }

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	if _, err := NewSQLiteStore(Config{}); err == nil {
		t.Fatal("expected error for empty path")
	}

	store, err := NewSQLiteStore(Config{Path: filepath.Join(t.TempDir(), "journal.db")})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err == nil {
		t.Fatal("expected migrate before init to fail")
	}
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests that migrations create the tables and are
// idempotent
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for _, table := range []string{"runs", "actions"} {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("second migration failed: %v", err)
	}
}

// TestRunLifecycle tests starting, finishing and reading a run
func TestRunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	run := &Run{
		ID:         "run-1",
		ScriptPath: "/srv/scripts/web.yaml",
		Host:       "web-01",
		Provider:   "debian",
	}
	if err := store.StartRun(ctx, run); err != nil {
		t.Fatalf("failed to start run: %v", err)
	}
	if run.Status != RunStatusRunning {
		t.Errorf("expected status %s, got %s", RunStatusRunning, run.Status)
	}

	got, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Host != "web-01" || got.Provider != "debian" || got.FinishedAt != nil {
		t.Errorf("unexpected run: %+v", got)
	}

	if err := store.FinishRun(ctx, "run-1", RunStatusFailed, 1, strPtr("action 2 failed")); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	got, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.Status != RunStatusFailed || got.ExitCode != 1 {
		t.Errorf("expected failed/1, got %s/%d", got.Status, got.ExitCode)
	}
	if got.Error == nil || *got.Error != "action 2 failed" {
		t.Errorf("unexpected error field: %v", got.Error)
	}
	if got.FinishedAt == nil {
		t.Error("expected finished_at to be set")
	}
}

// TestRunNotFound tests lookups of missing runs
func TestRunNotFound(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.FinishRun(ctx, "missing", RunStatusSucceeded, 0, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestListRuns tests newest-first ordering and pagination
func TestListRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		run := &Run{ID: id, ScriptPath: "s.yaml", Host: "h", Provider: "debian", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := store.StartRun(ctx, run); err != nil {
			t.Fatalf("failed to start run %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 2, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("unexpected runs: %v", runs)
	}
	if !runs[0].StartedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("started_at did not round-trip: %v", runs[0].StartedAt)
	}

	runs, err = store.ListRuns(ctx, 10, 2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "a" {
		t.Errorf("unexpected second page: %v", runs)
	}
}

// TestActions tests recording and listing actions
func TestActions(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.StartRun(ctx, &Run{ID: "run-1", ScriptPath: "s.yaml", Host: "h", Provider: "fedora"}); err != nil {
		t.Fatalf("failed to start run: %v", err)
	}

	records := []*ActionRecord{
		{RunID: "run-1", Index: 1, Kind: "createFile", Status: ActionStatusFailed, Duration: 250 * time.Millisecond, Error: strPtr("failed")},
		{RunID: "run-1", Index: 0, Kind: "installPackages", Status: ActionStatusSucceeded, Duration: 3 * time.Second},
	}
	for _, rec := range records {
		if err := store.RecordAction(ctx, rec); err != nil {
			t.Fatalf("failed to record action: %v", err)
		}
		if rec.ID == 0 {
			t.Error("expected ID to be assigned")
		}
	}

	got, err := store.ListActions(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list actions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 actions, got %d", len(got))
	}
	if got[0].Kind != "installPackages" || got[0].Duration != 3*time.Second {
		t.Errorf("unexpected first action: %+v", got[0])
	}
	if got[1].Status != ActionStatusFailed || got[1].Error == nil {
		t.Errorf("unexpected second action: %+v", got[1])
	}

	// Actions must belong to an existing run.
	if err := store.RecordAction(ctx, &ActionRecord{RunID: "nope", Kind: "x", Status: ActionStatusSucceeded}); err == nil {
		t.Error("expected foreign key violation")
	}
}
