package stores

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/openconverge/openconverge/pkg/engine"
)

// setupTestStore creates a file-backed SQLite store in a temp directory.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: filepath.Join(t.TempDir(), "runs.db"),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sampleReport(id string) *engine.RunReport {
	started := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return &engine.RunReport{
		ID:          id,
		Status:      engine.RunStatusPartialFailure,
		StartedAt:   started,
		CompletedAt: started.Add(3 * time.Second),
		Resources: []engine.ResourceReport{
			{
				Resource: engine.NewReference(engine.TypePackage, "agent"),
				Outcome:  engine.OutcomeChanged,
				Duration: 120 * time.Millisecond,
			},
			{
				Resource:  engine.NewReference(engine.TypeService, "agent"),
				Outcome:   engine.OutcomeChanged,
				Refreshed: true,
				Duration:  80 * time.Millisecond,
			},
			{
				Resource: engine.NewReference(engine.TypeCron, "agent-run"),
				Outcome:  engine.OutcomeFailed,
				Detail:   "crontab unavailable",
				Duration: 5 * time.Millisecond,
			},
		},
		Refreshes: []engine.RefreshEvent{
			{
				Target: engine.NewReference(engine.TypeService, "agent"),
				Notifiers: []engine.Reference{
					engine.NewReference(engine.TypePackage, "agent"),
				},
			},
		},
		Summary: engine.RunSummary{
			Total: 3, Changed: 2, Failed: 1, Refreshed: 1,
		},
	}
}

func TestStoreLifecycle(t *testing.T) {
	store := setupTestStore(t)

	if err := store.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	tables := []string{"runs", "run_resources", "run_refreshes"}
	for _, table := range tables {
		var count int
		if err := store.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}

	// Re-running migrations on an up-to-date schema is a no-op.
	if err := store.Migrate(ctx); err != nil {
		t.Errorf("expected idempotent migrations, got: %v", err)
	}
}

func TestStoreReportRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	report := sampleReport("run-1")
	if err := store.SaveReport(ctx, report); err != nil {
		t.Fatalf("failed to save report: %v", err)
	}

	got, err := store.GetReport(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get report: %v", err)
	}

	if got.Status != report.Status {
		t.Errorf("expected status %s, got %s", report.Status, got.Status)
	}
	if len(got.Resources) != len(report.Resources) {
		t.Fatalf("expected %d resource outcomes, got %d", len(report.Resources), len(got.Resources))
	}
	for i, res := range got.Resources {
		want := report.Resources[i]
		if res.Resource != want.Resource || res.Outcome != want.Outcome ||
			res.Detail != want.Detail || res.Refreshed != want.Refreshed {
			t.Errorf("resource %d: expected %+v, got %+v", i, want, res)
		}
	}
	if len(got.Refreshes) != 1 {
		t.Fatalf("expected 1 refresh event, got %d", len(got.Refreshes))
	}
	if got.Refreshes[0].Target != report.Refreshes[0].Target {
		t.Errorf("expected refresh target %s, got %s",
			report.Refreshes[0].Target, got.Refreshes[0].Target)
	}
	if len(got.Refreshes[0].Notifiers) != 1 {
		t.Errorf("expected 1 notifier, got %d", len(got.Refreshes[0].Notifiers))
	}
	if got.Summary != report.Summary {
		t.Errorf("expected summary %+v, got %+v", report.Summary, got.Summary)
	}
}

func TestStoreCompileFailureReport(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	report := engine.NewCompileFailureReport("run-cf",
		engine.NewCompileError("unsupported run style \"mesh\"", nil).
			WithCode(engine.ErrCodeUnsupportedRunStyle))
	if err := store.SaveReport(ctx, report); err != nil {
		t.Fatalf("failed to save report: %v", err)
	}

	got, err := store.GetReport(ctx, "run-cf")
	if err != nil {
		t.Fatalf("failed to get report: %v", err)
	}
	if got.Status != engine.RunStatusCompileFailure {
		t.Errorf("expected compile-failure status, got %s", got.Status)
	}
	if got.Error == "" {
		t.Error("expected compile error message to round-trip")
	}
	if len(got.Resources) != 0 {
		t.Errorf("expected no resource outcomes, got %d", len(got.Resources))
	}
}

func TestStoreListRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		report := sampleReport(id)
		report.StartedAt = report.StartedAt.Add(time.Duration(i) * time.Hour)
		report.CompletedAt = report.StartedAt.Add(time.Second)
		if err := store.SaveReport(ctx, report); err != nil {
			t.Fatalf("failed to save %s: %v", id, err)
		}
	}

	runs, err := store.ListRuns(ctx, 10, 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	// Most recent first.
	if runs[0].ID != "run-c" || runs[2].ID != "run-a" {
		t.Errorf("expected newest-first ordering, got %s..%s", runs[0].ID, runs[2].ID)
	}
	if runs[0].Failed != 1 {
		t.Errorf("expected failed count 1, got %d", runs[0].Failed)
	}

	page, err := store.ListRuns(ctx, 1, 1)
	if err != nil {
		t.Fatalf("failed to page runs: %v", err)
	}
	if len(page) != 1 || page[0].ID != "run-b" {
		t.Errorf("expected paged result run-b, got %+v", page)
	}
}

func TestStoreDeleteRun(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.SaveReport(ctx, sampleReport("run-del")); err != nil {
		t.Fatalf("failed to save report: %v", err)
	}
	if err := store.DeleteRun(ctx, "run-del"); err != nil {
		t.Fatalf("failed to delete run: %v", err)
	}
	if _, err := store.GetReport(ctx, "run-del"); err == nil {
		t.Error("expected deleted run to be gone")
	}

	// Cascade removed the detail rows.
	var count int
	if err := store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM run_resources WHERE run_id = ?", "run-del").Scan(&count); err != nil {
		t.Fatalf("failed to count resource rows: %v", err)
	}
	if count != 0 {
		t.Errorf("expected cascaded delete, %d resource rows remain", count)
	}

	if err := store.DeleteRun(ctx, "run-del"); err == nil {
		t.Error("expected error deleting a missing run")
	}
}
