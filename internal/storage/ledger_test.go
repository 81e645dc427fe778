package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestNewLedgerMigrates(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ledger.db")

	l, err := NewLedger(dbPath)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}

	runs, err := l.RecentRuns(context.Background(), 5)
	if err != nil {
		t.Fatalf("recent runs on fresh ledger: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected empty run history, got %d rows", len(runs))
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close ledger: %v", err)
	}

	// Reopening must tolerate the schema already being current.
	l2, err := NewLedger(dbPath)
	if err != nil {
		t.Fatalf("reopen ledger: %v", err)
	}
	l2.Close()
}

func TestAcquireAndReleaseLock(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if err := l.AcquireLock(ctx, "report", "run-a", time.Minute); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	err := l.AcquireLock(ctx, "report", "run-b", time.Minute)
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("expected ErrLockHeld for second acquire, got %v", err)
	}

	lock, err := l.queries.GetLock(ctx, "report")
	if err != nil {
		t.Fatalf("get lock: %v", err)
	}
	if lock.Holder != "run-a" {
		t.Errorf("lock holder = %q, want run-a", lock.Holder)
	}

	// Release by a non-holder must not free the lock.
	if err := l.ReleaseLock(ctx, "report", "run-b"); err != nil {
		t.Fatalf("release by non-holder: %v", err)
	}
	if err := l.AcquireLock(ctx, "report", "run-b", time.Minute); !errors.Is(err, ErrLockHeld) {
		t.Fatalf("lock should survive foreign release, got %v", err)
	}

	if err := l.ReleaseLock(ctx, "report", "run-a"); err != nil {
		t.Fatalf("release by holder: %v", err)
	}
	if err := l.AcquireLock(ctx, "report", "run-b", time.Minute); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
}

func TestAcquireLockSweepsExpired(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if err := l.AcquireLock(ctx, "report", "crashed-run", time.Millisecond); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if err := l.AcquireLock(ctx, "report", "fresh-run", time.Minute); err != nil {
		t.Fatalf("expected expired lock to be swept, got %v", err)
	}

	lock, err := l.queries.GetLock(ctx, "report")
	if err != nil {
		t.Fatalf("get lock: %v", err)
	}
	if lock.Holder != "fresh-run" {
		t.Errorf("lock holder = %q, want fresh-run", lock.Holder)
	}
}

func TestLocksAreIndependentByName(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if err := l.AcquireLock(ctx, "report_2024-03", "run-a", time.Minute); err != nil {
		t.Fatalf("acquire first name: %v", err)
	}
	if err := l.AcquireLock(ctx, "report_2024-04", "run-a", time.Minute); err != nil {
		t.Fatalf("acquire second name: %v", err)
	}
}

func TestRememberAndLookupSpreadsheet(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	_, found, err := l.LookupSpreadsheet(ctx, "Report_2024-03")
	if err != nil {
		t.Fatalf("lookup on empty ledger: %v", err)
	}
	if found {
		t.Fatal("expected no mapping on empty ledger")
	}

	if err := l.RememberSpreadsheet(ctx, "Report_2024-03", "sheet-1"); err != nil {
		t.Fatalf("remember: %v", err)
	}

	id, found, err := l.LookupSpreadsheet(ctx, "Report_2024-03")
	if err != nil || !found {
		t.Fatalf("lookup after remember: found=%v err=%v", found, err)
	}
	if id != "sheet-1" {
		t.Errorf("id = %q, want sheet-1", id)
	}

	// Remembering again replaces the mapping.
	if err := l.RememberSpreadsheet(ctx, "Report_2024-03", "sheet-2"); err != nil {
		t.Fatalf("re-remember: %v", err)
	}
	id, _, err = l.LookupSpreadsheet(ctx, "Report_2024-03")
	if err != nil {
		t.Fatalf("lookup after update: %v", err)
	}
	if id != "sheet-2" {
		t.Errorf("id = %q, want sheet-2", id)
	}
}

func TestRecordRunAndRecentRuns(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	first, err := l.RecordRun(ctx, RunSummary{
		SpreadsheetTitle:   "Report_2024-03",
		SpreadsheetID:      "sheet-1",
		WorksheetTitle:     "Data",
		RowsAppended:       3,
		HeaderWritten:      true,
		CreatedSpreadsheet: true,
		CreatedWorksheet:   true,
		Duration:           1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("record first run: %v", err)
	}

	second, err := l.RecordRun(ctx, RunSummary{
		SpreadsheetTitle: "Report_2024-03",
		SpreadsheetID:    "sheet-1",
		WorksheetTitle:   "Data",
		RowsAppended:     2,
	})
	if err != nil {
		t.Fatalf("record second run: %v", err)
	}
	if second <= first {
		t.Errorf("run ids should grow: first=%d second=%d", first, second)
	}

	runs, err := l.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("recent runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}

	// Newest first.
	if runs[0].ID != second || runs[1].ID != first {
		t.Errorf("unexpected order: got ids %d, %d", runs[0].ID, runs[1].ID)
	}

	got := runs[1]
	if got.RowsAppended != 3 || !got.HeaderWritten || !got.CreatedSpreadsheet || !got.CreatedWorksheet {
		t.Errorf("first run fields did not round trip: %+v", got)
	}
	if got.DurationMs != 1500 {
		t.Errorf("duration_ms = %d, want 1500", got.DurationMs)
	}
	if got.CompletedAt.IsZero() {
		t.Error("completed_at should be set")
	}

	if runs[0].HeaderWritten || runs[0].CreatedSpreadsheet || runs[0].CreatedWorksheet {
		t.Errorf("second run flags should be false: %+v", runs[0])
	}

	limited, err := l.RecentRuns(ctx, 1)
	if err != nil {
		t.Fatalf("recent runs with limit: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != second {
		t.Errorf("limit 1 should return only the newest run, got %+v", limited)
	}
}
