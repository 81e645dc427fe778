package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrLockHeld signals that another run currently holds the advisory lock.
var ErrLockHeld = errors.New("advisory lock already held")

// Ledger is the local SQLite record of pipeline runs. It remembers which
// backend spreadsheet a title resolved to, keeps the run history, and
// carries the advisory lock that keeps overlapping runs apart.
type Ledger struct {
	db      *sql.DB
	queries *Queries
}

func NewLedger(dbPath string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Ledger{
		db:      db,
		queries: New(db),
	}, nil
}

func (l *Ledger) Close() error {
	if l.db != nil {
		return l.db.Close()
	}
	return nil
}

// AcquireLock takes the named lock for holder until now+ttl. Expired
// locks are swept first, so a crashed run cannot block forever. A live
// lock held by someone else yields ErrLockHeld.
func (l *Ledger) AcquireLock(ctx context.Context, name, holder string, ttl time.Duration) error {
	now := time.Now().UTC()

	if err := l.queries.DeleteExpiredLock(ctx, DeleteExpiredLockParams{
		Name:        name,
		ExpiresAtMs: now.UnixMilli(),
	}); err != nil {
		return fmt.Errorf("sweep expired lock: %w", err)
	}

	affected, err := l.queries.InsertLock(ctx, InsertLockParams{
		Name:         name,
		Holder:       holder,
		AcquiredAtMs: now.UnixMilli(),
		ExpiresAtMs:  now.Add(ttl).UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("insert lock: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("lock %q: %w", name, ErrLockHeld)
	}

	slog.InfoContext(ctx, "Advisory lock acquired",
		"name", name,
		"holder", holder,
		"ttl", ttl)

	return nil
}

// ReleaseLock drops the named lock if holder still owns it. Releasing a
// lock that expired and was stolen is not an error.
func (l *Ledger) ReleaseLock(ctx context.Context, name, holder string) error {
	affected, err := l.queries.DeleteLockByHolder(ctx, DeleteLockByHolderParams{
		Name:   name,
		Holder: holder,
	})
	if err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	if affected == 0 {
		slog.WarnContext(ctx, "Advisory lock was no longer held at release",
			"name", name,
			"holder", holder)
	}
	return nil
}

// RememberSpreadsheet stores which backend spreadsheet a title resolved
// to, replacing any earlier mapping.
func (l *Ledger) RememberSpreadsheet(ctx context.Context, title, spreadsheetID string) error {
	if err := l.queries.UpsertSpreadsheetRef(ctx, UpsertSpreadsheetRefParams{
		Title:         title,
		SpreadsheetID: spreadsheetID,
		UpdatedAt:     time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("upsert spreadsheet ref: %w", err)
	}
	return nil
}

// LookupSpreadsheet returns the remembered backend ID for a title.
func (l *Ledger) LookupSpreadsheet(ctx context.Context, title string) (string, bool, error) {
	ref, err := l.queries.GetSpreadsheetRef(ctx, title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get spreadsheet ref: %w", err)
	}
	return ref.SpreadsheetID, true, nil
}

// RunSummary is what a completed pipeline run records.
type RunSummary struct {
	SpreadsheetTitle   string
	SpreadsheetID      string
	WorksheetTitle     string
	RowsAppended       int
	HeaderWritten      bool
	CreatedSpreadsheet bool
	CreatedWorksheet   bool
	Duration           time.Duration
}

func (l *Ledger) RecordRun(ctx context.Context, s RunSummary) (int64, error) {
	run, err := l.queries.InsertRun(ctx, InsertRunParams{
		SpreadsheetTitle:   s.SpreadsheetTitle,
		SpreadsheetID:      s.SpreadsheetID,
		WorksheetTitle:     s.WorksheetTitle,
		RowsAppended:       int64(s.RowsAppended),
		HeaderWritten:      s.HeaderWritten,
		CreatedSpreadsheet: s.CreatedSpreadsheet,
		CreatedWorksheet:   s.CreatedWorksheet,
		DurationMs:         s.Duration.Milliseconds(),
		CompletedAt:        time.Now().UTC(),
	})
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}

	slog.InfoContext(ctx, "Run recorded",
		"id", run.ID,
		"spreadsheet_title", run.SpreadsheetTitle,
		"worksheet_title", run.WorksheetTitle,
		"rows_appended", run.RowsAppended)

	return run.ID, nil
}

// RecentRuns returns the newest runs first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	runs, err := l.queries.ListRecentRuns(ctx, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list recent runs: %w", err)
	}
	return runs, nil
}
