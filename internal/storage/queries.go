package storage

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is the subset of database/sql both *sql.DB and *sql.Tx satisfy,
// so every query can run inside or outside a transaction.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

type AdvisoryLock struct {
	Name         string
	Holder       string
	AcquiredAtMs int64
	ExpiresAtMs  int64
}

type SpreadsheetRef struct {
	Title         string
	SpreadsheetID string
	UpdatedAt     time.Time
}

type Run struct {
	ID                 int64
	SpreadsheetTitle   string
	SpreadsheetID      string
	WorksheetTitle     string
	RowsAppended       int64
	HeaderWritten      bool
	CreatedSpreadsheet bool
	CreatedWorksheet   bool
	DurationMs         int64
	CompletedAt        time.Time
}

const deleteExpiredLock = `
DELETE FROM advisory_locks
WHERE name = ? AND expires_at_ms <= ?
`

type DeleteExpiredLockParams struct {
	Name        string
	ExpiresAtMs int64
}

func (q *Queries) DeleteExpiredLock(ctx context.Context, arg DeleteExpiredLockParams) error {
	_, err := q.db.ExecContext(ctx, deleteExpiredLock, arg.Name, arg.ExpiresAtMs)
	return err
}

const insertLock = `
INSERT INTO advisory_locks (name, holder, acquired_at_ms, expires_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO NOTHING
`

type InsertLockParams struct {
	Name         string
	Holder       string
	AcquiredAtMs int64
	ExpiresAtMs  int64
}

// InsertLock reports how many rows were inserted: one when the lock was
// free, zero when somebody else holds it.
func (q *Queries) InsertLock(ctx context.Context, arg InsertLockParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertLock, arg.Name, arg.Holder, arg.AcquiredAtMs, arg.ExpiresAtMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteLockByHolder = `
DELETE FROM advisory_locks
WHERE name = ? AND holder = ?
`

type DeleteLockByHolderParams struct {
	Name   string
	Holder string
}

func (q *Queries) DeleteLockByHolder(ctx context.Context, arg DeleteLockByHolderParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteLockByHolder, arg.Name, arg.Holder)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getLock = `
SELECT name, holder, acquired_at_ms, expires_at_ms
FROM advisory_locks
WHERE name = ?
`

func (q *Queries) GetLock(ctx context.Context, name string) (AdvisoryLock, error) {
	row := q.db.QueryRowContext(ctx, getLock, name)
	var i AdvisoryLock
	err := row.Scan(&i.Name, &i.Holder, &i.AcquiredAtMs, &i.ExpiresAtMs)
	return i, err
}

const upsertSpreadsheetRef = `
INSERT INTO spreadsheet_refs (title, spreadsheet_id, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(title) DO UPDATE SET
    spreadsheet_id = excluded.spreadsheet_id,
    updated_at = excluded.updated_at
`

type UpsertSpreadsheetRefParams struct {
	Title         string
	SpreadsheetID string
	UpdatedAt     time.Time
}

func (q *Queries) UpsertSpreadsheetRef(ctx context.Context, arg UpsertSpreadsheetRefParams) error {
	_, err := q.db.ExecContext(ctx, upsertSpreadsheetRef, arg.Title, arg.SpreadsheetID, arg.UpdatedAt)
	return err
}

const getSpreadsheetRef = `
SELECT title, spreadsheet_id, updated_at
FROM spreadsheet_refs
WHERE title = ?
`

func (q *Queries) GetSpreadsheetRef(ctx context.Context, title string) (SpreadsheetRef, error) {
	row := q.db.QueryRowContext(ctx, getSpreadsheetRef, title)
	var i SpreadsheetRef
	err := row.Scan(&i.Title, &i.SpreadsheetID, &i.UpdatedAt)
	return i, err
}

const insertRun = `
INSERT INTO runs (
    spreadsheet_title, spreadsheet_id, worksheet_title,
    rows_appended, header_written, created_spreadsheet, created_worksheet,
    duration_ms, completed_at
)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, spreadsheet_title, spreadsheet_id, worksheet_title,
    rows_appended, header_written, created_spreadsheet, created_worksheet,
    duration_ms, completed_at
`

type InsertRunParams struct {
	SpreadsheetTitle   string
	SpreadsheetID      string
	WorksheetTitle     string
	RowsAppended       int64
	HeaderWritten      bool
	CreatedSpreadsheet bool
	CreatedWorksheet   bool
	DurationMs         int64
	CompletedAt        time.Time
}

func (q *Queries) InsertRun(ctx context.Context, arg InsertRunParams) (Run, error) {
	row := q.db.QueryRowContext(ctx, insertRun,
		arg.SpreadsheetTitle,
		arg.SpreadsheetID,
		arg.WorksheetTitle,
		arg.RowsAppended,
		arg.HeaderWritten,
		arg.CreatedSpreadsheet,
		arg.CreatedWorksheet,
		arg.DurationMs,
		arg.CompletedAt,
	)
	var i Run
	err := row.Scan(
		&i.ID,
		&i.SpreadsheetTitle,
		&i.SpreadsheetID,
		&i.WorksheetTitle,
		&i.RowsAppended,
		&i.HeaderWritten,
		&i.CreatedSpreadsheet,
		&i.CreatedWorksheet,
		&i.DurationMs,
		&i.CompletedAt,
	)
	return i, err
}

const listRecentRuns = `
SELECT id, spreadsheet_title, spreadsheet_id, worksheet_title,
    rows_appended, header_written, created_spreadsheet, created_worksheet,
    duration_ms, completed_at
FROM runs
ORDER BY id DESC
LIMIT ?
`

func (q *Queries) ListRecentRuns(ctx context.Context, limit int64) ([]Run, error) {
	rows, err := q.db.QueryContext(ctx, listRecentRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Run
	for rows.Next() {
		var i Run
		if err := rows.Scan(
			&i.ID,
			&i.SpreadsheetTitle,
			&i.SpreadsheetID,
			&i.WorksheetTitle,
			&i.RowsAppended,
			&i.HeaderWritten,
			&i.CreatedSpreadsheet,
			&i.CreatedWorksheet,
			&i.DurationMs,
			&i.CompletedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
