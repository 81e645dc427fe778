package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"sheetpipe/internal/amqp"
	"sheetpipe/internal/sheets"
	"sheetpipe/internal/storage"
	"sheetpipe/internal/table"
)

// ErrRunInProgress means another pipeline run holds the advisory lock
// for the same spreadsheet.
var ErrRunInProgress = errors.New("another run is in progress")

// RunNotifier publishes run completion events. *amqp.Client satisfies it.
type RunNotifier interface {
	PublishRunCompleted(ctx context.Context, msg amqp.RunCompletedMessage) error
}

var _ RunNotifier = (*amqp.Client)(nil)

// PublisherConfig holds the naming and sizing knobs for a run.
type PublisherConfig struct {
	// BaseName is the spreadsheet title prefix; the month suffix is
	// appended per run.
	BaseName string

	// TabName is the worksheet tab rows land on.
	TabName string

	// SheetRows and SheetCols size the grid when the tab is created.
	SheetRows int64
	SheetCols int64

	// LockTTL bounds how long a crashed run can keep the advisory lock.
	LockTTL time.Duration

	// LockHolder identifies this process in the ledger. Derived from
	// hostname and pid when empty.
	LockHolder string
}

// Publisher pushes one tabular dataset into the month's spreadsheet.
// The ledger and notifier are optional; nil disables them.
type Publisher struct {
	backend  sheets.Backend
	ledger   *storage.Ledger
	notifier RunNotifier
	cfg      PublisherConfig
	holder   string
}

func NewPublisher(backend sheets.Backend, ledger *storage.Ledger, notifier RunNotifier, cfg PublisherConfig) *Publisher {
	holder := cfg.LockHolder
	if holder == "" {
		host, _ := os.Hostname()
		holder = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	return &Publisher{
		backend:  backend,
		ledger:   ledger,
		notifier: notifier,
		cfg:      cfg,
		holder:   holder,
	}
}

// MonthlyTitle returns the spreadsheet title for the month of now,
// e.g. "Monthly_Data_Report_2024-03".
func MonthlyTitle(base string, now time.Time) string {
	return base + "_" + now.Format("2006-01")
}

// Result summarizes what one run did.
type Result struct {
	SpreadsheetTitle   string
	SpreadsheetID      string
	WorksheetTitle     string
	RowsAppended       int
	HeaderWritten      bool
	CreatedSpreadsheet bool
	CreatedWorksheet   bool
	Duration           time.Duration
}

// Publish resolves the month's spreadsheet and worksheet, creating
// either as needed, and appends every dataset row in one batch. An
// empty dataset is a no-op that never touches the backend.
func (p *Publisher) Publish(ctx context.Context, ds table.Dataset, now time.Time) (Result, error) {
	start := time.Now()

	if ds.Empty() {
		slog.InfoContext(ctx, "No data rows to publish, skipping run")
		return Result{}, nil
	}

	title := MonthlyTitle(p.cfg.BaseName, now)
	res := Result{SpreadsheetTitle: title}

	if p.ledger != nil {
		err := p.ledger.AcquireLock(ctx, title, p.holder, p.cfg.LockTTL)
		if errors.Is(err, storage.ErrLockHeld) {
			return res, fmt.Errorf("spreadsheet %q: %w", title, ErrRunInProgress)
		}
		if err != nil {
			return res, fmt.Errorf("acquire run lock: %w", err)
		}
		defer func() {
			if err := p.ledger.ReleaseLock(ctx, title, p.holder); err != nil {
				slog.WarnContext(ctx, "Failed to release run lock",
					"name", title, "error", err)
			}
		}()
	}

	ss, found, err := p.backend.FindSpreadsheet(ctx, title)
	if err != nil {
		return res, fmt.Errorf("find spreadsheet: %w", err)
	}
	if !found {
		slog.InfoContext(ctx, "Spreadsheet not found, creating it", "title", title)
		ss, err = p.backend.CreateSpreadsheet(ctx, title)
		if err != nil {
			return res, fmt.Errorf("create spreadsheet: %w", err)
		}
		res.CreatedSpreadsheet = true
	}
	res.SpreadsheetID = ss.ID

	p.rememberSpreadsheet(ctx, title, ss.ID)

	ws, found, err := p.backend.FindWorksheet(ctx, ss, p.cfg.TabName)
	if err != nil {
		return res, fmt.Errorf("find worksheet: %w", err)
	}
	if !found {
		slog.InfoContext(ctx, "Worksheet not found, creating it",
			"tab", p.cfg.TabName,
			"rows", p.cfg.SheetRows,
			"cols", p.cfg.SheetCols)
		ws, err = p.backend.CreateWorksheet(ctx, ss, p.cfg.TabName, p.cfg.SheetRows, p.cfg.SheetCols)
		if err != nil {
			return res, fmt.Errorf("create worksheet: %w", err)
		}
		res.CreatedWorksheet = true
	}
	res.WorksheetTitle = ws.Title

	writeHeader := false
	records, err := p.backend.ReadRecords(ctx, ws)
	switch {
	case err != nil:
		// A failed read does not stop the run: the header goes in
		// anyway, at the cost of a duplicate when rows already exist.
		slog.WarnContext(ctx, "Could not read worksheet to check for a header, writing one anyway",
			"tab", ws.Title, "error", err)
		writeHeader = true
	case len(records) == 0:
		writeHeader = true
	}

	if writeHeader {
		if _, err := p.backend.AppendRecords(ctx, ws, [][]string{ds.Columns}); err != nil {
			return res, fmt.Errorf("append header: %w", err)
		}
		res.HeaderWritten = true
	}

	appended, err := p.backend.AppendRecords(ctx, ws, ds.Rows)
	if err != nil {
		return res, fmt.Errorf("append rows: %w", err)
	}
	res.RowsAppended = appended
	res.Duration = time.Since(start)

	slog.InfoContext(ctx, "Dataset published",
		"spreadsheet_title", title,
		"worksheet_title", ws.Title,
		"rows_appended", res.RowsAppended,
		"header_written", res.HeaderWritten,
		"duration", res.Duration)

	p.recordRun(ctx, res)
	p.notifyRunCompleted(ctx, res)

	return res, nil
}

func (p *Publisher) rememberSpreadsheet(ctx context.Context, title, id string) {
	if p.ledger == nil {
		return
	}

	prior, known, err := p.ledger.LookupSpreadsheet(ctx, title)
	if err != nil {
		slog.WarnContext(ctx, "Ledger lookup failed", "title", title, "error", err)
	} else if known && prior != id {
		slog.WarnContext(ctx, "Spreadsheet ID changed since last run",
			"title", title,
			"previous_id", prior,
			"current_id", id)
	}

	if err := p.ledger.RememberSpreadsheet(ctx, title, id); err != nil {
		slog.WarnContext(ctx, "Failed to remember spreadsheet", "title", title, "error", err)
	}
}

func (p *Publisher) recordRun(ctx context.Context, res Result) {
	if p.ledger == nil {
		return
	}

	_, err := p.ledger.RecordRun(ctx, storage.RunSummary{
		SpreadsheetTitle:   res.SpreadsheetTitle,
		SpreadsheetID:      res.SpreadsheetID,
		WorksheetTitle:     res.WorksheetTitle,
		RowsAppended:       res.RowsAppended,
		HeaderWritten:      res.HeaderWritten,
		CreatedSpreadsheet: res.CreatedSpreadsheet,
		CreatedWorksheet:   res.CreatedWorksheet,
		Duration:           res.Duration,
	})
	if err != nil {
		slog.WarnContext(ctx, "Failed to record run in ledger", "error", err)
		// Don't fail the run - the rows are already in the spreadsheet
	}
}

func (p *Publisher) notifyRunCompleted(ctx context.Context, res Result) {
	if p.notifier == nil {
		return
	}

	msg := amqp.RunCompletedMessage{
		SpreadsheetTitle:   res.SpreadsheetTitle,
		SpreadsheetID:      res.SpreadsheetID,
		WorksheetTitle:     res.WorksheetTitle,
		RowsAppended:       res.RowsAppended,
		HeaderWritten:      res.HeaderWritten,
		CreatedSpreadsheet: res.CreatedSpreadsheet,
		CreatedWorksheet:   res.CreatedWorksheet,
	}
	if err := p.notifier.PublishRunCompleted(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish run completed message", "error", err)
		// Don't fail the run - the rows are already in the spreadsheet
	}
}
