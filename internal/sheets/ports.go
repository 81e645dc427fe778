package sheets

import (
	"context"
	"errors"
)

// SpreadsheetRef is an opaque reference to a backend spreadsheet, valid
// for the duration of one run.
type SpreadsheetRef struct {
	ID    string
	Title string
}

// WorksheetRef identifies a tab within a spreadsheet.
type WorksheetRef struct {
	SpreadsheetID string
	SheetID       int64
	Title         string
}

var (
	ErrCredentialsMissing = errors.New("service account key file missing")
	ErrAuthentication     = errors.New("backend rejected credentials")
	ErrUnavailable        = errors.New("spreadsheet backend unavailable")
)

// Ports for outbound adapters. Probes report absence through the found
// flag; an error means the probe itself failed.
type (
	SpreadsheetResolver interface {
		FindSpreadsheet(ctx context.Context, title string) (ref SpreadsheetRef, found bool, err error)
		CreateSpreadsheet(ctx context.Context, title string) (SpreadsheetRef, error)
	}

	WorksheetResolver interface {
		FindWorksheet(ctx context.Context, ss SpreadsheetRef, tab string) (ref WorksheetRef, found bool, err error)
		CreateWorksheet(ctx context.Context, ss SpreadsheetRef, tab string, rows, cols int64) (WorksheetRef, error)
	}

	RecordReader interface {
		ReadRecords(ctx context.Context, ws WorksheetRef) ([][]string, error)
	}

	RecordAppender interface {
		// AppendRecords submits all records in a single batch call and
		// returns the number of rows submitted.
		AppendRecords(ctx context.Context, ws WorksheetRef, records [][]string) (appended int, err error)
	}

	// Backend is the full surface the publisher drives.
	Backend interface {
		SpreadsheetResolver
		WorksheetResolver
		RecordReader
		RecordAppender
	}
)
