// Package memory provides an in-memory spreadsheet backend for tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	ports "sheetpipe/internal/sheets"
)

const defaultTabTitle = "Sheet1"

// Store mimics the hosted backend closely enough for pipeline tests:
// spreadsheets are keyed by title, every new spreadsheet starts with a
// default tab, and appends are recorded batch by batch.
type Store struct {
	mu           sync.Mutex
	spreadsheets []*Spreadsheet
	nextFileID   int
	nextSheetID  int64

	// FailReads forces every ReadRecords call to fail, mimicking a
	// backend that keeps accepting writes while reads error out.
	FailReads bool
}

type Spreadsheet struct {
	ID    string
	Title string
	Tabs  []*Tab
}

type Tab struct {
	SheetID int64
	Title   string
	Rows    int64
	Cols    int64
	Records [][]string

	// BatchSizes records how many rows each append call carried.
	BatchSizes []int
}

var _ ports.Backend = (*Store)(nil)

func New() *Store {
	return &Store{}
}

func (s *Store) FindSpreadsheet(_ context.Context, title string) (ports.SpreadsheetRef, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ss := range s.spreadsheets {
		if ss.Title == title {
			return ports.SpreadsheetRef{ID: ss.ID, Title: ss.Title}, true, nil
		}
	}
	return ports.SpreadsheetRef{}, false, nil
}

func (s *Store) CreateSpreadsheet(_ context.Context, title string) (ports.SpreadsheetRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextFileID++
	ss := &Spreadsheet{
		ID:    fmt.Sprintf("mem-%d", s.nextFileID),
		Title: title,
		// A fresh spreadsheet always carries one default tab.
		Tabs: []*Tab{{Title: defaultTabTitle, Rows: 1000, Cols: 26}},
	}
	s.spreadsheets = append(s.spreadsheets, ss)

	return ports.SpreadsheetRef{ID: ss.ID, Title: title}, nil
}

func (s *Store) FindWorksheet(_ context.Context, ref ports.SpreadsheetRef, tab string) (ports.WorksheetRef, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, err := s.byID(ref.ID)
	if err != nil {
		return ports.WorksheetRef{}, false, err
	}
	for _, t := range ss.Tabs {
		if t.Title == tab {
			return ports.WorksheetRef{SpreadsheetID: ss.ID, SheetID: t.SheetID, Title: t.Title}, true, nil
		}
	}
	return ports.WorksheetRef{}, false, nil
}

func (s *Store) CreateWorksheet(_ context.Context, ref ports.SpreadsheetRef, tab string, rows, cols int64) (ports.WorksheetRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ss, err := s.byID(ref.ID)
	if err != nil {
		return ports.WorksheetRef{}, err
	}
	for _, t := range ss.Tabs {
		if t.Title == tab {
			return ports.WorksheetRef{}, fmt.Errorf("worksheet %q already exists", tab)
		}
	}

	s.nextSheetID++
	t := &Tab{SheetID: s.nextSheetID, Title: tab, Rows: rows, Cols: cols}
	ss.Tabs = append(ss.Tabs, t)

	return ports.WorksheetRef{SpreadsheetID: ss.ID, SheetID: t.SheetID, Title: tab}, nil
}

func (s *Store) ReadRecords(_ context.Context, ws ports.WorksheetRef) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailReads {
		return nil, fmt.Errorf("read worksheet %s: %w", ws.Title, ports.ErrUnavailable)
	}

	t, err := s.tab(ws)
	if err != nil {
		return nil, err
	}

	out := make([][]string, len(t.Records))
	for i, r := range t.Records {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (s *Store) AppendRecords(_ context.Context, ws ports.WorksheetRef, records [][]string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.tab(ws)
	if err != nil {
		return 0, err
	}

	for _, r := range records {
		t.Records = append(t.Records, append([]string(nil), r...))
	}
	t.BatchSizes = append(t.BatchSizes, len(records))

	return len(records), nil
}

// Titles lists stored spreadsheet titles in creation order, for assertions.
func (s *Store) Titles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.spreadsheets))
	for _, ss := range s.spreadsheets {
		out = append(out, ss.Title)
	}
	return out
}

// TabState returns the named tab of the named spreadsheet, for assertions.
func (s *Store) TabState(title, tab string) (*Tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ss := range s.spreadsheets {
		if ss.Title != title {
			continue
		}
		for _, t := range ss.Tabs {
			if t.Title == tab {
				return t, true
			}
		}
	}
	return nil, false
}

func (s *Store) byID(id string) (*Spreadsheet, error) {
	for _, ss := range s.spreadsheets {
		if ss.ID == id {
			return ss, nil
		}
	}
	return nil, fmt.Errorf("spreadsheet %s not found", id)
}

func (s *Store) tab(ws ports.WorksheetRef) (*Tab, error) {
	ss, err := s.byID(ws.SpreadsheetID)
	if err != nil {
		return nil, err
	}
	for _, t := range ss.Tabs {
		if t.Title == ws.Title {
			return t, nil
		}
	}
	return nil, fmt.Errorf("worksheet %q not found in %s", ws.Title, ws.SpreadsheetID)
}
