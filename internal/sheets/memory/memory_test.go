package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"

	ports "sheetpipe/internal/sheets"
)

func TestFindSpreadsheetBeforeAndAfterCreate(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, found, err := s.FindSpreadsheet(ctx, "Report_2024-03")
	if err != nil || found {
		t.Fatalf("expected not found on empty store, got found=%v err=%v", found, err)
	}

	created, err := s.CreateSpreadsheet(ctx, "Report_2024-03")
	if err != nil {
		t.Fatalf("create spreadsheet: %v", err)
	}
	if created.ID == "" || created.Title != "Report_2024-03" {
		t.Fatalf("unexpected ref: %+v", created)
	}

	got, found, err := s.FindSpreadsheet(ctx, "Report_2024-03")
	if err != nil || !found {
		t.Fatalf("expected to find created spreadsheet, got found=%v err=%v", found, err)
	}
	if got.ID != created.ID {
		t.Errorf("find returned ID %q, create returned %q", got.ID, created.ID)
	}
}

func TestCreateSpreadsheetSeedsDefaultTab(t *testing.T) {
	s := New()
	ctx := context.Background()

	ss, err := s.CreateSpreadsheet(ctx, "Report_2024-03")
	if err != nil {
		t.Fatalf("create spreadsheet: %v", err)
	}

	_, found, err := s.FindWorksheet(ctx, ss, "Sheet1")
	if err != nil || !found {
		t.Fatalf("expected default tab, got found=%v err=%v", found, err)
	}

	_, found, err = s.FindWorksheet(ctx, ss, "Data")
	if err != nil || found {
		t.Fatalf("Data tab should not exist yet, got found=%v err=%v", found, err)
	}
}

func TestCreateWorksheetAndAppend(t *testing.T) {
	s := New()
	ctx := context.Background()

	ss, err := s.CreateSpreadsheet(ctx, "Report_2024-03")
	if err != nil {
		t.Fatalf("create spreadsheet: %v", err)
	}

	ws, err := s.CreateWorksheet(ctx, ss, "Data", 1000, 26)
	if err != nil {
		t.Fatalf("create worksheet: %v", err)
	}

	if _, err := s.CreateWorksheet(ctx, ss, "Data", 1000, 26); err == nil {
		t.Fatal("expected error creating duplicate worksheet")
	}

	if _, err := s.AppendRecords(ctx, ws, [][]string{{"id", "amount"}}); err != nil {
		t.Fatalf("append header: %v", err)
	}
	n, err := s.AppendRecords(ctx, ws, [][]string{{"1", "100"}, {"2", "200"}})
	if err != nil || n != 2 {
		t.Fatalf("append rows: n=%d err=%v", n, err)
	}

	records, err := s.ReadRecords(ctx, ws)
	if err != nil {
		t.Fatalf("read records: %v", err)
	}
	want := [][]string{{"id", "amount"}, {"1", "100"}, {"2", "200"}}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("records = %v, want %v", records, want)
	}

	tab, ok := s.TabState("Report_2024-03", "Data")
	if !ok {
		t.Fatal("tab state missing")
	}
	if tab.Rows != 1000 || tab.Cols != 26 {
		t.Errorf("grid = %dx%d, want 1000x26", tab.Rows, tab.Cols)
	}
	if !reflect.DeepEqual(tab.BatchSizes, []int{1, 2}) {
		t.Errorf("batch sizes = %v, want [1 2]", tab.BatchSizes)
	}
}

func TestFailReads(t *testing.T) {
	s := New()
	ctx := context.Background()

	ss, _ := s.CreateSpreadsheet(ctx, "Report_2024-03")
	ws, _ := s.CreateWorksheet(ctx, ss, "Data", 10, 2)

	s.FailReads = true

	if _, err := s.ReadRecords(ctx, ws); !errors.Is(err, ports.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	// Writes keep working while reads fail.
	if _, err := s.AppendRecords(ctx, ws, [][]string{{"1", "100"}}); err != nil {
		t.Fatalf("append with failing reads: %v", err)
	}
}

func TestReadRecordsReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	ss, _ := s.CreateSpreadsheet(ctx, "Report_2024-03")
	ws, _ := s.CreateWorksheet(ctx, ss, "Data", 10, 2)
	if _, err := s.AppendRecords(ctx, ws, [][]string{{"1", "100"}}); err != nil {
		t.Fatalf("append: %v", err)
	}

	records, _ := s.ReadRecords(ctx, ws)
	records[0][0] = "mutated"

	again, _ := s.ReadRecords(ctx, ws)
	if again[0][0] != "1" {
		t.Errorf("stored record mutated through read result: %v", again)
	}
}
