// Package table holds the in-memory tabular dataset exchanged with the
// upstream caller over stdin/stdout.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedInput marks input that cannot be parsed into a dataset.
var ErrMalformedInput = errors.New("malformed tabular input")

// Dataset is an ordered table: named columns and positional rows.
// Every row has exactly as many values as there are columns; the CSV
// reader enforces this at intake.
type Dataset struct {
	Columns []string
	Rows    [][]string
}

// Read consumes r fully and parses it as comma-delimited text with the
// first line as the header row. A header-only stream yields an empty
// dataset; a stream with no lines at all is malformed.
func Read(r io.Reader) (Dataset, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return Dataset{}, fmt.Errorf("parse delimited input: %v: %w", err, ErrMalformedInput)
	}
	if len(records) == 0 {
		return Dataset{}, fmt.Errorf("missing header row: %w", ErrMalformedInput)
	}

	columns := records[0]
	seen := make(map[string]struct{}, len(columns))
	for _, name := range columns {
		if strings.TrimSpace(name) == "" {
			return Dataset{}, fmt.Errorf("blank column name: %w", ErrMalformedInput)
		}
		if _, ok := seen[name]; ok {
			return Dataset{}, fmt.Errorf("duplicate column %q: %w", name, ErrMalformedInput)
		}
		seen[name] = struct{}{}
	}

	return Dataset{Columns: columns, Rows: records[1:]}, nil
}

// Write re-serializes the dataset as comma-delimited text, header first.
func (d Dataset) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(d.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(d.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// Empty reports whether the dataset has no data rows.
func (d Dataset) Empty() bool {
	return len(d.Rows) == 0
}
