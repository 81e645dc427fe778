package table

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRead(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantColumns []string
		wantRows    [][]string
		wantErr     bool
	}{
		{
			name:        "header and rows",
			input:       "id,amount\n1,100\n2,200\n",
			wantColumns: []string{"id", "amount"},
			wantRows:    [][]string{{"1", "100"}, {"2", "200"}},
		},
		{
			name:        "header only is an empty dataset",
			input:       "id,amount\n",
			wantColumns: []string{"id", "amount"},
			wantRows:    [][]string{},
		},
		{
			name:        "quoted field with embedded comma",
			input:       "id,note\n1,\"a,b\"\n",
			wantColumns: []string{"id", "note"},
			wantRows:    [][]string{{"1", "a,b"}},
		},
		{
			name:    "empty stream",
			input:   "",
			wantErr: true,
		},
		{
			name:    "ragged row",
			input:   "id,amount\n1\n",
			wantErr: true,
		},
		{
			name:    "unterminated quote",
			input:   "id,note\n1,\"oops\n",
			wantErr: true,
		},
		{
			name:    "duplicate column name",
			input:   "id,id\n1,2\n",
			wantErr: true,
		},
		{
			name:    "blank column name",
			input:   "id,\n1,2\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := Read(strings.NewReader(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Read() error = nil, want malformed input error")
				}
				if !errors.Is(err, ErrMalformedInput) {
					t.Errorf("Read() error = %v, want ErrMalformedInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Read() unexpected error: %v", err)
			}

			if len(ds.Columns) != len(tt.wantColumns) {
				t.Fatalf("Read() columns = %v, want %v", ds.Columns, tt.wantColumns)
			}
			for i, c := range tt.wantColumns {
				if ds.Columns[i] != c {
					t.Errorf("Read() column[%d] = %q, want %q", i, ds.Columns[i], c)
				}
			}

			if len(ds.Rows) != len(tt.wantRows) {
				t.Fatalf("Read() rows = %v, want %v", ds.Rows, tt.wantRows)
			}
			for i, row := range tt.wantRows {
				for j, v := range row {
					if ds.Rows[i][j] != v {
						t.Errorf("Read() row[%d][%d] = %q, want %q", i, j, ds.Rows[i][j], v)
					}
				}
			}
		})
	}
}

func TestWriteRoundTrip(t *testing.T) {
	input := "id,amount\n1,100\n2,200\n"

	ds, err := Read(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read() unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := ds.Write(&buf); err != nil {
		t.Fatalf("Write() unexpected error: %v", err)
	}

	if buf.String() != input {
		t.Errorf("round trip = %q, want %q", buf.String(), input)
	}
}

func TestWriteQuotesWhereNeeded(t *testing.T) {
	ds := Dataset{
		Columns: []string{"id", "note"},
		Rows:    [][]string{{"1", "a,b"}},
	}

	var buf bytes.Buffer
	if err := ds.Write(&buf); err != nil {
		t.Fatalf("Write() unexpected error: %v", err)
	}

	back, err := Read(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Read() of written output failed: %v", err)
	}
	if back.Rows[0][1] != "a,b" {
		t.Errorf("round trip value = %q, want %q", back.Rows[0][1], "a,b")
	}
}

func TestEmpty(t *testing.T) {
	headerOnly, err := Read(strings.NewReader("id,amount\n"))
	if err != nil {
		t.Fatalf("Read() unexpected error: %v", err)
	}
	if !headerOnly.Empty() {
		t.Error("Empty() = false for header-only dataset, want true")
	}

	withRows, err := Read(strings.NewReader("id,amount\n1,100\n"))
	if err != nil {
		t.Fatalf("Read() unexpected error: %v", err)
	}
	if withRows.Empty() {
		t.Error("Empty() = true for dataset with rows, want false")
	}
}
