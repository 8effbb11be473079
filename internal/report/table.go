package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// Table is a loaded CSV report: the header plus data rows in file
// order. Columns the current code does not recognize round-trip
// unchanged.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadTable loads a CSV report from path.
func ReadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening report %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing report %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("report %s is empty", path)
	}

	return &Table{Header: records[0], Rows: records[1:]}, nil
}

// Index returns the position of the named column, or -1 if absent.
func (t *Table) Index(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// EnsureColumn returns the position of the named column, appending it
// (and padding every row) when missing.
func (t *Table) EnsureColumn(name string) int {
	if i := t.Index(name); i >= 0 {
		return i
	}
	t.Header = append(t.Header, name)
	for i := range t.Rows {
		t.Rows[i] = append(t.Rows[i], "")
	}
	return len(t.Header) - 1
}

// Get returns the cell at row index and column position, or "" when the
// row is shorter than the header.
func (t *Table) Get(row, col int) string {
	if col < 0 || col >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][col]
}

// Set writes the cell at row index and column position, padding the row
// if needed.
func (t *Table) Set(row, col int, value string) {
	for len(t.Rows[row]) <= col {
		t.Rows[row] = append(t.Rows[row], "")
	}
	t.Rows[row][col] = value
}

// WriteAtomic rewrites path with the table's contents, preserving
// column and row order. The data is written to a temporary file in the
// same directory and moved into place, so a failure mid-write leaves
// the original file intact.
func (t *Table) WriteAtomic(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temporary report file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	w := csv.NewWriter(tmp)
	if err := w.Write(t.Header); err != nil {
		cleanup()
		return fmt.Errorf("writing report header: %w", err)
	}
	for _, row := range t.Rows {
		if err := w.Write(row); err != nil {
			cleanup()
			return fmt.Errorf("writing report row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		cleanup()
		return fmt.Errorf("flushing report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temporary report file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing report %s: %w", path, err)
	}
	return nil
}
