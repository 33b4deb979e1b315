// Package dataset models the labeling CSV and the file-backed store that owns
// it. The CSV on disk is the sole source of truth: every operation re-reads
// it, and every mutation rewrites it in full.
package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNoTextColumn is returned when a dataset lacks the required text column.
var ErrNoTextColumn = errors.New(`dataset must contain a "text" column`)

// ErrRowOutOfRange is returned when a row index falls outside the dataset.
var ErrRowOutOfRange = errors.New("row index out of range")

// TextColumn is the one column every dataset must carry; its cell is the
// item shown to the coder.
const TextColumn = "text"

// Table is an in-memory CSV: an ordered header plus rows of string cells.
// Column order is preserved across parse/encode so rewrites stay diffable.
type Table struct {
	columns []string
	rows    [][]string
	index   map[string]int
}

// Parse reads CSV bytes (header row required) into a Table. Rows shorter or
// longer than the header are kept as-is; reads treat missing cells as empty.
func Parse(data []byte) (*Table, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("parse csv: missing header row")
	}

	table := &Table{
		columns: records[0],
		rows:    records[1:],
	}
	table.reindex()
	return table, nil
}

// Encode renders the table back to CSV bytes.
func (t *Table) Encode() ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(t.columns); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	for i, row := range t.rows {
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("encode row %d: %w", i, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.columns))
	for i, name := range t.columns {
		t.index[name] = i
	}
}

// Columns returns the header in file order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// HasColumn reports whether name is present in the header.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Cell returns the value at (row, column). A missing column or short row
// reads as the empty string; an out-of-range row returns ErrRowOutOfRange.
func (t *Table) Cell(row int, column string) (string, error) {
	if row < 0 || row >= len(t.rows) {
		return "", ErrRowOutOfRange
	}
	col, ok := t.index[column]
	if !ok || col >= len(t.rows[row]) {
		return "", nil
	}
	return t.rows[row][col], nil
}

// SetCell writes value at (row, column), creating the column if needed.
func (t *Table) SetCell(row int, column, value string) error {
	if row < 0 || row >= len(t.rows) {
		return ErrRowOutOfRange
	}
	col := t.EnsureColumn(column)
	for col >= len(t.rows[row]) {
		t.rows[row] = append(t.rows[row], "")
	}
	t.rows[row][col] = value
	return nil
}

// EnsureColumn appends an empty column named name if absent and returns its
// position. Existing data columns are never moved.
func (t *Table) EnsureColumn(name string) int {
	if col, ok := t.index[name]; ok {
		return col
	}
	t.columns = append(t.columns, name)
	col := len(t.columns) - 1
	t.index[name] = col
	for i := range t.rows {
		for col >= len(t.rows[i]) {
			t.rows[i] = append(t.rows[i], "")
		}
	}
	return col
}

// Row returns the cells of one row keyed by column name.
func (t *Table) Row(row int) (map[string]string, error) {
	if row < 0 || row >= len(t.rows) {
		return nil, ErrRowOutOfRange
	}
	out := make(map[string]string, len(t.columns))
	for i, name := range t.columns {
		if i < len(t.rows[row]) {
			out[name] = t.rows[row][i]
		} else {
			out[name] = ""
		}
	}
	return out, nil
}

// IsUnlabeled reports whether row has no label in column: empty, whitespace,
// or a missing column all count as unlabeled.
func (t *Table) IsUnlabeled(row int, column string) bool {
	value, err := t.Cell(row, column)
	if err != nil {
		return false
	}
	return strings.TrimSpace(value) == ""
}

// FirstUnlabeled returns the smallest row index whose column cell is empty,
// in file order. ok is false when every row is labeled.
func (t *Table) FirstUnlabeled(column string) (row int, ok bool) {
	for i := range t.rows {
		if t.IsUnlabeled(i, column) {
			return i, true
		}
	}
	return 0, false
}

// LabeledCount returns how many rows carry a non-empty value in column.
func (t *Table) LabeledCount(column string) int {
	count := 0
	for i := range t.rows {
		if !t.IsUnlabeled(i, column) {
			count++
		}
	}
	return count
}

// Normalize prepares a freshly loaded or uploaded dataset for the given
// coder roster:
//   - header names are trimmed of surrounding whitespace
//   - legacy "coder_<id>" and "_coder_<id>" columns are renamed to the
//     canonical "label_<id>" form when the canonical column is absent
//   - a label column is ensured for every roster coder
//
// It fails with ErrNoTextColumn when no text column survives normalization.
func (t *Table) Normalize(coderColumns map[string]string) error {
	for i, name := range t.columns {
		t.columns[i] = strings.TrimSpace(name)
	}
	t.reindex()

	for coderID, canonical := range coderColumns {
		if t.HasColumn(canonical) {
			continue
		}
		for _, legacy := range []string{"coder_" + coderID, "_coder_" + coderID} {
			if col, ok := t.index[legacy]; ok {
				t.columns[col] = canonical
				t.reindex()
				break
			}
		}
	}

	// Sorted so repeated normalizations of the same input produce the same
	// header, keeping rewrites diffable.
	canonicals := make([]string, 0, len(coderColumns))
	for _, canonical := range coderColumns {
		canonicals = append(canonicals, canonical)
	}
	sort.Strings(canonicals)
	for _, canonical := range canonicals {
		t.EnsureColumn(canonical)
	}

	if !t.HasColumn(TextColumn) {
		return ErrNoTextColumn
	}
	return nil
}
