// Package table is a minimal time-indexed table: one UTC timestamp per row
// and a fixed, ordered set of named columns.
package table

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// IndexName is the header used for the index when a table is written out.
const IndexName = "timestamp"

type Table struct {
	columns []string
	index   []time.Time
	rows    [][]Value
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{columns: append([]string(nil), columns...)}
}

// Append adds a row. values must line up with Columns.
func (t *Table) Append(ts time.Time, values ...Value) error {
	if len(values) != len(t.columns) {
		return fmt.Errorf("append row: got %d values for %d columns", len(values), len(t.columns))
	}
	t.index = append(t.index, ts.UTC())
	t.rows = append(t.rows, append([]Value(nil), values...))
	return nil
}

func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Times returns the row index.
func (t *Table) Times() []time.Time {
	return append([]time.Time(nil), t.index...)
}

// Len is the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Width is the number of data columns, excluding the index.
func (t *Table) Width() int {
	return len(t.columns)
}

// Row returns the timestamp and cells of row i.
func (t *Table) Row(i int) (time.Time, []Value) {
	return t.index[i], append([]Value(nil), t.rows[i]...)
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns all cells of one column.
func (t *Table) Column(name string) ([]Value, bool) {
	ci := t.ColumnIndex(name)
	if ci < 0 {
		return nil, false
	}
	out := make([]Value, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[ci]
	}
	return out, true
}

// At returns the cell at row i in column name.
func (t *Table) At(i int, name string) (Value, bool) {
	ci := t.ColumnIndex(name)
	if ci < 0 || i < 0 || i >= len(t.rows) {
		return Value{}, false
	}
	return t.rows[i][ci], true
}

// First returns the earliest index entry of a sorted table.
func (t *Table) First() (time.Time, bool) {
	if len(t.index) == 0 {
		return time.Time{}, false
	}
	return t.index[0], true
}

// Sort orders rows by timestamp, keeping the relative order of equal stamps.
func (t *Table) Sort() {
	sort.Stable(byTime{t})
}

// IsSorted reports whether the index is non-decreasing.
func (t *Table) IsSorted() bool {
	return sort.IsSorted(byTime{t})
}

type byTime struct{ t *Table }

func (b byTime) Len() int           { return len(b.t.index) }
func (b byTime) Less(i, j int) bool { return b.t.index[i].Before(b.t.index[j]) }
func (b byTime) Swap(i, j int) {
	b.t.index[i], b.t.index[j] = b.t.index[j], b.t.index[i]
	b.t.rows[i], b.t.rows[j] = b.t.rows[j], b.t.rows[i]
}

// Sum adds the numeric cells of a column. ok is false when the column is
// missing or holds no numbers.
func (t *Table) Sum(name string) (sum float64, ok bool) {
	_, sum, n := t.numeric(name)
	return sum, n > 0
}

// Mean averages the numeric cells of a column, skipping nulls and text.
func (t *Table) Mean(name string) (float64, bool) {
	_, sum, n := t.numeric(name)
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func (t *Table) numeric(name string) (ci int, sum float64, n int) {
	ci = t.ColumnIndex(name)
	if ci < 0 {
		return ci, 0, 0
	}
	for _, row := range t.rows {
		if f, ok := row[ci].Float(); ok {
			sum += f
			n++
		}
	}
	return ci, sum, n
}

// WriteCSV writes the table with the index as the first column, in RFC 3339.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{IndexName}, t.columns...)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	record := make([]string, len(t.columns)+1)
	for i, row := range t.rows {
		record[0] = t.index[i].Format(time.RFC3339)
		for j, v := range row {
			record[j+1] = v.String()
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

type jsonRow struct {
	Timestamp time.Time `json:"timestamp"`
	Values    []Value   `json:"values"`
}

// MarshalJSON encodes the table as its columns and time-stamped rows.
func (t *Table) MarshalJSON() ([]byte, error) {
	rows := make([]jsonRow, len(t.rows))
	for i := range t.rows {
		rows[i] = jsonRow{Timestamp: t.index[i], Values: t.rows[i]}
	}
	columns := t.columns
	if columns == nil {
		columns = []string{}
	}
	return json.Marshal(struct {
		Columns []string  `json:"columns"`
		Rows    []jsonRow `json:"rows"`
	}{columns, rows})
}
