// Package table is the in-memory, column-ordered table passed between the
// pipeline stages. A nil cell is a missing value.
package table

import "fmt"

// Table is a rectangular set of rows with named columns.
type Table struct {
	Columns []string
	Rows    [][]any
}

// New returns an empty table with the given columns.
func New(cols ...string) *Table {
	return &Table{Columns: append([]string(nil), cols...)}
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Index returns the position of column name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Append adds a row. The row must have one value per column.
func (t *Table) Append(row []any) error {
	if len(row) != len(t.Columns) {
		return fmt.Errorf("table: row has %d values, want %d", len(row), len(t.Columns))
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Clone returns a deep copy of the row slices. Cell values are shared.
func (t *Table) Clone() *Table {
	out := &Table{Columns: append([]string(nil), t.Columns...), Rows: make([][]any, len(t.Rows))}
	for i, row := range t.Rows {
		out.Rows[i] = append([]any(nil), row...)
	}
	return out
}

// Select returns a new table with exactly cols, in that order.
func (t *Table) Select(cols []string) (*Table, error) {
	idx := make([]int, len(cols))
	for i, c := range cols {
		idx[i] = t.Index(c)
		if idx[i] < 0 {
			return nil, fmt.Errorf("table: unknown column %q", c)
		}
	}
	out := &Table{Columns: append([]string(nil), cols...), Rows: make([][]any, len(t.Rows))}
	for r, row := range t.Rows {
		nr := make([]any, len(idx))
		for i, j := range idx {
			nr[i] = row[j]
		}
		out.Rows[r] = nr
	}
	return out, nil
}

// Drop returns a new table without the named columns. Unknown names are
// ignored.
func (t *Table) Drop(cols ...string) *Table {
	drop := make(map[string]bool, len(cols))
	for _, c := range cols {
		drop[c] = true
	}
	keep := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	out, _ := t.Select(keep)
	return out
}

// MoveToEnd returns a new table where cols are moved after every other
// column. Relative order is preserved within both groups; unknown names are
// ignored.
func (t *Table) MoveToEnd(cols []string) *Table {
	tail := make(map[string]bool, len(cols))
	for _, c := range cols {
		tail[c] = true
	}
	order := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !tail[c] {
			order = append(order, c)
		}
	}
	for _, c := range t.Columns {
		if tail[c] {
			order = append(order, c)
		}
	}
	out, _ := t.Select(order)
	return out
}

// Rename renames columns in place using fn. Returning the same name keeps
// the column unchanged.
func (t *Table) Rename(fn func(string) string) {
	for i, c := range t.Columns {
		t.Columns[i] = fn(c)
	}
}

// EmptyColumns reports which of cols hold no value in any row. A table
// without rows reports every candidate as empty.
func (t *Table) EmptyColumns(cols []string) []string {
	var out []string
	for _, c := range cols {
		i := t.Index(c)
		if i < 0 {
			continue
		}
		empty := true
		for _, row := range t.Rows {
			if row[i] != nil {
				empty = false
				break
			}
		}
		if empty {
			out = append(out, c)
		}
	}
	return out
}
