// Package denorm turns a query's fact rows into a wide table by joining
// every dimension's code against its flattened classification tree.
package denorm

import (
	"statflat/internal/schema"
	"statflat/internal/table"
)

// CodeColumn names the derived join key column of a dimension.
func CodeColumn(alias string) string { return alias + "_code" }

// BuildFactTable lays out the raw fact rows as one column per dimension
// alias and one per measure, in declared order, followed by one
// <alias>_code column per dimension.
//
// Dimension and measure cells are stored as schema.Cell. A code column
// holds the structured cell's code list, or nil for scalar cells.
func BuildFactTable(hierarchies []schema.HierarchyRef, measures []string, rows [][]schema.Cell, queryID string) (*table.Table, error) {
	width := len(hierarchies) + len(measures)
	cols := make([]string, 0, width+len(hierarchies))
	for _, h := range hierarchies {
		cols = append(cols, h.Alias)
	}
	cols = append(cols, measures...)
	for _, h := range hierarchies {
		cols = append(cols, CodeColumn(h.Alias))
	}
	// Columns are resolved by name, so every name must be unique.
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if seen[c] {
			return nil, &SchemaMismatchError{QueryID: queryID, Row: -1, Want: width, Column: c}
		}
		seen[c] = true
	}
	if len(rows) == 0 {
		return nil, &SchemaMismatchError{QueryID: queryID, Row: -1, Want: width}
	}

	out := &table.Table{Columns: cols, Rows: make([][]any, 0, len(rows))}
	for i, cells := range rows {
		if len(cells) != width {
			return nil, &SchemaMismatchError{QueryID: queryID, Row: i, Want: width, Got: len(cells)}
		}
		row := make([]any, len(cols))
		for j, c := range cells {
			row[j] = c
		}
		for d := range hierarchies {
			c := cells[d]
			if c.Kind == schema.CellStructured && c.Codes != nil {
				row[width+d] = append([]string(nil), c.Codes...)
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}
