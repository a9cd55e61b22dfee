// Package export writes tables to spreadsheet files: .xlsx through excelize
// and .csv through encoding/csv.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"statflat/internal/hierarchy"
	"statflat/internal/table"
)

// Format is an output file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// DefaultSheet is used when Options.Sheet is empty.
const DefaultSheet = "data"

// Options controls WriteFile.
type Options struct {
	// Format overrides detection from the file extension.
	Format Format
	// Sheet names the xlsx worksheet.
	Sheet string
	// Comma is the csv field separator; defaults to ';' so that values
	// rendered with a decimal comma stay in one field.
	Comma rune
}

// FormatFromPath detects the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("export: unsupported file extension %q", filepath.Ext(path))
	}
}

// WriteFile writes t to path in the requested or detected format.
func WriteFile(path string, t *table.Table, opts Options) error {
	format := opts.Format
	if format == "" {
		var err error
		if format, err = FormatFromPath(path); err != nil {
			return err
		}
	}

	// A failed write leaves path untouched.
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	tmp := f.Name()
	err = f.Chmod(0o644)
	if err == nil {
		err = writeFormat(f, t, format, opts)
	}
	if cerr := f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("export: close %s: %w", path, cerr)
	}
	if err == nil {
		if rerr := os.Rename(tmp, path); rerr != nil {
			err = fmt.Errorf("export: rename %s: %w", path, rerr)
		}
	}
	if err != nil {
		os.Remove(tmp)
	}
	return err
}

func writeFormat(w io.Writer, t *table.Table, format Format, opts Options) error {
	switch format {
	case FormatXLSX:
		return WriteXLSX(w, t, opts.Sheet)
	case FormatCSV:
		return WriteCSV(w, t, opts.Comma)
	default:
		return fmt.Errorf("export: unknown format %q", format)
	}
}

// WriteXLSX writes t as a single worksheet with a header row.
func WriteXLSX(w io.Writer, t *table.Table, sheet string) error {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("export: name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("export: stream writer: %w", err)
	}

	header := make([]any, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("export: header row: %w", err)
	}
	for r, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return fmt.Errorf("export: row %d: %w", r, err)
		}
		vals := make([]any, len(row))
		for i, v := range row {
			vals[i] = xlsxValue(v)
		}
		if err := sw.SetRow(cell, vals); err != nil {
			return fmt.Errorf("export: row %d: %w", r, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("export: flush: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: write xlsx: %w", err)
	}
	return nil
}

// WriteCSV writes t with a header row. nil cells are written as empty
// fields.
func WriteCSV(w io.Writer, t *table.Table, comma rune) error {
	cw := csv.NewWriter(w)
	if comma == 0 {
		comma = ';'
	}
	cw.Comma = comma
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("export: csv header: %w", err)
	}
	rec := make([]string, len(t.Columns))
	for r, row := range t.Rows {
		for i, v := range row {
			rec[i] = Text(v)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("export: csv row %d: %w", r, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: csv flush: %w", err)
	}
	return nil
}

// WriteHierarchies writes the flattened trees to one file, one block of
// rows per dimension. When dimension is not empty only that dimension is
// written; it is an error if no table carries that name.
func WriteHierarchies(path string, tables []*hierarchy.Table, dimension string, opts Options) error {
	out, err := HierarchyTable(tables, dimension)
	if err != nil {
		return err
	}
	if opts.Sheet == "" {
		opts.Sheet = "hierarchies"
	}
	return WriteFile(path, out, opts)
}

// HierarchyTable stacks the selected flattened trees into one table with
// columns Variable, id, COD_combination, Des1..DesN where N is the deepest
// selected tree.
func HierarchyTable(tables []*hierarchy.Table, dimension string) (*table.Table, error) {
	var picked []*hierarchy.Table
	depth := 0
	for _, h := range tables {
		if h == nil || (dimension != "" && h.Dimension != dimension) {
			continue
		}
		picked = append(picked, h)
		if h.Depth() > depth {
			depth = h.Depth()
		}
	}
	if dimension != "" && len(picked) == 0 {
		return nil, fmt.Errorf("export: no flattened hierarchy for dimension %q", dimension)
	}

	cols := []string{"Variable", "id", "COD_combination"}
	for k := 1; k <= depth; k++ {
		cols = append(cols, "Des"+strconv.Itoa(k))
	}
	out := table.New(cols...)
	for _, h := range picked {
		part := h.ToTable()
		for _, row := range part.Rows {
			full := make([]any, len(cols))
			copy(full, row)
			if err := out.Append(full); err != nil {
				return nil, fmt.Errorf("export: hierarchy %s: %w", h.Dimension, err)
			}
		}
	}
	return out, nil
}

// Text renders a cell for text formats.
func Text(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case []string:
		return strings.Join(x, ",")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// xlsxValue keeps numbers numeric in the worksheet.
func xlsxValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case string, bool, int, int64, float64:
		return x
	default:
		return Text(x)
	}
}
