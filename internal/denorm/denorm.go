package denorm

import (
	"fmt"
	"io"
	"log"

	"statflat/internal/hierarchy"
	"statflat/internal/table"
)

// Logger is the minimal logging surface used by this package.
// *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...any)
}

// Dimension is one fold input: the alias of the fact column and its
// flattened tree. A nil or empty Table skips the dimension; Err, when set,
// explains why the tree is missing.
type Dimension struct {
	Alias string
	Table *hierarchy.Table
	Err   error
}

// Options configures Denormalize.
type Options struct {
	Policy KeyPolicy
	Logger Logger
}

// DimensionReport summarizes one fold.
type DimensionReport struct {
	Dimension      string
	Matched        int
	Unmatched      int
	AmbiguousKeys  int
	AmbiguousHits  int
	LevelColumns   []string
	DroppedColumns []string
	Skipped        bool
}

// Report summarizes a Denormalize call. Warnings holds one
// *EmptyHierarchyError per skipped dimension and one
// *AmbiguousJoinKeyWarning per ambiguous key hit by the fact rows.
type Report struct {
	Rows       int
	Dimensions []DimensionReport
	Warnings   []error
}

// Denormalize folds every dimension into the fact table, in order, and
// returns a table holding only level columns followed by the measures.
//
// fact must carry an <alias>_code column per dimension and every measure
// column. The row count never changes.
func Denormalize(fact *table.Table, dims []Dimension, measures []string, opts Options) (*table.Table, Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	policy := opts.Policy
	if policy.Delimiter == "" && policy.Sentinels == nil {
		policy = DefaultKeyPolicy()
	}

	keep := make([]string, 0, len(dims)+len(measures))
	for _, d := range dims {
		keep = append(keep, CodeColumn(d.Alias))
	}
	keep = append(keep, measures...)
	cur, err := fact.Select(keep)
	if err != nil {
		return nil, Report{}, fmt.Errorf("denorm: project fact table: %w", err)
	}

	rep := Report{Rows: fact.Len()}
	for _, d := range dims {
		if d.Table.Len() == 0 {
			reason := "hierarchy has no nodes"
			if d.Err != nil {
				reason = "hierarchy unavailable"
			}
			w := &EmptyHierarchyError{Dimension: d.Alias, Reason: reason, Err: d.Err}
			logger.Printf("stage=denorm dim=%s warn=%q", d.Alias, w.Error())
			rep.Warnings = append(rep.Warnings, w)
			rep.Dimensions = append(rep.Dimensions, DimensionReport{Dimension: d.Alias, Skipped: true, Unmatched: cur.Len()})
			cur = cur.Drop(CodeColumn(d.Alias))
			continue
		}

		next, dr, warns, err := fold(cur, d.Alias, d.Table, policy)
		if err != nil {
			return nil, rep, err
		}
		for _, w := range warns {
			logger.Printf("stage=denorm dim=%s ambiguous_key=%q nodes=%v fact_rows=%d", d.Alias, w.Key, w.NodeIDs, w.FactRows)
			rep.Warnings = append(rep.Warnings, w)
		}
		logger.Printf("stage=denorm dim=%s matched=%d unmatched=%d levels=%d dropped=%d",
			d.Alias, dr.Matched, dr.Unmatched, len(dr.LevelColumns), len(dr.DroppedColumns))
		rep.Dimensions = append(rep.Dimensions, dr)
		cur = next.Drop(CodeColumn(d.Alias))
	}

	return cur.MoveToEnd(measures), rep, nil
}

// Fold left-joins one dimension onto t using the <alias>_code column. Level
// columns <ShortName(alias)><k> are appended for k = 1..Depth; the ones that
// stay empty for every row are dropped again. Existing columns, including
// the code column, are left untouched.
func Fold(t *table.Table, alias string, h *hierarchy.Table, policy KeyPolicy) (*table.Table, DimensionReport, error) {
	out, dr, _, err := fold(t, alias, h, policy)
	return out, dr, err
}

func fold(t *table.Table, alias string, h *hierarchy.Table, policy KeyPolicy) (*table.Table, DimensionReport, []*AmbiguousJoinKeyWarning, error) {
	dr := DimensionReport{Dimension: alias}
	ci := t.Index(CodeColumn(alias))
	if ci < 0 {
		return nil, dr, nil, fmt.Errorf("denorm: fact table has no %q column", CodeColumn(alias))
	}

	depth := h.Depth()
	levels := make([]string, depth)
	taken := make(map[string]bool, len(t.Columns)+depth)
	for _, c := range t.Columns {
		taken[c] = true
	}
	for k := range levels {
		levels[k] = uniqueColumn(taken, hierarchy.LevelColumn(alias, k+1), alias, k+1)
		taken[levels[k]] = true
	}

	ambiguous := map[string]hierarchy.AmbiguousKey{}
	for _, a := range h.Ambiguous() {
		ambiguous[a.Key] = a
	}
	dr.AmbiguousKeys = len(ambiguous)
	hits := map[string]int{}
	var hitOrder []string

	width := len(t.Columns)
	out := &table.Table{
		Columns: append(append(make([]string, 0, width+depth), t.Columns...), levels...),
		Rows:    make([][]any, len(t.Rows)),
	}
	for r, row := range t.Rows {
		nr := make([]any, width+depth)
		copy(nr, row)
		out.Rows[r] = nr

		key, ok := policy.CellKey(row[ci])
		if !ok {
			dr.Unmatched++
			continue
		}
		pr, found := h.Lookup(key)
		if !found {
			dr.Unmatched++
			continue
		}
		dr.Matched++
		for k, label := range pr.LevelLabels {
			nr[width+k] = label
		}
		if _, amb := ambiguous[key]; amb {
			dr.AmbiguousHits++
			if hits[key] == 0 {
				hitOrder = append(hitOrder, key)
			}
			hits[key]++
		}
	}

	dr.DroppedColumns = out.EmptyColumns(levels)
	if len(dr.DroppedColumns) > 0 {
		out = out.Drop(dr.DroppedColumns...)
	}
	dropped := make(map[string]bool, len(dr.DroppedColumns))
	for _, c := range dr.DroppedColumns {
		dropped[c] = true
	}
	for _, c := range levels {
		if !dropped[c] {
			dr.LevelColumns = append(dr.LevelColumns, c)
		}
	}

	var warns []*AmbiguousJoinKeyWarning
	for _, key := range hitOrder {
		a := ambiguous[key]
		ids := make([]string, len(a.Rows))
		for i, ri := range a.Rows {
			ids[i] = h.Rows[ri].NodeID
		}
		warns = append(warns, &AmbiguousJoinKeyWarning{Dimension: alias, Key: key, NodeIDs: ids, FactRows: hits[key]})
	}
	return out, dr, warns, nil
}

// uniqueColumn picks a level column name not in taken: the short name,
// then <alias><k>, then the short name with a _2, _3, ... suffix.
func uniqueColumn(taken map[string]bool, name, alias string, k int) string {
	if !taken[name] {
		return name
	}
	if full := fmt.Sprintf("%s%d", alias, k); !taken[full] {
		return full
	}
	for n := 2; ; n++ {
		if c := fmt.Sprintf("%s_%d", name, n); !taken[c] {
			return c
		}
	}
}
