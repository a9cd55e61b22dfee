package hierarchy

import (
	"regexp"
	"strconv"

	"statflat/internal/table"
)

// KeyFunc turns a code path into a join key. ok is false when the path
// carries no key at all.
type KeyFunc func(codes []string) (key string, ok bool)

// AmbiguousKey is a join key produced by more than one row. Rows holds the
// row positions in traversal order; the first one wins lookups.
type AmbiguousKey struct {
	Key  string
	Rows []int
}

// Table is the flattened form of one dimension's tree, indexed by join key.
type Table struct {
	Dimension string
	Rows      []PathRow

	keys      []string
	depth     int
	index     map[string]int
	ambiguous []AmbiguousKey
}

// NewTable indexes rows by key(row.CodePath). On key collisions the first
// row in traversal order is kept and the collision is recorded.
func NewTable(dimension string, rows []PathRow, key KeyFunc) *Table {
	t := &Table{
		Dimension: dimension,
		Rows:      rows,
		keys:      make([]string, len(rows)),
		index:     make(map[string]int, len(rows)),
	}
	dup := map[string]int{}
	for i, r := range rows {
		if d := r.Level(); d > t.depth {
			t.depth = d
		}
		k, ok := key(r.CodePath)
		if !ok {
			continue
		}
		t.keys[i] = k
		first, seen := t.index[k]
		if !seen {
			t.index[k] = i
			continue
		}
		if j, ok := dup[k]; ok {
			t.ambiguous[j].Rows = append(t.ambiguous[j].Rows, i)
			continue
		}
		dup[k] = len(t.ambiguous)
		t.ambiguous = append(t.ambiguous, AmbiguousKey{Key: k, Rows: []int{first, i}})
	}
	return t
}

// Len returns the number of flattened rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Depth is the longest code path in the table.
func (t *Table) Depth() int {
	if t == nil {
		return 0
	}
	return t.depth
}

// Lookup returns the first row whose join key equals key.
func (t *Table) Lookup(key string) (PathRow, bool) {
	if t == nil {
		return PathRow{}, false
	}
	i, ok := t.index[key]
	if !ok {
		return PathRow{}, false
	}
	return t.Rows[i], true
}

// Ambiguous lists keys shared by several rows, ordered by first occurrence.
func (t *Table) Ambiguous() []AmbiguousKey {
	if t == nil {
		return nil
	}
	return t.ambiguous
}

// ToTable renders the flattened rows as Variable, id, COD_combination,
// Des1..DesN. Shorter paths are padded with nil.
func (t *Table) ToTable() *table.Table {
	cols := []string{"Variable", "id", "COD_combination"}
	for k := 1; k <= t.Depth(); k++ {
		cols = append(cols, "Des"+strconv.Itoa(k))
	}
	out := table.New(cols...)
	if t == nil {
		return out
	}
	for i, r := range t.Rows {
		row := make([]any, len(cols))
		row[0] = r.Dimension
		row[1] = r.NodeID
		row[2] = t.keys[i]
		for k, l := range r.LevelLabels {
			row[3+k] = l
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

var shortNameRE = regexp.MustCompile(`D(?:_AA)?_(.*?)_0`)

// ShortName derives the level column prefix of a dimension alias:
// D_AA_TERRITORIO_0 gives TERRITORIO, D_SEXO_0 gives SEXO. Aliases outside
// that convention are returned unchanged.
func ShortName(alias string) string {
	m := shortNameRE.FindStringSubmatch(alias)
	if len(m) < 2 || m[1] == "" {
		return alias
	}
	return m[1]
}

// LevelColumn names level k (1-based) of a dimension.
func LevelColumn(alias string, k int) string {
	return ShortName(alias) + strconv.Itoa(k)
}
