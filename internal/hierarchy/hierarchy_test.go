package hierarchy

import (
	"reflect"
	"strconv"
	"strings"
	"testing"

	"statflat/internal/schema"
)

func joinKey(codes []string) (string, bool) {
	if codes == nil {
		return "", false
	}
	return strings.Join(codes, ","), true
}

func regionTree() *schema.Node {
	return &schema.Node{
		ID: "r", Code: "TOTAL", Label: "All",
		Children: []*schema.Node{{
			ID: "n", Code: "01", Label: "North",
			Children: []*schema.Node{{ID: "ne", Code: "0101", Label: "North-East", IsLeaf: true}},
		}},
	}
}

func TestFlatten_RegionScenario(t *testing.T) {
	rows := Flatten("REGION", regionTree())
	want := [][]string{{"TOTAL"}, {"TOTAL", "01"}, {"TOTAL", "01", "0101"}}
	if len(rows) != len(want) {
		t.Fatalf("rows = %d; want %d", len(rows), len(want))
	}
	for i, r := range rows {
		if !reflect.DeepEqual(r.CodePath, want[i]) {
			t.Fatalf("row %d CodePath = %v; want %v", i, r.CodePath, want[i])
		}
		if r.Dimension != "REGION" {
			t.Fatalf("row %d Dimension = %q", i, r.Dimension)
		}
	}
	if got := rows[2].LevelLabels; !reflect.DeepEqual(got, []string{"All", "North", "North-East"}) {
		t.Fatalf("leaf labels = %v", got)
	}
}

// wideTree builds a tree where node at depth d has (d % 3) + 1 children, up
// to maxDepth levels, and returns the number of nodes created.
func wideTree(maxDepth int) (*schema.Node, int) {
	count := 0
	var build func(code string, depth int) *schema.Node
	build = func(code string, depth int) *schema.Node {
		count++
		n := &schema.Node{ID: code, Code: code, Label: "L" + code}
		if depth == maxDepth {
			n.IsLeaf = true
			return n
		}
		for i := 0; i < depth%3+1; i++ {
			n.Children = append(n.Children, build(code+"."+strconv.Itoa(i), depth+1))
		}
		return n
	}
	return build("0", 1), count
}

/*
TestFlatten_DepthAndMonotonicity checks that flatten emits exactly one row
per node, that the row's path length equals the node depth, and that every
non-root row extends the path of an earlier row by exactly one code.
*/
func TestFlatten_DepthAndMonotonicity(t *testing.T) {
	root, n := wideTree(6)
	rows := Flatten("D", root)
	if len(rows) != n {
		t.Fatalf("rows = %d; want one per node (%d)", len(rows), n)
	}

	seen := map[string][]string{}
	for i, r := range rows {
		// Codes encode depth as the number of dot-separated parts.
		depth := strings.Count(r.NodeID, ".") + 1
		if r.Level() != depth || len(r.LevelLabels) != depth {
			t.Fatalf("row %d (%s): path len %d labels %d; want %d", i, r.NodeID, r.Level(), len(r.LevelLabels), depth)
		}
		if depth > 1 {
			parent := strings.Join(r.CodePath[:depth-1], "/")
			labels, ok := seen[parent]
			if !ok {
				t.Fatalf("row %d (%s): parent path not emitted before child", i, r.NodeID)
			}
			if !reflect.DeepEqual(labels, r.LevelLabels[:depth-1]) {
				t.Fatalf("row %d: labels %v do not extend parent %v", i, r.LevelLabels, labels)
			}
		}
		seen[strings.Join(r.CodePath, "/")] = r.LevelLabels
	}
}

func TestFlatten_DeepChainDoesNotRecurse(t *testing.T) {
	const depth = 2000
	root := &schema.Node{Code: "c0"}
	cur := root
	for i := 1; i < depth; i++ {
		next := &schema.Node{Code: "c" + strconv.Itoa(i)}
		cur.Children = []*schema.Node{next}
		cur = next
	}
	rows := Flatten("CHAIN", root)
	if len(rows) != depth {
		t.Fatalf("rows = %d; want %d", len(rows), depth)
	}
	if got := rows[depth-1].Level(); got != depth {
		t.Fatalf("last level = %d; want %d", got, depth)
	}
}

func TestFlatten_StopsAtLeafAndNilRoot(t *testing.T) {
	if rows := Flatten("X", nil); rows != nil {
		t.Fatalf("nil root: rows = %v", rows)
	}
	root := &schema.Node{Code: "A", IsLeaf: true, Children: []*schema.Node{{Code: "B"}}}
	if rows := Flatten("X", root); len(rows) != 1 {
		t.Fatalf("leaf root with children: rows = %d; want 1", len(rows))
	}
}

/*
TestNewTable_AmbiguousSiblings checks that two siblings sharing code "X"
produce identical paths, that lookups pick the first in traversal order, and
that the collision is reported.
*/
func TestNewTable_AmbiguousSiblings(t *testing.T) {
	root := &schema.Node{
		ID: "p", Code: "P", Label: "Parent",
		Children: []*schema.Node{
			{ID: "x1", Code: "X", Label: "First", IsLeaf: true},
			{ID: "x2", Code: "X", Label: "Second", IsLeaf: true},
		},
	}
	tbl := NewTable("DIM", Flatten("DIM", root), joinKey)
	if tbl.Len() != 3 || tbl.Depth() != 2 {
		t.Fatalf("Len=%d Depth=%d; want 3, 2", tbl.Len(), tbl.Depth())
	}
	row, ok := tbl.Lookup("P,X")
	if !ok || row.NodeID != "x1" {
		t.Fatalf("Lookup = %+v, %v; want node x1", row, ok)
	}
	amb := tbl.Ambiguous()
	if len(amb) != 1 || amb[0].Key != "P,X" || !reflect.DeepEqual(amb[0].Rows, []int{1, 2}) {
		t.Fatalf("Ambiguous = %+v", amb)
	}
}

func TestToTable_PadsLevels(t *testing.T) {
	tbl := NewTable("REGION", Flatten("REGION", regionTree()), joinKey)
	out := tbl.ToTable()
	wantCols := []string{"Variable", "id", "COD_combination", "Des1", "Des2", "Des3"}
	if !reflect.DeepEqual(out.Columns, wantCols) {
		t.Fatalf("Columns = %v; want %v", out.Columns, wantCols)
	}
	if want := []any{"REGION", "r", "TOTAL", "All", nil, nil}; !reflect.DeepEqual(out.Rows[0], want) {
		t.Fatalf("Rows[0] = %v; want %v", out.Rows[0], want)
	}
	for i, want := range []string{"TOTAL", "TOTAL,01", "TOTAL,01,0101"} {
		if got := out.Rows[i][2]; got != want {
			t.Fatalf("Rows[%d] COD_combination = %v; want %q", i, got, want)
		}
		if _, ok := tbl.Lookup(want); !ok {
			t.Fatalf("Lookup(%q) missed", want)
		}
	}
}

func TestShortName(t *testing.T) {
	tests := map[string]string{
		"D_AA_TERRITORIO_0": "TERRITORIO",
		"D_SEXO_0":          "SEXO",
		"D_TEMPORAL_0":      "TEMPORAL",
		"REGION":            "REGION",
		"D__0":              "D__0",
		"X_D_EDAD_0_SUFFIX": "EDAD",
		"D_AA_GRUPO_EDAD_0": "GRUPO_EDAD",
	}
	for in, want := range tests {
		if got := ShortName(in); got != want {
			t.Errorf("ShortName(%q) = %q; want %q", in, got, want)
		}
	}
	if got := LevelColumn("D_SEXO_0", 2); got != "SEXO2" {
		t.Errorf("LevelColumn = %q", got)
	}
}
