// Package hierarchy flattens classification trees into path-keyed rows and
// indexes them for joining against fact rows.
package hierarchy

import (
	"statflat/internal/schema"
)

// PathRow is one flattened node: the codes and labels of every ancestor from
// the root down to and including the node itself.
type PathRow struct {
	Dimension   string
	NodeID      string
	CodePath    []string
	LevelLabels []string
}

// Level returns the depth of the node (root = 1).
func (r PathRow) Level() int { return len(r.CodePath) }

type frame struct {
	node   *schema.Node
	codes  []string
	labels []string
}

// Flatten walks the tree rooted at root in pre-order and emits one row per
// node, leaves and intermediate levels alike. Siblings are visited in
// declaration order. A nil root yields no rows.
//
// The walk uses an explicit stack, so tree depth is bounded only by memory.
// Every returned row owns its slices.
func Flatten(dimension string, root *schema.Node) []PathRow {
	if root == nil {
		return nil
	}
	var rows []PathRow
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n := f.node
		codes := make([]string, len(f.codes)+1)
		copy(codes, f.codes)
		codes[len(f.codes)] = n.Code
		labels := make([]string, len(f.labels)+1)
		copy(labels, f.labels)
		labels[len(f.labels)] = n.Label

		rows = append(rows, PathRow{
			Dimension:   dimension,
			NodeID:      n.ID,
			CodePath:    codes,
			LevelLabels: labels,
		})

		if n.IsLeaf {
			continue
		}
		// Reverse push keeps declaration order on pop.
		for i := len(n.Children) - 1; i >= 0; i-- {
			if c := n.Children[i]; c != nil {
				stack = append(stack, frame{node: c, codes: codes, labels: labels})
			}
		}
	}
	return rows
}
