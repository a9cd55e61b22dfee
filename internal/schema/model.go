// Package schema holds the documents exchanged with the statistical data
// service: the query result (fact rows plus dimension and measure metadata)
// and the classification trees referenced by each dimension.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// HierarchyRef names one dimension of a query and where its tree lives.
type HierarchyRef struct {
	Alias string `json:"alias"`
	URL   string `json:"url"`
}

// Measure is one measured quantity of a query.
type Measure struct {
	Name string
}

// UnmarshalJSON accepts both {"des": ...} and {"name": ...}.
func (m *Measure) UnmarshalJSON(b []byte) error {
	var raw struct {
		Des  string `json:"des"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("schema: measure: %w", err)
	}
	m.Name = raw.Name
	if m.Name == "" {
		m.Name = raw.Des
	}
	return nil
}

// MetaInfo carries the query identifier.
type MetaInfo struct {
	ID string
}

func (m *MetaInfo) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("schema: metainfo: %w", err)
	}
	m.ID = rawText(raw.ID)
	return nil
}

// Query is a decoded query result document.
type Query struct {
	Hierarchies []HierarchyRef `json:"hierarchies"`
	Measures    []Measure      `json:"measures"`
	Data        [][]Cell       `json:"data"`
	MetaInfo    MetaInfo       `json:"metainfo"`
}

// Summary describes the shape of a query without its data.
type Summary struct {
	QueryID  string
	Aliases  []string
	URLs     []string
	Measures []string
	Rows     int
}

// Elements summarizes the query: dimension aliases and urls, measure names,
// query id and the number of fact rows.
func (q *Query) Elements() Summary {
	s := Summary{QueryID: q.MetaInfo.ID, Rows: len(q.Data)}
	for _, h := range q.Hierarchies {
		s.Aliases = append(s.Aliases, h.Alias)
		s.URLs = append(s.URLs, h.URL)
	}
	for _, m := range q.Measures {
		s.Measures = append(s.Measures, m.Name)
	}
	return s
}

// MeasureNames returns the declared measure names in order.
func (q *Query) MeasureNames() []string {
	out := make([]string, len(q.Measures))
	for i, m := range q.Measures {
		out[i] = m.Name
	}
	return out
}

// Node is one node of a classification tree.
type Node struct {
	ID       string
	Code     string
	Label    string
	IsLeaf   bool
	Children []*Node

	// Service bookkeeping; not used for flattening.
	ParentID string
	LevelID  string
}

type nodeJSON struct {
	ID          json.RawMessage `json:"id"`
	Cod         json.RawMessage `json:"cod"`
	Code        json.RawMessage `json:"code"`
	Label       string          `json:"label"`
	Des         string          `json:"des"`
	IsLastLevel *bool           `json:"isLastLevel"`
	IsLeaf      *bool           `json:"isLeaf"`
	Children    []*Node         `json:"children"`
	ParentID    json.RawMessage `json:"parentId"`
	LevelID     json.RawMessage `json:"levelId"`
}

// UnmarshalJSON accepts the service field names (cod, des, isLastLevel) as
// well as code, label and isLeaf. Numeric ids and codes are kept as text.
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("schema: node: %w", err)
	}
	n.ID = rawText(raw.ID)
	n.Code = rawText(raw.Cod)
	if n.Code == "" {
		n.Code = rawText(raw.Code)
	}
	n.Label = raw.Label
	if n.Label == "" {
		n.Label = raw.Des
	}
	switch {
	case raw.IsLastLevel != nil:
		n.IsLeaf = *raw.IsLastLevel
	case raw.IsLeaf != nil:
		n.IsLeaf = *raw.IsLeaf
	}
	n.Children = raw.Children[:0:0]
	for _, c := range raw.Children {
		if c != nil {
			n.Children = append(n.Children, c)
		}
	}
	n.ParentID = rawText(raw.ParentID)
	n.LevelID = rawText(raw.LevelID)
	return nil
}

// rawText renders a JSON scalar as text: strings are unquoted, numbers and
// booleans keep their literal form, null and absent values become "".
func rawText(b json.RawMessage) string {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return ""
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			return s
		}
	}
	return strings.TrimSpace(string(b))
}
