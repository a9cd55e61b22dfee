package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CellKind tags the shape of a fact cell. It is decided once, at decode time.
type CellKind uint8

const (
	// CellScalar is a bare code or bare measure value.
	CellScalar CellKind = iota
	// CellStructured is an object carrying a code and/or a value.
	CellStructured
)

func (k CellKind) String() string {
	if k == CellStructured {
		return "structured"
	}
	return "scalar"
}

// Cell is one value of a fact row.
//
// For structured cells Codes holds the "cod"/"code" field (a single code or
// a list of codes; nil when the field is absent), Label the "des"/"label"
// field and Value the "val"/"value" field. Raw keeps the whole object.
// For scalar cells only Value is set.
type Cell struct {
	Kind  CellKind
	Codes []string
	Label string
	Value any
	Raw   map[string]any
}

// Scalar builds a scalar cell.
func Scalar(v any) Cell { return Cell{Kind: CellScalar, Value: v} }

// Structured builds a structured cell with the given codes.
func Structured(codes ...string) Cell {
	return Cell{Kind: CellStructured, Codes: codes}
}

// UnmarshalJSON decodes a cell keeping numbers as json.Number.
func (c *Cell) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("schema: cell: %w", err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		*c = Scalar(v)
		return nil
	}
	out := Cell{Kind: CellStructured, Raw: obj}
	code, ok := obj["cod"]
	if !ok {
		code, ok = obj["code"]
	}
	if ok {
		out.Codes = codeList(code)
	}
	if s, ok := obj["des"].(string); ok {
		out.Label = s
	} else if s, ok := obj["label"].(string); ok {
		out.Label = s
	}
	if val, ok := obj["val"]; ok {
		out.Value = val
	} else {
		out.Value = obj["value"]
	}
	*c = out
	return nil
}

// MarshalJSON writes structured cells back as their raw object.
func (c Cell) MarshalJSON() ([]byte, error) {
	if c.Kind == CellScalar {
		return json.Marshal(c.Value)
	}
	if c.Raw != nil {
		return json.Marshal(c.Raw)
	}
	obj := map[string]any{}
	if c.Codes != nil {
		obj["cod"] = c.Codes
	}
	if c.Label != "" {
		obj["des"] = c.Label
	}
	if c.Value != nil {
		obj["val"] = c.Value
	}
	return json.Marshal(obj)
}

func codeList(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return []string{x}
	case json.Number:
		return []string{x.String()}
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			switch s := e.(type) {
			case string:
				out = append(out, s)
			case json.Number:
				out = append(out, s.String())
			case nil:
			default:
				out = append(out, fmt.Sprint(s))
			}
		}
		return out
	default:
		return []string{fmt.Sprint(x)}
	}
}
