package denorm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"statflat/internal/schema"
	"statflat/internal/table"
)

// MeasureOptions controls how measure values are rendered.
type MeasureOptions struct {
	// RenderText renders every measure as a string using DecimalSeparator.
	// When false values keep their decoded type (json.Number stays exact).
	RenderText bool
	// DecimalSeparator replaces "." in rendered numbers. Defaults to ",".
	DecimalSeparator string
}

// ExtractMeasures replaces every measure cell by its bare value and moves
// the measure columns after all other columns. Relative order is kept
// within both groups.
func ExtractMeasures(t *table.Table, measures []string, opts MeasureOptions) (*table.Table, error) {
	out := t.Clone()
	sep := opts.DecimalSeparator
	if sep == "" {
		sep = ","
	}
	for _, m := range measures {
		i := out.Index(m)
		if i < 0 {
			return nil, fmt.Errorf("denorm: unknown measure column %q", m)
		}
		for _, row := range out.Rows {
			v := row[i]
			if c, ok := v.(schema.Cell); ok {
				v = c.Value
			}
			if opts.RenderText {
				v = RenderNumber(v, sep)
			}
			row[i] = v
		}
	}
	return out.MoveToEnd(measures), nil
}

// RenderNumber renders v as text with sep as decimal separator. nil stays
// nil.
func RenderNumber(v any, sep string) any {
	var s string
	switch x := v.(type) {
	case nil:
		return nil
	case json.Number:
		s = x.String()
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(x), 'f', -1, 32)
	case string:
		s = x
	default:
		s = fmt.Sprint(x)
	}
	return strings.Replace(s, ".", sep, 1)
}
