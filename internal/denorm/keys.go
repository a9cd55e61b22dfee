package denorm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// KeyPolicy is the single join key rule shared by the fact side and the
// hierarchy side of every join.
//
// A key is built by trimming every code, splitting codes that already hold
// the delimiter, dropping empty parts and sentinel codes, and joining what is
// left with the delimiter. Sentinels are removed on both sides.
type KeyPolicy struct {
	Delimiter string
	Sentinels []string
}

// DefaultKeyPolicy joins with "," and treats "Total" and "TOTAL" as
// sentinels.
func DefaultKeyPolicy() KeyPolicy {
	return KeyPolicy{Delimiter: ",", Sentinels: []string{"Total", "TOTAL"}}
}

func (p KeyPolicy) delimiter() string {
	if p.Delimiter == "" {
		return ","
	}
	return p.Delimiter
}

// IsSentinel reports whether code is one of the policy's placeholders.
func (p KeyPolicy) IsSentinel(code string) bool {
	for _, s := range p.Sentinels {
		if code == s {
			return true
		}
	}
	return false
}

// Key builds the join key of a code path. ok is false only for a nil path,
// which never matches anything. A path made only of sentinels yields "".
func (p KeyPolicy) Key(codes []string) (key string, ok bool) {
	if codes == nil {
		return "", false
	}
	d := p.delimiter()
	parts := make([]string, 0, len(codes))
	for _, c := range codes {
		for _, part := range strings.Split(c, d) {
			part = strings.TrimSpace(part)
			if part == "" || p.IsSentinel(part) {
				continue
			}
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, d), true
}

// CellKey builds the join key of a fact-side code value as stored in an
// <alias>_code column.
func (p KeyPolicy) CellKey(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case []string:
		if x == nil {
			return "", false
		}
		return p.Key(x)
	case string:
		return p.Key([]string{x})
	case json.Number:
		return p.Key([]string{x.String()})
	case []any:
		codes := make([]string, 0, len(x))
		for _, e := range x {
			if e != nil {
				codes = append(codes, fmt.Sprint(e))
			}
		}
		return p.Key(codes)
	default:
		return p.Key([]string{fmt.Sprint(x)})
	}
}
