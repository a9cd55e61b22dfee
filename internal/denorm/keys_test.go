package denorm

import (
	"encoding/json"
	"testing"
)

func TestKeyPolicy_Key(t *testing.T) {
	p := DefaultKeyPolicy()
	tests := []struct {
		name   string
		codes  []string
		want   string
		wantOK bool
	}{
		{name: "nil", codes: nil, want: "", wantOK: false},
		{name: "empty", codes: []string{}, want: "", wantOK: true},
		{name: "sentinel_root", codes: []string{"TOTAL", "08", "08900"}, want: "08,08900", wantOK: true},
		{name: "mixed_case_sentinel", codes: []string{"Total", "01"}, want: "01", wantOK: true},
		{name: "only_sentinel", codes: []string{"TOTAL"}, want: "", wantOK: true},
		{name: "joined_string", codes: []string{"08,08900"}, want: "08,08900", wantOK: true},
		{name: "joined_with_spaces", codes: []string{"TOTAL, 01, 0101"}, want: "01,0101", wantOK: true},
		{name: "no_partial_sentinel", codes: []string{"TOTALES", "1"}, want: "TOTALES,1", wantOK: true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, ok := p.Key(tc.codes)
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("Key(%q) = (%q,%v); want (%q,%v)", tc.codes, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

/*
TestKeyPolicy_SentinelFilteringScope covers the central join contract: a
hierarchy path ["TOTAL","08","08900"] and a fact code "08,08900" must build
the same key, whatever shape the fact-side code arrives in.
*/
func TestKeyPolicy_SentinelFilteringScope(t *testing.T) {
	p := DefaultKeyPolicy()
	hKey, ok := p.Key([]string{"TOTAL", "08", "08900"})
	if !ok {
		t.Fatalf("hierarchy key not ok")
	}
	facts := []any{
		"08,08900",
		[]string{"08", "08900"},
		[]string{"08,08900"},
		[]string{"TOTAL", "08", "08900"},
		[]any{"08", json.Number("08900")},
	}
	for _, f := range facts {
		fKey, ok := p.CellKey(f)
		if !ok || fKey != hKey {
			t.Errorf("CellKey(%#v) = (%q,%v); want (%q,true)", f, fKey, ok, hKey)
		}
	}
}

func TestKeyPolicy_CustomDelimiterAndSentinels(t *testing.T) {
	p := KeyPolicy{Delimiter: "|", Sentinels: []string{"P1_00"}}
	got, _ := p.Key([]string{"P1_00", "A|B"})
	if got != "A|B" {
		t.Fatalf("Key = %q; want A|B", got)
	}
	if _, ok := p.CellKey(nil); ok {
		t.Fatalf("nil cell must not produce a key")
	}
	var typedNil []string
	if _, ok := p.CellKey(typedNil); ok {
		t.Fatalf("nil code list must not produce a key")
	}
	if k, _ := p.CellKey(json.Number("7")); k != "7" {
		t.Fatalf("CellKey(number) = %q", k)
	}
}
