package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"statflat/internal/datasource/statapi"
	"statflat/internal/denorm"
	"statflat/internal/schema"
	"statflat/internal/table"
)

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// fakeFetcher serves documents from maps and counts concurrent hierarchy
// fetches.
type fakeFetcher struct {
	queries map[string]*schema.Query
	trees   map[string]*schema.Node
	fail    map[string]error
	delay   time.Duration

	mu       sync.Mutex
	inFlight int32
	peak     int32
}

func (f *fakeFetcher) FetchQuery(_ context.Context, url string) (*schema.Query, error) {
	if err := f.fail[url]; err != nil {
		return nil, err
	}
	q, ok := f.queries[url]
	if !ok {
		return nil, errors.New("no such query")
	}
	return q, nil
}

func (f *fakeFetcher) FetchHierarchy(ctx context.Context, url string) (*schema.Node, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	f.mu.Lock()
	if n > f.peak {
		f.peak = n
	}
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.fail[url]; err != nil {
		return nil, err
	}
	return f.trees[url], nil
}

func regionTree() *schema.Node {
	return &schema.Node{ID: "r", Code: "TOTAL", Label: "All", Children: []*schema.Node{{
		ID: "n", Code: "01", Label: "North",
		Children: []*schema.Node{{ID: "ne", Code: "0101", Label: "North-East", IsLeaf: true}},
	}}}
}

func yearTree() *schema.Node {
	return &schema.Node{ID: "y", Code: "TOTAL", Label: "Años", Children: []*schema.Node{
		{ID: "y1", Code: "2023", Label: "2023", IsLeaf: true},
		{ID: "y2", Code: "2024", Label: "2024", IsLeaf: true},
	}}
}

func val(v string) schema.Cell {
	return schema.Cell{Kind: schema.CellStructured, Value: json.Number(v)}
}

func twoDimQuery() *schema.Query {
	return &schema.Query{
		Hierarchies: []schema.HierarchyRef{{Alias: "REGION", URL: "h/region"}, {Alias: "YEAR", URL: "h/year"}},
		Measures:    []schema.Measure{{Name: "Población total"}},
		Data: [][]schema.Cell{
			{schema.Structured("TOTAL,01,0101"), schema.Structured("2023"), val("42.5")},
			{schema.Structured("01"), schema.Structured("TOTAL", "2024"), val("7")},
			{schema.Structured("99"), schema.Structured("2023"), val("1")},
		},
		MetaInfo: schema.MetaInfo{ID: "Q1"},
	}
}

/*
TestRun_TwoDimensions folds two dimensions and checks column order, one
output row per fact row, and nulls for the unmatched region code.
*/
func TestRun_TwoDimensions(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{trees: map[string]*schema.Node{"h/region": regionTree(), "h/year": yearTree()}}
	r := &Runner{Fetcher: f, Logger: nopLogger{}, Options: Options{Job: "test"}}

	res, err := r.Run(context.Background(), twoDimQuery())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantCols := []string{"REGION1", "REGION2", "REGION3", "YEAR1", "YEAR2", "Población total"}
	if !reflect.DeepEqual(res.Table.Columns, wantCols) {
		t.Fatalf("Columns = %v; want %v", res.Table.Columns, wantCols)
	}
	want := [][]any{
		{"All", "North", "North-East", "Años", "2023", json.Number("42.5")},
		{"All", "North", nil, "Años", "2024", json.Number("7")},
		{nil, nil, nil, "Años", "2023", json.Number("1")},
	}
	if !reflect.DeepEqual(res.Table.Rows, want) {
		t.Fatalf("Rows =\n%v\nwant\n%v", res.Table.Rows, want)
	}
	if res.QueryID != "Q1" || res.RunID == "" {
		t.Fatalf("ids = %q %q", res.QueryID, res.RunID)
	}
	if h, ok := res.Hierarchy("YEAR"); !ok || h.Len() != 3 {
		t.Fatalf("Hierarchy(YEAR) = %v, %v", h, ok)
	}
	if _, ok := res.Hierarchy("NOPE"); ok {
		t.Fatalf("Hierarchy(NOPE) found")
	}
	if res.Report.Dimensions[0].Unmatched != 1 {
		t.Fatalf("REGION report = %+v", res.Report.Dimensions[0])
	}
}

func TestRun_NormalizeAndRender(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{trees: map[string]*schema.Node{"h/region": regionTree(), "h/year": yearTree()}}
	r := &Runner{Fetcher: f, Logger: nopLogger{}, Options: Options{
		NormalizeColumnNames: true,
		Measures:             denorm.MeasureOptions{RenderText: true, DecimalSeparator: ","},
	}}
	res, err := r.Run(context.Background(), twoDimQuery())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if last := res.Table.Columns[len(res.Table.Columns)-1]; last != "Poblacion_total" {
		t.Fatalf("measure column = %q", last)
	}
	if got := res.Table.Rows[0][len(res.Table.Columns)-1]; got != "42,5" {
		t.Fatalf("rendered measure = %v", got)
	}
}

func TestNormalizeColumns_Collisions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "accent_then_plain", in: []string{"Año", "Ano"}, want: []string{"Ano", "Ano_2"}},
		{name: "plain_then_accent", in: []string{"Ano", "Año"}, want: []string{"Ano", "Año"}},
		{name: "suffix_already_used", in: []string{"Año", "Ano_2", "Ano"}, want: []string{"Ano", "Ano_2", "Ano_3"}},
		{name: "spaces", in: []string{"Total pop", "Total_pop", "Total  pop"}, want: []string{"Total_pop", "Total_pop_2", "Total  pop"}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tb := &table.Table{Columns: append([]string(nil), tc.in...)}
			normalizeColumns(tb)
			if !reflect.DeepEqual(tb.Columns, tc.want) {
				t.Fatalf("Columns = %v; want %v", tb.Columns, tc.want)
			}
		})
	}
}

/*
TestRun_FailedHierarchySkipsDimension: a fetch error for one tree is a
warning, not a failure. The dimension contributes no columns.
*/
func TestRun_FailedHierarchySkipsDimension(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{
		trees: map[string]*schema.Node{"h/region": regionTree()},
		fail:  map[string]error{"h/year": errors.New("503")},
	}
	r := &Runner{Fetcher: f, Logger: nopLogger{}}
	res, err := r.Run(context.Background(), twoDimQuery())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := []string{"REGION1", "REGION2", "REGION3", "Población total"}; !reflect.DeepEqual(res.Table.Columns, want) {
		t.Fatalf("Columns = %v; want %v", res.Table.Columns, want)
	}
	if res.Table.Len() != 3 {
		t.Fatalf("rows = %d; want 3", res.Table.Len())
	}
	var eh *denorm.EmptyHierarchyError
	if len(res.Report.Warnings) != 1 || !errors.As(res.Report.Warnings[0], &eh) || eh.Dimension != "YEAR" {
		t.Fatalf("warnings = %v", res.Report.Warnings)
	}
	if !errors.Is(res.Report.Warnings[0], denorm.ErrEmptyHierarchy) {
		t.Fatalf("warning does not match ErrEmptyHierarchy")
	}
	if h, _ := res.Hierarchy("YEAR"); h != nil {
		t.Fatalf("failed dimension exposes a table")
	}
}

func TestRun_SchemaMismatchIsFatal(t *testing.T) {
	t.Parallel()

	q := twoDimQuery()
	q.Data[1] = q.Data[1][:2]
	r := &Runner{Fetcher: &fakeFetcher{}, Logger: nopLogger{}}
	_, err := r.Run(context.Background(), q)
	if !errors.Is(err, denorm.ErrSchemaMismatch) {
		t.Fatalf("err = %v; want ErrSchemaMismatch", err)
	}
	var sm *denorm.SchemaMismatchError
	if !errors.As(err, &sm) || sm.QueryID != "Q1" {
		t.Fatalf("err = %#v; want query id Q1", err)
	}
}

func TestRun_FetchWorkersBound(t *testing.T) {
	t.Parallel()

	q := &schema.Query{MetaInfo: schema.MetaInfo{ID: "wide"}}
	trees := map[string]*schema.Node{}
	row := []schema.Cell{}
	for _, a := range []string{"A", "B", "C", "D", "E", "F"} {
		q.Hierarchies = append(q.Hierarchies, schema.HierarchyRef{Alias: a, URL: "h/" + a})
		trees["h/"+a] = &schema.Node{ID: a, Code: "TOTAL", Label: a, IsLeaf: true}
		row = append(row, schema.Structured("TOTAL"))
	}
	q.Data = [][]schema.Cell{row}

	f := &fakeFetcher{trees: trees, delay: 20 * time.Millisecond}
	r := &Runner{Fetcher: f, Logger: nopLogger{}, Options: Options{FetchWorkers: 2}}
	res, err := r.Run(context.Background(), q)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if f.peak > 2 {
		t.Fatalf("peak concurrent fetches = %d; want <= 2", f.peak)
	}
	if len(res.Table.Columns) != 6 || res.Table.Rows[0][5] != "F" {
		t.Fatalf("table = %v / %v", res.Table.Columns, res.Table.Rows)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeFetcher{trees: map[string]*schema.Node{}, delay: time.Second}
	r := &Runner{Fetcher: f, Logger: nopLogger{}}
	if _, err := r.Run(ctx, twoDimQuery()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v; want context.Canceled", err)
	}
}

func TestRunList_ContinuesAfterFailure(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{
		queries: map[string]*schema.Query{"q/1": twoDimQuery(), "q/3": twoDimQuery()},
		trees:   map[string]*schema.Node{"h/region": regionTree(), "h/year": yearTree()},
		fail:    map[string]error{"q/2": errors.New("404")},
	}
	r := &Runner{Fetcher: f, Logger: nopLogger{}}

	var handled []string
	err := r.RunList(context.Background(), []string{"q/1", "q/2", "q/3"}, func(url string, res *Result) error {
		handled = append(handled, url)
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "q/2") {
		t.Fatalf("err = %v; want failure for q/2", err)
	}
	if !reflect.DeepEqual(handled, []string{"q/1", "q/3"}) {
		t.Fatalf("handled = %v", handled)
	}
}

/*
TestRunURL_FromFiles runs the real statapi fetcher against documents on
disk, as a replay of a dumped run would.
*/
func TestRunURL_FromFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("query.json", `{
	  "hierarchies": [{"alias": "REGION", "url": "region.json"}],
	  "measures": [{"des": "Population"}],
	  "data": [[{"cod": ["TOTAL", "01", "0101"]}, {"val": 42.5}], [{"cod": "01"}, {"val": 3}]],
	  "metainfo": {"id": 4521}
	}`)
	write("region.json", `{"data": {"id": 1, "cod": "TOTAL", "label": "All", "children": [
	  {"id": 2, "cod": "01", "label": "North", "children": [
	    {"id": 3, "cod": "0101", "label": "North-East", "isLastLevel": true}]}]}}`)

	fetcher := statapi.New(nil)
	fetcher.BaseDir = dir
	r := &Runner{Fetcher: fetcher, Logger: nopLogger{}}

	res, err := r.RunURL(context.Background(), filepath.Join(dir, "query.json"))
	if err != nil {
		t.Fatalf("RunURL: %v", err)
	}
	if res.QueryID != "4521" {
		t.Fatalf("QueryID = %q", res.QueryID)
	}
	want := [][]any{
		{"All", "North", "North-East", json.Number("42.5")},
		{"All", "North", nil, json.Number("3")},
	}
	if !reflect.DeepEqual(res.Table.Rows, want) {
		t.Fatalf("Rows = %v; want %v", res.Table.Rows, want)
	}
}
