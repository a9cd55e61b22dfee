package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"statflat/internal/metrics"
)

// gather returns the gathered families of b keyed by name.
func gather(t *testing.T, b *Backend) map[string]*dto.MetricFamily {
	t.Helper()
	mfs, err := b.reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

// labelsOf flattens a metric's label pairs.
func labelsOf(m *dto.Metric) map[string]string {
	out := map[string]string{}
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		job     string
		url     string
		wantErr bool
		wantJob string
	}{
		{"no gateway", "population", "", true, ""},
		{"default job", "", "http://pushgateway:9091", false, "statflat"},
		{"explicit job", "population", "http://pushgateway:9091", false, "population"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			b, err := NewBackend(tc.job, tc.url)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v; wantErr %v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if b.jobName != tc.wantJob || b.gatewayURL != tc.url || b.reg == nil {
				t.Fatalf("backend = %+v", b)
			}
		})
	}
}

/*
TestBackend_Routes records one run's worth of metrics and checks that each
lands in the right collector with job stripped from the labels.
*/
func TestBackend_Routes(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("population", "http://pushgateway:9091")
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	ok := metrics.Labels{"job": "population", "step": "fetch_hierarchy", "status": "success"}
	b.IncCounter(metrics.StepTotal, 1, ok)
	b.IncCounter(metrics.StepTotal, 1, ok)
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.25, ok)
	b.ObserveHistogram(metrics.StepDurationSeconds, 0.75, ok)
	b.IncCounter(metrics.RowsTotal, 12, metrics.Labels{"job": "population", "kind": "output"})
	b.IncCounter(metrics.BatchesTotal, 3, metrics.Labels{"job": "population"})
	b.IncCounter("unknown_metric", 1, nil)
	b.ObserveHistogram(metrics.RowsTotal, 1, nil)

	fams := gather(t, b)
	if len(fams) != 4 {
		t.Fatalf("families = %d; want 4", len(fams))
	}

	step := fams[metrics.StepTotal].GetMetric()
	if len(step) != 1 || step[0].GetCounter().GetValue() != 2 {
		t.Fatalf("step counter = %v", step)
	}
	if got := labelsOf(step[0]); got["step"] != "fetch_hierarchy" || got["status"] != "success" || got["job"] != "" {
		t.Fatalf("step labels = %v", got)
	}

	dur := fams[metrics.StepDurationSeconds].GetMetric()[0].GetSummary()
	if dur.GetSampleCount() != 2 || dur.GetSampleSum() != 1.0 {
		t.Fatalf("duration summary count=%d sum=%v", dur.GetSampleCount(), dur.GetSampleSum())
	}

	rows := fams[metrics.RowsTotal].GetMetric()
	if len(rows) != 1 || rows[0].GetCounter().GetValue() != 12 || labelsOf(rows[0])["kind"] != "output" {
		t.Fatalf("rows = %v", rows)
	}
	if got := fams[metrics.BatchesTotal].GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Fatalf("batches = %v; want 3", got)
	}
}

func TestBackend_ZeroValueIsSafe(t *testing.T) {
	t.Parallel()
	var b Backend
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "store"})
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "fact"})
	b.IncCounter(metrics.BatchesTotal, 1, nil)
	b.ObserveHistogram(metrics.StepDurationSeconds, 1, nil)
}

func TestFlush(t *testing.T) {
	t.Parallel()

	type pushed struct {
		method, path string
		size         int
	}
	got := make(chan pushed, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- pushed{r.Method, r.URL.Path, len(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	b, err := NewBackend("population", srv.URL)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 5, metrics.Labels{"kind": "inserted"})
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	select {
	case p := <-got:
		if p.method != http.MethodPut || p.path != "/metrics/job/population" || p.size == 0 {
			t.Fatalf("push = %+v", p)
		}
	default:
		t.Fatalf("Flush sent nothing")
	}
}

func TestFlush_GatewayError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	b, err := NewBackend("population", srv.URL)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if err := b.Flush(); err == nil {
		t.Fatalf("Flush succeeded against a failing gateway")
	}
}

func BenchmarkIncCounterRow(b *testing.B) {
	backend, err := NewBackend("statflat", "http://example.com")
	if err != nil {
		b.Fatalf("NewBackend: %v", err)
	}
	labels := metrics.Labels{"kind": "fact"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.IncCounter(metrics.RowsTotal, 1, labels)
	}
}
