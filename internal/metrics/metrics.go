// Package metrics records operational metrics for statflat runs behind a
// small pluggable Backend. The default backend is a no-op, so callers never
// check whether metrics are configured. Concrete systems live in
// subpackages (prompush, datadog).
package metrics

import (
	"sync"
	"time"
)

// Metric names. Backends route on these.
const (
	StepTotal           = "statflat_step_total"
	StepDurationSeconds = "statflat_step_duration_seconds"
	RowsTotal           = "statflat_rows_total"
	BatchesTotal        = "statflat_batches_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a duration style value.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one execution of a pipeline step and records its
// duration. Steps are "fetch_query", "fetch_hierarchy", "flatten",
// "denormalize", "export" and "store".
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRow increments a row counter for job and kind. Kinds in use:
//   - "fact"       rows decoded from the query result
//   - "output"     rows in the denormalized table
//   - "unmatched"  fact rows whose key found no hierarchy node
//   - "ambiguous"  fact rows that hit a colliding key
//   - "inserted"   rows written to storage
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordBatches increments the storage batch counter for job.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{"job": job})
}
