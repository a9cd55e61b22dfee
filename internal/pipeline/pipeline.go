// Package pipeline runs one query end to end: fact table build, measure
// extraction, concurrent hierarchy fetch and flatten, then the sequential
// dimension folds.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"statflat/internal/denorm"
	"statflat/internal/hierarchy"
	"statflat/internal/metrics"
	"statflat/internal/schema"
	"statflat/internal/table"
	"statflat/internal/textnorm"
)

// Fetcher retrieves documents. *statapi.Fetcher implements it.
type Fetcher interface {
	FetchQuery(ctx context.Context, url string) (*schema.Query, error)
	FetchHierarchy(ctx context.Context, url string) (*schema.Node, error)
}

// Logger is satisfied by *log.Logger.
type Logger interface {
	Printf(format string, v ...any)
}

// Options configures a Runner.
type Options struct {
	// Job labels log lines and metrics.
	Job string

	Policy   denorm.KeyPolicy
	Measures denorm.MeasureOptions

	// FetchWorkers bounds concurrent hierarchy fetches. 0 means one per
	// dimension, capped at 8.
	FetchWorkers int

	// NormalizeColumnNames applies textnorm.ColumnName to output columns.
	NormalizeColumnNames bool
}

// Runner sequences the stages. It keeps no state between runs.
type Runner struct {
	Fetcher Fetcher
	Logger  Logger
	Options Options
}

// Result is the outcome of one run.
type Result struct {
	QueryID string
	RunID   string
	Summary schema.Summary

	// Table is the denormalized output: level columns, then measures.
	Table *table.Table

	// Hierarchies holds one flattened tree per dimension, in declaration
	// order; nil where the tree was unavailable.
	Hierarchies []*hierarchy.Table

	Report denorm.Report
}

// Hierarchy returns the flattened tree of the named dimension.
func (r *Result) Hierarchy(alias string) (*hierarchy.Table, bool) {
	for _, h := range r.Hierarchies {
		if h != nil && h.Dimension == alias {
			return h, true
		}
	}
	return nil, false
}

const maxDefaultWorkers = 8

func (r *Runner) logger() Logger {
	if r.Logger == nil {
		return log.Default()
	}
	return r.Logger
}

func (r *Runner) policy() denorm.KeyPolicy {
	p := r.Options.Policy
	if p.Delimiter == "" && p.Sentinels == nil {
		return denorm.DefaultKeyPolicy()
	}
	return p
}

// RunURL fetches the query at url and runs it.
func (r *Runner) RunURL(ctx context.Context, url string) (*Result, error) {
	start := time.Now()
	q, err := r.Fetcher.FetchQuery(ctx, url)
	metrics.RecordStep(r.Options.Job, "fetch_query", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch query: %w", err)
	}
	return r.Run(ctx, q)
}

// Run denormalizes q. Only a malformed fact payload or a canceled context
// fails the run; a missing or empty hierarchy skips its dimension with a
// warning in the report.
func (r *Runner) Run(ctx context.Context, q *schema.Query) (*Result, error) {
	if q == nil {
		return nil, errors.New("pipeline: nil query")
	}
	lg := r.logger()
	job := r.Options.Job
	policy := r.policy()
	sum := q.Elements()
	res := &Result{QueryID: sum.QueryID, RunID: uuid.NewString(), Summary: sum}
	lg.Printf("stage=start job=%s run_id=%s query=%s dims=%v measures=%v rows=%d",
		job, res.RunID, sum.QueryID, sum.Aliases, sum.Measures, sum.Rows)

	start := time.Now()
	fact, err := denorm.BuildFactTable(q.Hierarchies, sum.Measures, q.Data, sum.QueryID)
	if err == nil {
		fact, err = denorm.ExtractMeasures(fact, sum.Measures, r.Options.Measures)
	}
	metrics.RecordStep(job, "fact", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	metrics.RecordRow(job, "fact", int64(fact.Len()))

	dims, err := r.flattenAll(ctx, q.Hierarchies, policy)
	if err != nil {
		return nil, err
	}
	res.Hierarchies = make([]*hierarchy.Table, len(dims))
	for i, d := range dims {
		res.Hierarchies[i] = d.Table
	}

	start = time.Now()
	out, rep, err := denorm.Denormalize(fact, dims, sum.Measures, denorm.Options{Policy: policy, Logger: lg})
	metrics.RecordStep(job, "denormalize", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if r.Options.NormalizeColumnNames {
		normalizeColumns(out)
	}

	res.Table = out
	res.Report = rep
	var unmatched, ambiguous int
	for _, d := range rep.Dimensions {
		unmatched += d.Unmatched
		ambiguous += d.AmbiguousHits
	}
	metrics.RecordRow(job, "output", int64(out.Len()))
	metrics.RecordRow(job, "unmatched", int64(unmatched))
	metrics.RecordRow(job, "ambiguous", int64(ambiguous))
	lg.Printf("stage=done job=%s run_id=%s rows=%d cols=%d warnings=%d",
		job, res.RunID, out.Len(), len(out.Columns), len(rep.Warnings))
	return res, nil
}

// flattenAll fetches and flattens every dimension concurrently. Each
// goroutine owns one slot of the result. Fetch failures are recorded on the
// dimension; only cancellation aborts.
func (r *Runner) flattenAll(ctx context.Context, refs []schema.HierarchyRef, policy denorm.KeyPolicy) ([]denorm.Dimension, error) {
	dims := make([]denorm.Dimension, len(refs))
	if len(refs) == 0 {
		return dims, nil
	}
	workers := r.Options.FetchWorkers
	if workers <= 0 {
		workers = min(len(refs), maxDefaultWorkers)
	}

	lg := r.logger()
	job := r.Options.Job
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, ref := range refs {
		i, ref := i, ref
		g.Go(func() error {
			dims[i].Alias = ref.Alias

			start := time.Now()
			root, err := r.Fetcher.FetchHierarchy(gctx, ref.URL)
			metrics.RecordStep(job, "fetch_hierarchy", err, time.Since(start))
			if err != nil {
				if cerr := gctx.Err(); cerr != nil {
					return cerr
				}
				lg.Printf("stage=fetch dim=%s url=%s err=%v", ref.Alias, ref.URL, err)
				dims[i].Err = err
				return nil
			}

			start = time.Now()
			rows := hierarchy.Flatten(ref.Alias, root)
			h := hierarchy.NewTable(ref.Alias, rows, policy.Key)
			metrics.RecordStep(job, "flatten", nil, time.Since(start))
			lg.Printf("stage=flatten dim=%s nodes=%d depth=%d ambiguous_keys=%d",
				ref.Alias, h.Len(), h.Depth(), len(h.Ambiguous()))
			dims[i].Table = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("pipeline: fetch hierarchies: %w", err)
	}
	return dims, nil
}

// normalizeColumns applies textnorm.ColumnName, keeping the original name
// when the normalized one is already taken. A name still taken after that
// gets a _2, _3, ... suffix.
func normalizeColumns(t *table.Table) {
	seen := make(map[string]bool, len(t.Columns))
	t.Rename(func(c string) string {
		n := textnorm.ColumnName(c)
		if seen[n] || n == "" {
			n = c
		}
		for i, base := 2, n; seen[n]; i++ {
			n = fmt.Sprintf("%s_%d", base, i)
		}
		seen[n] = true
		return n
	})
}

// RunList runs every url in order. A failed query is logged and does not
// stop the others; handle is called for every successful result. The
// returned error joins all failures.
func (r *Runner) RunList(ctx context.Context, urls []string, handle func(url string, res *Result) error) error {
	var errs []error
	for _, u := range urls {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		res, err := r.RunURL(ctx, u)
		if err == nil && handle != nil {
			err = handle(u, res)
		}
		if err != nil {
			r.logger().Printf("stage=list url=%s err=%v", u, err)
			errs = append(errs, fmt.Errorf("%s: %w", u, err))
		}
	}
	return errors.Join(errs...)
}
