package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"statflat/internal/config"
	"statflat/internal/datasource/file"
	"statflat/internal/datasource/httpds"
	"statflat/internal/datasource/statapi"
	"statflat/internal/denorm"
	"statflat/internal/export"
	"statflat/internal/metrics"
	"statflat/internal/pipeline"
	"statflat/internal/storage"
)

// newRunner wires the fetcher and join policy from p.
func newRunner(p config.Pipeline, lg pipeline.Logger) *pipeline.Runner {
	return &pipeline.Runner{
		Fetcher: statapi.FromConfig(p, lg),
		Logger:  lg,
		Options: pipeline.Options{
			Job:    p.Job,
			Policy: denorm.KeyPolicy{Delimiter: p.Join.Delimiter, Sentinels: p.Join.Sentinels},
			Measures: denorm.MeasureOptions{
				RenderText:       p.Join.RenderText,
				DecimalSeparator: p.Join.DecimalSeparator,
			},
			FetchWorkers:         p.Runtime.FetchWorkers,
			NormalizeColumnNames: p.Join.NormalizeColumnNames,
		},
	}
}

// run processes source.list when set, source.url otherwise.
func run(ctx context.Context, p config.Pipeline, lg pipeline.Logger) error {
	params, err := p.Source.ParamMap()
	if err != nil {
		return err
	}
	urls := []string{p.Source.URL}
	if p.Source.List != "" {
		if urls, err = file.ReadList(p.Source.List); err != nil {
			return err
		}
	}
	for i, u := range urls {
		if urls[i], err = statapi.BuildURL(u, params); err != nil {
			return err
		}
	}

	sink, err := openSink(ctx, p)
	if err != nil {
		return err
	}
	defer sink.Close()

	r := newRunner(p, lg)
	multi := p.Source.List != ""
	return r.RunList(ctx, urls, func(url string, res *pipeline.Result) error {
		return sink.emit(ctx, p, res, url, multi, lg)
	})
}

// sink owns the optional database connection for the whole run.
type sink struct {
	repo     storage.Repository
	hierRepo storage.Repository
}

func openSink(ctx context.Context, p config.Pipeline) (*sink, error) {
	s := &sink{}
	if p.Storage.Kind == "" {
		return s, nil
	}
	var err error
	s.repo, err = storage.New(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DB.DSN, Table: p.Storage.DB.Table})
	if err != nil {
		return nil, err
	}
	if p.Storage.DB.HierarchyTable != "" {
		s.hierRepo, err = storage.New(ctx, storage.Config{Kind: p.Storage.Kind, DSN: p.Storage.DB.DSN, Table: p.Storage.DB.HierarchyTable})
		if err != nil {
			s.repo.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *sink) Close() {
	if s.repo != nil {
		s.repo.Close()
	}
	if s.hierRepo != nil {
		s.hierRepo.Close()
	}
}

// emit writes one result to every configured output.
func (s *sink) emit(ctx context.Context, p config.Pipeline, res *pipeline.Result, url string, multi bool, lg pipeline.Logger) error {
	opts := export.Options{Format: export.Format(p.Output.Format), Sheet: p.Output.Sheet, Comma: comma(p.Output.Comma)}

	if p.Output.Path != "" {
		path := outPathFor(p.Output.Path, url, multi)
		start := time.Now()
		err := export.WriteFile(path, res.Table, opts)
		metrics.RecordStep(p.Job, "export", err, time.Since(start))
		if err != nil {
			return err
		}
		lg.Printf("stage=export run_id=%s path=%s rows=%d", res.RunID, path, res.Table.Len())
	}
	if p.Output.HierarchiesPath != "" {
		path := outPathFor(p.Output.HierarchiesPath, url, multi)
		hopts := opts
		hopts.Sheet = ""
		if err := export.WriteHierarchies(path, res.Hierarchies, p.Output.HierarchyFilter, hopts); err != nil {
			return err
		}
		lg.Printf("stage=export run_id=%s path=%s hierarchy=%q", res.RunID, path, p.Output.HierarchyFilter)
	}

	if s.repo == nil {
		return nil
	}
	stamp := storage.Stamp{RunID: res.RunID, Job: p.Job}
	start := time.Now()
	n, err := storage.LoadTable(ctx, s.repo, res.Table, storage.LoadOptions{
		Kind:       p.Storage.Kind,
		FQN:        p.Storage.DB.Table,
		AutoCreate: p.Storage.DB.AutoCreateTable,
		BatchSize:  p.Storage.DB.BatchSize,
		Stamp:      stamp,
	})
	metrics.RecordStep(p.Job, "store", err, time.Since(start))
	metrics.RecordRow(p.Job, "inserted", n)
	if err != nil {
		return fmt.Errorf("store %s: %w", p.Storage.DB.Table, err)
	}
	lg.Printf("stage=store run_id=%s table=%s inserted=%d", res.RunID, p.Storage.DB.Table, n)

	if s.hierRepo != nil {
		ht, err := export.HierarchyTable(res.Hierarchies, "")
		if err != nil {
			return err
		}
		if _, err := storage.LoadTable(ctx, s.hierRepo, ht, storage.LoadOptions{
			Kind:       p.Storage.Kind,
			FQN:        p.Storage.DB.HierarchyTable,
			AutoCreate: p.Storage.DB.AutoCreateTable,
			BatchSize:  p.Storage.DB.BatchSize,
			Stamp:      stamp,
		}); err != nil {
			return fmt.Errorf("store %s: %w", p.Storage.DB.HierarchyTable, err)
		}
	}
	return nil
}

// outPathFor returns base for a single query. In list mode every query gets
// its own file next to base, named after the query URL.
func outPathFor(base, url string, multi bool) string {
	if !multi {
		return base
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(filepath.Base(base), ext)
	return filepath.Join(filepath.Dir(base), stem+"_"+httpds.SafeFilenameFromURL(url)+ext)
}

func comma(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}
