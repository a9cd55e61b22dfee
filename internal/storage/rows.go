package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/zeebo/xxh3"

	"statflat/internal/ddl"
	"statflat/internal/table"
)

// Stamp identifies the run that produced a table.
type Stamp struct {
	RunID string
	Job   string
}

// Rows converts t into insertable rows: every cell as text (nil stays
// NULL), followed by run_id, job and row_hash. The returned columns match
// ddl.FromColumns(t.Columns).
func Rows(t *table.Table, s Stamp) ([]string, [][]any) {
	cols := append(append([]string{}, t.Columns...), ddl.ColRunID, ddl.ColJob, ddl.ColRowHash)
	out := make([][]any, 0, t.Len())
	var sb strings.Builder
	for _, row := range t.Rows {
		r := make([]any, 0, len(cols))
		sb.Reset()
		for i, v := range row {
			if i > 0 {
				sb.WriteByte(0x1f)
			}
			if v == nil {
				r = append(r, nil)
				sb.WriteByte(0)
				continue
			}
			txt := cellText(v)
			r = append(r, txt)
			sb.WriteString(txt)
		}
		r = append(r, s.RunID, s.Job, rowHash(sb.String()))
		out = append(out, r)
	}
	return cols, out
}

// rowHash fingerprints a row's content so that reruns can be deduplicated
// downstream.
func rowHash(s string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(s))
}

func cellText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case []string:
		return strings.Join(x, ",")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// LoadOptions controls LoadTable.
type LoadOptions struct {
	Kind       string
	FQN        string
	AutoCreate bool
	BatchSize  int
	Stamp      Stamp
}

// LoadTable writes t into opts.FQN through repo, creating the table first
// when AutoCreate is set. Rows are streamed to the batch loader through a
// channel so that a slow database applies backpressure.
func LoadTable(ctx context.Context, repo Repository, t *table.Table, opts LoadOptions) (int64, error) {
	if repo == nil {
		return 0, fmt.Errorf("storage: nil repository")
	}
	cols, rows := Rows(t, opts.Stamp)
	if opts.AutoCreate {
		d, err := DialectFor(opts.Kind)
		if err != nil {
			return 0, err
		}
		if err := EnsureTable(ctx, opts.Kind, repo, ddl.FromColumns(opts.FQN, t.Columns, d)); err != nil {
			return 0, err
		}
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = 5000
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	in := make(chan []any, batch)
	go func() {
		defer close(in)
		for _, r := range rows {
			select {
			case in <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return loadBatches(ctx, opts.Stamp.Job, cols, in, batch, repo.CopyFrom)
}

// DialectFor maps a storage kind to its DDL dialect.
func DialectFor(kind string) (ddl.Dialect, error) {
	switch kind {
	case "postgres":
		return ddl.Postgres, nil
	case "mssql":
		return ddl.MSSQL, nil
	case "sqlite":
		return ddl.SQLite, nil
	default:
		return ddl.Dialect{}, fmt.Errorf("storage: no dialect for kind %q", kind)
	}
}
