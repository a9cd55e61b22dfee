package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func feed(rows ...[]any) <-chan []any {
	ch := make(chan []any, len(rows))
	for _, r := range rows {
		ch <- r
	}
	close(ch)
	return ch
}

func levelRows(n int) [][]any {
	out := make([][]any, n)
	for i := range out {
		out[i] = []any{"All", "North", "7", "run-1", "job", "h"}
	}
	return out
}

/*
TestLoadBatches_Sizes checks how rows are split into batches and that the
total is the sum of what copyFn reported.
*/
func TestLoadBatches_Sizes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		rows      int
		batchSize int
		want      []int
	}{
		{"empty", 0, 5, nil},
		{"one partial", 3, 5, []int{3}},
		{"exact", 4, 2, []int{2, 2}},
		{"remainder", 7, 3, []int{3, 3, 1}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var sizes []int
			copyFn := func(_ context.Context, cols []string, rows [][]any) (int64, error) {
				if len(cols) != 6 {
					t.Errorf("columns = %v", cols)
				}
				sizes = append(sizes, len(rows))
				return int64(len(rows)), nil
			}
			cols := []string{"REGION1", "REGION2", "Poblacion", "run_id", "job", "row_hash"}
			total, err := LoadBatches(context.Background(), cols, feed(levelRows(tc.rows)...), tc.batchSize, copyFn)
			if err != nil {
				t.Fatalf("LoadBatches: %v", err)
			}
			if total != int64(tc.rows) || !reflect.DeepEqual(sizes, tc.want) {
				t.Fatalf("total=%d sizes=%v; want %d %v", total, sizes, tc.rows, tc.want)
			}
		})
	}
}

func TestLoadBatches_InvalidArgs(t *testing.T) {
	t.Parallel()
	ok := func(context.Context, []string, [][]any) (int64, error) { return 0, nil }
	if _, err := LoadBatches(context.Background(), nil, feed(), 0, ok); err == nil {
		t.Fatalf("expected error for batch size 0")
	}
	if _, err := LoadBatches(context.Background(), nil, feed(), 10, nil); err == nil {
		t.Fatalf("expected error for nil copyFn")
	}
}

// A failed batch stops the load; rows copied before it still count.
func TestLoadBatches_CopyErrorStops(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("constraint violated")
	calls := 0
	copyFn := func(_ context.Context, _ []string, rows [][]any) (int64, error) {
		calls++
		if calls == 2 {
			return 0, wantErr
		}
		return int64(len(rows)), nil
	}
	total, err := LoadBatches(context.Background(), []string{"c"}, feed(levelRows(9)...), 3, copyFn)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v; want %v", err, wantErr)
	}
	if total != 3 || calls != 2 {
		t.Fatalf("total=%d calls=%d; want 3 and 2", total, calls)
	}
}

func TestLoadBatches_ContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan []any)

	errCh := make(chan error, 1)
	go func() {
		_, err := LoadBatches(ctx, []string{"c"}, in, 2, func(context.Context, []string, [][]any) (int64, error) {
			return 0, nil
		})
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v; want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("LoadBatches did not return after cancel")
	}
}
