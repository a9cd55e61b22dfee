package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"statflat/internal/metrics"
)

// CopyFn inserts rows aligned to columns and returns the number inserted.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadBatches drains rows from in, groups them into batches of batchSize
// and calls copyFn per non-empty batch. It returns the total reported by
// copyFn and the first error. A progress line is logged per batch.
func LoadBatches(
	ctx context.Context,
	columns []string,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	return loadBatches(ctx, "", columns, in, batchSize, copyFn)
}

func loadBatches(
	ctx context.Context,
	job string,
	columns []string,
	in <-chan []any,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("storage: batchSize must be > 0")
	}
	if copyFn == nil {
		return 0, fmt.Errorf("storage: copyFn must not be nil")
	}

	var (
		total    int64
		batches  int64
		batch    = make([][]any, 0, batchSize)
		start    = time.Now()
		lastTime = start
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n
		batch = batch[:0]
		if err != nil {
			log.Printf("stage=store event=copy_failed inserted=%d total=%d err=%v", n, total, err)
			return err
		}
		batches++
		metrics.RecordBatches(job, 1)

		now := time.Now()
		rps := float64(0)
		if d := now.Sub(lastTime); d > 0 {
			rps = float64(n) / d.Seconds()
		}
		log.Printf("stage=store batch=%d rps=%.0f inserted=%d total=%d elapsed=%s",
			batches, rps, n, total, now.Sub(start).Truncate(time.Millisecond))
		lastTime = now
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		case row, ok := <-in:
			if !ok {
				if err := flush(); err != nil {
					return total, err
				}
				return total, nil
			}
			batch = append(batch, row)
			if len(batch) >= batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
	}
}
