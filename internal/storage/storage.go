// Package storage persists output tables in a SQL database. Backends
// (postgres, mssql, sqlite) register a Factory and a DDL bootstrapper at
// init time; import statflat/internal/storage/all to enable them.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config selects a backend and its target table.
type Config struct {
	Kind  string
	DSN   string
	Table string
}

// Repository is what every backend provides.
type Repository interface {
	// CopyFrom bulk-inserts rows aligned to columns and returns the number
	// of rows inserted.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	// Exec runs a single statement, typically DDL.
	Exec(ctx context.Context, sql string) error
	Close()
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// Kinds lists the registered backends.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens a Repository for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown kind %q (registered: %v)", cfg.Kind, Kinds())
	}
	repo, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", cfg.Kind, err)
	}
	return repo, nil
}
