package storage

import (
	"context"
	"fmt"
	"sync"

	"statflat/internal/ddl"
)

// DDLBootstrapper applies backend-specific DDL for def via repo.Exec. It
// must be idempotent.
type DDLBootstrapper func(ctx context.Context, repo Repository, def ddl.TableDef) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the bootstrapper for kind.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// DialectBootstrapper returns a DDLBootstrapper that renders def with d.
func DialectBootstrapper(d ddl.Dialect) DDLBootstrapper {
	return func(ctx context.Context, repo Repository, def ddl.TableDef) error {
		sql, err := d.BuildCreateTableSQL(def)
		if err != nil {
			return err
		}
		return repo.Exec(ctx, sql)
	}
}

// EnsureTable creates def through the bootstrapper registered for kind.
func EnsureTable(ctx context.Context, kind string, repo Repository, def ddl.TableDef) error {
	ddlMu.RLock()
	fn, ok := ddlFns[kind]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("storage: no DDL bootstrapper registered for kind %q", kind)
	}
	if err := fn(ctx, repo, def); err != nil {
		return fmt.Errorf("storage: ensure table %s: %w", def.FQN, err)
	}
	return nil
}
