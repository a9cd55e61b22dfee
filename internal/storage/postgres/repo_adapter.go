package postgres

import (
	"context"

	"statflat/internal/ddl"
	"statflat/internal/storage"
)

// newRepository is a test hook.
var newRepository = NewRepository

// wrappedRepo adds Close to *Repository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

var _ storage.Repository = (*wrappedRepo)(nil)

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
	storage.RegisterDDL("postgres", storage.DialectBootstrapper(ddl.Postgres))
}
