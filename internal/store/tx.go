package store

import (
	"context"
	"database/sql"
	"fmt"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is a record transaction. Hooks registered with OnCommit run only after
// the transaction commits.
type Tx struct {
	tx    *sql.Tx
	hooks []func(context.Context)
}

// OnCommit registers fn to run after a successful commit. Hooks run in
// registration order and never run on rollback.
func (t *Tx) OnCommit(fn func(context.Context)) {
	if fn == nil {
		return
	}
	t.hooks = append(t.hooks, fn)
}

// InTx runs fn inside one transaction. Post-commit hooks receive a context
// that is not cancelled with ctx.
func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	tx := &Tx{tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return err
	}

	s.runHooks(context.WithoutCancel(ctx), tx.hooks)
	return nil
}

func (s *Store) runHooks(ctx context.Context, hooks []func(context.Context)) {
	for i, hook := range hooks {
		func() {
			defer func() {
				if p := recover(); p != nil {
					s.logger.Error("post-commit hook panicked", "hook", i, "panic", fmt.Sprint(p))
				}
			}()
			hook(ctx)
		}()
	}
}
