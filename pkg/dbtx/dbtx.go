// Package dbtx is the transaction-in-context primitive the Outbox Store
// builds on (spec §4.2): append(tx, event) must run inside the caller's
// own business-mutation transaction, never open one of its own, so a
// rollback removes both the business change and the outbox row together.
package dbtx

import (
	"context"
	"database/sql"
)

type txKey struct{}

// Executor is satisfied by both *sql.DB and *sql.Tx, so callers that only
// need to run a query don't care whether they're inside a transaction.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ContextWithTx returns a copy of ctx carrying tx. A nil tx is valid and
// produces a context GetExecutor treats the same as one with no tx at all.
func ContextWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}

	return context.WithValue(ctx, txKey{}, tx)
}

// TxFromContext returns the *sql.Tx stored by ContextWithTx, or nil if
// none is present.
func TxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// GetExecutor returns the transaction in ctx if present, otherwise db
// itself. Every Outbox Store and Projection Engine write goes through this
// so the same code path works standalone or inside a caller's transaction.
func GetExecutor(ctx context.Context, db *sql.DB) Executor {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}

	return db
}

// RunInTransaction begins a transaction on db, stores it in ctx, and runs
// fn. fn's error rolls back; success commits. A panic inside fn rolls back
// and re-propagates the panic, matching the "caller surfaces this as a
// normal write error" failure mode in spec §4.2 for the non-panic path.
func RunInTransaction(ctx context.Context, db *sql.DB, fn func(ctx context.Context) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	committed := false

	defer func() {
		if committed {
			return
		}

		_ = tx.Rollback()
	}()

	txCtx := ContextWithTx(ctx, tx)

	if err := fn(txCtx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	committed = true

	return nil
}
