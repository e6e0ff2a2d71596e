package postgres

import (
	"context"
	"errors"

	"meditrack/internal/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// txKeyType keeps the transaction context value private to this package.
type txKeyType struct{}

var txKey txKeyType

var errNoTx = errors.New("no transaction in context: call repositories within UnitOfWork.WithinTx")

type unitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork returns a UnitOfWork bound to the given pool. Every service
// operation runs its repository calls through WithinTx so a request either
// commits all of its writes or none of them.
func NewUnitOfWork(pool *pgxpool.Pool) ports.UnitOfWork {
	return &unitOfWork{pool: pool}
}

// WithinTx runs fn inside a transaction carried through ctx. Nested calls
// join the transaction already in flight. A returned error or a panic rolls
// back; otherwise the transaction commits when fn returns.
func (uow *unitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := TxFromContext(ctx); ok {
		// already inside a transaction, join it
		return fn(ctx)
	}

	tx, err := uow.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	done := false
	defer func() {
		if !done {
			// fn panicked; roll back before the panic unwinds further
			_ = tx.Rollback(ctx)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		done = true
		_ = tx.Rollback(ctx)
		return err
	}

	done = true
	return tx.Commit(ctx)
}

// TxFromContext reports the transaction carried by ctx, if any.
func TxFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey).(pgx.Tx)
	return tx, ok
}

// MustTxFromContext is TxFromContext for repository methods, which are only
// ever called inside WithinTx.
func MustTxFromContext(ctx context.Context) (pgx.Tx, error) {
	tx, ok := TxFromContext(ctx)
	if !ok {
		return nil, errNoTx
	}
	return tx, nil
}
