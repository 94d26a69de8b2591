// internal/repository/postgres/db.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	xerrors "lubripro-service/internal/pkg/errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxTxAttempts = 5

type DB struct {
	pool *pgxpool.Pool
}

func NewDB(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

func (db *DB) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return db.pool.Begin(ctx)
}

func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// RunSerializable executes fn inside a SERIALIZABLE transaction and retries
// it on serialization failures and deadlocks, up to maxTxAttempts. fn may
// run more than once: it must be free of irreversible side effects outside
// the transactional handles it is given.
func (db *DB) RunSerializable(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	var lastErr error

	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		err = fn(ctx, tx)
		if err == nil {
			err = tx.Commit(ctx)
			if err == nil {
				return nil
			}
		} else {
			_ = tx.Rollback(ctx)
		}

		if !isRetryableTxError(err) {
			return err
		}

		lastErr = err
		// Small linear backoff before contending again.
		select {
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w: %v", xerrors.ErrConflictRetryExhausted, lastErr)
}

// isRetryableTxError reports whether err is a serialization failure (40001)
// or deadlock (40P01), the two conditions Postgres asks clients to retry.
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
