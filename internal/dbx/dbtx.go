// Package dbx provides tiny DB abstractions shared by repositories:
// a minimal interface (DBTX) implemented by both *sql.DB and *sql.Tx,
// and helpers to run functions inside a transaction.
package dbx

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// SQLSTATE codes the services react to.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	sqlStateUniqueViolation      = "23505"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx begins a transaction, runs fn with a transactional handle, and then
// commits on success or rolls back on error/panic. Panics are rethrown.
//
// Typical use:
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}

// SerializableRetries bounds how many times WithSerializableTx re-runs fn
// after a serialization failure.
var SerializableRetries uint64 = 5

// serializableBackoff is a seam for tests.
var serializableBackoff = func() retry.Backoff {
	return retry.WithMaxRetries(SerializableRetries, retry.NewExponential(5*time.Millisecond))
}

// WithSerializableTx runs fn inside a SERIALIZABLE transaction. When the
// database aborts the transaction with a serialization failure or deadlock,
// the whole transaction is retried from scratch, so fn must be safe to re-run.
// Any other error is returned as is.
func WithSerializableTx(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx DBTX) error) error {
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	return retry.Do(ctx, serializableBackoff(), func(ctx context.Context) error {
		err := WithTx(ctx, db, opts, fn)
		if IsSerializationFailure(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// IsSerializationFailure reports whether err carries SQLSTATE 40001 or 40P01.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
}

// IsUniqueViolation reports whether err carries SQLSTATE 23505.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation
}
