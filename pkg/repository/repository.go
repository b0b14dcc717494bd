// Package repository holds the small database/sql helpers shared by the
// lock store and report history.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Querier reads rows. *sql.DB, *sql.Tx and *sql.Conn satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor runs statements. *sql.DB, *sql.Tx and *sql.Conn satisfy it.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Scanner is the Scan method shared by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanFunc reads one row into a T.
type ScanFunc[T any] func(Scanner) (T, error)

// InTx runs fn in a transaction that commits when fn returns nil. The
// transaction is rolled back on every other exit, panics included.
func InTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Get scans the single row of query. A missing row is sql.ErrNoRows.
func Get[T any](ctx context.Context, q Querier, scan ScanFunc[T], query string, args ...any) (T, error) {
	return scan(q.QueryRowContext(ctx, query, args...))
}

// Find is Get for rows that may be absent; it reports found=false instead
// of sql.ErrNoRows.
func Find[T any](ctx context.Context, q Querier, scan ScanFunc[T], query string, args ...any) (T, bool, error) {
	v, err := Get(ctx, q, scan, query, args...)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		var zero T
		return zero, false, nil
	case err != nil:
		return v, false, err
	}
	return v, true, nil
}

// Select scans every row of query. No rows yields an empty, non-nil slice.
func Select[T any](ctx context.Context, q Querier, scan ScanFunc[T], query string, args ...any) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Exec runs a statement and returns the number of affected rows.
func Exec(ctx context.Context, e Executor, query string, args ...any) (int64, error) {
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ExecOne runs a statement that must touch at least one row. Touching none
// is sql.ErrNoRows.
func ExecOne(ctx context.Context, e Executor, query string, args ...any) error {
	n, err := Exec(ctx, e, query, args...)
	if err == nil && n == 0 {
		err = sql.ErrNoRows
	}
	return err
}
