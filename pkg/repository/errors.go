package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes translated by MapError.
const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
)

// ErrConstraint marks a row rejected by a CHECK constraint.
var ErrConstraint = errors.New("constraint violated")

// Code returns the SQLSTATE of a PostgreSQL error, or "" for any other error.
func Code(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// MapError translates driver errors into the caller's sentinels. No rows
// becomes notFound, a unique violation becomes duplicate and a check
// violation wraps ErrConstraint; the last two name the constraint. Other
// errors are returned unchanged.
func MapError(err error, notFound, duplicate error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case codeUniqueViolation:
		return violation(duplicate, pgErr)
	case codeCheckViolation:
		return violation(ErrConstraint, pgErr)
	}
	return err
}

func violation(sentinel error, pgErr *pgconn.PgError) error {
	if pgErr.ConstraintName == "" {
		return sentinel
	}
	return fmt.Errorf("%w: %s", sentinel, pgErr.ConstraintName)
}
