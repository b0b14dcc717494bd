package lock

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/JaimeStill/expedite/pkg/repository"
)

// PostgresStore keeps one row per variant in execution_locks. Acquisition is
// an upsert whose conflict branch only fires for stale rows, read back in
// the same transaction when it loses.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	acquireSQL = `
		INSERT INTO execution_locks (variant, holder, host, acquired_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (variant) DO UPDATE
			SET holder = EXCLUDED.holder,
				host = EXCLUDED.host,
				acquired_at = EXCLUDED.acquired_at
			WHERE execution_locks.acquired_at < $5
		RETURNING variant, holder, host, acquired_at`

	currentSQL = `
		SELECT variant, holder, host, acquired_at
		FROM execution_locks
		WHERE variant = $1`
)

func scanRecord(s repository.Scanner) (Record, error) {
	var r Record
	err := s.Scan(&r.Variant, &r.Holder, &r.Host, &r.AcquiredAt)
	return r, err
}

func (s *PostgresStore) TryAcquire(ctx context.Context, rec Record, staleBefore time.Time) (bool, Record, error) {
	args := []any{rec.Variant, rec.Holder, rec.Host, rec.AcquiredAt, staleBefore}

	var (
		acquired bool
		current  Record
	)
	// the upsert locks a conflicting row, so the read sees the holder that
	// beat us and not a later one
	err := repository.InTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		var err error
		if _, acquired, err = repository.Find(ctx, tx, scanRecord, acquireSQL, args...); err != nil || acquired {
			return err
		}
		var found bool
		current, found, err = repository.Find(ctx, tx, scanRecord, currentSQL, rec.Variant)
		if err == nil && !found {
			current = Record{Variant: rec.Variant}
		}
		return err
	})
	if err != nil {
		return false, Record{}, err
	}
	if acquired {
		return true, rec, nil
	}
	return false, current, nil
}

func (s *PostgresStore) Release(ctx context.Context, rec Record) error {
	err := repository.ExecOne(
		ctx, s.db,
		"DELETE FROM execution_locks WHERE variant = $1 AND holder = $2",
		rec.Variant, rec.Holder,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotHeld
	}
	return err
}

func (s *PostgresStore) Current(ctx context.Context, variant string) (Record, bool, error) {
	return repository.Find(ctx, s.db, scanRecord, currentSQL, variant)
}

func (s *PostgresStore) ForceRelease(ctx context.Context, variant string) error {
	_, err := repository.Exec(ctx, s.db, "DELETE FROM execution_locks WHERE variant = $1", variant)
	return err
}
