// Package lock enforces at most one concurrent run per pipeline variant.
//
// A lock is a single record per variant in a shared store. A record older
// than the staleness ceiling is treated as abandoned: the next acquirer
// replaces it atomically instead of waiting.
package lock

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is the persisted lock state for one variant.
type Record struct {
	Variant    string    `json:"variant"`
	Holder     uuid.UUID `json:"holder"`
	Host       string    `json:"host"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Age returns how long the record has been held as of now.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.AcquiredAt)
}

// Store persists lock records. Implementations must make TryAcquire atomic
// with respect to every other caller sharing the store.
type Store interface {
	// TryAcquire writes rec if no record exists for rec.Variant or the
	// existing record was acquired before staleBefore. When it does not
	// acquire, it returns the record currently holding the lock.
	TryAcquire(ctx context.Context, rec Record, staleBefore time.Time) (bool, Record, error)
	// Release deletes rec only if it is still the current holder.
	// It returns ErrNotHeld otherwise.
	Release(ctx context.Context, rec Record) error
	// Current returns the record for variant, if any.
	Current(ctx context.Context, variant string) (Record, bool, error)
	// ForceRelease deletes whatever record exists for variant.
	ForceRelease(ctx context.Context, variant string) error
}

// Locker acquires and releases variant locks against a Store.
type Locker struct {
	store          Store
	staleness      time.Duration
	acquireTimeout time.Duration
	releaseTimeout time.Duration
	host           string
	logger         *slog.Logger

	// Now returns the current time. Tests replace it to age records.
	Now func() time.Time
}

// New creates a Locker over store using the staleness ceiling from cfg.
func New(store Store, cfg *Config, logger *slog.Logger) *Locker {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}

	return &Locker{
		store:          store,
		staleness:      cfg.StalenessDuration(),
		acquireTimeout: cfg.AcquireTimeoutDuration(),
		releaseTimeout: cfg.ReleaseTimeoutDuration(),
		host:           host,
		logger:         logger.With("system", "lock"),
		Now:            time.Now,
	}
}

// Open builds the Store selected by cfg.Backend. db is required for the
// postgres backend and ignored otherwise.
func Open(cfg *Config, db *sql.DB) (Store, error) {
	switch cfg.Backend {
	case BackendPostgres:
		if db == nil {
			return nil, fmt.Errorf("postgres lock store: database connection required")
		}
		return NewPostgresStore(db), nil
	case BackendRedis:
		return NewRedisStore(&cfg.Redis, cfg.StalenessDuration()), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Handle represents a held lock. Release is safe to call more than once.
type Handle struct {
	record Record
	store  Store
	logger *slog.Logger

	once sync.Once
	err  error
}

// Record returns the lock record owned by this handle.
func (h *Handle) Record() Record {
	return h.record
}

// Release deletes the lock if this handle still owns it.
func (h *Handle) Release(ctx context.Context) error {
	h.once.Do(func() {
		h.err = h.store.Release(ctx, h.record)
		if h.err != nil {
			h.logger.Warn("lock release failed", "variant", h.record.Variant, "error", h.err)
			return
		}
		h.logger.Info("lock released", "variant", h.record.Variant, "holder", h.record.Holder)
	})
	return h.err
}

// Acquire takes the lock for variant or returns an error wrapping ErrBusy
// when a fresh lock is held elsewhere. A store that does not answer within
// the acquire timeout fails the call with context.DeadlineExceeded.
func (l *Locker) Acquire(ctx context.Context, variant string) (*Handle, error) {
	now := l.Now().UTC()
	rec := Record{
		Variant:    variant,
		Holder:     uuid.New(),
		Host:       l.host,
		AcquiredAt: now,
	}

	acqCtx, cancel := context.WithTimeout(ctx, l.acquireTimeout)
	defer cancel()

	ok, current, err := l.store.TryAcquire(acqCtx, rec, now.Add(-l.staleness))
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", variant, err)
	}
	if !ok {
		l.logger.Warn(
			"lock busy",
			"variant", variant,
			"holder", current.Holder,
			"host", current.Host,
			"age", current.Age(now).Round(time.Second),
		)
		return nil, fmt.Errorf(
			"%w: %s held by %s on %s since %s",
			ErrBusy, variant, current.Holder, current.Host, current.AcquiredAt.Format(time.RFC3339),
		)
	}

	l.logger.Info("lock acquired", "variant", variant, "holder", rec.Holder)
	return &Handle{record: rec, store: l.store, logger: l.logger}, nil
}

// Do runs fn while holding the lock for variant. The lock is released on
// every exit path of fn, including panics, using a context detached from
// ctx's cancellation.
func (l *Locker) Do(ctx context.Context, variant string, fn func(ctx context.Context, h *Handle) error) error {
	h, err := l.Acquire(ctx, variant)
	if err != nil {
		return err
	}

	defer func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.releaseTimeout)
		defer cancel()
		if err := h.Release(relCtx); err != nil {
			l.logger.Error(
				"lock not released; it expires after the staleness ceiling",
				"variant", variant,
				"ceiling", l.staleness,
				"error", err,
			)
		}
	}()

	return fn(ctx, h)
}

// Inspect returns the current record for variant, if any.
func (l *Locker) Inspect(ctx context.Context, variant string) (Record, bool, error) {
	return l.store.Current(ctx, variant)
}

// ForceRelease removes the lock for variant regardless of holder.
func (l *Locker) ForceRelease(ctx context.Context, variant string) error {
	if err := l.store.ForceRelease(ctx, variant); err != nil {
		return fmt.Errorf("force release %s: %w", variant, err)
	}
	l.logger.Warn("lock force released", "variant", variant)
	return nil
}
