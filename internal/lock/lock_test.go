package lock_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JaimeStill/expedite/internal/lock"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newLocker(t *testing.T, store lock.Store, clk *clock) *lock.Locker {
	t.Helper()
	cfg := &lock.Config{Backend: lock.BackendMemory}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	l := lock.New(store, cfg, discard())
	l.Now = clk.Now
	return l
}

func TestConcurrentAcquireOneWins(t *testing.T) {
	store := lock.NewMemoryStore()
	clk := &clock{now: time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)}
	a := newLocker(t, store, clk)
	b := newLocker(t, store, clk)

	var (
		wins, busy atomic.Int32
		wg         sync.WaitGroup
	)
	for _, l := range []*lock.Locker{a, b} {
		wg.Go(func() {
			_, err := l.Acquire(context.Background(), "folder")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, lock.ErrBusy):
				busy.Add(1)
			default:
				t.Errorf("Acquire() unexpected error = %v", err)
			}
		})
	}
	wg.Wait()

	if wins.Load() != 1 || busy.Load() != 1 {
		t.Errorf("wins = %d busy = %d, want 1 and 1", wins.Load(), busy.Load())
	}
}

func TestVariantsAreIndependent(t *testing.T) {
	store := lock.NewMemoryStore()
	clk := &clock{now: time.Now()}
	l := newLocker(t, store, clk)

	if _, err := l.Acquire(context.Background(), "merge"); err != nil {
		t.Fatalf("Acquire(merge) error = %v", err)
	}
	if _, err := l.Acquire(context.Background(), "folder"); err != nil {
		t.Errorf("Acquire(folder) error = %v, want nil", err)
	}
}

func TestStaleLockIsTakenOver(t *testing.T) {
	store := lock.NewMemoryStore()
	clk := &clock{now: time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC)}
	l := newLocker(t, store, clk)
	ctx := context.Background()

	first, err := l.Acquire(ctx, "merge")
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	clk.Advance(24 * time.Hour)
	if _, err := l.Acquire(ctx, "merge"); !errors.Is(err, lock.ErrBusy) {
		t.Fatalf("Acquire() at exactly the ceiling = %v, want ErrBusy", err)
	}

	clk.Advance(time.Second)
	second, err := l.Acquire(ctx, "merge")
	if err != nil {
		t.Fatalf("Acquire() after ceiling error = %v, want takeover", err)
	}
	if second.Record().Holder == first.Record().Holder {
		t.Error("takeover should install a new holder")
	}

	if err := first.Release(ctx); !errors.Is(err, lock.ErrNotHeld) {
		t.Errorf("stale holder Release() = %v, want ErrNotHeld", err)
	}

	current, ok, _ := l.Inspect(ctx, "merge")
	if !ok || current.Holder != second.Record().Holder {
		t.Error("stale holder release must not remove the new holder's lock")
	}
}

func TestDoReleasesOnEveryExitPath(t *testing.T) {
	store := lock.NewMemoryStore()
	clk := &clock{now: time.Now()}
	l := newLocker(t, store, clk)
	ctx := context.Background()
	errRun := errors.New("case batch failed")

	t.Run("success", func(t *testing.T) {
		err := l.Do(ctx, "folder", func(context.Context, *lock.Handle) error { return nil })
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		if _, held, _ := l.Inspect(ctx, "folder"); held {
			t.Error("lock still held after successful Do")
		}
	})

	t.Run("error", func(t *testing.T) {
		err := l.Do(ctx, "folder", func(context.Context, *lock.Handle) error { return errRun })
		if !errors.Is(err, errRun) {
			t.Fatalf("Do() = %v, want %v", err, errRun)
		}
		if _, held, _ := l.Inspect(ctx, "folder"); held {
			t.Error("lock still held after failed Do")
		}
	})

	t.Run("panic", func(t *testing.T) {
		func() {
			defer func() { _ = recover() }()
			_ = l.Do(ctx, "folder", func(context.Context, *lock.Handle) error { panic("boom") })
		}()
		if _, held, _ := l.Inspect(ctx, "folder"); held {
			t.Error("lock still held after panicking Do")
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		err := l.Do(cctx, "folder", func(context.Context, *lock.Handle) error {
			cancel()
			return nil
		})
		if err != nil {
			t.Fatalf("Do() error = %v", err)
		}
		if _, held, _ := l.Inspect(ctx, "folder"); held {
			t.Error("lock still held after Do with cancelled context")
		}
	})
}

func TestDoBusySkipsCallback(t *testing.T) {
	store := lock.NewMemoryStore()
	clk := &clock{now: time.Now()}
	l := newLocker(t, store, clk)
	ctx := context.Background()

	if _, err := l.Acquire(ctx, "merge"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	called := false
	err := l.Do(ctx, "merge", func(context.Context, *lock.Handle) error {
		called = true
		return nil
	})
	if !errors.Is(err, lock.ErrBusy) {
		t.Errorf("Do() = %v, want ErrBusy", err)
	}
	if called {
		t.Error("callback must not run when the lock is busy")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	l := newLocker(t, lock.NewMemoryStore(), &clock{now: time.Now()})
	ctx := context.Background()

	h, err := l.Acquire(ctx, "merge")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := h.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := h.Release(ctx); err != nil {
		t.Errorf("second Release() = %v, want nil", err)
	}
}

func TestForceRelease(t *testing.T) {
	l := newLocker(t, lock.NewMemoryStore(), &clock{now: time.Now()})
	ctx := context.Background()

	if _, err := l.Acquire(ctx, "folder"); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := l.ForceRelease(ctx, "folder"); err != nil {
		t.Fatalf("ForceRelease() error = %v", err)
	}
	if _, err := l.Acquire(ctx, "folder"); err != nil {
		t.Errorf("Acquire() after ForceRelease error = %v", err)
	}
}

func TestConfigFinalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     lock.Config
		wantErr error
	}{
		{"defaults", lock.Config{}, nil},
		{"unknown backend", lock.Config{Backend: "etcd"}, lock.ErrUnknownBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Finalize(nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Finalize() = %v, want %v", err, tt.wantErr)
			}
			if err == nil && tt.cfg.StalenessDuration() != 24*time.Hour {
				t.Errorf("StalenessDuration() = %v, want 24h", tt.cfg.StalenessDuration())
			}
		})
	}

	bad := lock.Config{Staleness: "-1h"}
	if err := bad.Finalize(nil); err == nil {
		t.Error("Finalize() with negative staleness = nil, want error")
	}

	zero := lock.Config{AcquireTimeout: "0s"}
	if err := zero.Finalize(nil); err == nil {
		t.Error("Finalize() with zero acquire_timeout = nil, want error")
	}
}

func TestOpen(t *testing.T) {
	cfg := &lock.Config{Backend: lock.BackendPostgres}
	if _, err := lock.Open(cfg, nil); err == nil {
		t.Error("Open(postgres, nil db) = nil error, want error")
	}

	cfg.Backend = lock.BackendMemory
	store, err := lock.Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open(memory) error = %v", err)
	}
	if _, ok := store.(*lock.MemoryStore); !ok {
		t.Errorf("Open(memory) = %T, want *lock.MemoryStore", store)
	}
}

// stalledStore never answers TryAcquire until the caller gives up.
type stalledStore struct {
	*lock.MemoryStore
}

func (stalledStore) TryAcquire(ctx context.Context, _ lock.Record, _ time.Time) (bool, lock.Record, error) {
	<-ctx.Done()
	return false, lock.Record{}, ctx.Err()
}

func TestAcquireGivesUpOnStalledStore(t *testing.T) {
	cfg := &lock.Config{Backend: lock.BackendMemory, AcquireTimeout: "50ms"}
	if err := cfg.Finalize(nil); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	l := lock.New(stalledStore{lock.NewMemoryStore()}, cfg, discard())

	start := time.Now()
	_, err := l.Acquire(context.Background(), "merge")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Acquire() error = %v, want context.DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Acquire() returned after %v", elapsed)
	}

	called := false
	err = l.Do(context.Background(), "merge", func(context.Context, *lock.Handle) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) || called {
		t.Errorf("Do() = %v, called = %v; want deadline exceeded, not called", err, called)
	}
}
