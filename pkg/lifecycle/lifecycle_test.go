package lifecycle_test

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/JaimeStill/expedite/pkg/lifecycle"
)

func TestStartupChecks(t *testing.T) {
	errDB := errors.New("db down")
	errCRM := errors.New("crm down")

	tests := []struct {
		name    string
		results []error
		want    []error
	}{
		{"none registered", nil, nil},
		{"all pass", []error{nil, nil, nil}, nil},
		{"failures joined", []error{errDB, nil, errCRM}, []error{errDB, errCRM}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lc := lifecycle.New(context.Background())
			if lc.Ready() {
				t.Fatal("Ready() before WaitForStartup")
			}

			var ran atomic.Int32
			for i, res := range tt.results {
				lc.OnStartup("check"+string(rune('a'+i)), func(context.Context) error {
					ran.Add(1)
					return res
				})
			}

			err := lc.WaitForStartup()
			if got := int(ran.Load()); got != len(tt.results) {
				t.Errorf("ran %d checks, want %d", got, len(tt.results))
			}
			for _, want := range tt.want {
				if !errors.Is(err, want) {
					t.Errorf("WaitForStartup() = %v, want %v", err, want)
				}
			}
			if len(tt.want) == 0 && err != nil {
				t.Errorf("WaitForStartup() error = %v", err)
			}
			if lc.Ready() != (len(tt.want) == 0) {
				t.Errorf("Ready() = %v after %v", lc.Ready(), err)
			}
		})
	}
}

func TestStartupErrorNamesHook(t *testing.T) {
	lc := lifecycle.New(context.Background())
	lc.OnStartup("database", func(context.Context) error { return errors.New("refused") })

	err := lc.WaitForStartup()
	if err == nil || err.Error() != "database: refused" {
		t.Errorf("WaitForStartup() = %v, want %q", err, "database: refused")
	}
}

func TestStartupChecksRunOnce(t *testing.T) {
	lc := lifecycle.New(context.Background())

	var ran atomic.Int32
	lc.OnStartup("once", func(context.Context) error {
		ran.Add(1)
		return nil
	})

	for range 2 {
		if err := lc.WaitForStartup(); err != nil {
			t.Fatalf("WaitForStartup() error = %v", err)
		}
	}
	if got := ran.Load(); got != 1 {
		t.Errorf("check ran %d times, want 1", got)
	}
}

func TestShutdownOrder(t *testing.T) {
	lc := lifecycle.New(context.Background())

	var (
		mu    sync.Mutex
		order []string
	)
	for _, name := range []string{"database", "storage", "lock"} {
		lc.OnShutdown(name, func(context.Context) error {
			if lc.Context().Err() == nil {
				t.Errorf("%s ran before the context was cancelled", name)
			}
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	if err := lc.Shutdown(time.Second); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	if want := []string{"lock", "storage", "database"}; !slices.Equal(order, want) {
		t.Errorf("shutdown order = %v, want %v", order, want)
	}
}

func TestShutdownErrorsJoined(t *testing.T) {
	lc := lifecycle.New(context.Background())

	var closed atomic.Bool
	lc.OnShutdown("database", func(context.Context) error {
		closed.Store(true)
		return nil
	})
	lc.OnShutdown("lock", func(context.Context) error { return errors.New("release failed") })

	err := lc.Shutdown(time.Second)
	if err == nil || !strings.Contains(err.Error(), "lock: release failed") {
		t.Errorf("Shutdown() = %v, want lock failure", err)
	}
	if !closed.Load() {
		t.Error("a failing step stopped the remaining steps")
	}
}

func TestShutdownTimeout(t *testing.T) {
	lc := lifecycle.New(context.Background())

	lc.OnShutdown("slow", func(context.Context) error {
		time.Sleep(500 * time.Millisecond)
		return nil
	})

	err := lc.Shutdown(50 * time.Millisecond)
	if err == nil || !strings.Contains(err.Error(), "shutdown timeout") {
		t.Errorf("Shutdown() = %v, want timeout", err)
	}
}

func TestShutdownIdempotent(t *testing.T) {
	lc := lifecycle.New(context.Background())

	var calls atomic.Int32
	lc.OnShutdown("count", func(context.Context) error {
		calls.Add(1)
		return nil
	})

	for range 2 {
		if err := lc.Shutdown(time.Second); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("shutdown step ran %d times, want 1", got)
	}
	if lc.Context().Err() == nil {
		t.Error("context should be cancelled after shutdown")
	}
}
