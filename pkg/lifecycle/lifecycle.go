// Package lifecycle runs the startup checks and ordered cleanup of a single
// batch process.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Hook is a named startup check or shutdown step.
type Hook func(ctx context.Context) error

type hook struct {
	name string
	fn   Hook
}

// Coordinator collects hooks from the systems of one process. Startup
// checks run concurrently when WaitForStartup is called. Shutdown steps run
// one at a time, most recently registered first.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	checks   []hook
	closers  []hook
	ready    bool
	shutdown bool
}

// New creates a Coordinator whose context is derived from parent.
func New(parent context.Context) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	return &Coordinator{ctx: ctx, cancel: cancel}
}

// Context returns the process context. It is cancelled by Shutdown.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup registers a startup check.
func (c *Coordinator) OnStartup(name string, fn Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, hook{name, fn})
}

// OnShutdown registers a cleanup step.
func (c *Coordinator) OnShutdown(name string, fn Hook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closers = append(c.closers, hook{name, fn})
}

// Ready reports whether the last WaitForStartup succeeded.
func (c *Coordinator) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// WaitForStartup runs every pending startup check and returns their
// failures joined, each prefixed with the hook name. Checks that ran are
// not repeated by a later call.
func (c *Coordinator) WaitForStartup() error {
	c.mu.Lock()
	checks := c.checks
	c.checks = nil
	c.mu.Unlock()

	errs := make([]error, len(checks))
	var wg sync.WaitGroup
	for i, h := range checks {
		wg.Go(func() {
			if err := h.fn(c.ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", h.name, err)
			}
		})
	}
	wg.Wait()

	err := errors.Join(errs...)
	c.mu.Lock()
	c.ready = err == nil
	c.mu.Unlock()
	return err
}

// Shutdown cancels the process context and runs the cleanup steps in
// reverse registration order. Steps share one deadline of timeout; a step
// still running at the deadline is abandoned. Only the first call does
// any work.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return nil
	}
	c.shutdown = true
	c.ready = false
	closers := slices.Clone(c.closers)
	c.mu.Unlock()

	c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		var errs []error
		for _, h := range slices.Backward(closers) {
			if err := h.fn(ctx); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
			}
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout after %v", timeout)
	}
}
