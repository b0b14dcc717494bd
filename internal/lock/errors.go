package lock

import "errors"

var (
	// ErrBusy indicates another holder owns a fresh lock for the variant.
	ErrBusy = errors.New("execution lock busy")
	// ErrNotHeld indicates the lock is no longer owned by the releasing holder,
	// either because it was already released or taken over as stale.
	ErrNotHeld = errors.New("execution lock not held")
	// ErrUnknownBackend indicates an unsupported lock store backend.
	ErrUnknownBackend = errors.New("unknown lock backend")
)
