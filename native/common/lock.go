package common

import (
	"context"
	"fmt"
	"time"

	coreerrors "vitrine/core/errors"
)

// ErrBusy is returned when a lock could not be acquired within the caller's
// deadline. Nothing was mutated; the caller decides whether to retry.
var ErrBusy = coreerrors.New(coreerrors.KindUnavailable, "resource busy")

// Lock is an exclusive lock whose acquisition is bounded by a context and an
// optional timeout.
type Lock struct {
	name    string
	timeout time.Duration
	sem     chan struct{}
}

// NewLock returns an unlocked Lock. A non-positive timeout leaves the bound to
// the caller's context.
func NewLock(name string, timeout time.Duration) *Lock {
	return &Lock{name: name, timeout: timeout, sem: make(chan struct{}, 1)}
}

// Name identifies the lock in errors and metrics.
func (l *Lock) Name() string { return l.name }

// SetTimeout adjusts the acquisition bound for subsequent calls.
func (l *Lock) SetTimeout(timeout time.Duration) { l.timeout = timeout }

// Acquire blocks until the lock is held, the context is done or the timeout
// elapses. Failures wrap ErrBusy.
func (l *Lock) Acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case l.sem <- struct{}{}:
		return nil
	default:
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s lock: %v", ErrBusy, l.name, ctx.Err())
	}
}

// Release frees the lock. Releasing an unheld lock panics.
func (l *Lock) Release() {
	select {
	case <-l.sem:
	default:
		panic("common: release of unlocked " + l.name + " lock")
	}
}
