package warehouse

import (
	"context"
	"time"

	"github.com/vinayprograms/sortline/errors"
)

// Semaphore names used in SYNC_FAILURE metadata.
const (
	semEmpty = "EMPTY"
	semFull  = "FULL"
	semDock  = "DOCK"
)

// guard runs a semaphore operation, turning a panic (x/sync panics when
// more is released than held) into a fatal SYNC_FAILURE.
func guard(name string, op func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.SyncFailure(name, errors.RecoverPanic(r))
		}
	}()
	op()
	return nil
}

// acquire blocks on sem until a unit is free or ctx ends. A ctx error comes
// back as CANCELED or TIMEOUT, which are not fatal.
func acquire(ctx context.Context, name string, sem interface {
	Acquire(context.Context, int64) error
}) error {
	var err error
	if gerr := guard(name, func() { err = sem.Acquire(ctx, 1) }); gerr != nil {
		return gerr
	}
	if err != nil {
		return errors.Wrap(err, "waiting on "+name, errors.WithMetadata("primitive", name))
	}
	return nil
}

func (l *Line) acquireEmpty(ctx context.Context) error {
	return acquire(ctx, semEmpty, l.empty)
}

func (l *Line) releaseEmpty() error {
	return guard(semEmpty, func() { l.empty.Release(1) })
}

// tryAcquireFull is the non-blocking FULL decrement.
func (l *Line) tryAcquireFull() bool {
	return l.full.TryAcquire(1)
}

func (l *Line) releaseFull() error {
	return guard(semFull, func() { l.full.Release(1) })
}

func (l *Line) acquireDock(ctx context.Context) error {
	return acquire(ctx, semDock, l.dock)
}

func (l *Line) releaseDock() error {
	return guard(semDock, func() { l.dock.Release(1) })
}

// pause sleeps for d or until ctx ends. It reports whether the full delay
// elapsed.
func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
