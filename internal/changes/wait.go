// internal/changes/wait.go
package changes

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by WaitFor when the condition did not hold before the deadline.
var ErrTimeout = errors.New("timed out waiting for change")

// CheckFunc evaluates the awaited condition.
type CheckFunc func(ctx context.Context) (bool, error)

// WaitFor evaluates check immediately and then after every change notification from src, until it
// reports true, returns an error, the timeout elapses or ctx is done. The subscription is always
// released before returning.
func WaitFor(ctx context.Context, src Source, timeout time.Duration, check CheckFunc) error {
	ok, err := check(ctx)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if src == nil || timeout <= 0 {
		return ErrTimeout
	}

	events, unsubscribe := src.Subscribe()
	defer unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	// Re-check once after subscribing so a change between the first check and Subscribe is not lost.
	if ok, err := check(ctx); err != nil || ok {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return ErrTimeout
		case _, open := <-events:
			if !open {
				return ErrTimeout
			}
			ok, err := check(ctx)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}
	}
}
