package browser

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned when a bounded wait gives up
var ErrTimeout = errors.New("timed out waiting for condition")

const defaultPollInterval = 100 * time.Millisecond

// Condition is polled by WaitUntil and WaitUntilNot
type Condition func(ctx context.Context) (bool, error)

// WaitUntil polls cond every interval until it reports true. It gives up with ErrTimeout
// after timeout and returns ctx.Err() if ctx ends first. Errors from cond count as
// "not yet"; the last one is attached to the timeout error.
func WaitUntil(ctx context.Context, timeout, interval time.Duration, cond Condition) error {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		ok, err := cond(ctx)
		if err == nil && ok {
			return nil
		}
		if err != nil {
			lastErr = err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			if lastErr != nil {
				return fmt.Errorf("%w after %v: %v", ErrTimeout, timeout, lastErr)
			}
			return fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}

		wait := interval
		if wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// WaitUntilNot polls until cond stops being true. An error from cond does not count as false.
func WaitUntilNot(ctx context.Context, timeout, interval time.Duration, cond Condition) error {
	return WaitUntil(ctx, timeout, interval, func(ctx context.Context) (bool, error) {
		ok, err := cond(ctx)
		if err != nil {
			return false, err
		}
		return !ok, nil
	})
}

// Pause sleeps for d unless ctx ends first
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
