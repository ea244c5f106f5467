package unlock

import (
	"context"
	"time"

	"aum/internal/services"
)

// WaitFor calls check every interval until it reports done, returns an
// error, ctx is canceled, or deadline passes. A timeout is reported only once
// the clock has reached deadline, after a final check.
func WaitFor[T any](ctx context.Context, interval time.Duration, deadline time.Time, check func() (T, bool, error)) (T, error) {
	var zero T
	if interval <= 0 {
		interval = time.Second
	}
	for {
		value, done, err := check()
		if err != nil {
			return zero, err
		}
		if done {
			return value, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return zero, services.Wrap(services.ErrTimeout, "completion", "poll", "no artifact before deadline", nil)
		}

		timer := time.NewTimer(min(interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, services.Wrap(services.ErrCanceled, "completion", "poll", "", ctx.Err())
		case <-timer.C:
		}
	}
}
