package resilience

import (
	"context"
	"fmt"
	"time"
)

// Call runs fn with a context cancelled after timeout and returns its
// result. If fn has not returned by then, Call returns
// context.DeadlineExceeded without waiting for it. A non-positive timeout
// calls fn directly.
func Call[T any](ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(timeoutCtx)
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.val, r.err
	case <-timeoutCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s: parent context cancelled: %w", name, ctx.Err())
		}
		return zero, fmt.Errorf("%s: %w (limit: %v)", name, context.DeadlineExceeded, timeout)
	}
}

// WithTimeout is Call for functions that only return an error.
func WithTimeout(ctx context.Context, timeout time.Duration, name string, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, timeout, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
