// Package guard bounds blocking radio operations with a deadline.
//
// The guarded function runs on its own goroutine with a context that is
// cancelled when the deadline passes. Backends that ignore the context keep
// running in the background; their late result is dropped and never reaches
// the caller.
package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/srg/gattplug/internal/device"
	"github.com/srg/gattplug/internal/groutine"
)

// ErrInvalidTimeout is returned when a guarded call is made without a positive timeout.
var ErrInvalidTimeout = errors.New("guard: timeout must be positive")

type result[T any] struct {
	val T
	err error
}

// Do runs fn and returns its result, or a *device.TimeoutError if fn does not
// complete within timeout. Cancellation of ctx returns ctx.Err().
func Do[T any](ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if timeout <= 0 {
		return zero, fmt.Errorf("%s: %w", op, ErrInvalidTimeout)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Buffered so a late sender never blocks after the caller is gone.
	done := make(chan result[T], 1)
	groutine.Go(opCtx, "guard-"+op, func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				done <- result[T]{err: fmt.Errorf("%s: panic: %v", op, r)}
			}
		}()
		v, err := fn(ctx)
		done <- result[T]{val: v, err: err}
	})

	select {
	case r := <-done:
		// fn observed our deadline and returned the raw context error.
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, &device.TimeoutError{Op: op, After: timeout}
		}
		return r.val, r.err
	case <-opCtx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, &device.TimeoutError{Op: op, After: timeout}
	}
}

// Run is Do for operations without a result value.
func Run(ctx context.Context, timeout time.Duration, op string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, timeout, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
