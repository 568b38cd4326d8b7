// Package wait provides the single bounded-poll primitive every UI wait
// goes through: a condition, a timeout and a poll interval.
package wait

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrTimeout is returned (wrapped) when a condition does not hold before
// its bound elapses.
var ErrTimeout = errors.New("timed out")

var errNotYet = errors.New("condition not met")

// DefaultInterval is used when Options.Interval is zero.
const DefaultInterval = 250 * time.Millisecond

// Options bound a single wait.
type Options struct {
	Timeout  time.Duration
	Interval time.Duration
}

// Condition reports whether the awaited state holds. Errors are treated as
// "not yet" and surfaced only if the wait times out.
type Condition func(ctx context.Context) (bool, error)

// Until polls cond until it returns true, the timeout elapses, or ctx is
// cancelled. The condition is always evaluated at least once.
func Until(ctx context.Context, opts Options, cond Condition) error {
	if opts.Timeout <= 0 {
		return fmt.Errorf("wait: timeout must be positive, got %s", opts.Timeout)
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	pollCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	var lastErr error
	_, err := backoff.Retry(pollCtx, func() (struct{}, error) {
		ok, err := cond(pollCtx)
		if err != nil {
			lastErr = err
			return struct{}{}, errNotYet
		}
		if !ok {
			return struct{}{}, errNotYet
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(interval)),
		backoff.WithMaxElapsedTime(opts.Timeout),
	)
	if err == nil {
		return nil
	}

	// Parent cancellation is not a timeout.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if lastErr != nil {
		return fmt.Errorf("%w after %s: %v", ErrTimeout, opts.Timeout, lastErr)
	}
	return fmt.Errorf("%w after %s", ErrTimeout, opts.Timeout)
}
