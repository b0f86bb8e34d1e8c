// Package poll provides a bounded polling primitive for long-running external work.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// ErrTimedOut is returned when the condition is not met before the timeout.
var ErrTimedOut = errors.New("timed out waiting for terminal state")

// Options bounds a poll loop.
type Options struct {
	// Interval between checks. The first check runs immediately.
	Interval time.Duration
	// Timeout for the whole loop. Zero means bounded only by ctx.
	Timeout time.Duration
	// TolerateErrors is the number of consecutive check errors ignored before giving up.
	TolerateErrors int
}

// Check inspects external state. done=true stops the loop.
type Check func(ctx context.Context) (done bool, err error)

// Until runs check every Interval until it reports done, returns a non-tolerated
// error, the timeout elapses (ErrTimedOut), or ctx is cancelled (ctx.Err()).
func Until(ctx context.Context, opts Options, check Check) error {
	if opts.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	loopCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		loopCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	limiter := rate.NewLimiter(rate.Every(opts.Interval), 1)
	failures := 0

	for {
		if err := limiter.Wait(loopCtx); err != nil {
			return stopReason(ctx, loopCtx)
		}

		done, err := check(loopCtx)
		if err != nil {
			if loopCtx.Err() != nil {
				return stopReason(ctx, loopCtx)
			}
			failures++
			if failures > opts.TolerateErrors {
				return err
			}
			continue
		}
		failures = 0
		if done {
			return nil
		}
	}
}

// stopReason distinguishes caller cancellation from the loop's own timeout.
// rate.Limiter.Wait fails early when the next token lies past the deadline,
// so both cases map to ErrTimedOut unless the parent context is done.
func stopReason(parent, loop context.Context) error {
	if err := parent.Err(); err != nil {
		return err
	}
	if _, ok := loop.Deadline(); ok {
		return ErrTimedOut
	}
	if err := loop.Err(); err != nil {
		return err
	}
	return ErrTimedOut
}
