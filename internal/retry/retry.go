// Package retry provides the single retry-with-backoff helper used by every
// oracle call site.
package retry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retried operation.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int

	// BaseDelay is the wait before the second attempt. Later waits grow
	// exponentially up to MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps a single wait. Zero means 8 times BaseDelay.
	MaxDelay time.Duration

	// AttemptTimeout bounds each attempt. Zero means no per-attempt limit
	// beyond the parent context.
	AttemptTimeout time.Duration

	// Logger receives one Debug record per failed attempt.
	Logger *slog.Logger
}

// DefaultPolicy returns three attempts starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       8 * time.Second,
		AttemptTimeout: 60 * time.Second,
	}
}

// Permanent wraps err so Do stops retrying and returns it immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do runs op until it succeeds, returns a permanent error, the attempts are
// exhausted, or ctx is done. The last error is returned on failure.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = 8 * p.BaseDelay
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0.2

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		attemptCtx := ctx
		if p.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
			defer cancel()
		}
		res, err := op(attemptCtx)
		if err != nil && ctx.Err() != nil {
			// The parent is gone; further attempts cannot succeed.
			return res, backoff.Permanent(errors.Join(err, ctx.Err()))
		}
		return res, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.Debug("attempt failed, retrying",
				"attempt", attempt,
				"max_attempts", attempts,
				"wait", wait,
				"error", err,
			)
		}),
	)
}
