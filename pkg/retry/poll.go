// Package retry absorbs eventual consistency: it re-checks a condition a fixed
// number of times with a fixed pause in between.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAttemptsExhausted is returned by Poll when the condition never held.
var ErrAttemptsExhausted = errors.New("retry: attempts exhausted")

// Config controls Poll.
type Config struct {
	Attempts int
	Delay    time.Duration
	// OnRetry, when set, is called after every unsuccessful attempt that will
	// be followed by another one. attempt is 1-based.
	OnRetry func(attempt int, err error)
}

// Check reports whether the awaited condition holds. A non-nil error counts as
// "not yet" and is remembered as the last failure.
type Check func(ctx context.Context) (done bool, err error)

// Poll runs check until it reports done, the attempts are used up or ctx ends.
// There is no pause after the final attempt.
func Poll(ctx context.Context, cfg Config, check Check) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := check(ctx)
		if err == nil && done {
			return nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}

		timer := time.NewTimer(cfg.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if lastErr != nil {
		return fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempts, lastErr)
	}
	return fmt.Errorf("%w after %d attempts", ErrAttemptsExhausted, attempts)
}

// Value is Poll for lookups that produce a result. fetch returns ok=false
// while the value is not visible yet.
func Value[T any](ctx context.Context, cfg Config, fetch func(ctx context.Context) (T, bool, error)) (T, error) {
	var out T
	err := Poll(ctx, cfg, func(ctx context.Context) (bool, error) {
		v, ok, err := fetch(ctx)
		if err != nil || !ok {
			return false, err
		}
		out = v
		return true, nil
	})
	return out, err
}
