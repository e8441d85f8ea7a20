// Package retry runs an operation a bounded number of times with a fixed delay.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds a retry loop.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int
	// Delay is the fixed pause between two attempts.
	Delay time.Duration
}

// OnFailure is called after every failed attempt (1-based).
type OnFailure func(attempt int, err error)

// Do calls op until it succeeds or the policy is exhausted.
// It returns the last error from op, or the context error if ctx ends while waiting.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, onFailure OnFailure) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if onFailure != nil {
			onFailure(attempt, lastErr)
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted after %d attempt(s): %w", attempt, ctx.Err())
		case <-timer.C:
		}
	}
	return lastErr
}
