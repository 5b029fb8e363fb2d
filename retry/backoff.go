// Package retry implements bounded exponential backoff for calls that can be
// rate limited by the inference service.
package retry

import (
	"context"
	"fmt"
	"time"
)

// DefaultMaxAttempts is the number of calls made before giving up.
const DefaultMaxAttempts = 8

// Delay returns the sleep before retrying after the given zero-based attempt: 2^attempt seconds.
func Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the real SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Policy retries calls whose error is classified as retryable.
type Policy struct {
	MaxAttempts int
	Retryable   func(error) bool
	Sleep       SleepFunc
	OnRetry     func(attempt int, delay time.Duration, err error)
}

// Do calls fn until it succeeds, returns a non-retryable error, or MaxAttempts is reached.
// The error of the final attempt is returned unchanged.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable == nil || !p.Retryable(err) || attempt == maxAttempts-1 {
			return err
		}

		d := Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, d, err)
		}
		if serr := sleep(ctx, d); serr != nil {
			return fmt.Errorf("retry: interrupted after attempt %d: %w", attempt+1, err)
		}
	}
	return err
}
