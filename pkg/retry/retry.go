// Package retry holds the backoff policy shared by all source adapters.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"tender-ingest/pkg/faults"
)

// ErrMaxAttemptsExceeded wraps the last error once a policy gives up.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// Policy is an exponential backoff policy. Each platform gets its own copy,
// usually the configured defaults with per-platform overrides.
type Policy struct {
	// MaxAttempts includes the first attempt.
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	Multiplier   float64       `yaml:"multiplier"`
	// RateLimitDelay is the minimum wait after an upstream throttle response.
	RateLimitDelay time.Duration `yaml:"rate_limit_delay"`
}

// DefaultPolicy returns three attempts starting at 500ms, doubling, capped at 30s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		RateLimitDelay: 5 * time.Second,
	}
}

// Merge returns p with every zero field taken from base.
func (p Policy) Merge(base Policy) Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = base.MaxAttempts
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = base.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = base.MaxDelay
	}
	if p.Multiplier <= 0 {
		p.Multiplier = base.Multiplier
	}
	if p.RateLimitDelay <= 0 {
		p.RateLimitDelay = base.RateLimitDelay
	}
	return p
}

// Delay returns the wait before attempt+1 given the error of attempt (1-based).
func (p Policy) Delay(attempt int, err error) time.Duration {
	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1)))
	if f, ok := faults.As(err); ok && f.Kind == faults.KindRateLimit {
		if p.RateLimitDelay > d {
			d = p.RateLimitDelay
		}
		if f.RetryAfter > d {
			d = f.RetryAfter
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// Do runs fn until it succeeds, returns a non-retryable error, the attempts run out
// or ctx is done. Only faults marked retryable are retried.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	p = p.Merge(DefaultPolicy())

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !faults.IsRetryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}

		timer := time.NewTimer(p.Delay(attempt, err))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, p.MaxAttempts, lastErr)
}
