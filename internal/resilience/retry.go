package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Policy decides whether and when a failed delivery attempt is retried.
// It is a pure value: the same inputs always produce the same answers,
// which keeps retry decisions unit-testable without sleeping.
type Policy struct {
	// MaxAttempts is the total number of attempts (including the first try).
	// A value of 1 means no retries. Default: 3.
	MaxAttempts int

	// BaseDelay is the backoff before the second attempt. Default: 1s.
	BaseDelay time.Duration

	// MaxDelay caps the backoff duration. Default: 30s.
	MaxDelay time.Duration
}

// DefaultPolicy returns the standard delivery retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	return p
}

// ShouldRetry reports whether another attempt may follow the given failed
// attempt (1-based). Permanent errors never retry; attempts at or past
// MaxAttempts never retry.
func (p Policy) ShouldRetry(attempt int, err error) bool {
	p = p.withDefaults()
	if err == nil {
		return false
	}
	if attempt >= p.MaxAttempts {
		return false
	}
	return IsTransient(err)
}

// Delay returns the backoff to wait after the given failed attempt
// (1-based): BaseDelay doubled per prior attempt, capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// Do executes fn with retries per the policy. After each failed attempt it
// consults ShouldRetry, then sleeps Delay unless the context is canceled
// first. The attempt callback, if set, observes every attempt's outcome
// before the retry decision.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error, onAttempt func(attempt int, err error)) error {
	p = p.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn(ctx, attempt)
		if onAttempt != nil {
			onAttempt(attempt, lastErr)
		}
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
		if !p.ShouldRetry(attempt, lastErr) {
			return lastErr
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
	return lastErr
}

// RetryLogger returns an onAttempt callback that logs failed attempts.
func RetryLogger(service, operation string) func(int, error) {
	return func(attempt int, err error) {
		if err == nil {
			return
		}
		zap.L().Warn("attempt failed",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
