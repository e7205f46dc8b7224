package engine

import (
	"context"
	"time"
)

// RetryPolicy bounds retries of individual remote calls. The delay doubles
// from BaseDelay per attempt; throttled errors use the larger
// RateLimitDelay floor and honor a server-supplied retry hint.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt, so a
	// persistently failing retryable call is attempted 1+MaxRetries times.
	MaxRetries int

	// BaseDelay is the initial backoff delay for transient errors.
	BaseDelay time.Duration

	// RateLimitDelay is the minimum delay applied to throttled errors.
	RateLimitDelay time.Duration

	// MaxDelay caps the computed backoff. A server retry hint may exceed it.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the policy used by the deployer unless
// overridden.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		BaseDelay:      1 * time.Second,
		RateLimitDelay: 5 * time.Second,
		MaxDelay:       30 * time.Second,
	}
}

// Do runs fn, retrying classified-retryable failures up to MaxRetries
// times with exponential backoff. Non-retryable errors propagate
// immediately; exhausting retries surfaces the last error. The loop is
// iterative with an explicit attempt counter so the retry bound is
// directly testable.
func (p RetryPolicy) Do(ctx context.Context, operation string, obs Observer, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !IsRetryable(lastErr) || attempt >= p.MaxRetries {
			return lastErr
		}

		if obs != nil {
			class := ErrorClassPermanent
			if IsThrottled(lastErr) {
				class = ErrorClassThrottled
			} else if IsTransient(lastErr) {
				class = ErrorClassTransient
			}
			obs.RetryAttempted(operation, class)
		}

		select {
		case <-time.After(p.backoff(attempt, lastErr)):
		case <-ctx.Done():
			return NewPermanentError("retry cancelled", ctx.Err()).
				WithCode(ErrCodeTimeout).
				WithOperation(operation)
		}
	}
}

// backoff computes the delay before retry attempt+1.
func (p RetryPolicy) backoff(attempt int, err error) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if IsThrottled(err) {
		if delay < p.RateLimitDelay {
			delay = p.RateLimitDelay
		}
		// The backend knows its own rate window better than we do.
		if hint := RetryAfterHint(err); hint > delay {
			delay = hint
		}
	}

	return delay
}
