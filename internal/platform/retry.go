package platform

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// retryAfterer is implemented by errors that carry a server back-off hint,
// such as a flood-control response.
type retryAfterer interface {
	RetryAfter() time.Duration
}

// retryable is implemented by errors that know whether repeating the
// request can succeed.
type retryable interface {
	IsRetryable() bool
}

// Retry calls fn up to maxAttempts times with exponential backoff.
// Backoff: baseDelay * 2^attempt, raised to the error's RetryAfter hint when
// it is longer. An error reporting IsRetryable() == false stops at once.
// Respects context cancellation.
// Returns nil immediately if maxAttempts <= 0 (fn is never called).
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var lastErr error
	for attempt := range maxAttempts {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		var r retryable
		if errors.As(lastErr, &r) && !r.IsRetryable() {
			return lastErr
		}

		log.Warn().
			Str("component", "platform").
			Str("operation", "retry").
			Int("attempt", attempt+1).
			Int("max_attempts", maxAttempts).
			Err(lastErr).
			Msg("retry attempt failed")

		// Don't wait after the last attempt.
		if attempt == maxAttempts-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		var hint retryAfterer
		if errors.As(lastErr, &hint) && hint.RetryAfter() > delay {
			delay = hint.RetryAfter()
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
