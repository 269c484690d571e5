package fillbot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Do runs fn up to MaxAttempts times, sleeping Delay between attempts.
// Errors that retrying cannot fix are returned immediately. It reports the
// number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, logger *zap.Logger, fn func(attempt int) error) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			logger.Debug("retrying interaction",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", maxAttempts),
				zap.Duration("delay", p.Delay),
				zap.Error(lastErr),
			)
			if err := sleepContext(ctx, p.Delay); err != nil {
				return attempt - 1, fmt.Errorf("retry cancelled: %w", err)
			}
		}
		lastErr = fn(attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if !isRetryable(lastErr) {
			return attempt, lastErr
		}
	}
	return maxAttempts, lastErr
}

func isRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNoMatchingOption),
		errors.Is(err, ErrElementNotFound),
		errors.Is(err, ErrInvalidValue),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
