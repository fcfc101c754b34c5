// retry.go wraps REST calls that may fail with transient venue errors.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	retryMaxAttempts = 3
	retryBackoffBase = 2 // delay = base^attempt seconds
)

// WithRetry runs fn up to retryMaxAttempts times, sleeping base^attempt
// seconds between attempts. Only Transient errors are retried; anything
// else short-circuits to the caller. The last transient error is returned
// when all attempts are exhausted.
func WithRetry(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt < retryMaxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		if attempt == retryMaxAttempts-1 {
			break
		}

		delay := time.Duration(pow(retryBackoffBase, attempt)) * time.Second
		logger.Warn("transient error, retrying",
			"op", op,
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w: %w", op, ErrConnection, ctx.Err())
		case <-time.After(delay):
		}
	}
	return err
}

func pow(base, exp int) int {
	result := 1
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
