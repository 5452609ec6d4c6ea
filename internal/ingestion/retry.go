package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/gobelinus/review-system-microservice-sub000/internal/logger"
)

// RetryConfig holds the parameters for the retry strategy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig returns the retry parameters used for object-store calls.
// Parameters: none.
// Returns:
//   - RetryConfig: 3 attempts, 1s base delay doubling up to 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Retry executes fn with exponential backoff, consulting retryable to decide
// whether a failure is worth another attempt. Fatal errors surface
// immediately; the sleep between attempts observes ctx cancellation.
// Parameters:
//   - ctx: context for cancellation between attempts.
//   - cfg: retry strategy parameters.
//   - operation: name used in logs and the final error.
//   - retryable: classifier returning true for transient errors.
//   - fn: the operation to run.
// Returns:
//   - error: nil on success, the fatal error, or the last transient error
//     wrapped with the attempt count.
func Retry(ctx context.Context, cfg RetryConfig, operation string, retryable func(error) bool, fn func() error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	delay := cfg.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if retryable != nil && !retryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		logger.FromContext(ctx).WithFields(logger.Fields{
			"operation": operation,
			"attempt":   attempt,
			"max":       cfg.MaxAttempts,
			"delay":     delay.String(),
		}).WithError(lastErr).Warn("Transient failure, retrying")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, cfg.MaxAttempts, lastErr)
}
