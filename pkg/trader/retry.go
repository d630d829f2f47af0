package trader

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryPolicy bounds the retries of a single transaction step. It is separate
// from the run loop, which keeps scheduling cycles regardless.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Retryable   func(error) bool
}

// DefaultRetryPolicy waits 2s then 4s between three attempts and only retries
// network failures.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Retryable: func(err error) bool {
			return Classify(err) == CauseNetwork
		},
	}
}

func (p RetryPolicy) Do(ctx context.Context, logger *logrus.Logger, op string, fn func(attempt int) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		wait := p.BaseDelay * time.Duration(1<<attempt)
		logger.WithError(lastErr).WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"wait":    wait.String(),
		}).Warn("Transaction step failed, retrying")

		if err := waitForContext(ctx, wait); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func waitForContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
