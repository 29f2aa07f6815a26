package domain

import (
	"context"
	"time"

	"github.com/core-tools/hsu-orchestrator/pkg/errors"
	"github.com/core-tools/hsu-orchestrator/pkg/logging"
)

type RetryHealthOptions struct {
	RetryAttempts int
	RetryInterval time.Duration
}

// RetryHealth calls Health until it succeeds, the attempts run out or ctx is
// done. It is used by clients that start before the orchestrator is up.
func RetryHealth(ctx context.Context, contract Contract, options RetryHealthOptions, logger logging.Logger) (SelfStatus, error) {
	attempts := options.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		status, err := contract.Health(ctx)
		if err == nil {
			return status, nil
		}
		lastErr = err
		logger.Debugf("Health attempt failed, attempt: %d/%d, error: %v", attempt, attempts, err)

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return SelfStatus{}, errors.NewCancelledError("health retry cancelled", ctx.Err())
		case <-time.After(options.RetryInterval):
		}
	}
	return SelfStatus{}, errors.NewTimeoutError("orchestrator did not become healthy", lastErr).
		WithContext("attempts", attempts)
}
