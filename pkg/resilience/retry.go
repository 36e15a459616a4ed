package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Operation is a unit of work executed with retry or breaker protection.
type Operation func(ctx context.Context) (interface{}, error)

// RetryConfig controls retry behavior for an operation.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	EnableJitter      bool
	// RetryableErrors limits retries to the listed errors. Empty means all
	// errors are retryable (except context and breaker-open errors).
	RetryableErrors []error
	// RetryableChecker overrides RetryableErrors when set.
	RetryableChecker func(err error) bool
}

// DefaultRetryConfig returns sensible retry defaults for outbound calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		EnableJitter:      true,
	}
}

// Retry executes the operation until it succeeds, the attempts are exhausted,
// or a non-retryable error is returned.
func Retry(ctx context.Context, config RetryConfig, operation Operation) (interface{}, error) {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result, err := operation(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !isRetryable(err, config) {
			return nil, err
		}

		if attempt == config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(calculateBackoff(attempt, config)):
		}
	}

	return nil, lastErr
}

func isRetryable(err error, config RetryConfig) bool {
	// Context and breaker-open errors never benefit from retrying.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrCircuitOpen) {
		return false
	}

	if config.RetryableChecker != nil {
		return config.RetryableChecker(err)
	}

	if len(config.RetryableErrors) == 0 {
		return true
	}

	for _, retryable := range config.RetryableErrors {
		if errors.Is(err, retryable) {
			return true
		}
	}
	return false
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	backoff := float64(config.InitialBackoff) * math.Pow(config.BackoffMultiplier, float64(attempt-1))
	if max := float64(config.MaxBackoff); backoff > max {
		backoff = max
	}

	if config.EnableJitter {
		// Full jitter: anywhere between half and the full backoff
		backoff = backoff/2 + rand.Float64()*backoff/2
	}

	return time.Duration(backoff)
}
