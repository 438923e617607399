package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/openlibra/circulation-engine/circulation"
)

const (
	defaultMaxAttempts  = 6
	defaultBaseDelay    = 10 * time.Millisecond
	defaultJitterFactor = 0.3

	metricRetryAttempts    = "circulation_retry_attempts_total"
	metricRetryDelay       = "circulation_retry_delay_ms"
	metricRetriesExhausted = "circulation_retries_exhausted_total"
)

var (
	// ErrInvalidMaxAttempts is returned when max attempts are not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNegativeBaseDelay is returned when the base delay is negative.
	ErrNegativeBaseDelay = errors.New("base delay must not be negative")

	// ErrInvalidJitterFactor is returned when the jitter factor is not between 0.0 and 1.0.
	ErrInvalidJitterFactor = errors.New("jitter factor must be between 0.0 and 1.0")
)

// RetryableFunc represents a function that can be retried.
type RetryableFunc func(ctx context.Context) error

// retryConfig holds configuration for exponential backoff retry logic.
type retryConfig struct {
	maxAttempts      int
	baseDelay        time.Duration
	jitterFactor     float64
	metricsCollector circulation.MetricsCollector
	operation        string
}

// RetryOption configures the retry behavior.
type RetryOption func(*retryConfig) error

// WithMaxAttempts sets how often a conflicting transaction is attempted in total.
func WithMaxAttempts(attempts int) RetryOption {
	return func(c *retryConfig) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}

		c.maxAttempts = attempts

		return nil
	}
}

// WithBaseDelay sets the delay before the first retry; later retries double it.
func WithBaseDelay(delay time.Duration) RetryOption {
	return func(c *retryConfig) error {
		if delay < 0 {
			return ErrNegativeBaseDelay
		}

		c.baseDelay = delay

		return nil
	}
}

// WithJitterFactor sets the random jitter fraction added to each backoff delay.
func WithJitterFactor(factor float64) RetryOption {
	return func(c *retryConfig) error {
		if factor < 0.0 || factor > 1.0 {
			return ErrInvalidJitterFactor
		}

		c.jitterFactor = factor

		return nil
	}
}

// withRetryMetrics wires the engine's metrics collector into the retry loop.
func withRetryMetrics(collector circulation.MetricsCollector, operation string) RetryOption {
	return func(c *retryConfig) error {
		c.metricsCollector = collector
		c.operation = operation

		return nil
	}
}

// RetryWithExponentialBackoff executes fn with exponential backoff retry
// logic, retrying only on transient errors (concurrency conflicts and
// storage unavailability) up to maxAttempts times.
//
// Retry Schedule (default): 0 ms, 10 ms, 20 ms, 40 ms, 80 ms (with 30% jitter)
//
// Business errors - state conflicts, policy denials, validation - fail fast
// and are never retried.
func RetryWithExponentialBackoff(ctx context.Context, fn RetryableFunc, options ...RetryOption) error {
	config := &retryConfig{
		maxAttempts:  defaultMaxAttempts,
		baseDelay:    defaultBaseDelay,
		jitterFactor: defaultJitterFactor,
	}

	for _, option := range options {
		if err := option(config); err != nil {
			return err
		}
	}

	var lastErr error

	for attempt := 0; attempt < config.maxAttempts; attempt++ {
		if attempt > 0 {
			// Exponential backoff: baseDelay * 2^(attempt-1)
			delay := config.baseDelay * time.Duration(1<<(attempt-1))

			// Add jitter to prevent thundering herd
			jitter := rand.Float64() * float64(delay) * config.jitterFactor //nolint:gosec //math/rand is sufficient for jitter
			backoffDelay := delay + time.Duration(jitter)

			recordRetryDelayMetric(config, attempt, backoffDelay)

			select {
			case <-time.After(backoffDelay):
				// Continue with retry
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil // Success
		}

		if !circulation.IsTransient(lastErr) {
			return lastErr // Permanent failure
		}

		recordRetryAttemptMetric(config, attempt)
	}

	recordRetriesExhaustedMetric(config)

	return lastErr // Max attempts reached
}

func recordRetryDelayMetric(config *retryConfig, attempt int, backoffDelay time.Duration) {
	if config.metricsCollector == nil {
		return
	}

	config.metricsCollector.RecordValue(metricRetryDelay, float64(backoffDelay.Milliseconds()), map[string]string{
		logAttrOperation: config.operation,
		"attempt_number": fmt.Sprintf("%d", attempt),
	})
}

func recordRetryAttemptMetric(config *retryConfig, attempt int) {
	if config.metricsCollector == nil {
		return
	}

	config.metricsCollector.IncrementCounter(metricRetryAttempts, map[string]string{
		logAttrOperation: config.operation,
		"attempt_number": fmt.Sprintf("%d", attempt),
	})
}

func recordRetriesExhaustedMetric(config *retryConfig) {
	if config.metricsCollector == nil {
		return
	}

	config.metricsCollector.IncrementCounter(metricRetriesExhausted, map[string]string{
		logAttrOperation: config.operation,
	})
}
