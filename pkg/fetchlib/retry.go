package fetchlib

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"os"
	"time"
)

// RetryConfig holds configuration for transient-failure retry behavior.
type RetryConfig struct {
	MaxRetries   int           // Maximum number of retry attempts
	BaseDelay    time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Cap on the computed backoff
	JitterFactor float64       // Random jitter factor (0-1)
}

// DefaultRetryConfig returns a RetryConfig with sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   DEF_MAX_RETRIES,
		BaseDelay:    DEF_BASE_DELAY,
		MaxDelay:     DEF_MAX_DELAY,
		JitterFactor: 0.25,
	}
}

// Backoff computes the delay before the retry with the given count:
// base * 2^retryCount, jittered, capped at MaxDelay.
func (c *RetryConfig) Backoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := float64(c.BaseDelay) * math.Pow(2, float64(retryCount))
	if c.JitterFactor > 0 {
		jitter := c.JitterFactor * (2*rand.Float64() - 1) // random in [-1, 1]
		delay *= (1 + jitter)
	}
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if delay < 0 {
		delay = float64(c.BaseDelay)
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether a task with the given retry count may be
// retried after err.
func (c *RetryConfig) ShouldRetry(retryCount int, err error) bool {
	if !Classify(err).Retryable() {
		return false
	}
	return retryCount < c.MaxRetries
}

// Classify maps an arbitrary transfer-time error onto the category
// taxonomy. TransferErrors keep their category; everything else is
// classified by inspection.
func Classify(err error) ErrorCategory {
	if err == nil {
		return CategoryNetwork
	}

	var te *TransferError
	if errors.As(err, &te) {
		return te.Category
	}

	// Context cancellation is user-initiated, not a failure.
	// An expired deadline is a transient timeout.
	if errors.Is(err, context.Canceled) {
		return CategoryCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrAcquireTimeout) {
		return CategoryTimeout
	}
	if errors.Is(err, ErrRateLimited) {
		return CategoryRateLimited
	}

	// Dropped connections surface as EOF mid-body.
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return CategoryNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryNetwork
	}

	if errors.Is(err, os.ErrPermission) {
		return CategoryPermission
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return CategoryStorage
	}

	// Unknown errors are network-ish at transfer time; the retry cap
	// bounds the damage of a wrong guess.
	return CategoryNetwork
}
