// Package resilience provides retry and circuit breaker primitives for
// outbound calls.
package resilience

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // 0.0 to 1.0
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.2,
	}
}

// Retry executes fn with exponential backoff until it succeeds, the attempt
// budget is spent, or ctx is cancelled.
func Retry(ctx context.Context, cfg RetryConfig, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := fn(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return errors.Join(ctx.Err(), lastErr)
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-time.After(backoffDelay(attempt, cfg)):
		case <-ctx.Done():
			return errors.Join(ctx.Err(), lastErr)
		}
	}

	return lastErr
}

// backoffDelay computes baseDelay*2^attempt capped at maxDelay, with
// +/- jitter percent of randomization.
func backoffDelay(attempt int, cfg RetryConfig) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter > 0 {
		spread := delay * cfg.Jitter
		delay = delay - spread + rand.Float64()*spread*2
	}
	return time.Duration(delay)
}

// IsRetryable reports whether an outbound call error is worth retrying.
// Cancellations, open circuits, and client-side rejections (HTTP 4xx other
// than 408/429) are permanent; everything else is assumed transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "status 4") &&
		!strings.Contains(msg, "status 408") &&
		!strings.Contains(msg, "status 429") {
		return false
	}
	if strings.Contains(msg, "invalid argument") || strings.Contains(msg, "validation") {
		return false
	}

	return true
}
