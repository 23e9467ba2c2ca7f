package reliability

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrRetryAborted       = errors.New("retry aborted")
)

// interruptCheckInterval bounds how long a backoff wait can outlive a
// cancellation request.
const interruptCheckInterval = 100 * time.Millisecond

// RetryConfig holds configuration for retry logic. The zero value retries
// transient file reads three times with 100ms base backoff capped at 2s.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         bool

	// Interrupt is polled while waiting between attempts. Workers pass
	// their cancel check so a pending retry does not delay shutdown.
	Interrupt func() bool
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context) error

// Retry executes a function with exponential backoff retry logic
func Retry(ctx context.Context, config RetryConfig, fn RetryFunc) error {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}

	if config.InitialBackoff == 0 {
		config.InitialBackoff = 100 * time.Millisecond
	}

	if config.MaxBackoff == 0 {
		config.MaxBackoff = 2 * time.Second
	}

	if config.Multiplier == 0 {
		config.Multiplier = 2.0
	}

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if attempt == config.MaxAttempts {
			return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
		}

		wait := backoff
		if config.Jitter {
			wait = addJitter(wait)
		}

		if err := sleepInterruptible(ctx, wait, config.Interrupt); err != nil {
			return fmt.Errorf("%w: %v", ErrRetryAborted, err)
		}

		backoff = time.Duration(float64(backoff) * config.Multiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return fmt.Errorf("%w: %v", ErrMaxRetriesExceeded, lastErr)
}

// sleepInterruptible waits for d unless the context ends or the interrupt
// check trips.
func sleepInterruptible(ctx context.Context, d time.Duration, interrupt func() bool) error {
	deadline := time.Now().Add(d)
	for {
		if interrupt != nil && interrupt() {
			return errors.New("cancelled by worker")
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining > interruptCheckInterval {
			remaining = interruptCheckInterval
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(remaining):
		}
	}
}

// isRetryable determines if an error should trigger a retry. File reads
// fail transiently during rotation and under scanner locks, so everything
// except context errors is considered worth another attempt.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

// addJitter adds randomness to backoff duration
func addJitter(d time.Duration) time.Duration {
	// Add ±20% jitter
	jitter := float64(d) * 0.2
	offset := (float64(time.Now().UnixNano()%1000) / 1000.0) * jitter
	return time.Duration(float64(d) + offset - jitter/2)
}
