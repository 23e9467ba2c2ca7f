package reliability

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_Success(t *testing.T) {
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	}

	config := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 10 * time.Millisecond,
		Multiplier:     2.0,
	}

	err := Retry(context.Background(), config, fn)
	if err != nil {
		t.Errorf("Retry() error = %v, want nil", err)
	}

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_FirstAttemptSucceeds(t *testing.T) {
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		return nil
	}

	if err := Retry(context.Background(), RetryConfig{}, fn); err != nil {
		t.Errorf("Retry() error = %v, want nil", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_MaxAttemptsExceeded(t *testing.T) {
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		return errors.New("persistent error")
	}

	config := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
	}

	err := Retry(context.Background(), config, fn)
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_DefaultsToThreeAttempts(t *testing.T) {
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		return errors.New("read failed")
	}

	config := RetryConfig{InitialBackoff: 1 * time.Millisecond}

	err := Retry(context.Background(), config, fn)
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_ContextErrorNotRetried(t *testing.T) {
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		return context.Canceled
	}

	err := Retry(context.Background(), RetryConfig{InitialBackoff: time.Millisecond}, fn)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_InterruptAbortsWait(t *testing.T) {
	attempts := 0
	fn := func(ctx context.Context) error {
		attempts++
		return errors.New("still failing")
	}

	config := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 10 * time.Second,
		Interrupt:      func() bool { return true },
	}

	start := time.Now()
	err := Retry(context.Background(), config, fn)
	if !errors.Is(err, ErrRetryAborted) {
		t.Errorf("expected ErrRetryAborted, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("interrupted retry took %v", elapsed)
	}
}

func TestRetry_ContextCancelAbortsWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	fn := func(ctx context.Context) error {
		return errors.New("error")
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	config := RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 10 * time.Second,
	}

	start := time.Now()
	err := Retry(ctx, config, fn)
	if !errors.Is(err, ErrRetryAborted) {
		t.Errorf("expected ErrRetryAborted, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled retry took %v", elapsed)
	}
}
