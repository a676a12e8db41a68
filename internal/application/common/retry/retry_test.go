package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      10 * time.Millisecond,
		BackoffFactor: 2.0,
		Jitter:        false,
	}
}

func TestRetryExecutor_SuccessOnFirstAttempt(t *testing.T) {
	executor := NewRetryExecutor(fastConfig(3))
	callCount := 0

	err := executor.Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got: %d", callCount)
	}
}

func TestRetryExecutor_SuccessAfterRetries(t *testing.T) {
	executor := NewRetryExecutor(fastConfig(3))
	callCount := 0

	err := executor.Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got: %d", callCount)
	}
}

func TestRetryExecutor_FailureAfterMaxRetries(t *testing.T) {
	executor := NewRetryExecutor(fastConfig(2))
	callCount := 0
	cause := errors.New("connection refused")

	err := executor.Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		return cause
	})
	if !errors.Is(err, cause) {
		t.Fatalf("Expected wrapped cause, got: %v", err)
	}
	if !strings.Contains(err.Error(), "after 2 retries") {
		t.Errorf("Expected retry count in error, got: %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got: %d", callCount)
	}
}

func TestRetryExecutor_ZeroRetriesRunsOnce(t *testing.T) {
	executor := NewRetryExecutor(fastConfig(0))
	callCount := 0
	cause := errors.New("timeout")

	err := executor.Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		return cause
	})
	if err != cause {
		t.Errorf("Expected the unwrapped cause, got: %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got: %d", callCount)
	}
}

func TestRetryExecutor_NonRetryableError(t *testing.T) {
	executor := NewRetryExecutor(fastConfig(3))
	callCount := 0

	err := executor.Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		return errors.New("validation error")
	})
	if err == nil {
		t.Error("Expected error, got nil")
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call for non-retryable error, got: %d", callCount)
	}
}

func TestRetryExecutor_ContextCancellation(t *testing.T) {
	config := fastConfig(5)
	config.InitialDelay = time.Second
	config.MaxDelay = time.Second
	executor := NewRetryExecutor(config)

	ctx, cancel := context.WithCancel(context.Background())
	callCount := 0

	err := executor.Execute(ctx, func(ctx context.Context) error {
		callCount++
		cancel()
		return errors.New("timeout")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got: %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got: %d", callCount)
	}
}

func TestRetryExecutor_CustomChecker(t *testing.T) {
	sentinel := errors.New("store busy")
	checker := CheckerFunc(func(err error) bool { return errors.Is(err, sentinel) })
	executor := NewRetryExecutorWithChecker(fastConfig(3), checker)
	callCount := 0

	err := executor.Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		if callCount == 1 {
			return fmt.Errorf("fetch: %w", sentinel)
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if callCount != 2 {
		t.Errorf("Expected 2 calls, got: %d", callCount)
	}
}

func TestRetryExecutor_ExponentialBackoff(t *testing.T) {
	config := &RetryConfig{
		MaxRetries:    3,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      1 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        false,
	}

	executor := NewRetryExecutor(config)

	testCases := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{4, 80 * time.Millisecond},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("attempt_%d", tc.attempt), func(t *testing.T) {
			delay := executor.calculateDelay(tc.attempt)
			if delay != tc.expected {
				t.Errorf("Expected delay %v for attempt %d, got: %v", tc.expected, tc.attempt, delay)
			}
		})
	}
}

func TestRetryExecutor_MaxDelayEnforced(t *testing.T) {
	config := &RetryConfig{
		MaxRetries:    10,
		InitialDelay:  10 * time.Millisecond,
		MaxDelay:      100 * time.Millisecond,
		BackoffFactor: 2.0,
		Jitter:        false,
	}

	delay := NewRetryExecutor(config).calculateDelay(10)
	if delay > config.MaxDelay {
		t.Errorf("Expected delay to be capped at %v, got: %v", config.MaxDelay, delay)
	}
}

func TestRetryExecutor_JitterStaysInRange(t *testing.T) {
	config := &RetryConfig{
		MaxRetries:    3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      1 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}

	executor := NewRetryExecutor(config)
	baseDelay := 100 * time.Millisecond
	minExpected := time.Duration(float64(baseDelay) * 0.75)
	maxExpected := time.Duration(float64(baseDelay) * 1.25)

	for range 20 {
		delay := executor.calculateDelay(1)
		if delay < minExpected || delay > maxExpected {
			t.Errorf("Delay %v is outside expected jitter range [%v, %v]", delay, minExpected, maxExpected)
		}
	}
}

type temporaryErr struct{}

func (temporaryErr) Error() string   { return "busy" }
func (temporaryErr) Temporary() bool { return true }

func TestDefaultRetryableChecker(t *testing.T) {
	checker := &DefaultRetryableChecker{}

	retryable := []error{
		errors.New("connection refused"),
		errors.New("connection reset by peer"),
		errors.New("i/o timeout"),
		errors.New("deadlock detected"),
		errors.New("too many connections"),
		errors.New("try again later"),
		errors.New("no route to host"),
		errors.New("API returned unexpected status code: 429: Rate limit reached"),
		errors.New("503 Service Unavailable"),
		fmt.Errorf("wrapped: %w", temporaryErr{}),
	}
	for _, err := range retryable {
		if !checker.IsRetryable(err) {
			t.Errorf("Expected error to be retryable: %v", err)
		}
	}

	nonRetryable := []error{
		nil,
		errors.New("validation error"),
		errors.New("record not found"),
		context.Canceled,
	}
	for _, err := range nonRetryable {
		if checker.IsRetryable(err) {
			t.Errorf("Expected error to be non-retryable: %v", err)
		}
	}
}

func TestAnyChecker(t *testing.T) {
	sentinel := errors.New("custom")
	checker := AnyChecker{nil, &DefaultRetryableChecker{}, CheckerFunc(func(err error) bool { return errors.Is(err, sentinel) })}

	if !checker.IsRetryable(sentinel) {
		t.Error("Expected custom sentinel to be retryable")
	}
	if !checker.IsRetryable(errors.New("timeout")) {
		t.Error("Expected timeout to be retryable")
	}
	if checker.IsRetryable(errors.New("bad input")) {
		t.Error("Expected bad input to be non-retryable")
	}
}

func TestRetryExecutor_NilCheckerUsesDefault(t *testing.T) {
	callCount := 0

	err := NewRetryExecutorWithChecker(fastConfig(3), nil).Execute(context.Background(), func(ctx context.Context) error {
		callCount++
		if callCount < 2 {
			return errors.New("timeout")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if callCount != 2 {
		t.Errorf("Expected 2 calls, got: %d", callCount)
	}
}
