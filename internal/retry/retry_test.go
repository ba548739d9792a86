package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeSleep records requested delays without sleeping.
func fakeSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	var delays []time.Duration
	policy := Policy{
		MaxRetries: 2,
		Backoff:    []time.Duration{5 * time.Second, 10 * time.Second},
		Retryable:  func(error) bool { return true },
		Sleep:      fakeSleep(&delays),
	}
	attempts := 0
	transient := errors.New("i/o timeout")
	result := policy.Do(context.Background(), func(int) error {
		attempts++
		return transient
	})
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	if result.Attempts != 3 || result.Retries != 2 {
		t.Fatalf("result = %+v, want Attempts=3 Retries=2", result)
	}
	if !errors.Is(result.Err, transient) {
		t.Fatalf("final error = %v", result.Err)
	}
	if len(delays) != 2 || delays[0] != 5*time.Second || delays[1] != 10*time.Second {
		t.Fatalf("backoff schedule = %v, want [5s 10s]", delays)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	var delays []time.Duration
	policy := Policy{
		MaxRetries: 2,
		Backoff:    []time.Duration{5 * time.Second, 10 * time.Second},
		Retryable:  func(error) bool { return false },
		Sleep:      fakeSleep(&delays),
	}
	attempts := 0
	result := policy.Do(context.Background(), func(int) error {
		attempts++
		return errors.New("HTTP 500")
	})
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	if result.Retries != 0 {
		t.Fatalf("retries = %d, want 0", result.Retries)
	}
	if len(delays) != 0 {
		t.Fatalf("unexpected sleeps: %v", delays)
	}
}

func TestDoSucceedsAfterRetry(t *testing.T) {
	var delays []time.Duration
	policy := Policy{
		MaxRetries: 2,
		Backoff:    []time.Duration{5 * time.Second, 10 * time.Second},
		Retryable:  func(error) bool { return true },
		Sleep:      fakeSleep(&delays),
	}
	attempts := 0
	result := policy.Do(context.Background(), func(int) error {
		attempts++
		if attempts < 2 {
			return errors.New("connection refused")
		}
		return nil
	})
	if result.Err != nil {
		t.Fatalf("unexpected error: %v", result.Err)
	}
	if result.Attempts != 2 || result.Retries != 1 {
		t.Fatalf("result = %+v, want Attempts=2 Retries=1", result)
	}
}

func TestDoHonorsPermanent(t *testing.T) {
	var delays []time.Duration
	policy := Policy{
		MaxRetries: 2,
		Backoff:    []time.Duration{time.Second},
		Sleep:      fakeSleep(&delays),
	}
	attempts := 0
	result := policy.Do(context.Background(), func(int) error {
		attempts++
		return Permanent(errors.New("bad request"))
	})
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	if !IsPermanent(result.Err) {
		t.Fatalf("expected permanent error, got %v", result.Err)
	}
}

func TestDoStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := Default()
	attempts := 0
	result := policy.Do(ctx, func(int) error {
		attempts++
		return nil
	})
	if attempts != 0 {
		t.Fatalf("attempts = %d, want 0", attempts)
	}
	if !errors.Is(result.Err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", result.Err)
	}
}

func TestBackoffScheduleRepeatsLastEntry(t *testing.T) {
	policy := Policy{MaxRetries: 4, Backoff: []time.Duration{time.Second, 2 * time.Second}}
	if d := policy.delay(3); d != 2*time.Second {
		t.Fatalf("delay(3) = %v, want 2s", d)
	}
}
