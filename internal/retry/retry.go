// Package retry implements bounded retry with a fixed backoff schedule for
// transient failures during model calls.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy configures retry behavior. The zero value performs a single
// attempt with no retries.
type Policy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// Backoff is the fixed delay schedule; Backoff[i] is slept after the
	// i-th failed attempt. When the schedule is shorter than MaxRetries the
	// last entry repeats.
	Backoff []time.Duration
	// Retryable decides whether an error is worth another attempt. A nil
	// classifier retries everything except Permanent errors.
	Retryable func(error) bool
	// Sleep waits between attempts and is injectable for tests. A nil Sleep
	// uses a context-aware time.After wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Default returns the model-call policy: three attempts total with 5s and
// 10s pauses between them.
func Default() Policy {
	return Policy{
		MaxRetries: 2,
		Backoff:    []time.Duration{5 * time.Second, 10 * time.Second},
	}
}

// Result reports the outcome of a retried operation.
type Result struct {
	// Attempts is the total number of attempts made (>= 1).
	Attempts int
	// Retries is Attempts - 1, bounded by MaxRetries.
	Retries int
	// Err is the final error, nil on success.
	Err error
}

// Do runs op until it succeeds, exhausts the retry budget, or hits a
// non-retryable error. op receives the 1-based attempt number.
func (p Policy) Do(ctx context.Context, op func(attempt int) error) Result {
	sleep := p.Sleep
	if sleep == nil {
		sleep = waitContext
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(err error) bool { return !IsPermanent(err) }
	}

	result := Result{}
	for attempt := 1; attempt <= p.MaxRetries+1; attempt++ {
		result.Attempts = attempt
		result.Retries = attempt - 1

		if err := ctx.Err(); err != nil {
			result.Err = err
			return result
		}

		err := op(attempt)
		if err == nil {
			result.Err = nil
			return result
		}
		result.Err = err

		if !retryable(err) || attempt > p.MaxRetries {
			return result
		}
		if err := sleep(ctx, p.delay(attempt)); err != nil {
			result.Err = err
			return result
		}
	}
	return result
}

// delay returns the backoff after the given 1-based failed attempt.
func (p Policy) delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(p.Backoff) {
		idx = len(p.Backoff) - 1
	}
	return p.Backoff[idx]
}

func waitContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// PermanentError marks an error that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps an error to indicate it should not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent checks whether an error was marked permanent.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}
