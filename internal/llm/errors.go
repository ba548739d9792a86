package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// maxBodyInError bounds how much of a response body is kept in error text.
const maxBodyInError = 200

// StatusError reports a completion call that reached the gateway but came
// back with a non-success HTTP status. These are never retried, with the
// single exception of 429 which is classified as transient rate limiting.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Code, truncate(e.Body, maxBodyInError))
}

// TransportError reports a failure before any HTTP response was received:
// timeouts, connection refusals, DNS failures. These are the retryable
// class.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransient reports whether an error should be retried. Timeouts and
// connection-level failures qualify, as does HTTP 429; every other error,
// including other non-success statuses, aborts immediately.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == 429
	}
	var transport *TransportError
	return errors.As(err, &transport)
}

// classifyTransport wraps network-level failures in *TransportError and
// leaves everything else untouched.
func classifyTransport(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransportError{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &TransportError{Err: err}
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return &TransportError{Err: err}
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
