package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type fakeNetError struct{ timeout bool }

func (e *fakeNetError) Error() string   { return "dial tcp: i/o timeout" }
func (e *fakeNetError) Timeout() bool   { return e.timeout }
func (e *fakeNetError) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "timeout", err: classifyTransport(&fakeNetError{timeout: true}), want: true},
		{name: "deadline", err: classifyTransport(context.DeadlineExceeded), want: true},
		{name: "rate_limit", err: &StatusError{Code: 429, Body: "slow down"}, want: true},
		{name: "server_error", err: &StatusError{Code: 500, Body: "boom"}, want: false},
		{name: "bad_request", err: &StatusError{Code: 400, Body: "nope"}, want: false},
		{name: "plain", err: errors.New("json: cannot unmarshal"), want: false},
		{name: "wrapped_transport", err: fmt.Errorf("call failed: %w", &TransportError{Err: errors.New("refused")}), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyTransportLeavesOtherErrors(t *testing.T) {
	plain := errors.New("malformed request")
	if got := classifyTransport(plain); got != plain {
		t.Fatalf("expected plain error to pass through, got %v", got)
	}
}

func TestStatusErrorTruncatesBody(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	err := &StatusError{Code: 502, Body: string(long)}
	if len(err.Error()) > maxBodyInError+20 {
		t.Fatalf("error text not truncated: %d bytes", len(err.Error()))
	}
}

func TestSplitDataURL(t *testing.T) {
	mediaType, data, err := splitDataURL("data:image/png;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mediaType != "image/png" || data != "aGVsbG8=" {
		t.Fatalf("got (%q, %q)", mediaType, data)
	}
	if _, _, err := splitDataURL("https://example.com/x.png"); err == nil {
		t.Fatal("expected error for non-data URL")
	}
}
