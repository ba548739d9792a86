package llm

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/haasonsaas/evalwatch/internal/observability"
)

type staticCompleter struct {
	resp *Response
	err  error
}

func (s *staticCompleter) Name() string { return "static" }

func (s *staticCompleter) Complete(context.Context, *Request) (*Response, error) {
	return s.resp, s.err
}

func recordingTracer(t *testing.T) (*observability.Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { provider.Shutdown(context.Background()) })
	return observability.TracerFromProvider(provider), recorder
}

func TestWithTracingEmitsSpanPerCall(t *testing.T) {
	tracer, recorder := recordingTracer(t)
	c := WithTracing(&staticCompleter{resp: &Response{Content: "ok"}}, tracer)

	if _, err := c.Complete(context.Background(), &Request{Model: "gpt-4o"}); err != nil {
		t.Fatal(err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "llm.complete" {
		t.Fatalf("span name = %q", span.Name())
	}
	var gotModel bool
	for _, attr := range span.Attributes() {
		if attr.Key == "llm.model" && attr.Value.AsString() == "gpt-4o" {
			gotModel = true
		}
	}
	if !gotModel {
		t.Fatalf("model attribute missing: %v", span.Attributes())
	}
}

func TestWithTracingRecordsErrors(t *testing.T) {
	tracer, recorder := recordingTracer(t)
	c := WithTracing(&staticCompleter{err: errors.New("connection refused")}, tracer)

	if _, err := c.Complete(context.Background(), &Request{Model: "gpt-4o"}); err == nil {
		t.Fatal("expected error")
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("spans = %d, want 1", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("status = %v, want error", spans[0].Status())
	}
	if len(spans[0].Events()) == 0 {
		t.Fatal("error not recorded on span")
	}
}

func TestWithTracingNilTracerPassesThrough(t *testing.T) {
	inner := &staticCompleter{resp: &Response{Content: "ok"}}
	if got := WithTracing(inner, nil); got != Completer(inner) {
		t.Fatalf("got %T, want the inner completer", got)
	}
}
