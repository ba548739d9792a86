package llm

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/haasonsaas/evalwatch/internal/observability"
)

// tracedCompleter emits one span per completion call. Because model, judge,
// and generation traffic all flow through the same Completer, decorating it
// once covers every outbound LLM call.
type tracedCompleter struct {
	inner  Completer
	tracer *observability.Tracer
}

// WithTracing decorates a completer so every Complete call produces an
// "llm.complete" span carrying the provider, model, and any error. A nil
// tracer returns the completer unchanged.
func WithTracing(c Completer, tracer *observability.Tracer) Completer {
	if tracer == nil {
		return c
	}
	return &tracedCompleter{inner: c, tracer: tracer}
}

func (t *tracedCompleter) Name() string { return t.inner.Name() }

func (t *tracedCompleter) Complete(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := t.tracer.Start(ctx, "llm.complete",
		attribute.String("llm.provider", t.inner.Name()),
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.max_tokens", req.MaxTokens),
	)
	defer span.End()

	resp, err := t.inner.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}
