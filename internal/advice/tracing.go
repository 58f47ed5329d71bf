package advice

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/conduit-lang/stereotype/internal/aspect"
)

// Span attribute keys
const (
	AttrTarget = "stereotype.target"
	AttrArgs   = "stereotype.args"
)

type spanKey struct{}

type tracing struct {
	aspect.Base
	tracer trace.Tracer
}

// Tracing opens a span around each invocation. The span's context is handed
// to the target, so spans it starts become children. A nil tracer yields a
// no-op advice.
func Tracing(tracer trace.Tracer) aspect.Advice {
	if tracer == nil {
		return aspect.Base{}
	}
	return &tracing{tracer: tracer}
}

func (t *tracing) Around(ctx context.Context, jp *aspect.JoinPoint, phase aspect.Phase) error {
	if phase == aspect.PhaseEnter {
		ctx, span := t.tracer.Start(ctx, jp.Name(),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		span.SetAttributes(
			attribute.String(AttrTarget, jp.Name()),
			attribute.Int(AttrArgs, len(jp.Args())),
		)
		jp.Set(spanKey{}, span)
		jp.SetContext(ctx)
		return nil
	}

	if span, ok := jp.Value(spanKey{}).(trace.Span); ok {
		span.End()
	}
	return nil
}

func (t *tracing) AfterReturn(ctx context.Context, jp *aspect.JoinPoint) error {
	if span, ok := jp.Value(spanKey{}).(trace.Span); ok {
		span.SetStatus(codes.Ok, "")
	}
	return nil
}

func (t *tracing) AfterException(ctx context.Context, jp *aspect.JoinPoint, fault error) error {
	if span, ok := jp.Value(spanKey{}).(trace.Span); ok {
		span.RecordError(fault)
		span.SetStatus(codes.Error, fault.Error())
	}
	return nil
}
