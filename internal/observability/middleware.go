package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartPhaseSpan opens a span covering one controller phase (Init,
// StorageReady, ModulesReady, Planned, Executed, Finalized). Disabled by
// default; when enabled against a local collector the resulting trace shows
// the scan -> sync -> plan -> overlay -> magic -> finalize pipeline as a
// single request.
func StartPhaseSpan(ctx context.Context, phase string) (context.Context, trace.Span) {
	if !Enabled() {
		return ctx, trace.SpanFromContext(ctx)
	}
	return Tracer().Start(ctx, "phase."+phase,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("sysoverlay.phase", phase)),
	)
}

// EndPhaseSpan records the phase's outcome and closes the span. Call via
// defer immediately after StartPhaseSpan.
func EndPhaseSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
