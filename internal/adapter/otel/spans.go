package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "flowdeck"

// StartConnectSpan starts a span for an observation connect attempt.
func StartConnectSpan(ctx context.Context, workflowID, endpoint string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "observe.connect",
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
			attribute.String("stream.endpoint", endpoint),
		),
	)
}

// StartReplaySpan starts a span for rebuilding a snapshot from the archive.
func StartReplaySpan(ctx context.Context, workflowID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "observe.replay",
		trace.WithAttributes(
			attribute.String("workflow.id", workflowID),
		),
	)
}
