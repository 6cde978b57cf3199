package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartGraphSpan creates the root span for one graph run.
func StartGraphSpan(ctx context.Context, graphID string, taskCount int) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("scheduler")
	ctx, span := tracer.Start(ctx, "graph.run")
	span.SetAttributes(
		attribute.String("graph_id", graphID),
		attribute.Int("tasks", taskCount),
		attribute.String("component", "scheduler"),
	)
	return ctx, span
}

// StartTaskSpan creates a span for one task execution, named after its
// execution path.
func StartTaskSpan(ctx context.Context, taskID, path string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("scheduler")
	ctx, span := tracer.Start(ctx, "task."+path)
	span.SetAttributes(
		attribute.String("task_id", taskID),
		attribute.String("path", path),
		attribute.String("component", "scheduler"),
	)
	return ctx, span
}

// StartStepSpan creates a span for one verification-loop step.
func StartStepSpan(ctx context.Context, step string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("gui")
	ctx, span := tracer.Start(ctx, "gui."+step)
	span.SetAttributes(
		attribute.String("step", step),
		attribute.String("component", "gui"),
	)
	return ctx, span
}

// StartProviderSpan creates a span for a collaborator model call.
func StartProviderSpan(ctx context.Context, providerName, operation string) (context.Context, trace.Span) {
	tracer := GetTracerProvider().Tracer("providers")
	ctx, span := tracer.Start(ctx, "provider."+operation)
	span.SetAttributes(
		attribute.String("provider", providerName),
		attribute.String("operation", operation),
		attribute.String("component", "provider"),
	)
	return ctx, span
}

// RecordSuccess marks a span as successful with optional result
// attributes.
func RecordSuccess(span trace.Span, attrs ...attribute.KeyValue) {
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
}

// RecordError records an error in a span and sets error status.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
