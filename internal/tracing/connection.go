package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const connectionTracerName = "kaname-connection"

func connectionTracer() trace.Tracer {
	return Tracer(connectionTracerName)
}

// TraceLaunch creates a span for spawning the agent subprocess.
func TraceLaunch(ctx context.Context, program string, argc int) (context.Context, trace.Span) {
	ctx, span := connectionTracer().Start(ctx, "acp.launch",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("program", program),
		attribute.Int("arg_count", argc),
	)
	return ctx, span
}

// TraceHandshake creates a span for the ACP initialize exchange.
func TraceHandshake(ctx context.Context, protocolVersion int) (context.Context, trace.Span) {
	ctx, span := connectionTracer().Start(ctx, "acp.initialize",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(attribute.Int("protocol_version", protocolVersion))
	return ctx, span
}

// TraceCommand creates a span for one command taken off the queue.
func TraceCommand(ctx context.Context, command, sessionID string) (context.Context, trace.Span) {
	ctx, span := connectionTracer().Start(ctx, "acp.command."+command,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(attribute.String("command", command))
	if sessionID != "" {
		span.SetAttributes(attribute.String("session_id", sessionID))
	}
	return ctx, span
}

// TracePermission creates a span for a permission decision.
func TracePermission(ctx context.Context, sessionID, toolCallID string, optionCount int) (context.Context, trace.Span) {
	ctx, span := connectionTracer().Start(ctx, "acp.permission",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("tool_call_id", toolCallID),
		attribute.Int("option_count", optionCount),
	)
	return ctx, span
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
