package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type sessionCtxKey struct{}

// WithSessionID attaches a session id to the context for log correlation.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionCtxKey{}, sessionID)
}

// SessionIDFromContext returns the session id, or "" when absent.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionCtxKey{}).(string); ok {
		return id
	}
	return ""
}

// ContextFields extracts correlation fields from the context: trace
// correlation when a span is active, and the session id when set.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 4)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		fields = append(fields, zap.String("session.id", sessionID))
	}

	return fields
}
