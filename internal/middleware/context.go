package middleware

import (
	"context"

	"go.uber.org/zap"
)

// ContextKey type for context keys to avoid conflicts
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"
	// LoggerKey is the context key for request-scoped logger
	LoggerKey ContextKey = "logger"
	// ActorKey is the context key for the authenticated admin actor
	ActorKey ContextKey = "actor"
)

// RequestIDFromContext returns the correlation ID set by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// LoggerFromContext returns the request-scoped logger, falling back to the
// supplied base logger when the middleware did not run.
func LoggerFromContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if l, ok := ctx.Value(LoggerKey).(*zap.Logger); ok {
		return l
	}
	return base
}

// ActorFromContext returns the authenticated actor's user ID. The second
// return is false on unauthenticated requests.
func ActorFromContext(ctx context.Context) (int64, bool) {
	actor, ok := ctx.Value(ActorKey).(*Actor)
	if !ok {
		return 0, false
	}
	return actor.UserID, true
}
