package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/compose-go"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const requestIDKey contextKey = "requestID"

// RequestID returns middleware that injects a unique request ID into the context.
// If a request ID already exists in the context, it is preserved.
func RequestID[T Carrier, U any]() compose.Middleware[T, U] {
	return RequestIDWithGenerator[T, U](uuid.NewString)
}

// RequestIDWithGenerator returns middleware that uses a custom ID generator.
func RequestIDWithGenerator[T Carrier, U any](generator func() string) compose.Middleware[T, U] {
	return func(c T, next compose.Next[U]) compose.Result[U] {
		ctx := c.Context()
		if existing := RequestIDFromContext(ctx); existing != "" {
			return compose.Async(next())
		}

		c.SetContext(ContextWithRequestID(ctx, generator()))
		return compose.Async(next())
	}
}

// RequestIDFromContext returns the request ID from the context, or empty string if not set.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithRequestID returns a new context with the request ID set.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
