package middleware

import (
	"time"

	"github.com/felixgeelhaar/compose-go"
)

// DefaultStack returns the recommended production middleware stack.
// This includes panic recovery, request ID injection, and logging.
func DefaultStack[T Carrier, U any](logger compose.Logger) []compose.Middleware[T, U] {
	return []compose.Middleware[T, U]{
		Recover[T, U](),
		RequestID[T, U](),
		Logging[T, U](logger),
	}
}

// DefaultStackWithTimeout returns the default stack with a timeout middleware.
func DefaultStackWithTimeout[T Carrier, U any](logger compose.Logger, timeout time.Duration) []compose.Middleware[T, U] {
	return []compose.Middleware[T, U]{
		Recover[T, U](),
		RequestID[T, U](),
		Timeout[T, U](timeout),
		Logging[T, U](logger),
	}
}
