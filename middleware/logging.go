package middleware

import (
	"time"

	"github.com/felixgeelhaar/compose-go"
)

// Logging returns middleware that logs every dispatch once downstream settles.
// Successful dispatches are logged at info level, failures at error level.
func Logging[T Carrier, U any](logger compose.Logger) compose.Middleware[T, U] {
	return func(c T, next compose.Next[U]) compose.Result[U] {
		start := time.Now()

		return compose.Async(compose.Then(next(), func(v U, err error) compose.Result[U] {
			fields := []compose.Field{
				compose.F("operation", OperationOf(c)),
				compose.F("duration", time.Since(start)),
			}

			if requestID := RequestIDFromContext(c.Context()); requestID != "" {
				fields = append(fields, compose.F("request_id", requestID))
			}

			if err != nil {
				fields = append(fields, compose.F("error", err.Error()))
				logger.Error("dispatch failed", fields...)
			} else {
				logger.Info("dispatch completed", fields...)
			}

			return compose.From(v, err)
		}))
	}
}
