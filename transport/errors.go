package transport

import (
	"context"
	"errors"
	"net/http"

	"github.com/felixgeelhaar/compose-go/middleware"
)

// ErrDraining is returned for dispatches that arrive after shutdown began.
var ErrDraining = errors.New("transport: server is shutting down")

// StatusCode maps a dispatch failure to an HTTP status code.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, middleware.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, middleware.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, middleware.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrDraining):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage returns the message shown to clients for err. Internal
// failures are not described.
func publicMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return http.StatusText(status)
	}
	return err.Error()
}
