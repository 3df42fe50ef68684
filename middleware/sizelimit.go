package middleware

import (
	"fmt"

	"github.com/felixgeelhaar/compose-go"
)

// SizeLimitOption configures the size limit middleware.
type SizeLimitOption func(*sizeLimitConfig)

type sizeLimitConfig struct {
	logger compose.Logger
}

// WithSizeLimitLogger sets the logger for size limit events.
func WithSizeLimitLogger(l compose.Logger) SizeLimitOption {
	return func(o *sizeLimitConfig) {
		o.logger = l
	}
}

// SizeLimit returns middleware that rejects payloads larger than maxBytes.
// The error wraps ErrTooLarge.
func SizeLimit[T SizedCarrier, U any](maxBytes int64, opts ...SizeLimitOption) compose.Middleware[T, U] {
	cfg := &sizeLimitConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c T, next compose.Next[U]) compose.Result[U] {
		if size := c.Size(); size > maxBytes {
			if cfg.logger != nil {
				cfg.logger.Warn("payload size limit exceeded",
					compose.F("operation", OperationOf(c)),
					compose.F("size", size),
					compose.F("max", maxBytes),
				)
			}
			return compose.Fail[U](fmt.Errorf("%w: %d exceeds limit of %d bytes", ErrTooLarge, size, maxBytes))
		}

		return compose.Async(next())
	}
}

// Common size limit presets.
const (
	// KB is 1024 bytes.
	KB = 1024
	// MB is 1024 * 1024 bytes.
	MB = 1024 * 1024
)
