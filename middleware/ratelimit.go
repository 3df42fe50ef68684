package middleware

import (
	"time"

	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/felixgeelhaar/compose-go"
)

// RateLimitOption configures the rate limiter.
type RateLimitOption func(*rateLimitConfig)

type rateLimitConfig struct {
	logger compose.Logger
}

// WithRateLimitLogger sets the logger for rate limit events.
func WithRateLimitLogger(l compose.Logger) RateLimitOption {
	return func(o *rateLimitConfig) {
		o.logger = l
	}
}

// RateLimit returns middleware that limits dispatch rate using a token bucket
// algorithm. The rate is specified as calls per second; burst allows short
// bursts above it. key selects the bucket for a call; nil means one global
// bucket. Rejected calls fail with ErrRateLimited without running downstream.
func RateLimit[T Carrier, U any](rate, burst int, key func(T) string, opts ...RateLimitOption) compose.Middleware[T, U] {
	cfg := &rateLimitConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if key == nil {
		key = func(T) string { return "global" }
	}

	limiter := ratelimit.New(&ratelimit.Config{
		Rate:     rate,
		Burst:    burst,
		Interval: time.Second,
	})

	return func(c T, next compose.Next[U]) compose.Result[U] {
		k := key(c)
		if !limiter.Allow(c.Context(), k) {
			if cfg.logger != nil {
				cfg.logger.Warn("rate limit exceeded",
					compose.F("operation", OperationOf(c)),
					compose.F("key", k),
				)
			}
			return compose.Fail[U](ErrRateLimited)
		}
		return compose.Async(next())
	}
}

// RateLimitByOperation returns rate limiting middleware with one bucket per
// operation name.
func RateLimitByOperation[T Carrier, U any](rate, burst int, opts ...RateLimitOption) compose.Middleware[T, U] {
	return RateLimit[T, U](rate, burst, func(c T) string { return OperationOf(c) }, opts...)
}
