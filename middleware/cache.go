package middleware

import (
	"encoding/json"
	"time"

	"github.com/felixgeelhaar/compose-go"
	"github.com/felixgeelhaar/compose-go/cache"
)

// CacheOption configures the cache middleware.
type CacheOption func(*cacheConfig)

type cacheConfig struct {
	logger compose.Logger
}

// WithCacheLogger sets the logger for cache events.
func WithCacheLogger(l compose.Logger) CacheOption {
	return func(c *cacheConfig) {
		c.logger = l
	}
}

// Cache returns middleware that short-circuits with a cached result. On a
// hit downstream is not run. On a miss the downstream value is stored as
// JSON for ttl once it settles successfully; failures are never cached.
// An empty key disables caching for that call.
func Cache[T Carrier, U any](store cache.Cache, key func(T) string, ttl time.Duration, opts ...CacheOption) compose.Middleware[T, U] {
	cfg := &cacheConfig{logger: compose.NopLogger{}}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(c T, next compose.Next[U]) compose.Result[U] {
		k := key(c)
		if k == "" {
			return compose.Async(next())
		}
		ctx := c.Context()

		if raw, err := store.Get(ctx, k); err == nil {
			var v U
			if err := json.Unmarshal(raw, &v); err == nil {
				cfg.logger.Debug("cache hit", compose.F("key", k))
				return compose.Value(v)
			}
			cfg.logger.Warn("cache entry undecodable", compose.F("key", k))
		}

		return compose.Async(compose.Then(next(), func(v U, err error) compose.Result[U] {
			if err != nil {
				return compose.Fail[U](err)
			}
			raw, merr := json.Marshal(v)
			if merr != nil {
				cfg.logger.Warn("cache encode failed",
					compose.F("key", k),
					compose.F("error", merr.Error()),
				)
				return compose.Value(v)
			}
			if serr := store.Set(ctx, k, raw, ttl); serr != nil {
				cfg.logger.Warn("cache store failed",
					compose.F("key", k),
					compose.F("error", serr.Error()),
				)
			}
			return compose.Value(v)
		}))
	}
}
