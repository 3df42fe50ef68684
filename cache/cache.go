// Package cache stores dispatch results for the middleware.Cache unit.
//
// Three implementations share the Cache contract: L1 keeps entries in
// process (ristretto), L2 keeps them in Redis, and Tiered reads L1 before L2
// and writes both.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when key has no live entry.
var ErrMiss = errors.New("cache: miss")

// ErrLoaderPanic is returned to callers that were waiting on a load whose
// Loader panicked.
var ErrLoaderPanic = errors.New("cache: loader panicked")

// Loader produces the value for a key that missed.
type Loader func(ctx context.Context) ([]byte, error)

// Cache is a byte-oriented key/value store with per-entry TTLs.
type Cache interface {
	// Get returns the value stored under key, or ErrMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores val under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error

	// GetOrSet returns the value under key, calling load and storing its
	// result on a miss. Concurrent misses for one key share a single load.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, load Loader) ([]byte, error)
}
