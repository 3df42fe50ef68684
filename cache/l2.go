package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// L2Option configures an L2 cache.
type L2Option func(*L2)

// WithPrefix namespaces every key written by the cache.
func WithPrefix(prefix string) L2Option {
	return func(l *L2) {
		l.prefix = prefix
	}
}

// L2 is a Redis-backed cache. It fails soft: an unreachable server reads as
// a miss and writes are dropped, so a Redis outage degrades to uncached
// dispatches instead of failed ones.
type L2 struct {
	rdb    redis.UniversalClient
	prefix string
	flight flight
}

var _ Cache = (*L2)(nil)

// NewL2 creates an L2 cache connected to the Redis server at addr.
func NewL2(addr, password string, db int, opts ...L2Option) *L2 {
	return NewL2FromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewL2FromClient wraps an existing client. Close closes the client.
func NewL2FromClient(rdb redis.UniversalClient, opts ...L2Option) *L2 {
	l := &L2{rdb: rdb}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Get returns the value under key. Any Redis failure is reported as ErrMiss.
func (l *L2) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := l.rdb.Get(ctx, l.prefix+key).Bytes()
	if err != nil {
		return nil, ErrMiss
	}
	return v, nil
}

// Set stores val under key. Redis failures are discarded.
func (l *L2) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	_ = l.rdb.Set(ctx, l.prefix+key, val, ttl).Err()
	return nil
}

// GetOrSet implements Cache.
func (l *L2) GetOrSet(ctx context.Context, key string, ttl time.Duration, load Loader) ([]byte, error) {
	if v, err := l.Get(ctx, key); err == nil {
		return v, nil
	}
	return l.flight.do(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		_ = l.Set(ctx, key, v, ttl)
		return v, nil
	})
}

// Ping reports whether the server is reachable.
func (l *L2) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// Close closes the Redis client.
func (l *L2) Close() error {
	return l.rdb.Close()
}
