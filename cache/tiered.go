package cache

import (
	"context"
	"time"
)

// Tiered layers a fast cache over a slower shared one. Reads try near first
// and promote far hits into near; writes go to far, then near.
type Tiered struct {
	near, far Cache
	// promoteTTL bounds how long a promoted entry lives in near, since the
	// remaining TTL in far is unknown.
	promoteTTL time.Duration
	flight     flight
}

var _ Cache = (*Tiered)(nil)

// NewTiered layers near over far. Entries promoted from far live in near for
// at most promoteTTL (zero means no expiry).
func NewTiered(near, far Cache, promoteTTL time.Duration) *Tiered {
	return &Tiered{near: near, far: far, promoteTTL: promoteTTL}
}

// Get implements Cache.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, error) {
	if v, err := t.near.Get(ctx, key); err == nil {
		return v, nil
	}
	v, err := t.far.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = t.near.Set(ctx, key, v, t.promoteTTL)
	return v, nil
}

// Set implements Cache.
func (t *Tiered) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := t.far.Set(ctx, key, val, ttl); err != nil {
		return err
	}
	return t.near.Set(ctx, key, val, ttl)
}

// GetOrSet implements Cache.
func (t *Tiered) GetOrSet(ctx context.Context, key string, ttl time.Duration, load Loader) ([]byte, error) {
	if v, err := t.Get(ctx, key); err == nil {
		return v, nil
	}
	return t.flight.do(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := load(ctx)
		if err != nil {
			return nil, err
		}
		_ = t.Set(ctx, key, v, ttl)
		return v, nil
	})
}
