package cache

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// L1 is an in-process cache backed by ristretto. Every entry costs 1, so
// maxEntries bounds the number of live entries.
type L1 struct {
	rc     *ristretto.Cache[string, []byte]
	flight flight
}

var _ Cache = (*L1)(nil)

// NewL1 creates an in-process cache holding up to maxEntries entries.
func NewL1(maxEntries int64) (*L1, error) {
	if maxEntries <= 0 {
		return nil, errors.New("cache: maxEntries must be positive")
	}
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &L1{rc: rc}, nil
}

// Get returns a copy of the value under key.
func (l *L1) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := l.rc.Get(key)
	if !ok {
		return nil, ErrMiss
	}
	return bytes.Clone(v), nil
}

// Set stores a copy of val. The write is visible to Get when Set returns.
func (l *L1) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	l.rc.SetWithTTL(key, bytes.Clone(val), 1, ttl)
	l.rc.Wait()
	return nil
}

// GetOrSet implements Cache.
func (l *L1) GetOrSet(ctx context.Context, key string, ttl time.Duration, load Loader) ([]byte, error) {
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

// Close releases the ristretto goroutines.
func (l *L1) Close() {
	l.rc.Close()
}
