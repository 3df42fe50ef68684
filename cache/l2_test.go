package cache

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisL2(t *testing.T) *L2 {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping Redis integration test")
	}
	l2 := NewL2(addr, "", 0, WithPrefix("compose-test:"+t.Name()+":"))
	t.Cleanup(func() { _ = l2.Close() })
	require.NoError(t, l2.Ping(t.Context()), "cannot reach Redis at %s", addr)
	return l2
}

func TestL2(t *testing.T) {
	t.Run("miss then hit", func(t *testing.T) {
		l2 := redisL2(t)
		ctx := t.Context()

		_, err := l2.Get(ctx, "k")
		assert.ErrorIs(t, err, ErrMiss)

		require.NoError(t, l2.Set(ctx, "k", []byte("v"), 10*time.Second))
		v, err := l2.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", string(v))
	})

	t.Run("tiered over redis", func(t *testing.T) {
		l2 := redisL2(t)
		tc := NewTiered(newL1(t), l2, time.Minute)
		ctx := t.Context()

		var calls atomic.Int32
		load := func(context.Context) ([]byte, error) {
			calls.Add(1)
			return []byte("loaded"), nil
		}

		v, err := tc.GetOrSet(ctx, "k", 10*time.Second, load)
		require.NoError(t, err)
		assert.Equal(t, "loaded", string(v))

		fromRedis, err := l2.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "loaded", string(fromRedis))
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestL2_FailSoft(t *testing.T) {
	// Nothing listens on port 1.
	l2 := NewL2("127.0.0.1:1", "", 0)
	t.Cleanup(func() { _ = l2.Close() })

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	assert.NoError(t, l2.Set(ctx, "k", []byte("v"), 0))
	_, err := l2.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
	assert.Error(t, l2.Ping(ctx))
}
