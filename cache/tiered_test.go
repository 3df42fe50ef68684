package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTiered(t *testing.T) {
	t.Run("far hit is promoted", func(t *testing.T) {
		near, far := newL1(t), newL1(t)
		tc := NewTiered(near, far, time.Minute)
		ctx := t.Context()

		require.NoError(t, far.Set(ctx, "k", []byte("v"), 0))

		v, err := tc.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", string(v))

		promoted, err := near.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", string(promoted))
	})

	t.Run("set writes both layers", func(t *testing.T) {
		near, far := newL1(t), newL1(t)
		tc := NewTiered(near, far, 0)
		ctx := t.Context()

		require.NoError(t, tc.Set(ctx, "k", []byte("v"), time.Minute))

		_, err := near.Get(ctx, "k")
		assert.NoError(t, err)
		_, err = far.Get(ctx, "k")
		assert.NoError(t, err)
	})

	t.Run("miss in both layers", func(t *testing.T) {
		tc := NewTiered(newL1(t), newL1(t), 0)
		_, err := tc.Get(t.Context(), "k")
		assert.ErrorIs(t, err, ErrMiss)
	})

	t.Run("get or set loads once", func(t *testing.T) {
		near, far := newL1(t), newL1(t)
		tc := NewTiered(near, far, 0)
		ctx := t.Context()

		var calls atomic.Int32
		load := func(context.Context) ([]byte, error) {
			calls.Add(1)
			return []byte("loaded"), nil
		}

		for range 2 {
			v, err := tc.GetOrSet(ctx, "k", time.Minute, load)
			require.NoError(t, err)
			assert.Equal(t, "loaded", string(v))
		}
		assert.Equal(t, int32(1), calls.Load())

		_, err := far.Get(ctx, "k")
		assert.NoError(t, err)
	})
}
