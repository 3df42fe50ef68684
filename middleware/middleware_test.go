package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/compose-go"
	"github.com/felixgeelhaar/compose-go/composetest"
)

func TestDefaultStack(t *testing.T) {
	t.Run("recovers and logs with a request id", func(t *testing.T) {
		logger := &mockLogger{}
		rec := &composetest.Recorder{}
		stack := append(DefaultStack[*call, string](logger),
			composetest.PanicWith[*call, string](rec, "handler", "boom"),
		)

		_, err := dispatch(t, newCall(t, "op"), stack...)
		assert.ErrorIs(t, err, ErrInternal)

		entries := logger.all()
		require.Len(t, entries, 1)
		assert.Equal(t, "dispatch failed", entries[0].message)
		id, ok := entries[0].field("request_id")
		assert.True(t, ok)
		assert.NotEmpty(t, id)
	})

	t.Run("with timeout", func(t *testing.T) {
		stack := DefaultStackWithTimeout[*call, string](compose.NopLogger{}, 30*time.Millisecond)
		assert.Len(t, stack, 4)

		var never compose.Middleware[*call, string] = func(*call, compose.Next[string]) compose.Result[string] {
			return compose.Async(compose.NewFuture[string]())
		}
		_, err := dispatch(t, newCall(t, "op"), append(stack, never)...)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("units are safe on an event loop", func(t *testing.T) {
		loop := compose.NewLoop()
		defer loop.Close()

		stack := append(DefaultStackWithTimeout[*call, string](&mockLogger{}, time.Second), respond("ok"))
		d := compose.MustCompose(stack, compose.WithScheduler(loop))

		v, err := composetest.Wait(t, d.Dispatch(newCall(t, "op"), nil))
		require.NoError(t, err)
		assert.Equal(t, "ok", v)
	})
}

func TestOperationOf(t *testing.T) {
	assert.Equal(t, "op", OperationOf(newCall(t, "op")))
	assert.Equal(t, UnknownOperation, OperationOf(struct{}{}))
	assert.Equal(t, UnknownOperation, OperationOf(newCall(t, "")))
}
