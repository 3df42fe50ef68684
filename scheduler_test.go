package compose_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/compose-go"
	"github.com/felixgeelhaar/compose-go/composetest"
)

func TestLoop(t *testing.T) {
	t.Run("runs tasks in FIFO order", func(t *testing.T) {
		loop := compose.NewLoop()
		rec := &composetest.Recorder{}
		done := make(chan struct{})
		for _, s := range []string{"a", "b", "c"} {
			loop.Schedule(func() { rec.Record(s) })
		}
		loop.Schedule(func() { close(done) })
		<-done
		loop.Close()
		assert.Equal(t, []string{"a", "b", "c"}, rec.Events())
	})

	t.Run("close drains pending tasks", func(t *testing.T) {
		loop := compose.NewLoop()
		var n atomic.Int32
		for range 100 {
			loop.Schedule(func() { n.Add(1) })
		}
		loop.Close()
		assert.Equal(t, int32(100), n.Load())
	})

	t.Run("tasks after close run inline", func(t *testing.T) {
		loop := compose.NewLoop()
		loop.Close()
		ran := false
		loop.Schedule(func() { ran = true })
		assert.True(t, ran)
	})

	t.Run("dispatch returns before frames run", func(t *testing.T) {
		loop := compose.NewLoop()
		defer loop.Close()

		gate := make(chan struct{})
		loop.Schedule(func() { <-gate })

		rec := &composetest.Recorder{}
		d := compose.MustCompose([]mw{composetest.Pass[ctx, string](rec, "a")}, compose.WithScheduler(loop))
		f := d.Dispatch(newCtx(t), composetest.Stop[ctx](rec, "fin", "v"))
		assert.False(t, f.Settled())
		assert.Empty(t, rec.Events())

		close(gate)
		v, err := composetest.Wait(t, f)
		require.NoError(t, err)
		assert.Equal(t, "v", v)
	})

	t.Run("deep stack without recursion", func(t *testing.T) {
		loop := compose.NewLoop()
		defer loop.Close()

		const depth = 10000
		var count atomic.Int64
		unit := func(_ ctx, next compose.Next[int]) compose.Result[int] {
			count.Add(1)
			return compose.Async(compose.Then(next(), func(v int, err error) compose.Result[int] {
				return compose.From(v+1, err)
			}))
		}
		stack := make([]compose.Middleware[ctx, int], depth)
		for i := range stack {
			stack[i] = unit
		}
		d := compose.MustCompose(stack, compose.WithScheduler(loop))

		v, err := composetest.Wait(t, d.Dispatch(newCtx(t), nil))
		require.NoError(t, err)
		assert.Equal(t, depth, v)
		assert.Equal(t, int64(depth), count.Load())
	})

	t.Run("post-processing order with TagAsync", func(t *testing.T) {
		loop := compose.NewLoop()
		defer loop.Close()

		rec := &composetest.Recorder{}
		d := compose.MustCompose([]mw{
			composetest.TagAsync[ctx, string](rec, "a"),
			composetest.TagAsync[ctx, string](rec, "b"),
		}, compose.WithScheduler(loop))

		_, err := composetest.Wait(t, d.Dispatch(newCtx(t), composetest.Stop[ctx](rec, "fin", "x")))
		require.NoError(t, err)
		assert.Equal(t, []string{"a:before", "b:before", "fin", "b:after", "a:after"}, rec.Events())
	})

	t.Run("failures propagate on a loop", func(t *testing.T) {
		loop := compose.NewLoop()
		defer loop.Close()

		boom := errors.New("boom")
		rec := &composetest.Recorder{}
		d := compose.MustCompose([]mw{
			composetest.TagAsync[ctx, string](rec, "a"),
			composetest.PanicWith[ctx, string](rec, "p", boom),
		}, compose.WithScheduler(loop))

		_, err := composetest.Wait(t, d.Dispatch(newCtx(t), nil))
		assert.Same(t, boom, err)
	})
}

func TestGoroutines(t *testing.T) {
	rec := &composetest.Recorder{}
	d := compose.MustCompose([]mw{
		composetest.Tag[ctx, string](rec, "a"),
		composetest.Pass[ctx, string](rec, "b"),
	}, compose.WithScheduler(compose.Goroutines()))

	v, err := composetest.Wait(t, d.Dispatch(newCtx(t), composetest.Stop[ctx](rec, "fin", "go")))
	require.NoError(t, err)
	assert.Equal(t, "go", v)
	assert.Equal(t, []string{"a:before", "b", "fin", "a:after"}, rec.Events())
}

func TestSchedulerFunc(t *testing.T) {
	var scheduled int
	s := compose.SchedulerFunc(func(task func()) {
		scheduled++
		task()
	})
	rec := &composetest.Recorder{}
	d := compose.MustCompose([]mw{composetest.Pass[ctx, string](rec, "a")}, compose.WithScheduler(s))

	_, err := composetest.Wait(t, d.Dispatch(newCtx(t), composetest.Stop[ctx](rec, "fin", "v")))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, scheduled, 2)
}
