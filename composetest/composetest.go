// Package composetest provides helpers for testing middleware pipelines.
//
// It offers a Recorder that captures the order in which units run, ready-made
// units that pass, stop, fail, panic or misuse their continuation, and a
// Context type that satisfies the middleware.Carrier contract.
//
// Example usage:
//
//	func TestPipeline(t *testing.T) {
//	    rec := &composetest.Recorder{}
//	    d := compose.MustCompose([]compose.Middleware[*composetest.Context, string]{
//	        composetest.Tag[*composetest.Context, string](rec, "auth"),
//	        composetest.Stop[*composetest.Context](rec, "cache", "hit"),
//	    })
//
//	    v, err := composetest.Wait(t, d.Dispatch(composetest.NewContext(t.Context(), "get"), nil))
//	    require.NoError(t, err)
//	    assert.Equal(t, "hit", v)
//	    assert.Equal(t, []string{"auth:before", "cache", "auth:after"}, rec.Events())
//	}
package composetest

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/compose-go"
)

// WaitTimeout bounds Wait.
var WaitTimeout = 2 * time.Second

// Recorder collects events in the order they happen. It is safe for
// concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

// Record appends an event.
func (r *Recorder) Record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Reset clears all recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Tag returns a unit that records "<tag>:before", delegates and waits for
// downstream, records "<tag>:after" and forwards the downstream outcome.
// It blocks on Wait, so it is not suitable for a compose.Loop.
func Tag[T, U any](r *Recorder, tag string) compose.Middleware[T, U] {
	return func(_ T, next compose.Next[U]) compose.Result[U] {
		r.Record(tag + ":before")
		v, err := next().Wait()
		r.Record(tag + ":after")
		return compose.From(v, err)
	}
}

// TagAsync is Tag without blocking: post-processing is chained with
// compose.Then.
func TagAsync[T, U any](r *Recorder, tag string) compose.Middleware[T, U] {
	return func(_ T, next compose.Next[U]) compose.Result[U] {
		r.Record(tag + ":before")
		return compose.Async(compose.Then(next(), func(v U, err error) compose.Result[U] {
			r.Record(tag + ":after")
			return compose.From(v, err)
		}))
	}
}

// Pass returns a unit that records tag and delegates without waiting.
func Pass[T, U any](r *Recorder, tag string) compose.Middleware[T, U] {
	return func(_ T, next compose.Next[U]) compose.Result[U] {
		r.Record(tag)
		return compose.Async(next())
	}
}

// Stop returns a unit that records tag and ends the chain with v.
func Stop[T, U any](r *Recorder, tag string, v U) compose.Middleware[T, U] {
	return func(_ T, _ compose.Next[U]) compose.Result[U] {
		r.Record(tag)
		return compose.Value(v)
	}
}

// FailWith returns a unit that records tag and fails with err.
func FailWith[T, U any](r *Recorder, tag string, err error) compose.Middleware[T, U] {
	return func(_ T, _ compose.Next[U]) compose.Result[U] {
		r.Record(tag)
		return compose.Fail[U](err)
	}
}

// RejectAfter returns a unit that records tag and fails with err after d,
// from another goroutine.
func RejectAfter[T, U any](r *Recorder, tag string, err error, d time.Duration) compose.Middleware[T, U] {
	return func(_ T, _ compose.Next[U]) compose.Result[U] {
		r.Record(tag)
		f := compose.NewFuture[U]()
		time.AfterFunc(d, func() { f.Reject(err) })
		return compose.Async(f)
	}
}

// PanicWith returns a unit that records tag and panics with v.
func PanicWith[T, U any](r *Recorder, tag string, v any) compose.Middleware[T, U] {
	return func(_ T, _ compose.Next[U]) compose.Result[U] {
		r.Record(tag)
		panic(v)
	}
}

// Twice captures the futures returned by the two calls CallNextTwice makes.
type Twice[U any] struct {
	First  *compose.Future[U]
	Second *compose.Future[U]
}

// CallNextTwice returns a unit that calls next twice, stores both futures in
// probe and settles with the first one.
func CallNextTwice[T, U any](probe *Twice[U]) compose.Middleware[T, U] {
	return func(_ T, next compose.Next[U]) compose.Result[U] {
		probe.First = next()
		probe.Second = next()
		return compose.Async(probe.First)
	}
}

// Wait waits for f to settle, failing the test after WaitTimeout.
func Wait[U any](t testing.TB, f *compose.Future[U]) (U, error) {
	t.Helper()
	select {
	case <-f.Done():
		return f.Wait()
	case <-time.After(WaitTimeout):
		t.Fatalf("future did not settle within %s", WaitTimeout)
		var zero U
		return zero, nil
	}
}

// Context is a pipeline context for tests. It satisfies middleware.Carrier
// and middleware.Named.
type Context struct {
	Name string

	mu     sync.Mutex
	ctx    context.Context
	values map[string]any
}

// NewContext creates a Context for the operation name.
func NewContext(ctx context.Context, name string) *Context {
	return &Context{Name: name, ctx: ctx, values: make(map[string]any)}
}

// Context returns the current context.Context.
func (c *Context) Context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

// SetContext replaces the context.Context.
func (c *Context) SetContext(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
}

// Operation returns the operation name.
func (c *Context) Operation() string {
	return c.Name
}

// Set stores a value on the context.
func (c *Context) Set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = v
}

// Get returns a stored value.
func (c *Context) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok
}
