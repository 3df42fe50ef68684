package compose

import (
	"context"
	"sync"
)

// Future is the completion of an asynchronous computation.
// It settles exactly once, either with a value or with an error.
type Future[U any] struct {
	done chan struct{}

	mu        sync.Mutex
	settled   bool
	value     U
	err       error
	callbacks []func()
}

// NewFuture returns a pending future.
func NewFuture[U any]() *Future[U] {
	return &Future[U]{done: make(chan struct{})}
}

// Resolved returns a future already settled with v.
func Resolved[U any](v U) *Future[U] {
	f := NewFuture[U]()
	f.Resolve(v)
	return f
}

// Rejected returns a future already settled with err.
func Rejected[U any](err error) *Future[U] {
	f := NewFuture[U]()
	f.Reject(err)
	return f
}

// Resolve settles the future with v. It reports whether this call settled it.
func (f *Future[U]) Resolve(v U) bool {
	return f.Settle(v, nil)
}

// Reject settles the future with err. It reports whether this call settled it.
func (f *Future[U]) Reject(err error) bool {
	var zero U
	return f.Settle(zero, err)
}

// Settle completes the future. Only the first call has any effect; later
// calls return false.
func (f *Future[U]) Settle(v U, err error) bool {
	f.mu.Lock()
	if f.settled {
		f.mu.Unlock()
		return false
	}
	f.settled = true
	f.value, f.err = v, err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
	return true
}

// Done returns a channel that is closed once the future settles.
func (f *Future[U]) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has settled.
func (f *Future[U]) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future settles and returns its outcome.
// Do not call Wait from a unit running on a Loop.
func (f *Future[U]) Wait() (U, error) {
	<-f.done
	return f.value, f.err
}

// Await is Wait bounded by ctx. When ctx ends first it returns ctx.Err();
// the future itself is left untouched.
func (f *Future[U]) Await(ctx context.Context) (U, error) {
	if f.Settled() {
		return f.value, f.err
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero U
		return zero, ctx.Err()
	}
}

// onSettle runs cb once the future settles, immediately if it already has.
func (f *Future[U]) onSettle(cb func()) {
	f.mu.Lock()
	if !f.settled {
		f.callbacks = append(f.callbacks, cb)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	cb()
}

// Then returns a future settled by fn once f settles. fn runs on the goroutine
// that settles f, or right away if f is already settled, and never blocks the
// caller of Then. A panic in fn rejects the returned future.
//
//	return compose.Async(compose.Then(next(), func(v string, err error) compose.Result[string] {
//	    if err != nil {
//	        return compose.Fail[string](err)
//	    }
//	    return compose.Value(strings.ToUpper(v))
//	}))
func Then[U, V any](f *Future[U], fn func(U, error) Result[V]) *Future[V] {
	out := NewFuture[V]()
	f.onSettle(func() {
		res := protect(func() Result[V] { return fn(f.value, f.err) }, nil)
		res.settle(out, Inline())
	})
	return out
}

// Result is what a middleware unit returns: an immediate value, an immediate
// failure, or a future that settles later. The zero Result is an empty success.
type Result[U any] struct {
	value  U
	err    error
	future *Future[U]
}

// Value returns a successful result carrying v.
func Value[U any](v U) Result[U] {
	return Result[U]{value: v}
}

// Empty returns a successful result with no value.
func Empty[U any]() Result[U] {
	return Result[U]{}
}

// Fail returns a failed result. Fail(nil) is an empty success.
func Fail[U any](err error) Result[U] {
	return Result[U]{err: err}
}

// Async returns a result that completes when f settles.
func Async[U any](f *Future[U]) Result[U] {
	if f == nil {
		return Result[U]{}
	}
	return Result[U]{future: f}
}

// From builds a result from a (value, error) pair, so that blocking units can
// write return compose.From(next().Wait()).
func From[U any](v U, err error) Result[U] {
	if err != nil {
		return Fail[U](err)
	}
	return Value(v)
}

// settle completes out from r. Adoption of a pending future is routed through
// s so that long settlement chains do not grow the call stack.
func (r Result[U]) settle(out *Future[U], s Scheduler) {
	if r.future == nil {
		out.Settle(r.value, r.err)
		return
	}
	f := r.future
	f.onSettle(func() {
		s.Schedule(func() {
			out.Settle(f.value, f.err)
		})
	})
}
