// Package compose turns an ordered stack of middleware units into a single
// dispatcher that runs them in sequence over a shared context value.
//
// Every unit receives the context and a continuation. It may do work, call
// next() to run the rest of the stack, do more work once downstream settles,
// or return without calling next() to short-circuit the chain:
//
//	timing := func(c *Request, next compose.Next[string]) compose.Result[string] {
//	    start := time.Now()
//	    v, err := next().Wait()
//	    c.Elapsed = time.Since(start)
//	    return compose.From(v, err)
//	}
//
//	d, err := compose.Compose([]compose.Middleware[*Request, string]{timing, auth})
//	if err != nil {
//	    return err
//	}
//	v, err := d.Dispatch(req, handler).Wait()
//
// A continuation may be called at most once. Calling it again, or calling a
// continuation from a frame that has already been superseded, fails with
// ErrNextCalledMultipleTimes. Errors returned or panicked by units reach the
// caller unchanged.
package compose

import (
	"reflect"
	"runtime/debug"
	"slices"
	"sync/atomic"

	"github.com/felixgeelhaar/compose-go/internal/stackdump"
)

// Next advances the dispatch to the following unit, or to the finalizer after
// the last unit. It may be called at most once.
type Next[U any] func() *Future[U]

// Middleware is a unit of a pipeline.
type Middleware[T, U any] func(c T, next Next[U]) Result[U]

// Option configures a Dispatcher.
type Option func(*config)

type config struct {
	scheduler Scheduler
	logger    Logger
}

// WithScheduler sets where frames run. The default is Inline.
func WithScheduler(s Scheduler) Option {
	return func(c *config) {
		if s != nil {
			c.scheduler = s
		}
	}
}

// WithLogger sets the logger for reentrant continuations and unit panics.
func WithLogger(l Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Dispatcher runs a validated, immutable middleware stack. It is safe for
// concurrent use; each Dispatch call has its own state.
type Dispatcher[T, U any] struct {
	stack   []Middleware[T, U]
	entries []any
	cfg     config
}

// Compose validates stack and returns a Dispatcher for it. The slice is
// copied, so later changes to it do not affect the Dispatcher. A nil element
// fails with a *ConfigurationError naming its index.
func Compose[T, U any](stack []Middleware[T, U], opts ...Option) (*Dispatcher[T, U], error) {
	stack = slices.Clone(stack)
	entries := make([]any, len(stack))
	for i, mw := range stack {
		entries[i] = mw
	}
	for i, mw := range stack {
		if mw == nil {
			return nil, notCallable(i, entries)
		}
	}
	return newDispatcher(stack, entries, opts), nil
}

// ComposeAny is Compose for stacks of unknown static type. stack must be a
// slice or array whose elements are Middleware[T, U] values or plain
// func(T, Next[U]) Result[U] values.
func ComposeAny[T, U any](stack any, opts ...Option) (*Dispatcher[T, U], error) {
	rv := reflect.ValueOf(stack)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, &ConfigurationError{Index: -1, Err: ErrNotSequence}
	}

	entries := make([]any, rv.Len())
	for i := range entries {
		entries[i] = rv.Index(i).Interface()
	}

	mws := make([]Middleware[T, U], len(entries))
	for i, e := range entries {
		switch fn := e.(type) {
		case Middleware[T, U]:
			mws[i] = fn
		case func(T, Next[U]) Result[U]:
			mws[i] = fn
		}
		if mws[i] == nil {
			return nil, notCallable(i, entries)
		}
	}
	return newDispatcher(mws, entries, opts), nil
}

// MustCompose is like Compose but panics on a configuration error.
func MustCompose[T, U any](stack []Middleware[T, U], opts ...Option) *Dispatcher[T, U] {
	d, err := Compose(stack, opts...)
	if err != nil {
		panic(err)
	}
	return d
}

func newDispatcher[T, U any](stack []Middleware[T, U], entries []any, opts []Option) *Dispatcher[T, U] {
	cfg := config{
		scheduler: Inline(),
		logger:    NopLogger{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Dispatcher[T, U]{stack: stack, entries: entries, cfg: cfg}
}

func notCallable(i int, entries []any) error {
	return &ConfigurationError{Index: i, Stack: stackdump.Format(entries), Err: ErrNotCallable}
}

// Len returns the number of units in the stack.
func (d *Dispatcher[T, U]) Len() int {
	return len(d.stack)
}

// Dispatch runs the stack over c. finalizer, when non-nil, runs after the
// last unit; its own next() completes with an empty success. The returned
// future settles once, with the outcome of whichever unit ends the chain or
// with the first failure.
func (d *Dispatcher[T, U]) Dispatch(c T, finalizer Middleware[T, U]) *Future[U] {
	r := &run[T, U]{d: d, ctx: c, finalizer: finalizer}
	r.highWater.Store(-1)
	return r.enter(0)
}

// Middleware returns the whole stack as a single unit. When the inner stack
// is exhausted it continues with the outer next.
func (d *Dispatcher[T, U]) Middleware() Middleware[T, U] {
	return func(c T, next Next[U]) Result[U] {
		return Async(d.Dispatch(c, func(T, Next[U]) Result[U] {
			return Async(next())
		}))
	}
}

// run is the state of one Dispatch call.
type run[T, U any] struct {
	d         *Dispatcher[T, U]
	ctx       T
	finalizer Middleware[T, U]
	highWater atomic.Int64
}

// enter advances to frame i.
func (r *run[T, U]) enter(i int) *Future[U] {
	for {
		hw := r.highWater.Load()
		if int64(i) <= hw {
			r.d.cfg.logger.Warn("next() called multiple times",
				F("index", i),
				F("high_water", hw),
			)
			return Rejected[U](&ReentrantInvocationError{Index: i, Stack: stackdump.Format(r.d.entries)})
		}
		if r.highWater.CompareAndSwap(hw, int64(i)) {
			break
		}
	}

	var fn Middleware[T, U]
	switch {
	case i < len(r.d.stack):
		fn = r.d.stack[i]
	case i == len(r.d.stack):
		fn = r.finalizer
	}
	if fn == nil {
		var zero U
		return Resolved(zero)
	}

	out := NewFuture[U]()
	s := r.d.cfg.scheduler
	s.Schedule(func() {
		res := protect(func() Result[U] {
			return fn(r.ctx, func() *Future[U] { return r.enter(i + 1) })
		}, func(p any) {
			r.d.cfg.logger.Error("middleware panicked",
				F("index", i),
				F("panic", p),
			)
		})
		res.settle(out, s)
	})
	return out
}

// protect calls fn, turning a panic into a failed result. Error panic values
// are kept as they are; anything else becomes a *PanicError.
func protect[U any](fn func() Result[U], onPanic func(p any)) (res Result[U]) {
	defer func() {
		if p := recover(); p != nil {
			if onPanic != nil {
				onPanic(p)
			}
			if err, ok := p.(error); ok {
				res = Fail[U](err)
				return
			}
			res = Fail[U](&PanicError{Value: p, Stack: debug.Stack()})
		}
	}()
	return fn()
}
