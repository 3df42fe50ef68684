package compose

import (
	"cmp"
	"slices"
)

// Builder assembles a middleware stack incrementally. Units carry an order
// key; lower keys run first and units with equal keys keep their insertion
// order.
type Builder[T, U any] struct {
	entries []builderEntry[T, U]
	last    int
}

type builderEntry[T, U any] struct {
	mw    Middleware[T, U]
	order int
}

// NewBuilder creates a builder starting with the given units.
func NewBuilder[T, U any](middlewares ...Middleware[T, U]) *Builder[T, U] {
	b := &Builder[T, U]{}
	return b.Use(middlewares...)
}

// Use appends units after every unit added so far.
func (b *Builder[T, U]) Use(middlewares ...Middleware[T, U]) *Builder[T, U] {
	for _, mw := range middlewares {
		b.entries = append(b.entries, builderEntry[T, U]{mw: mw, order: b.last})
	}
	return b
}

// Add registers a unit with an explicit order key.
func (b *Builder[T, U]) Add(order int, mw Middleware[T, U]) *Builder[T, U] {
	b.entries = append(b.entries, builderEntry[T, U]{mw: mw, order: order})
	b.last = max(b.last, order)
	return b
}

// Stack returns the units sorted by order key.
func (b *Builder[T, U]) Stack() []Middleware[T, U] {
	sorted := slices.Clone(b.entries)
	slices.SortStableFunc(sorted, func(a, c builderEntry[T, U]) int {
		return cmp.Compare(a.order, c.order)
	})
	stack := make([]Middleware[T, U], len(sorted))
	for i, e := range sorted {
		stack[i] = e.mw
	}
	return stack
}

// Build composes the sorted stack.
func (b *Builder[T, U]) Build(opts ...Option) (*Dispatcher[T, U], error) {
	return Compose(b.Stack(), opts...)
}

// Then composes the stack and binds finalizer, returning a function that runs
// one dispatch per call.
func (b *Builder[T, U]) Then(finalizer Middleware[T, U], opts ...Option) (func(c T) *Future[U], error) {
	d, err := b.Build(opts...)
	if err != nil {
		return nil, err
	}
	return func(c T) *Future[U] {
		return d.Dispatch(c, finalizer)
	}, nil
}
