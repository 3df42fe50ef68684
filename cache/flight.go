package cache

import (
	"bytes"
	"context"
	"fmt"
	"sync"
)

// flight runs at most one load per key at a time. Callers arriving while a
// load is in progress wait for it and receive a copy of its result.
type flight struct {
	mu      sync.Mutex
	pending map[string]*load
}

type load struct {
	done chan struct{}
	val  []byte
	err  error
}

func (f *flight) do(ctx context.Context, key string, fn Loader) ([]byte, error) {
	f.mu.Lock()
	if f.pending == nil {
		f.pending = make(map[string]*load)
	}
	if l, ok := f.pending[key]; ok {
		f.mu.Unlock()
		select {
		case <-l.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if l.err != nil {
			return nil, l.err
		}
		return bytes.Clone(l.val), nil
	}
	l := &load{done: make(chan struct{})}
	f.pending[key] = l
	f.mu.Unlock()

	f.run(ctx, key, l, fn)
	if l.err != nil {
		return nil, l.err
	}
	return bytes.Clone(l.val), nil
}

// run calls fn and always releases key. A panic in fn fails the waiters with
// ErrLoaderPanic and is then re-raised in the caller.
func (f *flight) run(ctx context.Context, key string, l *load, fn Loader) {
	defer func() {
		p := recover()
		if p != nil {
			l.val, l.err = nil, fmt.Errorf("%w: %v", ErrLoaderPanic, p)
		}
		f.mu.Lock()
		delete(f.pending, key)
		f.mu.Unlock()
		close(l.done)
		if p != nil {
			panic(p)
		}
	}()
	l.val, l.err = fn(ctx)
}
