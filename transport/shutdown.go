package transport

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/compose-go"
)

// ShutdownConfig configures graceful shutdown behavior.
type ShutdownConfig struct {
	// Timeout is the maximum time to wait for in-flight dispatches to settle.
	// Default: 30 seconds
	Timeout time.Duration

	// DrainDelay is the time to keep accepting dispatches after shutdown
	// starts, so load balancers can remove the server from the pool.
	// Default: 0 (no delay)
	DrainDelay time.Duration

	// OnShutdownStart is called when shutdown begins.
	OnShutdownStart func()

	// OnDrainStart is called when draining begins (after DrainDelay).
	OnDrainStart func()

	// OnShutdownComplete is called when shutdown is complete.
	OnShutdownComplete func(err error)
}

// DefaultShutdownConfig returns sensible defaults for shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		Timeout: 30 * time.Second,
	}
}

// ShutdownManager counts in-flight dispatches and waits for them to settle
// during shutdown. Once draining, new dispatches are refused.
type ShutdownManager struct {
	config ShutdownConfig

	mu       sync.Mutex
	draining bool
	inFlight int64
	idle     chan struct{}
	idleOnce sync.Once
	done     chan struct{}
	doneOnce sync.Once
}

// NewShutdownManager creates a new shutdown manager.
func NewShutdownManager(config ShutdownConfig) *ShutdownManager {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	return &ShutdownManager{
		config: config,
		idle:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// IsDraining reports whether new dispatches are being refused.
func (sm *ShutdownManager) IsDraining() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.draining
}

// InFlight returns the number of tracked dispatches that have not settled.
func (sm *ShutdownManager) InFlight() int64 {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.inFlight
}

// Begin tracks a new dispatch. It returns false once draining has started.
func (sm *ShutdownManager) Begin() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.draining {
		return false
	}
	sm.inFlight++
	return true
}

// End marks a dispatch tracked by Begin as settled.
func (sm *ShutdownManager) End() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.inFlight--
	if sm.draining && sm.inFlight == 0 {
		sm.idleOnce.Do(func() { close(sm.idle) })
	}
}

// Shutdown stops accepting dispatches and waits until the in-flight ones
// settle, Timeout passes or ctx is cancelled. It reports the context error
// when dispatches were still running. Done is closed and OnShutdownComplete
// called on every path.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	if sm.config.OnShutdownStart != nil {
		sm.config.OnShutdownStart()
	}

	var err error
	if sm.config.DrainDelay > 0 {
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(sm.config.DrainDelay):
		}
	}

	sm.mu.Lock()
	sm.draining = true
	if sm.inFlight == 0 {
		sm.idleOnce.Do(func() { close(sm.idle) })
	}
	sm.mu.Unlock()

	if sm.config.OnDrainStart != nil {
		sm.config.OnDrainStart()
	}

	if err == nil {
		timeoutCtx, cancel := context.WithTimeout(ctx, sm.config.Timeout)
		defer cancel()

		select {
		case <-sm.idle:
		case <-timeoutCtx.Done():
			err = timeoutCtx.Err()
		}
	}

	sm.doneOnce.Do(func() { close(sm.done) })

	if sm.config.OnShutdownComplete != nil {
		sm.config.OnShutdownComplete(err)
	}
	return err
}

// Done returns a channel that is closed when shutdown is complete.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.done
}

// Drain returns a unit that tracks every dispatch in sm until downstream
// settles. Once sm is draining it fails new dispatches with ErrDraining.
func Drain[T, U any](sm *ShutdownManager) compose.Middleware[T, U] {
	return func(_ T, next compose.Next[U]) compose.Result[U] {
		if !sm.Begin() {
			return compose.Fail[U](ErrDraining)
		}
		return compose.Async(compose.Then(next(), func(v U, err error) compose.Result[U] {
			sm.End()
			return compose.From(v, err)
		}))
	}
}
