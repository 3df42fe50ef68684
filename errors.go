package compose

import (
	"errors"
	"fmt"
)

// Sentinel errors reported by Compose and Dispatch.
var (
	// ErrNotSequence is returned by ComposeAny when the stack is not a slice or array.
	ErrNotSequence = errors.New("compose: middleware stack must be an ordered sequence")

	// ErrNotCallable is returned when a stack element is not a middleware function.
	ErrNotCallable = errors.New("compose: middleware must be composed of functions")

	// ErrNextCalledMultipleTimes is matched by every ReentrantInvocationError.
	ErrNextCalledMultipleTimes = errors.New("compose: next() called multiple times")
)

// ConfigurationError reports an invalid middleware stack at build time.
type ConfigurationError struct {
	// Index of the offending element, or -1 when the stack itself is invalid.
	Index int
	// Stack is a human-readable dump of the whole stack. It is not a stable format.
	Stack string
	// Err is ErrNotSequence or ErrNotCallable.
	Err error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Index < 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s\n\tmiddleware index: %d\n\tmiddleware list: %s", e.Err, e.Index, e.Stack)
}

// Unwrap returns the underlying sentinel.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// ReentrantInvocationError reports a continuation invoked for a frame that was
// already entered. It signals a programming defect in a middleware unit.
type ReentrantInvocationError struct {
	// Index is the frame the stale continuation tried to enter.
	Index int
	// Stack is a human-readable dump of the whole stack.
	Stack string
}

// Error implements the error interface.
func (e *ReentrantInvocationError) Error() string {
	return fmt.Sprintf("%s\n\tmiddleware index: %d\n\tmiddleware list: %s",
		ErrNextCalledMultipleTimes, e.Index, e.Stack)
}

// Is reports whether target is ErrNextCalledMultipleTimes.
func (e *ReentrantInvocationError) Is(target error) bool {
	return target == ErrNextCalledMultipleTimes
}

// PanicError carries a non-error value a middleware unit panicked with.
// Units that panic with an error value fail the dispatch with that error itself.
type PanicError struct {
	Value any
	// Stack is the goroutine stack captured at recovery.
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("compose: middleware panic: %v", e.Value)
}
