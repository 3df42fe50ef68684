package middleware

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/felixgeelhaar/compose-go"
)

// PanicHandler is called when a downstream panic is recovered.
type PanicHandler[T, U any] func(c T, panicVal any) compose.Result[U]

// Recover returns middleware that converts downstream panics into internal
// errors. The dispatcher already turns a panic into a failure; Recover maps
// those failures (a *compose.PanicError or a runtime.Error) to ErrInternal so
// they are not mistaken for ordinary unit errors.
func Recover[T, U any]() compose.Middleware[T, U] {
	return RecoverWithHandler(defaultPanicHandler[T, U])
}

// RecoverWithHandler returns middleware that calls handler for recovered
// panics. This allows for custom panic handling such as logging or alerting.
func RecoverWithHandler[T, U any](handler PanicHandler[T, U]) compose.Middleware[T, U] {
	return func(c T, next compose.Next[U]) compose.Result[U] {
		return compose.Async(compose.Then(next(), func(v U, err error) compose.Result[U] {
			if val, ok := panicValue(err); ok {
				return handler(c, val)
			}
			return compose.From(v, err)
		}))
	}
}

func panicValue(err error) (any, bool) {
	if err == nil {
		return nil, false
	}
	var pe *compose.PanicError
	if errors.As(err, &pe) {
		return pe.Value, true
	}
	var re runtime.Error
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}

// defaultPanicHandler converts a panic value to an internal error.
func defaultPanicHandler[T, U any](_ T, panicVal any) compose.Result[U] {
	var msg string
	switch v := panicVal.(type) {
	case error:
		msg = fmt.Sprintf("panic: %v", v)
	case string:
		msg = fmt.Sprintf("panic: %s", v)
	default:
		msg = fmt.Sprintf("panic: %v", v)
	}
	return compose.Fail[U](fmt.Errorf("%w: %s", ErrInternal, msg))
}
