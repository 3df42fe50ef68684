package middleware

import (
	"context"
	"errors"
)

// Carrier is a pipeline context that carries a context.Context. Units that
// derive a new context.Context store it back with SetContext so downstream
// units observe it.
type Carrier interface {
	Context() context.Context
	SetContext(ctx context.Context)
}

// Named is implemented by contexts that know the operation they represent,
// such as an HTTP route or an RPC method. Units use it for logs, metrics and
// per-operation limits.
type Named interface {
	Operation() string
}

// HeaderCarrier is a Carrier exposing request headers or metadata.
type HeaderCarrier interface {
	Carrier
	Header(name string) string
}

// SizedCarrier is a Carrier whose payload size is known.
type SizedCarrier interface {
	Carrier
	Size() int64
}

// Errors returned by units in this package.
var (
	ErrInternal     = errors.New("middleware: internal error")
	ErrRateLimited  = errors.New("middleware: rate limit exceeded")
	ErrUnauthorized = errors.New("middleware: authentication required")
	ErrTooLarge     = errors.New("middleware: payload too large")
)

// UnknownOperation names calls whose context is not Named or reports an
// empty operation.
const UnknownOperation = "unknown"

// OperationOf returns c's operation name, or UnknownOperation.
func OperationOf(c any) string {
	if n, ok := c.(Named); ok {
		if op := n.Operation(); op != "" {
			return op
		}
	}
	return UnknownOperation
}
