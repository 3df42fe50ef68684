package transport

import (
	"context"
	"errors"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/felixgeelhaar/compose-go"
	"github.com/felixgeelhaar/compose-go/middleware"
)

// GRPCCall is the pipeline context for one unary RPC.
type GRPCCall struct {
	// Method is the full RPC name, "/package.Service/Method".
	Method  string
	Request any

	md  metadata.MD
	mu  sync.Mutex
	ctx context.Context
}

// Context returns the call's context.Context.
func (c *GRPCCall) Context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

// SetContext replaces the context.Context passed to later units and to the
// gRPC handler.
func (c *GRPCCall) SetContext(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
}

// Operation returns the full method name.
func (c *GRPCCall) Operation() string { return c.Method }

// Header returns the first incoming metadata value for name.
func (c *GRPCCall) Header(name string) string {
	if vals := c.md.Get(name); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Size returns the encoded size of a protobuf request, or 0 for other types.
func (c *GRPCCall) Size() int64 {
	if m, ok := c.Request.(proto.Message); ok {
		return int64(proto.Size(m))
	}
	return 0
}

// Service returns the service part of Method.
func (c *GRPCCall) Service() string {
	service, _, _ := strings.Cut(strings.TrimPrefix(c.Method, "/"), "/")
	return service
}

// GRPCOption configures UnaryServerInterceptor.
type GRPCOption func(*grpcConfig)

type grpcConfig struct {
	mapStatus bool
}

// WithStatusMapping converts pipeline failures that are not already gRPC
// status errors with GRPCStatus.
func WithStatusMapping() GRPCOption {
	return func(c *grpcConfig) {
		c.mapStatus = true
	}
}

// UnaryServerInterceptor runs d around every unary RPC. The gRPC handler is
// the pipeline's finalizer and receives the context.Context left by the
// units. Errors are returned unchanged unless WithStatusMapping is set.
func UnaryServerInterceptor(d *compose.Dispatcher[*GRPCCall, any], opts ...GRPCOption) grpc.UnaryServerInterceptor {
	var cfg grpcConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		call := &GRPCCall{Method: info.FullMethod, Request: req, md: md, ctx: ctx}

		finalizer := func(c *GRPCCall, _ compose.Next[any]) compose.Result[any] {
			resp, err := handler(c.Context(), c.Request)
			return compose.From(resp, err)
		}

		resp, err := d.Dispatch(call, finalizer).Await(ctx)
		if err != nil && cfg.mapStatus {
			return resp, GRPCStatus(err)
		}
		return resp, err
	}
}

// GRPCStatus converts a dispatch failure into a gRPC status error. Errors
// that already carry a status are returned as is.
func GRPCStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codes.Internal
	msg := "internal error"
	switch {
	case errors.Is(err, middleware.ErrRateLimited):
		code, msg = codes.ResourceExhausted, err.Error()
	case errors.Is(err, middleware.ErrUnauthorized):
		code, msg = codes.Unauthenticated, err.Error()
	case errors.Is(err, middleware.ErrTooLarge):
		code, msg = codes.InvalidArgument, err.Error()
	case errors.Is(err, ErrDraining):
		code, msg = codes.Unavailable, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		code, msg = codes.DeadlineExceeded, err.Error()
	case errors.Is(err, context.Canceled):
		code, msg = codes.Canceled, err.Error()
	}
	return status.Error(code, msg)
}
