// Package transport runs compose dispatchers behind network and stream
// transports.
//
// Each transport defines a pipeline context that satisfies
// middleware.Carrier, so the units in package middleware work unchanged:
//
//   - HTTPContext, served by NewHTTPHandler and HTTPServer
//   - Message, served by WebSocket and Stdio as JSON envelopes
//   - GRPCCall, served by UnaryServerInterceptor
//
// # HTTP
//
//	d := compose.MustCompose(middleware.DefaultStack[*transport.HTTPContext, any](logger))
//	h := transport.NewHTTPHandler(d, func(c *transport.HTTPContext, _ compose.Next[any]) compose.Result[any] {
//	    return compose.Value[any](map[string]string{"status": "ok"})
//	})
//	srv := transport.NewHTTPServer(":8080", h, transport.WithShutdownManager(sm))
//	err := srv.Serve(ctx)
//
// Successful values are written as JSON. Failures go through an
// ErrorEncoder, which by default maps middleware errors to status codes
// (rate limited 429, timeout 504, everything else 500).
//
// # Message envelopes
//
// WebSocket and Stdio read one JSON object per message:
//
//	{"id": "1", "op": "users.get", "payload": {...}, "headers": {...}}
//
// and reply with {"id": "1", "result": ...} or {"id": "1", "error": {...}}.
//
// # gRPC
//
//	srv := grpc.NewServer(grpc.UnaryInterceptor(transport.UnaryServerInterceptor(d)))
//
// The gRPC handler runs as the pipeline's finalizer.
package transport
