// Package middleware provides ready-made units for compose pipelines.
//
// Units are generic over the pipeline context. Any context that carries a
// context.Context can use them by implementing Carrier:
//
//	type Call struct {
//	    ctx  context.Context
//	    Name string
//	}
//
//	func (c *Call) Context() context.Context       { return c.ctx }
//	func (c *Call) SetContext(ctx context.Context) { c.ctx = ctx }
//	func (c *Call) Operation() string              { return c.Name }
//
// # Basic Usage
//
//	d, err := compose.Compose([]compose.Middleware[*Call, any]{
//	    middleware.Recover[*Call, any](),
//	    middleware.RequestID[*Call, any](),
//	    middleware.Logging[*Call, any](logger),
//	    handler,
//	})
//
// # Available Middleware
//
//   - Recover: Converts downstream panics into ErrInternal failures
//   - RequestID: Injects unique request IDs into the context
//   - Timeout: Fails the dispatch when downstream misses a deadline
//   - Logging: Logs one line per dispatch with timing
//   - Auth: Authenticates the caller and stores an Identity
//   - RateLimit: Rejects calls above a token-bucket rate (fortify)
//   - Throttle: Delays calls to a token-bucket rate (x/time/rate)
//   - SizeLimit: Rejects oversized payloads
//   - OTel: OpenTelemetry spans and metrics
//   - Metrics: Prometheus counters and histograms
//   - Cache: Short-circuits with a cached result
//
// # Default Stacks
//
//	// Recover + RequestID + Logging
//	stack := middleware.DefaultStack[*Call, any](logger)
//
//	// Recover + RequestID + Timeout + Logging
//	stack := middleware.DefaultStackWithTimeout[*Call, any](logger, 30*time.Second)
//
// Every unit here chains its post-processing with compose.Then, so all of
// them are safe to run on a compose.Loop.
package middleware
