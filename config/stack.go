package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/compose-go"
	"github.com/felixgeelhaar/compose-go/middleware"
)

// Canonical positions of the standard units. Units added with
// Builder.Use after Stack run after all of them.
const (
	OrderRecover = iota * 10
	OrderRequestID
	OrderTracing
	OrderMetrics
	OrderLogging
	OrderRateLimit
	OrderThrottle
	OrderTimeout
)

// Deps carries the collaborators the standard units need. Zero values fall
// back to the global providers, prometheus.DefaultRegisterer and a no-op
// logger.
type Deps struct {
	Logger         compose.Logger
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Registerer     prometheus.Registerer
}

// Stack returns a builder holding the units cfg enables, in canonical
// order.
func Stack[T middleware.Carrier, U any](cfg *Config, deps Deps) (*compose.Builder[T, U], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = compose.NopLogger{}
	}

	b := compose.NewBuilder[T, U]()
	if cfg.Recover {
		b.Add(OrderRecover, middleware.Recover[T, U]())
	}
	if cfg.RequestID {
		b.Add(OrderRequestID, middleware.RequestID[T, U]())
	}
	if cfg.Tracing.Enabled {
		opts := []middleware.OTelOption{
			middleware.WithOTelServiceName(cfg.Tracing.ServiceName),
			middleware.WithOTelSkipOperations(cfg.Tracing.SkipOperations...),
		}
		if deps.TracerProvider != nil {
			opts = append(opts, middleware.WithTracerProvider(deps.TracerProvider))
		}
		if deps.MeterProvider != nil {
			opts = append(opts, middleware.WithMeterProvider(deps.MeterProvider))
		}
		b.Add(OrderTracing, middleware.OTel[T, U](opts...))
	}
	if cfg.Metrics.Enabled {
		opts := []middleware.MetricsOption{middleware.WithNamespace(cfg.Metrics.Namespace)}
		if deps.Registerer != nil {
			opts = append(opts, middleware.WithRegisterer(deps.Registerer))
		}
		if len(cfg.Metrics.Buckets) > 0 {
			opts = append(opts, middleware.WithBuckets(cfg.Metrics.Buckets))
		}
		unit, err := middleware.Metrics[T, U](opts...)
		if err != nil {
			return nil, err
		}
		b.Add(OrderMetrics, unit)
	}
	if cfg.Logging {
		b.Add(OrderLogging, middleware.Logging[T, U](logger))
	}
	if rl := cfg.RateLimit; rl != nil {
		opts := []middleware.RateLimitOption{middleware.WithRateLimitLogger(logger)}
		if rl.PerOperation {
			b.Add(OrderRateLimit, middleware.RateLimitByOperation[T, U](rl.Rate, rl.Burst, opts...))
		} else {
			b.Add(OrderRateLimit, middleware.RateLimit[T, U](rl.Rate, rl.Burst, nil, opts...))
		}
	}
	if th := cfg.Throttle; th != nil {
		b.Add(OrderThrottle, middleware.Throttle[T, U](th.Rate, th.Burst))
	}
	if cfg.Timeout > 0 {
		b.Add(OrderTimeout, middleware.Timeout[T, U](cfg.Timeout))
	}
	return b, nil
}

// Options returns the compose options cfg selects. When the scheduler is a
// Loop, stop closes it; otherwise stop does nothing.
func Options(cfg *Config, deps Deps) (opts []compose.Option, stop func()) {
	stop = func() {}
	switch cfg.Scheduler {
	case SchedulerGoroutines:
		opts = append(opts, compose.WithScheduler(compose.Goroutines()))
	case SchedulerLoop:
		loop := compose.NewLoop()
		opts = append(opts, compose.WithScheduler(loop))
		stop = loop.Close
	default:
		opts = append(opts, compose.WithScheduler(compose.Inline()))
	}
	if deps.Logger != nil {
		opts = append(opts, compose.WithLogger(deps.Logger))
	}
	return opts, stop
}
