package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/compose-go"
)

const (
	instrumentationName = "github.com/felixgeelhaar/compose-go"
)

// OTelOption configures the OpenTelemetry middleware.
type OTelOption func(*otelConfig)

type otelConfig struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	serviceName    string
	skipOperations map[string]bool
}

// WithTracerProvider sets a custom tracer provider.
func WithTracerProvider(tp trace.TracerProvider) OTelOption {
	return func(c *otelConfig) {
		c.tracerProvider = tp
	}
}

// WithMeterProvider sets a custom meter provider.
func WithMeterProvider(mp metric.MeterProvider) OTelOption {
	return func(c *otelConfig) {
		c.meterProvider = mp
	}
}

// WithOTelServiceName sets the service name for telemetry.
func WithOTelServiceName(name string) OTelOption {
	return func(c *otelConfig) {
		c.serviceName = name
	}
}

// WithOTelSkipOperations specifies operations to skip for tracing.
func WithOTelSkipOperations(operations ...string) OTelOption {
	return func(c *otelConfig) {
		for _, op := range operations {
			c.skipOperations[op] = true
		}
	}
}

// OTel returns middleware that adds OpenTelemetry tracing and metrics.
// Each dispatch gets a span named "compose.<operation>" that ends when
// downstream settles; call counts, errors and latency are recorded as metrics.
func OTel[T Carrier, U any](opts ...OTelOption) compose.Middleware[T, U] {
	cfg := &otelConfig{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		serviceName:    "compose",
		skipOperations: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	tracer := cfg.tracerProvider.Tracer(
		instrumentationName,
		trace.WithInstrumentationVersion("1.0.0"),
	)

	meter := cfg.meterProvider.Meter(
		instrumentationName,
		metric.WithInstrumentationVersion("1.0.0"),
	)

	dispatchCounter, _ := meter.Int64Counter(
		"compose.dispatches",
		metric.WithDescription("Total number of dispatches"),
		metric.WithUnit("{dispatch}"),
	)

	dispatchDuration, _ := meter.Float64Histogram(
		"compose.dispatch.duration",
		metric.WithDescription("Duration of dispatches"),
		metric.WithUnit("ms"),
	)

	errorCounter, _ := meter.Int64Counter(
		"compose.errors",
		metric.WithDescription("Total number of failed dispatches"),
		metric.WithUnit("{error}"),
	)

	return func(c T, next compose.Next[U]) compose.Result[U] {
		op := OperationOf(c)
		if cfg.skipOperations[op] {
			return compose.Async(next())
		}

		ctx, span := tracer.Start(c.Context(), "compose."+op,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("compose.operation", op),
				attribute.String("service.name", cfg.serviceName),
			),
		)
		c.SetContext(ctx)

		if reqID := RequestIDFromContext(ctx); reqID != "" {
			span.SetAttributes(attribute.String("compose.request_id", reqID))
		}

		startTime := time.Now()
		attrs := []attribute.KeyValue{
			attribute.String("compose.operation", op),
			attribute.String("service.name", cfg.serviceName),
		}
		dispatchCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

		return compose.Async(compose.Then(next(), func(v U, err error) compose.Result[U] {
			defer span.End()

			duration := float64(time.Since(startTime).Milliseconds())
			dispatchDuration.Record(ctx, duration, metric.WithAttributes(attrs...))

			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				errorCounter.Add(ctx, 1, metric.WithAttributes(
					append(attrs, attribute.String("compose.error_kind", errorKind(err)))...,
				))
			} else {
				span.SetStatus(codes.Ok, "")
			}

			return compose.From(v, err)
		}))
	}
}

// errorKind classifies err for metric attributes.
func errorKind(err error) string {
	var pe *compose.PanicError
	switch {
	case errors.Is(err, compose.ErrNextCalledMultipleTimes):
		return "reentrant"
	case errors.As(err, &pe):
		return "panic"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	case errors.Is(err, ErrInternal):
		return "internal"
	default:
		return "error"
	}
}

// SpanFromContext returns the current span from context.
// Returns a no-op span if no span is present.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
