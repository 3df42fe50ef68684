package middleware

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/felixgeelhaar/compose-go"
)

// MetricsOption configures the Prometheus middleware.
type MetricsOption func(*metricsConfig)

type metricsConfig struct {
	registerer prometheus.Registerer
	namespace  string
	buckets    []float64
}

// WithRegisterer sets the registry the collectors are registered with.
// Defaults to prometheus.DefaultRegisterer.
func WithRegisterer(r prometheus.Registerer) MetricsOption {
	return func(c *metricsConfig) {
		c.registerer = r
	}
}

// WithNamespace sets the metric namespace. Defaults to "compose".
func WithNamespace(ns string) MetricsOption {
	return func(c *metricsConfig) {
		c.namespace = ns
	}
}

// WithBuckets sets the latency histogram buckets in seconds.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *metricsConfig) {
		c.buckets = buckets
	}
}

// Metrics returns middleware that records Prometheus metrics per operation:
// a dispatch counter labelled by outcome, a latency histogram and an
// in-flight gauge. It fails if the collectors cannot be registered.
func Metrics[T Carrier, U any](opts ...MetricsOption) (compose.Middleware[T, U], error) {
	cfg := &metricsConfig{
		registerer: prometheus.DefaultRegisterer,
		namespace:  "compose",
		buckets:    prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.namespace,
		Name:      "dispatches_total",
		Help:      "Total number of dispatches by operation and outcome.",
	}, []string{"operation", "outcome"})

	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.namespace,
		Name:      "dispatch_duration_seconds",
		Help:      "Dispatch latency in seconds.",
		Buckets:   cfg.buckets,
	}, []string{"operation"})

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.namespace,
		Name:      "dispatches_in_flight",
		Help:      "Number of dispatches that have not settled.",
	})

	for _, c := range []prometheus.Collector{total, duration, inFlight} {
		if err := cfg.registerer.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	return func(c T, next compose.Next[U]) compose.Result[U] {
		op := OperationOf(c)
		start := time.Now()
		inFlight.Inc()

		return compose.Async(compose.Then(next(), func(v U, err error) compose.Result[U] {
			inFlight.Dec()
			duration.WithLabelValues(op).Observe(time.Since(start).Seconds())

			outcome := "ok"
			if err != nil {
				outcome = errorKind(err)
			}
			total.WithLabelValues(op, outcome).Inc()

			return compose.From(v, err)
		}))
	}, nil
}
