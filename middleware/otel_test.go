package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/compose-go"
	"github.com/felixgeelhaar/compose-go/composetest"
)

func newTracer(t *testing.T) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp
}

func TestOTel(t *testing.T) {
	t.Run("creates span per dispatch", func(t *testing.T) {
		exporter, tp := newTracer(t)

		_, err := dispatch(t, newCall(t, "users.list"), OTel[*call, string](WithTracerProvider(tp)), respond("ok"))
		require.NoError(t, err)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "compose.users.list", spans[0].Name)
		assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)
		assert.Contains(t, spans[0].Attributes, attribute.String("compose.operation", "users.list"))
	})

	t.Run("unnamed calls use the unknown operation", func(t *testing.T) {
		exporter, tp := newTracer(t)

		_, err := dispatch(t, newCall(t, ""), OTel[*call, string](WithTracerProvider(tp)), respond("ok"))
		require.NoError(t, err)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, "compose.unknown", spans[0].Name)
	})

	t.Run("records error on failure", func(t *testing.T) {
		exporter, tp := newTracer(t)
		boom := errors.New("handler failed")

		_, err := dispatch(t, newCall(t, "op"), OTel[*call, string](WithTracerProvider(tp)), fail[string](boom))
		assert.Same(t, boom, err)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Equal(t, "handler failed", spans[0].Status.Description)
		require.NotEmpty(t, spans[0].Events)
		assert.Equal(t, "exception", spans[0].Events[0].Name)
	})

	t.Run("span ends after async downstream", func(t *testing.T) {
		exporter, tp := newTracer(t)
		f := compose.NewFuture[string]()
		var pending compose.Middleware[*call, string] = func(*call, compose.Next[string]) compose.Result[string] {
			return compose.Async(f)
		}

		out := compose.MustCompose([]compose.Middleware[*call, string]{
			OTel[*call, string](WithTracerProvider(tp)),
			pending,
		}).Dispatch(newCall(t, "op"), nil)
		assert.Empty(t, exporter.GetSpans())

		f.Resolve("done")
		_, err := composetest.Wait(t, out)
		require.NoError(t, err)
		assert.Len(t, exporter.GetSpans(), 1)
	})

	t.Run("downstream sees the span", func(t *testing.T) {
		_, tp := newTracer(t)
		var seen context.Context

		_, err := dispatch(t, newCall(t, "op"), OTel[*call, string](WithTracerProvider(tp)), capture[string](&seen), respond("ok"))
		require.NoError(t, err)
		assert.True(t, SpanFromContext(seen).SpanContext().IsValid())
	})

	t.Run("skipped operations", func(t *testing.T) {
		exporter, tp := newTracer(t)

		_, err := dispatch(t, newCall(t, "health"),
			OTel[*call, string](WithTracerProvider(tp), WithOTelSkipOperations("health")),
			respond("ok"),
		)
		require.NoError(t, err)
		assert.Empty(t, exporter.GetSpans())
	})

	t.Run("records metrics", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

		_, err := dispatch(t, newCall(t, "op"), OTel[*call, string](WithMeterProvider(mp)), respond("ok"))
		require.NoError(t, err)
		_, err = dispatch(t, newCall(t, "op"), OTel[*call, string](WithMeterProvider(mp)), fail[string](ErrRateLimited))
		require.Error(t, err)

		var rm metricdata.ResourceMetrics
		require.NoError(t, reader.Collect(context.Background(), &rm))

		names := map[string]bool{}
		for _, sm := range rm.ScopeMetrics {
			for _, m := range sm.Metrics {
				names[m.Name] = true
			}
		}
		assert.True(t, names["compose.dispatches"])
		assert.True(t, names["compose.dispatch.duration"])
		assert.True(t, names["compose.errors"])
	})
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "timeout"},
		{ErrRateLimited, "rate_limited"},
		{ErrUnauthorized, "unauthorized"},
		{ErrTooLarge, "too_large"},
		{ErrInternal, "internal"},
		{&compose.PanicError{Value: "x"}, "panic"},
		{&compose.ReentrantInvocationError{Index: 1}, "reentrant"},
		{errors.New("other"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, errorKind(tt.err), "%v", tt.err)
	}
}
