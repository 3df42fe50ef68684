package middleware

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("counts outcomes per operation", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		unit, err := Metrics[*call, string](WithRegisterer(reg))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			_, err := dispatch(t, newCall(t, "get"), unit, respond("ok"))
			require.NoError(t, err)
		}
		_, err = dispatch(t, newCall(t, "get"), unit, fail[string](ErrRateLimited))
		require.Error(t, err)

		expected := `
# HELP compose_dispatches_total Total number of dispatches by operation and outcome.
# TYPE compose_dispatches_total counter
compose_dispatches_total{operation="get",outcome="ok"} 3
compose_dispatches_total{operation="get",outcome="rate_limited"} 1
`
		assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "compose_dispatches_total"))
		n, err := testutil.GatherAndCount(reg, "compose_dispatch_duration_seconds")
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("in-flight gauge returns to zero", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		unit, err := Metrics[*call, string](WithRegisterer(reg), WithNamespace("app"))
		require.NoError(t, err)

		_, err = dispatch(t, newCall(t, "get"), unit, respond("ok"))
		require.NoError(t, err)

		expected := `
# HELP app_dispatches_in_flight Number of dispatches that have not settled.
# TYPE app_dispatches_in_flight gauge
app_dispatches_in_flight 0
`
		assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "app_dispatches_in_flight"))
	})

	t.Run("duplicate registration fails", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		_, err := Metrics[*call, string](WithRegisterer(reg))
		require.NoError(t, err)

		_, err = Metrics[*call, string](WithRegisterer(reg))
		assert.Error(t, err)
	})
}
