package resilience_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-vloer/internal/resilience"
)

func TestBreakerMetricsTransitions(t *testing.T) {
	resilience.BreakerState.Reset()
	resilience.BreakerTransitions.Reset()
	resilience.BreakerOpenedTotal.Reset()

	breaker := resilience.NewBreaker("vat-registry", 1, 0.5, 20*time.Millisecond)

	require.True(t, breaker.Allow())
	breaker.Report(false)

	val := testutil.ToFloat64(resilience.BreakerState.WithLabelValues("vat-registry"))
	require.Equal(t, 1.0, val)

	require.Eventually(t, func() bool {
		return breaker.Allow()
	}, 100*time.Millisecond, 5*time.Millisecond)

	val = testutil.ToFloat64(resilience.BreakerState.WithLabelValues("vat-registry"))
	require.Equal(t, 2.0, val)

	breaker.Report(true)

	val = testutil.ToFloat64(resilience.BreakerState.WithLabelValues("vat-registry"))
	require.Equal(t, 0.0, val)

	opened := testutil.ToFloat64(resilience.BreakerOpenedTotal.WithLabelValues("vat-registry"))
	require.Equal(t, 1.0, opened)
}
