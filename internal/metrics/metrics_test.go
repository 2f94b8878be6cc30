package metrics_test

import (
	"context"
	"testing"
	"time"

	"github.com/devilai/devil-console/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	r, err := metrics.NewRecorder(metrics.Meter(mp))
	require.NoError(t, err)

	ctx := context.Background()
	r.ChatSent(ctx, "gemini")
	r.ChatChunk(ctx)
	r.ChatChunk(ctx)
	r.ChatFinished(ctx, "gemini", 120*time.Millisecond, true)
	r.DashboardOpened(ctx)
	r.DashboardOpened(ctx)
	r.DashboardClosed(ctx)

	sums := collectSums(t, reader)
	assert.Equal(t, int64(1), sums["console.chat.sends"])
	assert.Equal(t, int64(2), sums["console.chat.chunks"])
	assert.Equal(t, int64(1), sums["console.chat.failures"])
	assert.Equal(t, int64(1), sums["console.dashboard.subscribers"])
}

func TestNoop(t *testing.T) {
	r := metrics.Noop()
	require.NotNil(t, r)

	r.ChatSent(context.Background(), "x")
	r.ChatFinished(context.Background(), "x", time.Second, false)
}
