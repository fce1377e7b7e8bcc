package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collectSyncMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != SyncMetricsMeterName {
			continue
		}
		for _, m := range scope.Metrics {
			found[m.Name] = m
		}
	}
	return found
}

func TestNewSyncMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewSyncMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("nil metrics record nothing", func(t *testing.T) {
		t.Parallel()

		var metrics *SyncMetrics
		ctx := context.Background()
		metrics.RecordCycle(ctx, time.Second, false)
		metrics.RecordFolder(ctx, "springfield", "news", time.Second, true)
		metrics.RecordItems(ctx, "springfield", "news", "new", "success", 3)
		metrics.RecordActiveRecords(ctx, "springfield", "news", 3)
	})
}

func TestSyncMetrics_Record(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewSyncMetrics(mp)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	ctx := context.Background()
	metrics.RecordCycle(ctx, 1500*time.Millisecond, false)
	metrics.RecordCycle(ctx, 100*time.Millisecond, true)
	metrics.RecordFolder(ctx, "springfield", "news", 250*time.Millisecond, true)
	metrics.RecordItems(ctx, "springfield", "news", "new", "success", 2)
	metrics.RecordItems(ctx, "springfield", "news", "changed", "failure", 0)
	metrics.RecordActiveRecords(ctx, "springfield", "news", 7)

	found := collectSyncMetrics(t, reader)

	cycles, ok := found["portal_sync_cycle_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var sum float64
	for _, dp := range cycles.DataPoints {
		sum += dp.Sum
	}
	assert.InDelta(t, 1.6, sum, 0.001)

	aborted, ok := found["portal_sync_cycles_aborted_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, aborted.DataPoints, 1)
	assert.Equal(t, int64(1), aborted.DataPoints[0].Value)

	items, ok := found["portal_sync_items_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, items.DataPoints, 1, "zero counts are not recorded")
	assert.Equal(t, int64(2), items.DataPoints[0].Value)

	active, ok := found["portal_sync_active_records"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, active.DataPoints, 1)
	assert.Equal(t, int64(7), active.DataPoints[0].Value)

	_, ok = found["portal_sync_folder_duration_seconds"].Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
}
