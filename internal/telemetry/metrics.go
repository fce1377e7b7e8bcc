package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetricsMeterName is the name used for the sync metrics meter
const SyncMetricsMeterName = "github.com/civicportal/portal-sync/sync"

// SyncMetrics holds the OpenTelemetry instruments for the sync engine.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	cycleDuration  metric.Float64Histogram
	cyclesAborted  metric.Int64Counter
	folderDuration metric.Float64Histogram
	itemsTotal     metric.Int64Counter
	activeRecords  metric.Int64Gauge
}

// NewSyncMetrics creates the sync instruments with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	cycleDuration, err := meter.Float64Histogram(
		"portal_sync_cycle_duration_seconds",
		metric.WithDescription("Duration of sync cycles in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, err
	}

	cyclesAborted, err := meter.Int64Counter(
		"portal_sync_cycles_aborted_total",
		metric.WithDescription("Number of cycles aborted before processing tenants"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return nil, err
	}

	folderDuration, err := meter.Float64Histogram(
		"portal_sync_folder_duration_seconds",
		metric.WithDescription("Duration of folder syncs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, err
	}

	itemsTotal, err := meter.Int64Counter(
		"portal_sync_items_total",
		metric.WithDescription("Number of source items by change classification and outcome"),
		metric.WithUnit("{item}"),
	)
	if err != nil {
		return nil, err
	}

	activeRecords, err := meter.Int64Gauge(
		"portal_sync_active_records",
		metric.WithDescription("Number of active records rendered into each folder artifact"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		cycleDuration:  cycleDuration,
		cyclesAborted:  cyclesAborted,
		folderDuration: folderDuration,
		itemsTotal:     itemsTotal,
		activeRecords:  activeRecords,
	}, nil
}

// RecordCycle records the duration of a completed or aborted cycle
func (m *SyncMetrics) RecordCycle(ctx context.Context, duration time.Duration, aborted bool) {
	if m == nil {
		return
	}

	m.cycleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("aborted", aborted)))
	if aborted {
		m.cyclesAborted.Add(ctx, 1)
	}
}

// RecordFolder records the duration of one folder sync
func (m *SyncMetrics) RecordFolder(ctx context.Context, tenant, folder string, duration time.Duration, success bool) {
	if m == nil {
		return
	}

	m.folderDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.String("folder", folder),
		attribute.Bool("success", success),
	))
}

// RecordItems counts items of one classification and outcome
func (m *SyncMetrics) RecordItems(ctx context.Context, tenant, folder, change, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}

	m.itemsTotal.Add(ctx, int64(n), metric.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.String("folder", folder),
		attribute.String("change", change),
		attribute.String("outcome", outcome),
	))
}

// RecordActiveRecords records the size of a folder's active set
func (m *SyncMetrics) RecordActiveRecords(ctx context.Context, tenant, folder string, count int) {
	if m == nil {
		return
	}

	m.activeRecords.Record(ctx, int64(count), metric.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.String("folder", folder),
	))
}
