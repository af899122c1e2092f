package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"DiagnosisWorker/internal/domain"
)

func TestWorkerMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := NewWorkerMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	m.ObserveScan(ctx, domain.StatusCompleted, 2*time.Second)
	m.ObserveScan(ctx, domain.StatusFailed, time.Second)
	m.ObserveFailure(ctx, domain.KindDownload)
	m.ObserveCycle(ctx, 2, time.Second)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := map[string]bool{}
	for _, md := range rm.ScopeMetrics[0].Metrics {
		names[md.Name] = true
		if md.Name == "diagnosis_scans_processed_total" {
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			require.Len(t, sum.DataPoints, 2)
		}
	}
	for _, want := range []string{
		"diagnosis_scans_processed_total",
		"diagnosis_processing_failures_total",
		"diagnosis_poll_cycles_total",
		"diagnosis_pending_scans",
		"diagnosis_scan_duration_seconds",
	} {
		require.True(t, names[want], want)
	}
}

func TestInit_WithoutEndpointIsNoop(t *testing.T) {
	p, err := Init(context.Background(), Config{ServiceName: "test"})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer("x"))
	require.NoError(t, p.Shutdown(context.Background()))
}
