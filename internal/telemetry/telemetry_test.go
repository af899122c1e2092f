package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type recordingSpanExporter struct {
	shutdowns int
}

func (e *recordingSpanExporter) ExportSpans(context.Context, []sdktrace.ReadOnlySpan) error {
	return nil
}

func (e *recordingSpanExporter) Shutdown(context.Context) error {
	e.shutdowns++
	return nil
}

func TestInit_MetricExporterFailureShutsDownTraceExporter(t *testing.T) {
	spans := &recordingSpanExporter{}
	origTrace, origMetric := newTraceExporter, newMetricExporter
	t.Cleanup(func() { newTraceExporter, newMetricExporter = origTrace, origMetric })

	newTraceExporter = func(context.Context, string) (sdktrace.SpanExporter, error) {
		return spans, nil
	}
	dialErr := errors.New("collector unreachable")
	newMetricExporter = func(context.Context, string) (sdkmetric.Exporter, error) {
		return nil, dialErr
	}

	p, err := Init(context.Background(), Config{ServiceName: "test", Endpoint: "collector:4317"})
	require.Nil(t, p)
	require.ErrorIs(t, err, dialErr)
	require.Equal(t, 1, spans.shutdowns)
}
