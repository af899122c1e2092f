package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"DiagnosisWorker/internal/domain"
	"DiagnosisWorker/internal/usecase"
)

const namespace = "diagnosis_worker"

// WorkerMetrics records poller and processor measurements.
type WorkerMetrics struct {
	scansProcessed metric.Int64Counter
	failures       metric.Int64Counter
	pollCycles     metric.Int64Counter
	pendingScans   metric.Int64Histogram
	scanDuration   metric.Float64Histogram
}

var _ usecase.Metrics = (*WorkerMetrics)(nil)

// NewWorkerMetrics creates all instruments on mp.
func NewWorkerMetrics(mp metric.MeterProvider) (*WorkerMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(WorkerMetrics)
	var err error

	if m.scansProcessed, err = meter.Int64Counter(
		"diagnosis_scans_processed_total",
		metric.WithDescription("Scans moved to a terminal status, by status"),
	); err != nil {
		return nil, err
	}

	if m.failures, err = meter.Int64Counter(
		"diagnosis_processing_failures_total",
		metric.WithDescription("Processing and persistence failures, by error kind"),
	); err != nil {
		return nil, err
	}

	if m.pollCycles, err = meter.Int64Counter(
		"diagnosis_poll_cycles_total",
		metric.WithDescription("Completed poll cycles"),
	); err != nil {
		return nil, err
	}

	if m.pendingScans, err = meter.Int64Histogram(
		"diagnosis_pending_scans",
		metric.WithDescription("Pending scans found per poll cycle"),
	); err != nil {
		return nil, err
	}

	if m.scanDuration, err = meter.Float64Histogram(
		"diagnosis_scan_duration_seconds",
		metric.WithDescription("Time from picking up a scan to persisting its outcome"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *WorkerMetrics) ObserveScan(ctx context.Context, status domain.DiagnosisStatus, elapsed time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", string(status)))
	m.scansProcessed.Add(ctx, 1, attrs)
	m.scanDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *WorkerMetrics) ObserveFailure(ctx context.Context, kind domain.ErrorKind) {
	m.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
}

func (m *WorkerMetrics) ObserveCycle(ctx context.Context, found int, _ time.Duration) {
	m.pollCycles.Add(ctx, 1)
	m.pendingScans.Record(ctx, int64(found))
}
