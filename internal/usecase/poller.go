package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"DiagnosisWorker/internal/domain"
	"DiagnosisWorker/internal/ports"
)

// DefaultPollInterval is the pause between the end of one cycle and the start of the next.
const DefaultPollInterval = 60 * time.Second

// ScanProcessor handles a single pending scan.
type ScanProcessor interface {
	Process(ctx context.Context, scan domain.PendingScan) error
}

// PollerDeps wires the poll loop.
type PollerDeps struct {
	Repository ports.ScanRepository
	Processor  ScanProcessor
	Clock      ports.Clock
	Interval   time.Duration
	Metrics    Metrics
	Tracer     trace.Tracer
	Logger     *slog.Logger
}

// CycleReport summarises one poll cycle.
type CycleReport struct {
	CycleID    string
	Found      int
	Dispatched int
	Failed     int
	Err        error
}

// Poller periodically discovers pending scans and hands them to the processor.
type Poller struct {
	repository ports.ScanRepository
	processor  ScanProcessor
	clock      ports.Clock
	interval   time.Duration
	metrics    Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewPoller returns a poller. Clock is required.
func NewPoller(deps PollerDeps) *Poller {
	p := &Poller{
		repository: deps.Repository,
		processor:  deps.Processor,
		clock:      deps.Clock,
		interval:   deps.Interval,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		logger:     deps.Logger,
	}
	if p.interval <= 0 {
		p.interval = DefaultPollInterval
	}
	if p.metrics == nil {
		p.metrics = NopMetrics{}
	}
	if p.tracer == nil {
		p.tracer = noop.NewTracerProvider().Tracer("usecase")
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	return p
}

// Run executes cycles until ctx is cancelled. The interval is measured from
// the end of one cycle, so cycles never overlap. It returns ctx.Err().
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("diagnosis worker started", "poll_interval", p.interval)

	for {
		p.RunCycle(ctx)

		if err := p.clock.Sleep(ctx, p.interval); err != nil {
			p.logger.Info("diagnosis worker stopping", "reason", err)
			return err
		}
	}
}

// RunCycle lists pending scans once and processes them sequentially in list
// order. A failing scan never prevents the rest of the cycle from running.
func (p *Poller) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{CycleID: uuid.NewString()}

	ctx, span := p.tracer.Start(ctx, "poller.cycle",
		trace.WithAttributes(attribute.String("cycle_id", report.CycleID)))
	defer span.End()

	start := p.clock.Now()
	log := p.logger.With("cycle_id", report.CycleID)
	defer func() {
		p.metrics.ObserveCycle(ctx, report.Found, p.clock.Now().Sub(start))
	}()

	scans, err := p.repository.ListPending(ctx)
	if err != nil {
		report.Err = domain.EnsureKind(domain.KindPersistence, "list pending", err)
		log.Error("worker error: list pending scans", "error", report.Err)
		span.RecordError(report.Err)
		span.SetStatus(codes.Error, "list pending failed")
		return report
	}

	report.Found = len(scans)
	span.SetAttributes(attribute.Int("scans.found", report.Found))
	log.Info("found scans to process", "count", report.Found)

	for _, scan := range scans {
		if ctx.Err() != nil {
			log.Info("cycle interrupted", "remaining", report.Found-report.Dispatched)
			break
		}

		report.Dispatched++
		if err := p.dispatch(ctx, scan); err != nil {
			report.Failed++
			log.Error("worker error: scan left pending", "scan_id", scan.ScanID, "error", err)
		}
	}

	return report
}

// dispatch contains panics from a single scan so the loop survives them.
func (p *Poller) dispatch(ctx context.Context, scan domain.PendingScan) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing scan %s: %v", scan.ScanID, r)
		}
	}()
	return p.processor.Process(ctx, scan)
}
