package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"DiagnosisWorker/internal/domain"
	"DiagnosisWorker/internal/ports"
)

const (
	stageRetrieval   = "retrieval"
	stageInference   = "inference"
	stagePersistence = "persistence"
)

// ProcessorDeps wires all driven adapters into the diagnosis processor.
type ProcessorDeps struct {
	Fetcher    ports.ScanFetcher
	Decoder    ports.ImageDecoder
	Classifier ports.Classifier
	Repository ports.ScanRepository
	Publisher  ports.OutcomePublisher
	Clock      ports.Clock
	Labels     []string
	Metrics    Metrics
	Tracer     trace.Tracer
	Logger     *slog.Logger
}

// Processor turns one pending scan into exactly one terminal status write.
type Processor struct {
	fetcher    ports.ScanFetcher
	decoder    ports.ImageDecoder
	classifier ports.Classifier
	repository ports.ScanRepository
	publisher  ports.OutcomePublisher
	now        func() time.Time
	labels     []string
	metrics    Metrics
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewProcessor constructs the diagnosis processor. The classifier is expected
// to be fully loaded; the processor only reads from it.
func NewProcessor(deps ProcessorDeps) *Processor {
	p := &Processor{
		fetcher:    deps.Fetcher,
		decoder:    deps.Decoder,
		classifier: deps.Classifier,
		repository: deps.Repository,
		publisher:  deps.Publisher,
		now:        time.Now,
		labels:     deps.Labels,
		metrics:    deps.Metrics,
		tracer:     deps.Tracer,
		logger:     deps.Logger,
	}
	if deps.Clock != nil {
		p.now = deps.Clock.Now
	}
	if len(p.labels) == 0 {
		p.labels = domain.DefaultLabels
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

// Process diagnoses a single scan. Retrieval and inference failures are
// contained here and end the scan as failed; the only error returned is a
// persistence failure (or shutdown), which leaves the record pending.
func (p *Processor) Process(ctx context.Context, scan domain.PendingScan) error {
	ctx, span := p.tracer.Start(ctx, "processor.process",
		trace.WithAttributes(attribute.String("scan_id", scan.ScanID)))
	defer span.End()

	start := p.now()
	log := p.logger.With("scan_id", scan.ScanID, "file_path", scan.FilePath)
	log.Info("diagnosing scan")

	outcome := p.diagnose(ctx, log, scan)

	// A failure caused by shutdown is not a property of the scan.
	if outcome.Status() == domain.StatusFailed && ctx.Err() != nil {
		span.SetStatus(codes.Error, "abandoned")
		return fmt.Errorf("scan %s abandoned: %w", scan.ScanID, ctx.Err())
	}

	if err := p.repository.Update(ctx, scan.ScanID, outcome); err != nil {
		err = domain.EnsureKind(domain.KindPersistence, "update scan", err)
		log.Error("persist outcome failed, scan stays pending",
			"stage", stagePersistence,
			"kind", domain.KindPersistence,
			"status", outcome.Status(),
			"error", err,
		)
		p.metrics.ObserveFailure(ctx, domain.KindPersistence)
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failure")
		return fmt.Errorf("scan %s: %w", scan.ScanID, err)
	}

	p.metrics.ObserveScan(ctx, outcome.Status(), p.now().Sub(start))
	span.SetAttributes(attribute.String("diagnosis_status", string(outcome.Status())))

	if d, ok := outcome.Diagnosis(); ok {
		log.Info("completed diagnosis", "diagnosis_type", d.Label, "confidence_score", d.Confidence)
	} else {
		log.Info("marked scan as failed")
	}

	p.publish(ctx, log, domain.NewDiagnosisEvent(scan.ScanID, outcome, p.now()))
	return nil
}

func (p *Processor) diagnose(ctx context.Context, log *slog.Logger, scan domain.PendingScan) domain.Outcome {
	input, err := p.retrieve(ctx, scan.FilePath)
	if err != nil {
		p.fail(ctx, log, stageRetrieval, err)
		return domain.FailedOutcome()
	}

	diagnosis, err := p.classify(ctx, input)
	if err != nil {
		p.fail(ctx, log, stageInference, err)
		return domain.FailedOutcome()
	}

	return domain.CompletedOutcome(diagnosis)
}

func (p *Processor) retrieve(ctx context.Context, filePath string) (domain.Tensor, error) {
	data, err := p.fetcher.Fetch(ctx, filePath)
	if err != nil {
		return domain.Tensor{}, domain.EnsureKind(domain.KindDownload, "fetch", err)
	}

	input, err := p.decoder.Decode(data)
	if err != nil {
		return domain.Tensor{}, domain.EnsureKind(domain.KindDecode, "decode", err)
	}
	return input, nil
}

func (p *Processor) classify(ctx context.Context, input domain.Tensor) (domain.Diagnosis, error) {
	probs, err := p.classifier.Classify(ctx, input)
	if err != nil {
		return domain.Diagnosis{}, domain.EnsureKind(domain.KindInference, "classify", err)
	}

	diagnosis, err := domain.Diagnose(p.labels, probs)
	if err != nil {
		return domain.Diagnosis{}, domain.NewError(domain.KindInference, "diagnose", err)
	}
	return diagnosis, nil
}

func (p *Processor) fail(ctx context.Context, log *slog.Logger, stage string, err error) {
	kind, _ := domain.KindOf(err)
	log.Error(failureMessage(kind), "stage", stage, "kind", kind, "error", err)
	p.metrics.ObserveFailure(ctx, kind)
	trace.SpanFromContext(ctx).RecordError(err)
}

func (p *Processor) publish(ctx context.Context, log *slog.Logger, event domain.DiagnosisEvent) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(ctx, event); err != nil {
		log.Warn("publish diagnosis event failed", "status", event.Status, "error", err)
	}
}

func failureMessage(kind domain.ErrorKind) string {
	switch kind {
	case domain.KindResolution:
		return "failed to resolve signed url"
	case domain.KindDownload:
		return "failed to download scan file"
	case domain.KindDecode:
		return "failed to decode scan image"
	case domain.KindInference:
		return "failed to run inference"
	default:
		return "failed to diagnose scan"
	}
}
