package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/IBM/sarama"
	"golang.org/x/sync/errgroup"

	"DiagnosisWorker/internal/config"
	"DiagnosisWorker/internal/infrastructure/events"
	"DiagnosisWorker/internal/infrastructure/health"
	"DiagnosisWorker/internal/infrastructure/imaging"
	"DiagnosisWorker/internal/infrastructure/ml"
	"DiagnosisWorker/internal/infrastructure/objectstore"
	"DiagnosisWorker/internal/infrastructure/scheduler"
	"DiagnosisWorker/internal/infrastructure/storage"
	"DiagnosisWorker/internal/infrastructure/telegram"
	"DiagnosisWorker/internal/logging"
	"DiagnosisWorker/internal/ports"
	"DiagnosisWorker/internal/telemetry"
	"DiagnosisWorker/internal/usecase"
	"DiagnosisWorker/pkg/logger"
)

const (
	tracerName      = "diagnosis-worker"
	shutdownTimeout = 10 * time.Second
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	poller  *usecase.Poller
	health  *health.Server
	ready   *atomic.Bool
	closers []func(context.Context) error
}

// New connects every dependency and loads the model. Anything already opened
// is released again when a later step fails.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (_ *Application, err error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	a := &Application{cfg: cfg, logger: baseLogger, ready: &atomic.Bool{}}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	providers, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.Endpoint,
		Probability: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.closers = append(a.closers, providers.Shutdown)
	tracer := providers.Tracer(tracerName)

	metrics, err := telemetry.NewWorkerMetrics(providers.MeterProvider)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	repository, err := a.openRepository(ctx, providers)
	if err != nil {
		return nil, err
	}

	httpClient := objectstore.NewHTTPClient(0)
	signer := objectstore.NewSigner(cfg.Storage.URL, cfg.Storage.APIKey, cfg.Storage.Bucket, httpClient)
	fetcher := objectstore.NewFetcher(signer, httpClient, objectstore.FetcherConfig{
		SignedURLExpiry: cfg.Storage.SignedURLExpiry(),
		DownloadTimeout: cfg.Storage.DownloadTimeout(),
		MaxBytes:        cfg.Storage.MaxDownloadBytes,
		RateLimit:       cfg.Storage.RateLimit,
		RateBurst:       cfg.Storage.RateBurst,
	})

	decoder, err := imaging.New(cfg.Codec.Backend, cfg.Model.InputSize, imaging.WithMaxPixels(cfg.Codec.MaxPixels))
	if err != nil {
		return nil, fmt.Errorf("init image codec: %w", err)
	}

	engine, err := ml.Load(ctx, ml.DefaultRegistry(), cfg.Model.Backend, ml.Settings{
		Name:              cfg.Model.Name,
		Path:              cfg.Model.Path,
		ServingURL:        cfg.Model.ServingURL,
		SharedLibraryPath: cfg.Model.SharedLibraryPath,
		InputShape:        cfg.Model.InputShape(),
		Classes:           len(cfg.Model.Labels),
		HTTPClient:        httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("init inference engine: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error { return engine.Close() })
	baseLogger.Info("model loaded", "backend", cfg.Model.Backend, "classes", len(cfg.Model.Labels))

	publisher, err := a.openPublishers(ctx)
	if err != nil {
		return nil, err
	}

	clock := scheduler.NewSystemClock()
	processor := usecase.NewProcessor(usecase.ProcessorDeps{
		Fetcher:    fetcher,
		Decoder:    decoder,
		Classifier: engine,
		Repository: repository,
		Publisher:  publisher,
		Clock:      clock,
		Labels:     cfg.Model.Labels,
		Metrics:    metrics,
		Tracer:     tracer,
		Logger:     baseLogger.With("component", "processor"),
	})
	a.poller = usecase.NewPoller(usecase.PollerDeps{
		Repository: repository,
		Processor:  processor,
		Clock:      clock,
		Interval:   cfg.Worker.PollInterval(),
		Metrics:    metrics,
		Tracer:     tracer,
		Logger:     baseLogger.With("component", "poller"),
	})

	if cfg.Health.Addr != "" {
		a.health = health.NewServer(cfg.Health.Addr, a.ready)
	}
	return a, nil
}

func (a *Application) openRepository(ctx context.Context, providers *telemetry.Providers) (ports.ScanRepository, error) {
	db := a.cfg.Database
	if db.Backend == "memory" {
		a.logger.Warn("using in-memory scan repository, statuses are lost on restart")
		return storage.NewMemoryRepository(), nil
	}

	connectTimeout := time.Duration(db.ConnectTimeoutSeconds) * time.Second
	pool, err := storage.ConnectWithRetry(ctx, db.DSN, connectTimeout, a.logger.With("component", "postgres"))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error {
		pool.Close()
		return nil
	})

	if db.ShouldMigrate() {
		if err := storage.Migrate(pool, logger.NewMigrate("migrate", false)); err != nil {
			return nil, err
		}
		a.logger.Info("database migrations applied")
	}
	return storage.NewPostgresRepository(pool, providers.Tracer("postgres")), nil
}

func (a *Application) openPublishers(ctx context.Context) (ports.OutcomePublisher, error) {
	var publishers []ports.OutcomePublisher
	ev := a.cfg.Events
	connectTimeout := time.Duration(a.cfg.Database.ConnectTimeoutSeconds) * time.Second

	if ev.Kafka.Enabled() {
		sarama.Logger = logger.New("sarama")
		kafka, err := events.ConnectKafkaWithRetry(ctx, ev.Kafka.Brokers, ev.Kafka.Topic, ev.Kafka.ClientID, connectTimeout)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return kafka.Close() })
		publishers = append(publishers, kafka)
		a.logger.Info("publishing diagnoses to kafka", "topic", ev.Kafka.Topic)
	}

	if ev.PubSub.Enabled() {
		client, err := pubsub.NewClient(ctx, ev.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		topic := events.NewPubSubPublisher(client.Topic(ev.PubSub.TopicID))
		a.closers = append(a.closers, func(context.Context) error {
			return errors.Join(topic.Close(), client.Close())
		})
		publishers = append(publishers, topic)
		a.logger.Info("publishing diagnoses to pubsub", "topic", ev.PubSub.TopicID)
	}

	if tg := a.cfg.Notifications.Telegram; tg.Enabled() {
		var opts []telegram.Option
		if tg.FailuresOnly {
			opts = append(opts, telegram.WithFailuresOnly())
		}
		publishers = append(publishers, telegram.NewNotifier(tg.BotToken, tg.ChatID, opts...))
	}

	return events.Combine(publishers...), nil
}

// Run starts the probe server and the poll loop and blocks until ctx is
// cancelled or one of them fails.
func (a *Application) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.health != nil {
		g.Go(func() error { return a.health.Run(ctx) })
	}

	a.ready.Store(true)
	g.Go(func() error {
		defer a.ready.Store(false)
		err := a.poller.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	return g.Wait()
}

// Close releases resources in reverse order of acquisition.
func (a *Application) Close(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
