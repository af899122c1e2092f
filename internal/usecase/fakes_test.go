package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"DiagnosisWorker/internal/domain"
	"DiagnosisWorker/internal/infrastructure/storage"
)

type stubFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
	errs  map[string]error
	calls []string
}

func (f *stubFetcher) Fetch(_ context.Context, filePath string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, filePath)
	if err, ok := f.errs[filePath]; ok {
		return nil, err
	}
	data, ok := f.files[filePath]
	if !ok {
		return nil, domain.NewError(domain.KindResolution, "sign url", domain.ErrNoSignedURL)
	}
	return data, nil
}

// stubDecoder accepts any payload starting with "img" and rejects everything else.
type stubDecoder struct{}

func (stubDecoder) Decode(data []byte) (domain.Tensor, error) {
	if !bytes.HasPrefix(data, []byte("img")) {
		return domain.Tensor{}, domain.NewError(domain.KindDecode, "decode", errors.New("unknown format"))
	}
	t := domain.NewTensor(1, 2, 2, 3)
	for i := range t.Data {
		t.Data[i] = float32(len(data)%7) / 10
	}
	return t, nil
}

type stubClassifier struct {
	probs []float32
	err   error
}

func (c stubClassifier) Classify(context.Context, domain.Tensor) ([]float32, error) {
	if c.err != nil {
		return nil, c.err
	}
	out := make([]float32, len(c.probs))
	copy(out, c.probs)
	return out, nil
}

// flakyRepository fails the first failUpdates calls to Update.
type flakyRepository struct {
	*storage.MemoryRepository
	mu          sync.Mutex
	failUpdates int
	listErr     error
	updates     int
}

func (r *flakyRepository) ListPending(ctx context.Context) ([]domain.PendingScan, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.MemoryRepository.ListPending(ctx)
}

func (r *flakyRepository) Update(ctx context.Context, scanID string, outcome domain.Outcome) error {
	r.mu.Lock()
	r.updates++
	fail := r.failUpdates > 0
	if fail {
		r.failUpdates--
	}
	r.mu.Unlock()

	if fail {
		return errors.New("connection reset by peer")
	}
	return r.MemoryRepository.Update(ctx, scanID, outcome)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.DiagnosisEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.DiagnosisEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

// fakeClock advances instantly and cancels the run after maxSleeps sleeps.
type fakeClock struct {
	mu        sync.Mutex
	now       time.Time
	sleeps    []time.Duration
	maxSleeps int
	cancel    context.CancelFunc
}

func newFakeClock(maxSleeps int, cancel context.CancelFunc) *fakeClock {
	return &fakeClock{
		now:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		maxSleeps: maxSleeps,
		cancel:    cancel,
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	done := len(c.sleeps) >= c.maxSleeps
	c.mu.Unlock()

	if done && c.cancel != nil {
		c.cancel()
	}
	return ctx.Err()
}

type countingMetrics struct {
	mu       sync.Mutex
	scans    map[domain.DiagnosisStatus]int
	failures map[domain.ErrorKind]int
	cycles   int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		scans:    make(map[domain.DiagnosisStatus]int),
		failures: make(map[domain.ErrorKind]int),
	}
}

func (m *countingMetrics) ObserveScan(_ context.Context, status domain.DiagnosisStatus, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans[status]++
}

func (m *countingMetrics) ObserveFailure(_ context.Context, kind domain.ErrorKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[kind]++
}

func (m *countingMetrics) ObserveCycle(context.Context, int, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cycles++
}

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}
