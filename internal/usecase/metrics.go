package usecase

import (
	"context"
	"time"

	"DiagnosisWorker/internal/domain"
)

// Metrics receives worker measurements. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveScan(ctx context.Context, status domain.DiagnosisStatus, elapsed time.Duration)
	ObserveFailure(ctx context.Context, kind domain.ErrorKind)
	ObserveCycle(ctx context.Context, found int, elapsed time.Duration)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ObserveScan(context.Context, domain.DiagnosisStatus, time.Duration) {}
func (NopMetrics) ObserveFailure(context.Context, domain.ErrorKind)                   {}
func (NopMetrics) ObserveCycle(context.Context, int, time.Duration)                   {}
