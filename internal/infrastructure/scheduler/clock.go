package scheduler

import (
	"context"
	"time"

	"DiagnosisWorker/internal/ports"
)

// SystemClock is the wall-clock implementation used in production.
type SystemClock struct{}

var _ ports.Clock = SystemClock{}

func NewSystemClock() SystemClock {
	return SystemClock{}
}

func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep waits for d using a timer so cancellation is observed immediately.
func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
