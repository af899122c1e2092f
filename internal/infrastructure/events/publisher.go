package events

import (
	"context"
	"errors"

	"DiagnosisWorker/internal/domain"
	"DiagnosisWorker/internal/ports"
)

// Fanout delivers every event to all publishers and joins their errors.
type Fanout []ports.OutcomePublisher

var _ ports.OutcomePublisher = Fanout(nil)

func (f Fanout) Publish(ctx context.Context, event domain.DiagnosisEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Noop is used when no downstream system is configured.
type Noop struct{}

func (Noop) Publish(context.Context, domain.DiagnosisEvent) error { return nil }

// Combine returns the cheapest publisher covering ps.
func Combine(ps ...ports.OutcomePublisher) ports.OutcomePublisher {
	switch len(ps) {
	case 0:
		return Noop{}
	case 1:
		return ps[0]
	default:
		return Fanout(ps)
	}
}
