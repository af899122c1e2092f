package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"DiagnosisWorker/internal/domain"
	"DiagnosisWorker/internal/ports"
)

// PubSubPublisher sends diagnosis events to a Pub/Sub topic.
type PubSubPublisher struct {
	topic   *pubsub.Topic
	timeout time.Duration
}

var _ ports.OutcomePublisher = (*PubSubPublisher)(nil)

func NewPubSubPublisher(topic *pubsub.Topic) *PubSubPublisher {
	return &PubSubPublisher{topic: topic, timeout: 5 * time.Second}
}

// Publish blocks until the server acknowledged the message.
func (p *PubSubPublisher) Publish(ctx context.Context, event domain.DiagnosisEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	_, err = p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"scan_id": event.ScanID,
			"status":  string(event.Status),
		},
	}).Get(ctx)
	if err != nil {
		return fmt.Errorf("publish to %s: %w", p.topic.ID(), err)
	}
	return nil
}

// Close flushes pending messages.
func (p *PubSubPublisher) Close() error {
	p.topic.Stop()
	return nil
}
