package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"

	"DiagnosisWorker/internal/domain"
	"DiagnosisWorker/internal/ports"
)

// KafkaPublisher writes diagnosis events to a topic keyed by scan id, so all
// events for one scan land on the same partition.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

var _ ports.OutcomePublisher = (*KafkaPublisher)(nil)

// Publish runs inline in the poll loop, so a send gives up after roughly
// sendBudget instead of sarama's much longer defaults.
const (
	sendBudget   = 5 * time.Second
	netTimeout   = 3 * time.Second
	retryBackoff = 250 * time.Millisecond
)

// NewKafkaConfig returns producer settings shared by every Kafka publisher.
func NewKafkaConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = clientID

	config.Net.DialTimeout = netTimeout
	config.Net.ReadTimeout = netTimeout
	config.Net.WriteTimeout = netTimeout
	config.Metadata.Retry.Max = 1
	config.Metadata.Retry.Backoff = retryBackoff

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Timeout = sendBudget
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.Retry.Max = 1
	config.Producer.Retry.Backoff = retryBackoff

	config.Version = sarama.V3_6_0_0
	return config
}

func NewKafkaPublisher(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// ConnectKafkaWithRetry opens a sync producer, retrying with exponential
// backoff while the brokers are unreachable.
func ConnectKafkaWithRetry(ctx context.Context, brokers []string, topic, clientID string, maxElapsed time.Duration) (*KafkaPublisher, error) {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 2 * time.Second
	expBackoff.MaxElapsedTime = maxElapsed

	var producer sarama.SyncProducer
	operation := func() error {
		var err error
		producer, err = sarama.NewSyncProducer(brokers, NewKafkaConfig(clientID))
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(expBackoff, ctx)); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}
	return NewKafkaPublisher(producer, topic), nil
}

// Publish sends one event synchronously. A cancelled ctx skips the send.
func (p *KafkaPublisher) Publish(ctx context.Context, event domain.DiagnosisEvent) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send to kafka topic %s: %w", p.topic, err)
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.ScanID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte("diagnosis_status"), Value: []byte(event.Status)},
		},
		Timestamp: event.OccurredAt,
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send to kafka topic %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
