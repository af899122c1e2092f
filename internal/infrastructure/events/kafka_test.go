package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"DiagnosisWorker/internal/domain"
)

func sampleEvent() domain.DiagnosisEvent {
	return domain.NewDiagnosisEvent("scan-7",
		domain.CompletedOutcome(domain.Diagnosis{Label: "pneumonia", Confidence: 91.25}),
		time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC))
}

func TestKafkaPublisher_SendsKeyedJSON(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewKafkaConfig("test"))
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != "diagnoses" {
			return errors.New("wrong topic " + msg.Topic)
		}
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "scan-7" {
			return errors.New("wrong key " + string(key))
		}

		raw, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		var got domain.DiagnosisEvent
		if err := json.Unmarshal(raw, &got); err != nil {
			return err
		}
		if got.Status != domain.StatusCompleted || got.DiagnosisType != "pneumonia" {
			return errors.New("unexpected payload " + string(raw))
		}
		return nil
	})

	pub := NewKafkaPublisher(producer, "diagnoses")
	require.NoError(t, pub.Publish(context.Background(), sampleEvent()))
	require.NoError(t, pub.Close())
}

func TestKafkaPublisher_ReportsSendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, NewKafkaConfig("test"))
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisher(producer, "diagnoses")
	err := pub.Publish(context.Background(), sampleEvent())
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, pub.Close())
}

func TestKafkaPublisher_SkipsSendWhenContextDone(t *testing.T) {
	// no expectations: any SendMessage call fails the test
	producer := mocks.NewSyncProducer(t, NewKafkaConfig("test"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pub := NewKafkaPublisher(producer, "diagnoses")
	err := pub.Publish(ctx, sampleEvent())
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, pub.Close())
}

func TestNewKafkaConfig_BoundsSendTime(t *testing.T) {
	t.Parallel()

	cfg := NewKafkaConfig("diagnosis-worker")
	require.NoError(t, cfg.Validate())
	require.Equal(t, 5*time.Second, cfg.Producer.Timeout)
	require.Equal(t, 1, cfg.Producer.Retry.Max)
	require.Equal(t, 3*time.Second, cfg.Net.DialTimeout)
	require.Equal(t, 1, cfg.Metadata.Retry.Max)

	// worst case: every attempt waits out the producer timeout
	attempts := time.Duration(cfg.Producer.Retry.Max + 1)
	require.LessOrEqual(t, attempts*(cfg.Producer.Timeout+cfg.Producer.Retry.Backoff), 11*time.Second)
}
