package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/config"
	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaProducer_PublishSubscriptionEvent(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaProducer(w, "billing.subscriptions", logger.NewNop())

	event := domain.SubscriptionEvent{
		Type:           domain.EventSubscriptionCreated,
		SubscriptionID: "8d7f6c1e-0000-0000-0000-000000000001",
		UserID:         "u-1",
		Status:         domain.PaymentStatusCompleted,
		EndDate:        time.Date(2026, 11, 17, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.PublishSubscriptionEvent(context.Background(), event))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, []byte(event.SubscriptionID), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, domain.EventSubscriptionCreated, string(msg.Headers[0].Value))

	var decoded domain.SubscriptionEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.UserID, decoded.UserID)
	assert.False(t, decoded.Timestamp.IsZero())
}

func TestKafkaProducer_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newKafkaProducer(w, "billing.subscriptions", logger.NewNop())

	err := p.PublishSubscriptionEvent(context.Background(), domain.SubscriptionEvent{SubscriptionID: "s"})
	assert.ErrorContains(t, err, "failed to write message")
}

func TestNewKafkaProducer_RequiresBrokersAndTopic(t *testing.T) {
	_, err := NewKafkaProducer(nil, "t", logger.NewNop())
	assert.Error(t, err)

	_, err = NewKafkaProducer([]string{"localhost:9092"}, "", logger.NewNop())
	assert.Error(t, err)
}

func TestNewSaramaConfig_SyncProducerReturns(t *testing.T) {
	cfg := NewSaramaConfig(NewConfig([]string{"localhost:9092"}))
	assert.True(t, cfg.Producer.Return.Successes)
	assert.True(t, cfg.Producer.Return.Errors)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.NoError(t, cfg.Validate())
}

func TestMissingTopics(t *testing.T) {
	topics := requiredTopics(config.KafkaConfig{SubscriptionTopic: "subs", PaymentTopic: "pays"})
	missing := missingTopics(topics, map[string]bool{"subs": true})
	require.Len(t, missing, 1)
	assert.Equal(t, "pays", missing[0].Topic)
}

func TestEnsureKafkaTopics_RejectsBadBroker(t *testing.T) {
	err := EnsureKafkaTopics(context.Background(), config.KafkaConfig{Brokers: []string{"no-port"}}, logger.NewNop())
	assert.ErrorContains(t, err, "invalid broker address")
}
