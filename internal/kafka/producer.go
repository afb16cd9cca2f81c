package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/segmentio/kafka-go"
)

// Producer публикует события жизненного цикла подписок.
type Producer interface {
	// PublishSubscriptionEvent использует id подписки как ключ, чтобы события одной подписки шли в одну партицию.
	PublishSubscriptionEvent(ctx context.Context, event domain.SubscriptionEvent) error
	Close() error
}

// messageWriter - часть kafka.Writer, которую использует продюсер.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaProducer реализует интерфейс Producer, используя segmentio/kafka-go.
type kafkaProducer struct {
	writer messageWriter
	topic  string
	log    *logger.Logger
}

// NewKafkaProducer создает и настраивает новый продюсер Kafka.
func NewKafkaProducer(brokers []string, topic string, log *logger.Logger) (Producer, error) {
	if len(brokers) == 0 {
		log.Errorw("Kafka brokers list is empty in config, cannot create producer")
		return nil, errors.New("kafka brokers are not configured")
	}
	if topic == "" {
		return nil, errors.New("kafka subscription topic is not configured")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{}, // один ключ - одна партиция
		RequiredAcks: kafka.RequireOne,
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}

	log.Infow("Kafka producer initialized", "brokers", brokers, "topic", topic)
	return newKafkaProducer(writer, topic, log), nil
}

func newKafkaProducer(writer messageWriter, topic string, log *logger.Logger) *kafkaProducer {
	return &kafkaProducer{
		writer: writer,
		topic:  topic,
		log:    log,
	}
}

// PublishSubscriptionEvent преобразует событие в JSON и отправляет в топик подписок.
func (k *kafkaProducer) PublishSubscriptionEvent(ctx context.Context, event domain.SubscriptionEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	messageKey := []byte(event.SubscriptionID)

	messageValue, err := json.Marshal(event)
	if err != nil {
		k.log.Errorw("Failed to marshal subscription event to JSON for Kafka", "error", err, "subscriptionID", event.SubscriptionID)
		return fmt.Errorf("kafka: failed to marshal message data: %w", err)
	}

	message := kafka.Message{
		Key:   messageKey,
		Value: messageValue,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	if err := k.writer.WriteMessages(writeCtx, message); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			k.log.Errorw("Kafka write timeout exceeded", "error", err, "topic", k.topic, "subscriptionID", event.SubscriptionID)
			return fmt.Errorf("kafka: write timeout: %w", err)
		}
		k.log.Errorw("Failed to write message to Kafka", "error", err, "topic", k.topic, "subscriptionID", event.SubscriptionID)
		return fmt.Errorf("kafka: failed to write message: %w", err)
	}

	k.log.Infow("Successfully published message to Kafka", "topic", k.topic, "type", event.Type, "subscriptionID", event.SubscriptionID)
	return nil
}

// Close закрывает соединение Kafka Writer.
func (k *kafkaProducer) Close() error {
	k.log.Infow("Closing Kafka producer writer...")
	if err := k.writer.Close(); err != nil {
		k.log.Errorw("Failed to close Kafka writer", "error", err)
		return fmt.Errorf("kafka: failed to close writer: %w", err)
	}
	k.log.Infow("Kafka producer writer closed successfully")
	return nil
}
