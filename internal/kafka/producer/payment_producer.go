package producer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/IBM/sarama"
)

// PaymentProducer интерфейс для отправки событий платежей
type PaymentProducer interface {
	PublishPaymentEvent(ctx context.Context, event domain.PaymentEvent) error
	Close() error
}

type kafkaPaymentProducer struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

// NewKafkaPaymentProducer создает новый продюсер событий платежей
func NewKafkaPaymentProducer(producer sarama.SyncProducer, topic string, log *logger.Logger) PaymentProducer {
	return &kafkaPaymentProducer{
		producer: producer,
		topic:    topic,
		log:      log,
	}
}

// PublishPaymentEvent публикует событие платежа. Ключ - payment intent, иначе счёт, иначе id платежа.
func (p *kafkaPaymentProducer) PublishPaymentEvent(ctx context.Context, event domain.PaymentEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	messageValue, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payment event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(paymentKey(event)),
		Value: sarama.ByteEncoder(messageValue),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("event_type"),
				Value: []byte(event.Type),
			},
		},
		Timestamp: event.Timestamp,
	}

	partition, offset, err := p.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to publish payment event: %w", err)
	}

	p.log.Infow("Published payment event",
		"topic", p.topic, "type", event.Type, "partition", partition, "offset", offset)
	return nil
}

func paymentKey(event domain.PaymentEvent) string {
	switch {
	case event.PaymentIntentID != "":
		return event.PaymentIntentID
	case event.InvoiceID != "":
		return event.InvoiceID
	default:
		return event.PaymentID
	}
}

// Close закрывает продюсер
func (p *kafkaPaymentProducer) Close() error {
	return p.producer.Close()
}
