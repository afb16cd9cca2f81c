package kafka

import (
	"context"
	"errors"

	"github.com/Dhoini/fitness-billing-service/internal/config"
	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/internal/kafka/producer"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/IBM/sarama"
)

// Publisher объединяет продюсер подписок (kafka-go) и продюсер платежей (sarama).
type Publisher struct {
	subscriptions Producer
	payments      producer.PaymentProducer
}

// NewPublisher собирает публикатор из готовых продюсеров.
func NewPublisher(subscriptions Producer, payments producer.PaymentProducer) *Publisher {
	return &Publisher{subscriptions: subscriptions, payments: payments}
}

// NewPublisherFromConfig подключается к брокерам и создаёт оба продюсера.
func NewPublisherFromConfig(cfg config.KafkaConfig, log *logger.Logger) (*Publisher, error) {
	subs, err := NewKafkaProducer(cfg.Brokers, cfg.SubscriptionTopic, log)
	if err != nil {
		return nil, err
	}

	syncProducer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(NewConfig(cfg.Brokers)))
	if err != nil {
		_ = subs.Close()
		log.Errorw("Failed to create sarama producer", "error", err)
		return nil, err
	}

	return NewPublisher(subs, producer.NewKafkaPaymentProducer(syncProducer, cfg.PaymentTopic, log)), nil
}

func (p *Publisher) PublishSubscriptionEvent(ctx context.Context, event domain.SubscriptionEvent) error {
	return p.subscriptions.PublishSubscriptionEvent(ctx, event)
}

func (p *Publisher) PublishPaymentEvent(ctx context.Context, event domain.PaymentEvent) error {
	return p.payments.PublishPaymentEvent(ctx, event)
}

// Close закрывает оба продюсера и возвращает объединённую ошибку.
func (p *Publisher) Close() error {
	return errors.Join(p.subscriptions.Close(), p.payments.Close())
}
