package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/internal/repository"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"
)

// backgroundTimeout ограничивает фоновые задачи после коммита (события, письма, счета).
const backgroundTimeout = 10 * time.Second

// EventPublisher публикует события жизненного цикла. Реализация - internal/kafka.Publisher.
type EventPublisher interface {
	PublishSubscriptionEvent(ctx context.Context, event domain.SubscriptionEvent) error
	PublishPaymentEvent(ctx context.Context, event domain.PaymentEvent) error
}

// Notifier отправляет письма подписчикам.
type Notifier interface {
	Send(ctx context.Context, subject, to, htmlBody string) error
}

// Repositories - хранилища, с которыми работают сервисы.
type Repositories struct {
	Subscribers   repository.SubscriberRepository
	Trainers      repository.TrainerRepository
	Offers        repository.OfferRepository
	Subscriptions repository.SubscriptionRepository
	Payments      repository.PaymentRepository
	Rules         repository.PricingRuleRepository
	Webhooks      repository.WebhookEventRepository
	Tx            repository.Transactor
}

type nopPublisher struct{}

func (nopPublisher) PublishSubscriptionEvent(context.Context, domain.SubscriptionEvent) error {
	return nil
}

func (nopPublisher) PublishPaymentEvent(context.Context, domain.PaymentEvent) error { return nil }

// NopPublisher используется, когда Kafka выключена.
func NopPublisher() EventPublisher { return nopPublisher{} }

// background запускает задачи, которые не должны зависеть от отмены запроса.
type background struct {
	wg      sync.WaitGroup
	pending atomic.Int64
	log     *logger.Logger
}

func newBackground(log *logger.Logger) *background {
	return &background{log: log}
}

func (b *background) Go(ctx context.Context, task string, fn func(ctx context.Context) error) {
	b.wg.Add(1)
	b.pending.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.pending.Add(-1)
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			b.log.Errorw("Background task failed", "task", task, "error", err)
		}
	}()
}

// Wait дожидается завершения запущенных задач.
func (b *background) Wait() {
	b.wg.Wait()
}

// Pending - число незавершенных задач.
func (b *background) Pending() int64 {
	return b.pending.Load()
}

// notFoundAs переводит ErrNotFound репозитория в доменную ошибку с сообщением.
func notFoundAs(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NotFound(format, args...)
	}
	return err
}

// conflictAs переводит ErrDuplicate репозитория в Conflict.
func conflictAs(err error, format string, args ...any) error {
	if errors.Is(err, repository.ErrDuplicate) {
		return &domain.AppError{Kind: domain.KindConflict, Message: fmt.Sprintf(format, args...), Err: err}
	}
	return err
}

func subscriptionEvent(eventType string, sub *domain.UserSubscription, at time.Time) domain.SubscriptionEvent {
	return domain.SubscriptionEvent{
		Type:                 eventType,
		SubscriptionID:       sub.ID.String(),
		UserID:               sub.UserID.String(),
		OfferID:              sub.OfferID.String(),
		StripeSubscriptionID: sub.ExternalID(),
		Status:               sub.PaymentStatus,
		EndDate:              sub.EndDate,
		Timestamp:            at,
	}
}

func paymentEvent(eventType string, p *domain.Payment, at time.Time) domain.PaymentEvent {
	return domain.PaymentEvent{
		Type:            eventType,
		PaymentID:       p.ID.String(),
		UserID:          p.UserID.String(),
		PaymentIntentID: domain.StrVal(p.PaymentIntentID),
		InvoiceID:       domain.StrVal(p.InvoiceID),
		Amount:          p.Amount,
		Currency:        p.Currency,
		Status:          p.Status,
		Timestamp:       at,
	}
}
