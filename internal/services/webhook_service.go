package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/internal/metrics"
	"github.com/Dhoini/fitness-billing-service/internal/notify"
	"github.com/Dhoini/fitness-billing-service/internal/repository"
	"github.com/Dhoini/fitness-billing-service/internal/stripe"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/google/uuid"
	stripego "github.com/stripe/stripe-go/v78"
)

// CheckoutSubscriber оформляет подписку после оплаты через Checkout.
type CheckoutSubscriber interface {
	Subscribe(ctx context.Context, subscriberID uuid.UUID, in domain.SubscribeInput) (*domain.SubscriptionResult, error)
}

// WebhookService сверяет локальное состояние с событиями Stripe.
// Доставка at-least-once и в произвольном порядке, поэтому каждый обработчик идемпотентен.
type WebhookService struct {
	subscribers   repository.SubscriberRepository
	trainers      repository.TrainerRepository
	offers        repository.OfferRepository
	subscriptions repository.SubscriptionRepository
	payments      repository.PaymentRepository
	ledger        repository.WebhookEventRepository
	tx            repository.Transactor
	dedup         repository.EventDeduplicator
	gateway       stripe.Gateway
	checkout      CheckoutSubscriber
	notifier      Notifier
	publisher     EventPublisher
	metrics       metrics.BillingMetrics
	log           *logger.Logger
	bg            *background
	now           func() time.Time
}

// NewWebhookService конструктор сервиса
func NewWebhookService(
	repos Repositories,
	dedup repository.EventDeduplicator,
	gateway stripe.Gateway,
	checkout CheckoutSubscriber,
	notifier Notifier,
	publisher EventPublisher,
	m metrics.BillingMetrics,
	log *logger.Logger,
) *WebhookService {
	if publisher == nil {
		publisher = NopPublisher()
	}
	return &WebhookService{
		subscribers:   repos.Subscribers,
		trainers:      repos.Trainers,
		offers:        repos.Offers,
		subscriptions: repos.Subscriptions,
		payments:      repos.Payments,
		ledger:        repos.Webhooks,
		tx:            repos.Tx,
		dedup:         dedup,
		gateway:       gateway,
		checkout:      checkout,
		notifier:      notifier,
		publisher:     publisher,
		metrics:       m,
		log:           log,
		bg:            newBackground(log),
		now:           time.Now,
	}
}

// Wait дожидается фоновых задач.
func (s *WebhookService) Wait() {
	s.bg.Wait()
}

// PendingTasks - фоновые задачи, еще не завершенные.
func (s *WebhookService) PendingTasks() int64 {
	return s.bg.Pending()
}

// ConstructEvent проверяет подпись и разбирает событие.
func (s *WebhookService) ConstructEvent(payload []byte, signature string) (stripego.Event, error) {
	if signature == "" {
		return stripego.Event{}, fmt.Errorf("%w: missing signature", domain.ErrWebhookValidationFailed)
	}
	event, err := s.gateway.ConstructEvent(payload, signature)
	if err != nil {
		return stripego.Event{}, fmt.Errorf("%w: %v", domain.ErrWebhookValidationFailed, err)
	}
	return event, nil
}

// Process обрабатывает проверенное событие. Повторная доставка обработанного события ничего не меняет.
func (s *WebhookService) Process(ctx context.Context, event stripego.Event) error {
	eventType := string(event.Type)

	if !s.dedup.Claim(ctx, event.ID) {
		s.metrics.IncWebhookEvent(eventType, metrics.OutcomeSkipped)
		return nil
	}

	status, err := s.ledger.Begin(ctx, event.ID, eventType)
	if err != nil {
		// журнал - оптимизация, обработчики идемпотентны и без него
		s.log.Warnw("Failed to record webhook event", "error", err, "eventID", event.ID)
	} else if status == domain.WebhookEventStatusProcessed {
		s.log.Infow("Webhook event already processed", "eventID", event.ID, "eventType", eventType)
		s.metrics.IncWebhookEvent(eventType, metrics.OutcomeSkipped)
		return nil
	}

	if err := s.dispatch(ctx, event); err != nil {
		s.dedup.Release(ctx, event.ID)
		if markErr := s.ledger.MarkFailed(ctx, event.ID, err); markErr != nil {
			s.log.Warnw("Failed to mark webhook event failed", "error", markErr, "eventID", event.ID)
		}
		s.metrics.IncWebhookEvent(eventType, metrics.OutcomeError)
		return fmt.Errorf("process %s %s: %w", eventType, event.ID, err)
	}

	if err := s.ledger.MarkProcessed(ctx, event.ID); err != nil {
		s.log.Warnw("Failed to mark webhook event processed", "error", err, "eventID", event.ID)
	}
	s.metrics.IncWebhookEvent(eventType, metrics.OutcomeSuccess)
	return nil
}

func (s *WebhookService) dispatch(ctx context.Context, event stripego.Event) error {
	switch event.Type {
	case "account.updated":
		acct, err := decode[stripego.Account](event)
		if err != nil {
			return err
		}
		return s.handleAccountUpdated(ctx, acct)

	case "checkout.session.completed":
		session, err := decode[stripego.CheckoutSession](event)
		if err != nil {
			return err
		}
		if session.Mode == stripego.CheckoutSessionModeSetup {
			return s.handleSetupCompleted(ctx, session)
		}
		return s.handleCheckoutPayment(ctx, session)

	case "charge.succeeded":
		charge, err := decode[stripego.Charge](event)
		if err != nil {
			return err
		}
		return s.handleChargeSucceeded(ctx, charge)

	case "payment_intent.payment_failed":
		return s.handlePaymentIntent(ctx, event, domain.PaymentStatusFailed)
	case "payment_intent.processing":
		return s.handlePaymentIntent(ctx, event, domain.PaymentStatusRequiresCapture)
	case "payment_intent.succeeded":
		return s.handlePaymentIntent(ctx, event, domain.PaymentStatusCompleted)

	case "customer.subscription.updated":
		sub, err := decode[stripego.Subscription](event)
		if err != nil {
			return err
		}
		return s.handleSubscriptionUpdated(ctx, sub)

	case "customer.subscription.deleted":
		sub, err := decode[stripego.Subscription](event)
		if err != nil {
			return err
		}
		return s.handleSubscriptionDeleted(ctx, sub)

	case "invoice.paid":
		inv, err := decode[stripego.Invoice](event)
		if err != nil {
			return err
		}
		return s.handleInvoicePaid(ctx, inv)

	case "invoice.payment_failed":
		inv, err := decode[stripego.Invoice](event)
		if err != nil {
			return err
		}
		return s.handleInvoicePaymentFailed(ctx, inv)

	case "invoice.upcoming":
		inv, err := decode[stripego.Invoice](event)
		if err != nil {
			return err
		}
		return s.handleInvoiceUpcoming(ctx, inv)

	default:
		s.log.Debugw("Ignored webhook event type", "eventID", event.ID, "eventType", event.Type)
		return nil
	}
}

func (s *WebhookService) handleAccountUpdated(ctx context.Context, acct *stripego.Account) error {
	if !acct.ChargesEnabled || !acct.PayoutsEnabled || !acct.DetailsSubmitted {
		s.log.Debugw("Connected account not ready yet", "accountID", acct.ID)
		return nil
	}
	profile, err := s.trainers.GetByStripeAccountID(ctx, acct.ID)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Warnw("No trainer profile for connected account", "accountID", acct.ID)
		return nil
	}
	if err != nil {
		return err
	}

	completed, err := s.trainers.CompleteOnboarding(ctx, profile.UserID)
	if err != nil {
		return err
	}
	if completed {
		s.log.Infow("Trainer onboarding completed", "trainerID", profile.UserID, "accountID", acct.ID)
	}
	return nil
}

func (s *WebhookService) handleCheckoutPayment(ctx context.Context, session *stripego.CheckoutSession) error {
	if session.PaymentIntent == nil || session.PaymentIntent.ID == "" {
		s.log.Warnw("Checkout session without payment intent", "sessionID", session.ID)
		return nil
	}
	intentID := session.PaymentIntent.ID

	subscriber, err := s.resolveSubscriber(ctx, session.Metadata[stripe.MetadataUserIDKey], session.Customer)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Warnw("Checkout session without a known user", "sessionID", session.ID)
		return nil
	}
	if err != nil {
		return err
	}

	now := s.now()
	customerID := customerIDOf(session.Customer)
	// сессия с ручным списанием завершается неоплаченной: деньги только авторизованы
	status, paidAt := domain.PaymentStatusCompleted, &now
	if session.PaymentStatus != stripego.CheckoutSessionPaymentStatusPaid {
		status, paidAt = domain.PaymentStatusRequiresCapture, nil
	}
	var payment *domain.Payment
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.payments.GetByPaymentIntentID(ctx, intentID)
		switch {
		case err == nil:
			if existing.Status != domain.PaymentStatusCompleted {
				existing.Status = status
				existing.PaidAt = paidAt
			}
			existing.Amount = stripe.FromMinorUnits(session.AmountTotal)
			if customerID != "" {
				existing.StripeCustomerID = &customerID
			}
			existing.UpdatedAt = now
			payment = existing
			return s.payments.Update(ctx, existing)
		case errors.Is(err, repository.ErrNotFound):
			payment = &domain.Payment{
				ID:               uuid.New(),
				UserID:           subscriber.ID,
				Amount:           stripe.FromMinorUnits(session.AmountTotal),
				Currency:         string(session.Currency),
				PaymentIntentID:  &intentID,
				StripeCustomerID: domain.StrPtr(customerID),
				Status:           status,
				PaidAt:           paidAt,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			return s.payments.Create(ctx, payment)
		default:
			return err
		}
	})
	if err != nil {
		return fmt.Errorf("upsert checkout payment: %w", err)
	}
	s.log.Infow("Checkout payment recorded",
		"paymentIntentID", intentID,
		"userID", subscriber.ID,
		"amount", payment.Amount,
		"status", payment.Status,
	)
	if payment.Status != domain.PaymentStatusCompleted {
		return nil
	}
	s.publishPayment(ctx, domain.EventPaymentCompleted, payment)

	offerRef := session.Metadata[stripe.MetadataOfferIDKey]
	paymentMethodID := session.Metadata[stripe.MetadataPaymentMethodKey]
	if offerRef == "" || paymentMethodID == "" {
		return nil
	}
	offerID, err := uuid.Parse(offerRef)
	if err != nil {
		s.log.Warnw("Invalid offer id in checkout metadata", "offerID", offerRef, "sessionID", session.ID)
		return nil
	}
	if _, err := s.checkout.Subscribe(ctx, subscriber.ID, domain.SubscribeInput{OfferID: offerID, PaymentMethodID: paymentMethodID}); err != nil {
		// повторное событие упирается в Conflict, это ожидаемо
		s.log.Warnw("Subscription after checkout not created", "error", err, "userID", subscriber.ID, "offerID", offerID)
	}
	return nil
}

func (s *WebhookService) handleSetupCompleted(ctx context.Context, session *stripego.CheckoutSession) error {
	if session.SetupIntent == nil || session.SetupIntent.ID == "" {
		s.log.Warnw("Setup checkout session without setup intent", "sessionID", session.ID)
		return nil
	}
	paymentMethodID, err := s.gateway.GetSetupIntentPaymentMethod(ctx, session.SetupIntent.ID)
	if err != nil {
		return fmt.Errorf("resolve setup intent payment method: %w", err)
	}

	offerRef := session.Metadata[stripe.MetadataOfferIDKey]
	s.log.Infow("Payment method collected via checkout",
		"sessionID", session.ID,
		"userID", session.Metadata[stripe.MetadataUserIDKey],
		"offerID", offerRef,
		"paymentMethodID", paymentMethodID,
	)

	subscriber, err := s.resolveSubscriber(ctx, session.Metadata[stripe.MetadataUserIDKey], session.Customer)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	var offerTitle string
	if offerID, err := uuid.Parse(offerRef); err == nil {
		if offer, err := s.offers.GetByID(ctx, offerID); err == nil {
			offerTitle = offer.Title
		}
	}
	subject, body := notify.PaymentMethodSavedEmail(offerTitle)
	s.sendEmail(ctx, subscriber.Email, subject, body)
	return nil
}

func (s *WebhookService) handleChargeSucceeded(ctx context.Context, charge *stripego.Charge) error {
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		return nil
	}
	paidAt := s.now()
	if t := stripe.UnixTime(charge.Created); t != nil {
		paidAt = *t
	}

	n, err := s.payments.UpdateStatusByIntent(ctx, charge.PaymentIntent.ID, domain.PaymentStatusCompleted, domain.StrPtr(charge.ReceiptURL), &paidAt)
	if err != nil {
		return fmt.Errorf("mark charge payment completed: %w", err)
	}
	if n == 0 {
		s.log.Debugw("No local payment for charge", "chargeID", charge.ID, "paymentIntentID", charge.PaymentIntent.ID)
	}

	email := charge.ReceiptEmail
	if charge.BillingDetails != nil && charge.BillingDetails.Email != "" {
		email = charge.BillingDetails.Email
	}
	if email != "" && charge.ReceiptURL != "" {
		subject, body := notify.ReceiptEmail(stripe.FromMinorUnits(charge.Amount), string(charge.Currency), charge.ReceiptURL)
		s.sendEmail(ctx, email, subject, body)
	}
	return nil
}

func (s *WebhookService) handlePaymentIntent(ctx context.Context, event stripego.Event, status domain.PaymentStatus) error {
	intent, err := decode[stripego.PaymentIntent](event)
	if err != nil {
		return err
	}

	var paidAt *time.Time
	if status == domain.PaymentStatusCompleted {
		now := s.now()
		paidAt = &now
	}
	n, err := s.payments.UpdateStatusByIntent(ctx, intent.ID, status, nil, paidAt)
	if err != nil {
		return fmt.Errorf("update payment by intent: %w", err)
	}
	s.log.Infow("Payment intent status applied", "paymentIntentID", intent.ID, "status", status, "rows", n)

	if status == domain.PaymentStatusFailed {
		failed := domain.PaymentEvent{
			Type:            domain.EventPaymentFailed,
			PaymentIntentID: intent.ID,
			Amount:          stripe.FromMinorUnits(intent.Amount),
			Currency:        string(intent.Currency),
			Status:          status,
			Timestamp:       s.now(),
		}
		s.bg.Go(ctx, "publish_payment_event", func(ctx context.Context) error {
			return s.publisher.PublishPaymentEvent(ctx, failed)
		})
	}
	return nil
}

func (s *WebhookService) handleSubscriptionUpdated(ctx context.Context, sub *stripego.Subscription) error {
	subscriber, err := s.subscribers.GetByStripeCustomerID(ctx, customerIDOf(sub.Customer))
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Warnw("Subscription update for unknown customer", "stripeSubscriptionID", sub.ID)
		return nil
	}
	if err != nil {
		return err
	}

	plan, err := s.planForPrice(ctx, firstPriceID(sub))
	if err != nil {
		return err
	}
	end := s.now()
	if t := stripe.UnixTime(sub.CurrentPeriodEnd); t != nil {
		end = *t
	}

	immediate := sub.Status == stripego.SubscriptionStatusCanceled && !sub.CancelAtPeriodEnd
	var refundable *domain.Payment
	if immediate {
		if refundable, err = s.lastCompletedPayment(ctx, sub.ID); err != nil {
			return err
		}
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if tracksSubscription(subscriber, sub.ID) {
			flags := domain.SubscriptionFlags{
				IsSubscribed:         sub.Status == stripego.SubscriptionStatusActive,
				SubscriptionEnd:      &end,
				SubscriptionPlan:     plan,
				StripeSubscriptionID: &sub.ID,
			}
			if err := s.subscribers.UpdateSubscriptionFlags(ctx, subscriber.ID, flags); err != nil {
				return err
			}
		}
		if immediate {
			return s.revoke(ctx, sub.ID, &subscriber.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply subscription update: %w", err)
	}

	if immediate {
		s.log.Infow("Immediate cancellation detected, refunding", "stripeSubscriptionID", sub.ID)
		s.refund(ctx, refundable)
		s.publishRefunded(ctx, sub.ID, refundable)
	}
	return nil
}

func (s *WebhookService) handleSubscriptionDeleted(ctx context.Context, sub *stripego.Subscription) error {
	refundable, err := s.lastCompletedPayment(ctx, sub.ID)
	if err != nil {
		return err
	}

	subscriber, err := s.subscribers.GetByStripeCustomerID(ctx, customerIDOf(sub.Customer))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	now := s.now()
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if subscriber != nil && tracksSubscription(subscriber, sub.ID) {
			flags := domain.SubscriptionFlags{SubscriptionEnd: &now}
			if err := s.subscribers.UpdateSubscriptionFlags(ctx, subscriber.ID, flags); err != nil {
				return err
			}
		}
		return s.revoke(ctx, sub.ID, nil)
	})
	if err != nil {
		return fmt.Errorf("apply subscription deletion: %w", err)
	}

	s.refund(ctx, refundable)
	s.publishRefunded(ctx, sub.ID, refundable)
	s.log.Infow("Stripe subscription deleted", "stripeSubscriptionID", sub.ID)
	return nil
}

func (s *WebhookService) handleInvoicePaid(ctx context.Context, inv *stripego.Invoice) error {
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		s.log.Debugw("Invoice without subscription", "invoiceID", inv.ID)
		return nil
	}
	subID := inv.Subscription.ID

	switch inv.BillingReason {
	case stripego.InvoiceBillingReasonSubscriptionCreate:
		n, err := s.payments.BackfillInitial(ctx, subID, inv.ID, intentIDOf(inv.PaymentIntent))
		if err != nil {
			return fmt.Errorf("backfill initial payment: %w", err)
		}
		s.log.Debugw("Initial invoice reconciled", "invoiceID", inv.ID, "rows", n)
		return nil

	case stripego.InvoiceBillingReasonSubscriptionCycle, stripego.InvoiceBillingReasonSubscriptionUpdate:
		cycle := inv.BillingReason == stripego.InvoiceBillingReasonSubscriptionCycle
		end := s.periodEnd(ctx, subID, inv)
		var (
			payment  *domain.Payment
			extended int64
		)
		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			if !end.IsZero() {
				// отмененные и возвращенные строки не воскрешаются запоздавшим счетом
				completed := domain.PaymentStatusCompleted
				upd := repository.SubscriptionUpdate{OnlyStatus: &completed, EndDate: &end}
				n, err := s.subscriptions.UpdateByStripeID(ctx, subID, upd)
				if err != nil {
					return err
				}
				extended = n
				if n > 0 {
					if _, err := s.subscribers.ExtendByStripeSubscription(ctx, subID, end, cycle); err != nil {
						return err
					}
				}
			}
			var err error
			payment, err = s.recordInvoicePayment(ctx, inv, subID)
			return err
		})
		if err != nil {
			return fmt.Errorf("apply paid invoice: %w", err)
		}
		if extended == 0 {
			s.log.Warnw("Paid invoice for inactive subscription, period not extended",
				"stripeSubscriptionID", subID, "invoiceID", inv.ID, "reason", inv.BillingReason)
		} else {
			s.log.Infow("Subscription period extended", "stripeSubscriptionID", subID, "endDate", end, "reason", inv.BillingReason)
		}
		if payment != nil {
			s.publishPayment(ctx, domain.EventPaymentCompleted, payment)
			if cycle && extended > 0 {
				s.publishRenewed(ctx, subID)
			}
		}
		return nil

	default:
		var payment *domain.Payment
		err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
			var err error
			payment, err = s.recordInvoicePayment(ctx, inv, subID)
			return err
		})
		if err != nil {
			return fmt.Errorf("record invoice payment: %w", err)
		}
		if payment != nil {
			s.publishPayment(ctx, domain.EventPaymentCompleted, payment)
		}
		return nil
	}
}

func (s *WebhookService) handleInvoicePaymentFailed(ctx context.Context, inv *stripego.Invoice) error {
	s.log.Warnw("Invoice payment failed",
		"invoiceID", inv.ID,
		"customerID", customerIDOf(inv.Customer),
		"amountDue", stripe.FromMinorUnits(inv.AmountDue),
	)
	event := domain.PaymentEvent{
		Type:            domain.EventPaymentFailed,
		PaymentIntentID: intentIDOf(inv.PaymentIntent),
		InvoiceID:       inv.ID,
		Amount:          stripe.FromMinorUnits(inv.AmountDue),
		Currency:        string(inv.Currency),
		Status:          domain.PaymentStatusFailed,
		Timestamp:       s.now(),
	}
	s.bg.Go(ctx, "publish_payment_event", func(ctx context.Context) error {
		return s.publisher.PublishPaymentEvent(ctx, event)
	})
	return nil
}

func (s *WebhookService) handleInvoiceUpcoming(ctx context.Context, inv *stripego.Invoice) error {
	subscriber, err := s.subscribers.GetByStripeCustomerID(ctx, customerIDOf(inv.Customer))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	email := inv.CustomerEmail
	if email == "" {
		email = subscriber.Email
	}
	due := stripe.UnixTime(inv.NextPaymentAttempt)
	if due == nil {
		due = stripe.UnixTime(inv.DueDate)
	}
	subject, body := notify.RenewalReminderEmail(stripe.FromMinorUnits(inv.AmountDue), string(inv.Currency), due)
	s.sendEmail(ctx, email, subject, body)
	return nil
}

// revoke переводит оплаченные платежи и подписки Stripe-подписки в REFUNDED.
func (s *WebhookService) revoke(ctx context.Context, stripeSubscriptionID string, userID *uuid.UUID) error {
	if _, err := s.payments.UpdateStatusBySubscription(ctx, stripeSubscriptionID, domain.PaymentStatusCompleted, domain.PaymentStatusRefunded); err != nil {
		return err
	}
	completed, refunded, now := domain.PaymentStatusCompleted, domain.PaymentStatusRefunded, s.now()
	_, err := s.subscriptions.UpdateByStripeID(ctx, stripeSubscriptionID, repository.SubscriptionUpdate{
		OnlyStatus: &completed,
		UserID:     userID,
		Status:     &refunded,
		EndDate:    &now,
	})
	return err
}

// refund возвращает деньги за последний платеж. Ошибка только логируется.
func (s *WebhookService) refund(ctx context.Context, payment *domain.Payment) {
	if payment == nil || payment.PaymentIntentID == nil {
		return
	}
	refundID, err := s.gateway.RefundPaymentIntent(ctx, *payment.PaymentIntentID)
	if err != nil {
		s.log.Errorw("Refund failed", "error", err, "paymentIntentID", *payment.PaymentIntentID)
		return
	}
	s.log.Infow("Refund created", "refundID", refundID, "paymentIntentID", *payment.PaymentIntentID)
}

func (s *WebhookService) lastCompletedPayment(ctx context.Context, stripeSubscriptionID string) (*domain.Payment, error) {
	completed := domain.PaymentStatusCompleted
	p, err := s.payments.FindLastBySubscription(ctx, stripeSubscriptionID, &completed)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// recordInvoicePayment создает платеж по счету, если счет еще не записан.
func (s *WebhookService) recordInvoicePayment(ctx context.Context, inv *stripego.Invoice, stripeSubscriptionID string) (*domain.Payment, error) {
	_, err := s.payments.GetByInvoiceID(ctx, inv.ID)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	local, err := s.subscriptions.GetByStripeSubscriptionID(ctx, stripeSubscriptionID)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.Warnw("Paid invoice for unknown subscription", "invoiceID", inv.ID, "stripeSubscriptionID", stripeSubscriptionID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	now := s.now()
	paidAt := now
	if inv.StatusTransitions != nil {
		if t := stripe.UnixTime(inv.StatusTransitions.PaidAt); t != nil {
			paidAt = *t
		}
	}
	payment := &domain.Payment{
		ID:                   uuid.New(),
		UserID:               local.UserID,
		Amount:               stripe.FromMinorUnits(inv.AmountPaid),
		Currency:             string(inv.Currency),
		PaymentIntentID:      domain.StrPtr(intentIDOf(inv.PaymentIntent)),
		InvoiceID:            &inv.ID,
		StripeSubscriptionID: &stripeSubscriptionID,
		StripeCustomerID:     domain.StrPtr(customerIDOf(inv.Customer)),
		Status:               domain.PaymentStatusCompleted,
		PaidAt:               &paidAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, nil
		}
		return nil, err
	}
	return payment, nil
}

// periodEnd берет конец периода из подписки Stripe, иначе из строки счета.
func (s *WebhookService) periodEnd(ctx context.Context, stripeSubscriptionID string, inv *stripego.Invoice) time.Time {
	sub, err := s.gateway.GetSubscription(ctx, stripeSubscriptionID)
	if err == nil && !sub.CurrentPeriodEnd.IsZero() {
		return sub.CurrentPeriodEnd
	}
	if err != nil {
		s.log.Warnw("Failed to fetch stripe subscription, using invoice period", "error", err, "stripeSubscriptionID", stripeSubscriptionID)
	}
	if inv.Lines != nil && len(inv.Lines.Data) > 0 && inv.Lines.Data[0].Period != nil {
		if t := stripe.UnixTime(inv.Lines.Data[0].Period.End); t != nil {
			return *t
		}
	}
	return time.Time{}
}

func (s *WebhookService) planForPrice(ctx context.Context, priceID string) (*domain.PlanType, error) {
	if priceID == "" {
		return nil, nil
	}
	offer, err := s.offers.GetByStripePriceID(ctx, priceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &offer.PlanType, nil
}

// resolveSubscriber ищет пользователя по метаданным, затем по клиенту Stripe.
func (s *WebhookService) resolveSubscriber(ctx context.Context, userRef string, customer *stripego.Customer) (*domain.Subscriber, error) {
	if id, err := uuid.Parse(userRef); err == nil {
		subscriber, err := s.subscribers.GetByID(ctx, id)
		if !errors.Is(err, repository.ErrNotFound) {
			return subscriber, err
		}
	}
	if customerID := customerIDOf(customer); customerID != "" {
		return s.subscribers.GetByStripeCustomerID(ctx, customerID)
	}
	return nil, repository.ErrNotFound
}

func (s *WebhookService) sendEmail(ctx context.Context, to, subject, body string) {
	if to == "" {
		return
	}
	s.bg.Go(ctx, "send_email", func(ctx context.Context) error {
		return s.notifier.Send(ctx, subject, to, body)
	})
}

func (s *WebhookService) publishPayment(ctx context.Context, eventType string, p *domain.Payment) {
	event := paymentEvent(eventType, p, s.now())
	s.bg.Go(ctx, "publish_payment_event", func(ctx context.Context) error {
		return s.publisher.PublishPaymentEvent(ctx, event)
	})
}

func (s *WebhookService) publishRenewed(ctx context.Context, stripeSubscriptionID string) {
	sub, err := s.subscriptions.GetByStripeSubscriptionID(ctx, stripeSubscriptionID)
	if err != nil {
		return
	}
	event := subscriptionEvent(domain.EventSubscriptionRenewed, sub, s.now())
	s.bg.Go(ctx, "publish_subscription_event", func(ctx context.Context) error {
		return s.publisher.PublishSubscriptionEvent(ctx, event)
	})
}

func (s *WebhookService) publishRefunded(ctx context.Context, stripeSubscriptionID string, refunded *domain.Payment) {
	if sub, err := s.subscriptions.GetByStripeSubscriptionID(ctx, stripeSubscriptionID); err == nil {
		event := subscriptionEvent(domain.EventSubscriptionRefunded, sub, s.now())
		s.bg.Go(ctx, "publish_subscription_event", func(ctx context.Context) error {
			return s.publisher.PublishSubscriptionEvent(ctx, event)
		})
	}
	if refunded != nil {
		p := *refunded
		p.Status = domain.PaymentStatusRefunded
		s.publishPayment(ctx, domain.EventPaymentRefunded, &p)
	}
}

// tracksSubscription - флаги пользователя относятся к этой подписке Stripe или еще не заполнены.
func tracksSubscription(subscriber *domain.Subscriber, stripeSubscriptionID string) bool {
	current := domain.StrVal(subscriber.StripeSubscriptionID)
	return current == "" || current == stripeSubscriptionID
}

func decode[T any](event stripego.Event) (*T, error) {
	var obj T
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", event.Type, err)
	}
	return &obj, nil
}

func customerIDOf(c *stripego.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func intentIDOf(pi *stripego.PaymentIntent) string {
	if pi == nil {
		return ""
	}
	return pi.ID
}

func firstPriceID(sub *stripego.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 || sub.Items.Data[0].Price == nil {
		return ""
	}
	return sub.Items.Data[0].Price.ID
}
