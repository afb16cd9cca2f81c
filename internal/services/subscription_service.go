package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/config"
	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/internal/metrics"
	"github.com/Dhoini/fitness-billing-service/internal/notify"
	"github.com/Dhoini/fitness-billing-service/internal/repository"
	"github.com/Dhoini/fitness-billing-service/internal/stripe"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/google/uuid"
	stripego "github.com/stripe/stripe-go/v78"
)

// Операции для метрик
const (
	opSubscribe       = "subscribe"
	opRenew           = "renew"
	opCancelDeferred  = "cancel_deferred"
	opCancelImmediate = "cancel_immediate"
	opSetupCheckout   = "setup_checkout"
)

// SubscriptionService управляет жизненным циклом подписок пользователя.
type SubscriptionService struct {
	subscribers   repository.SubscriberRepository
	offers        repository.OfferRepository
	subscriptions repository.SubscriptionRepository
	payments      repository.PaymentRepository
	tx            repository.Transactor
	gateway       stripe.Gateway
	notifier      Notifier
	publisher     EventPublisher
	metrics       metrics.BillingMetrics
	frontendURL   string
	log           *logger.Logger
	bg            *background
	now           func() time.Time
}

// NewSubscriptionService конструктор сервиса. publisher может быть nil, если Kafka выключена.
func NewSubscriptionService(
	cfg *config.Config,
	repos Repositories,
	gateway stripe.Gateway,
	notifier Notifier,
	publisher EventPublisher,
	m metrics.BillingMetrics,
	log *logger.Logger,
) *SubscriptionService {
	if publisher == nil {
		log.Warnw("Event publisher is nil, event publishing will be skipped")
		publisher = NopPublisher()
	}
	return &SubscriptionService{
		subscribers:   repos.Subscribers,
		offers:        repos.Offers,
		subscriptions: repos.Subscriptions,
		payments:      repos.Payments,
		tx:            repos.Tx,
		gateway:       gateway,
		notifier:      notifier,
		publisher:     publisher,
		metrics:       m,
		frontendURL:   strings.TrimRight(cfg.App.FrontendURL, "/"),
		log:           log,
		bg:            newBackground(log),
		now:           time.Now,
	}
}

// Wait дожидается фоновых задач (публикация событий, письма).
func (s *SubscriptionService) Wait() {
	s.bg.Wait()
}

// PendingTasks - фоновые задачи, еще не завершенные.
func (s *SubscriptionService) PendingTasks() int64 {
	return s.bg.Pending()
}

// Subscribe оформляет подписку: списание в Stripe, затем одна локальная транзакция.
func (s *SubscriptionService) Subscribe(ctx context.Context, subscriberID uuid.UUID, in domain.SubscribeInput) (result *domain.SubscriptionResult, err error) {
	defer func() { s.metrics.IncSubscriptionOperation(opSubscribe, err) }()

	subscriber, err := s.subscribers.GetByID(ctx, subscriberID)
	if err != nil {
		return nil, notFoundAs(err, "user not found")
	}
	if err := s.ensureNoActiveSubscription(ctx, subscriberID); err != nil {
		return nil, err
	}
	offer, err := s.purchasableOffer(ctx, subscriber, in.OfferID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, subscriber)
	if err != nil {
		return nil, err
	}

	stripeSub, err := s.charge(ctx, subscriber, customerID, offer, in.PaymentMethodID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	start, end := subscriptionPeriod(stripeSub, offer, now)
	sub := &domain.UserSubscription{
		ID:                   uuid.New(),
		UserID:               subscriberID,
		OfferID:              offer.ID,
		StartDate:            start,
		EndDate:              end,
		StripeSubscriptionID: &stripeSub.ID,
		PaymentStatus:        domain.PaymentStatusCompleted,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	payment := newSubscriptionPayment(subscriberID, customerID, offer, stripeSub, now)

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.lockAndRecheck(ctx, subscriberID, uuid.Nil, now); err != nil {
			return err
		}
		if err := s.subscriptions.Create(ctx, sub); err != nil {
			return conflictAs(err, "user already has an active subscription")
		}
		if err := s.payments.Create(ctx, payment); err != nil {
			return conflictAs(err, "payment already recorded")
		}
		return s.subscribers.UpdateSubscriptionFlags(ctx, subscriberID, activeFlags(offer, sub))
	})
	if err != nil {
		s.log.Errorw("Failed to persist subscription", "error", err, "userID", subscriberID, "stripeSubscriptionID", stripeSub.ID)
		s.compensate(ctx, stripeSub)
		return nil, err
	}

	s.log.Infow("Subscription created", "subscriptionID", sub.ID, "userID", subscriberID, "offerID", offer.ID, "stripeSubscriptionID", stripeSub.ID)
	s.afterCharge(ctx, domain.EventSubscriptionCreated, subscriber, offer, sub, payment, stripeSub)

	return &domain.SubscriptionResult{
		Subscription:         sub,
		StripeSubscriptionID: stripeSub.ID,
		PaymentIntentID:      stripeSub.PaymentIntentID,
		InvoiceURL:           stripeSub.HostedInvoiceURL,
	}, nil
}

// Renew продлевает истекшую подписку новой подпиской Stripe, обновляя строку на месте.
func (s *SubscriptionService) Renew(ctx context.Context, subscriberID, subscriptionID uuid.UUID, in domain.RenewInput) (result *domain.SubscriptionResult, err error) {
	defer func() { s.metrics.IncSubscriptionOperation(opRenew, err) }()

	sub, err := s.ownedSubscription(ctx, subscriberID, subscriptionID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if sub.EndDate.After(now) {
		return nil, domain.BadRequest("subscription is still active until %s", sub.EndDate.Format(time.RFC3339))
	}

	subscriber, err := s.subscribers.GetByID(ctx, subscriberID)
	if err != nil {
		return nil, notFoundAs(err, "user not found")
	}
	customerID := subscriber.CustomerID()
	if customerID == "" {
		return nil, domain.BadRequest("user has no stripe customer, subscribe first")
	}
	offer, err := s.purchasableOffer(ctx, subscriber, in.OfferID)
	if err != nil {
		return nil, err
	}

	stripeSub, err := s.charge(ctx, subscriber, customerID, offer, in.PaymentMethodID)
	if err != nil {
		return nil, err
	}

	now = s.now()
	start, end := subscriptionPeriod(stripeSub, offer, now)
	sub.OfferID = offer.ID
	sub.StartDate = start
	sub.EndDate = end
	sub.StripeSubscriptionID = &stripeSub.ID
	sub.PaymentStatus = domain.PaymentStatusCompleted
	sub.UpdatedAt = now
	payment := newSubscriptionPayment(subscriberID, customerID, offer, stripeSub, now)

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.lockAndRecheck(ctx, subscriberID, sub.ID, now); err != nil {
			return err
		}
		if err := s.subscriptions.Update(ctx, sub); err != nil {
			return conflictAs(err, "subscription already renewed")
		}
		if err := s.payments.Create(ctx, payment); err != nil {
			return conflictAs(err, "payment already recorded")
		}
		return s.subscribers.UpdateSubscriptionFlags(ctx, subscriberID, activeFlags(offer, sub))
	})
	if err != nil {
		s.log.Errorw("Failed to persist renewal", "error", err, "subscriptionID", sub.ID, "stripeSubscriptionID", stripeSub.ID)
		s.compensate(ctx, stripeSub)
		return nil, err
	}

	s.log.Infow("Subscription renewed", "subscriptionID", sub.ID, "userID", subscriberID, "endDate", sub.EndDate)
	s.afterCharge(ctx, domain.EventSubscriptionRenewed, subscriber, offer, sub, payment, stripeSub)

	return &domain.SubscriptionResult{
		Subscription:         sub,
		StripeSubscriptionID: stripeSub.ID,
		PaymentIntentID:      stripeSub.PaymentIntentID,
		InvoiceURL:           stripeSub.HostedInvoiceURL,
	}, nil
}

// CancelDeferred отменяет автопродление: доступ сохраняется до конца оплаченного периода.
func (s *SubscriptionService) CancelDeferred(ctx context.Context, subscriberID, subscriptionID uuid.UUID) (result *domain.UserSubscription, err error) {
	defer func() { s.metrics.IncSubscriptionOperation(opCancelDeferred, err) }()

	sub, err := s.ownedSubscription(ctx, subscriberID, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.PaymentStatus != domain.PaymentStatusCompleted {
		return nil, domain.NotFound("active subscription not found")
	}
	if sub.ExternalID() == "" {
		return nil, domain.BadRequest("subscription is not linked to stripe")
	}

	if err := s.gateway.CancelSubscriptionAtPeriodEnd(ctx, sub.ExternalID()); err != nil {
		return nil, fmt.Errorf("cancel stripe subscription at period end: %w", err)
	}

	sub.PaymentStatus = domain.PaymentStatusCancelled
	sub.UpdatedAt = s.now()
	if err := s.subscriptions.Update(ctx, sub); err != nil {
		return nil, notFoundAs(err, "subscription not found")
	}

	s.log.Infow("Subscription set to cancel at period end", "subscriptionID", sub.ID, "endDate", sub.EndDate)
	s.publishSubscription(ctx, domain.EventSubscriptionCancelled, sub)
	return sub, nil
}

// CancelImmediate прекращает подписку сейчас. Владелец или администратор.
func (s *SubscriptionService) CancelImmediate(ctx context.Context, actor domain.Actor, subscriptionID uuid.UUID) (result *domain.UserSubscription, err error) {
	defer func() { s.metrics.IncSubscriptionOperation(opCancelImmediate, err) }()

	sub, err := s.subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, notFoundAs(err, "subscription not found")
	}
	if sub.UserID != actor.UserID && !actor.Role.IsAdmin() {
		return nil, domain.Forbidden("cannot cancel another user's subscription")
	}
	if sub.PaymentStatus != domain.PaymentStatusCompleted {
		return nil, domain.NotFound("active subscription not found")
	}

	externalID := sub.ExternalID()
	if externalID != "" {
		// локальная отмена выполняется даже при ошибке Stripe
		if err := s.gateway.CancelSubscriptionNow(ctx, externalID); err != nil {
			s.log.Errorw("Failed to cancel stripe subscription, cancelling locally", "error", err, "stripeSubscriptionID", externalID)
		}
	}

	now := s.now()
	sub.EndDate = now
	sub.PaymentStatus = domain.PaymentStatusCancelled
	sub.UpdatedAt = now

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.subscriptions.Update(ctx, sub); err != nil {
			return err
		}
		if externalID != "" {
			if _, err := s.payments.UpdateStatusBySubscription(ctx, externalID, domain.PaymentStatusCompleted, domain.PaymentStatusCancelled); err != nil {
				return err
			}
		}
		remaining, err := s.subscriptions.CountActiveByUser(ctx, sub.UserID, sub.ID, now)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		subscriber, err := s.subscribers.GetByID(ctx, sub.UserID)
		if err != nil {
			return err
		}
		return s.subscribers.UpdateSubscriptionFlags(ctx, sub.UserID, domain.SubscriptionFlags{
			IsSubscribed:         false,
			SubscriptionEnd:      nil,
			SubscriptionPlan:     subscriber.SubscriptionPlan,
			StripeSubscriptionID: subscriber.StripeSubscriptionID,
		})
	})
	if err != nil {
		s.log.Errorw("Failed to cancel subscription locally", "error", err, "subscriptionID", sub.ID)
		return nil, notFoundAs(err, "subscription not found")
	}

	s.log.Infow("Subscription cancelled immediately", "subscriptionID", sub.ID, "actorID", actor.UserID)
	s.publishSubscription(ctx, domain.EventSubscriptionCancelled, sub)
	return sub, nil
}

// CreateSetupCheckout создает setup-сессию Checkout для сохранения карты.
func (s *SubscriptionService) CreateSetupCheckout(ctx context.Context, subscriberID uuid.UUID, in domain.CheckoutSetupInput) (result *domain.CheckoutSession, err error) {
	defer func() { s.metrics.IncSubscriptionOperation(opSetupCheckout, err) }()

	subscriber, err := s.subscribers.GetByID(ctx, subscriberID)
	if err != nil {
		return nil, notFoundAs(err, "user not found")
	}
	if err := s.ensureNoActiveSubscription(ctx, subscriberID); err != nil {
		return nil, err
	}
	offer, err := s.purchasableOffer(ctx, subscriber, in.OfferID)
	if err != nil {
		return nil, err
	}
	customerID, err := s.ensureCustomer(ctx, subscriber)
	if err != nil {
		return nil, err
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, stripe.CheckoutInput{
		Mode:       stripe.CheckoutModeSetup,
		CustomerID: customerID,
		Currency:   offer.Currency,
		SuccessURL: s.frontendURL + "/subscriptions/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.frontendURL + "/subscriptions/checkout/cancel",
		Metadata: map[string]string{
			stripe.MetadataUserIDKey:  subscriberID.String(),
			stripe.MetadataOfferIDKey: offer.ID.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	s.log.Infow("Setup checkout session created", "userID", subscriberID, "offerID", offer.ID, "sessionID", session.ID)
	return &domain.CheckoutSession{SessionID: session.ID, SessionURL: session.URL}, nil
}

// GetMySubscriptionPlan возвращает денормализованные флаги и сводку текущего предложения.
func (s *SubscriptionService) GetMySubscriptionPlan(ctx context.Context, subscriberID uuid.UUID) (*domain.SubscriptionPlanView, error) {
	subscriber, err := s.subscribers.GetByID(ctx, subscriberID)
	if err != nil {
		return nil, notFoundAs(err, "user not found")
	}
	view := &domain.SubscriptionPlanView{
		SubscriptionPlan:     subscriber.SubscriptionPlan,
		IsSubscribed:         subscriber.IsSubscribed,
		SubscriptionEnd:      subscriber.SubscriptionEnd,
		StripeSubscriptionID: subscriber.StripeSubscriptionID,
	}

	active, err := s.subscriptions.FindActiveByUser(ctx, subscriberID, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active subscription: %w", err)
	}
	view.SubscriptionStart = &active.StartDate

	offer, err := s.offers.GetByID(ctx, active.OfferID)
	if err != nil {
		s.log.Warnw("Offer of active subscription not found", "error", err, "offerID", active.OfferID)
		return view, nil
	}
	view.Duration = &offer.Duration
	view.Price = &offer.Price
	view.Description = &offer.Description
	return view, nil
}

// ListSubscriptions возвращает подписки пользователя.
func (s *SubscriptionService) ListSubscriptions(ctx context.Context, subscriberID uuid.UUID) ([]domain.UserSubscription, error) {
	subs, err := s.subscriptions.ListByUser(ctx, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	if subs == nil {
		subs = []domain.UserSubscription{}
	}
	return subs, nil
}

// GetSubscription возвращает подписку, если она принадлежит пользователю.
func (s *SubscriptionService) GetSubscription(ctx context.Context, subscriberID, subscriptionID uuid.UUID) (*domain.UserSubscription, error) {
	return s.ownedSubscription(ctx, subscriberID, subscriptionID)
}

func (s *SubscriptionService) ownedSubscription(ctx context.Context, subscriberID, subscriptionID uuid.UUID) (*domain.UserSubscription, error) {
	sub, err := s.subscriptions.GetByID(ctx, subscriptionID)
	if err != nil {
		return nil, notFoundAs(err, "subscription not found")
	}
	// чужая подписка неотличима от отсутствующей
	if sub.UserID != subscriberID {
		return nil, domain.NotFound("subscription not found")
	}
	return sub, nil
}

func (s *SubscriptionService) ensureNoActiveSubscription(ctx context.Context, subscriberID uuid.UUID) error {
	_, err := s.subscriptions.FindActiveByUser(ctx, subscriberID, s.now())
	switch {
	case err == nil:
		return domain.Conflict("user already has an active subscription")
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return fmt.Errorf("find active subscription: %w", err)
	}
}

// lockAndRecheck сериализует конкурентные оформления одного пользователя.
func (s *SubscriptionService) lockAndRecheck(ctx context.Context, subscriberID, excludeID uuid.UUID, now time.Time) error {
	if err := s.subscribers.LockForUpdate(ctx, subscriberID); err != nil {
		return notFoundAs(err, "user not found")
	}
	active, err := s.subscriptions.CountActiveByUser(ctx, subscriberID, excludeID, now)
	if err != nil {
		return err
	}
	if active > 0 {
		return domain.Conflict("user already has an active subscription")
	}
	return nil
}

func (s *SubscriptionService) purchasableOffer(ctx context.Context, subscriber *domain.Subscriber, offerID uuid.UUID) (*domain.SubscriptionOffer, error) {
	offer, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, notFoundAs(err, "subscription offer not found")
	}
	if offer.PriceID() == "" {
		return nil, domain.NotFound("subscription offer has no stripe price")
	}
	if !offer.IsActive {
		return nil, domain.BadRequest("subscription offer is not active")
	}
	if offer.CreatorID == subscriber.ID {
		return nil, domain.BadRequest("cannot subscribe to your own offer")
	}
	return offer, nil
}

func (s *SubscriptionService) ensureCustomer(ctx context.Context, subscriber *domain.Subscriber) (string, error) {
	return ensureStripeCustomer(ctx, s.gateway, s.subscribers, s.log, subscriber)
}

// ensureStripeCustomer возвращает Stripe customer пользователя, создавая его при первой оплате.
func ensureStripeCustomer(ctx context.Context, gateway stripe.Gateway, subscribers repository.SubscriberRepository, log *logger.Logger, subscriber *domain.Subscriber) (string, error) {
	if id := subscriber.CustomerID(); id != "" {
		return id, nil
	}
	customerID, err := gateway.CreateCustomer(ctx, stripe.CustomerInput{
		UserID: subscriber.ID.String(),
		Email:  subscriber.Email,
		Name:   subscriber.FullName,
	})
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	if err := subscribers.SetStripeCustomerID(ctx, subscriber.ID, customerID); err != nil {
		return "", fmt.Errorf("save stripe customer: %w", err)
	}
	subscriber.StripeCustomerID = &customerID
	log.Infow("Stripe customer created", "userID", subscriber.ID, "customerID", customerID)
	return customerID, nil
}

// charge выполняет шаги Stripe: карта, проверка дубликата, создание подписки, проверка оплаты.
func (s *SubscriptionService) charge(ctx context.Context, subscriber *domain.Subscriber, customerID string, offer *domain.SubscriptionOffer, paymentMethodID string) (*stripe.Subscription, error) {
	if err := s.gateway.AttachPaymentMethod(ctx, paymentMethodID, customerID); err != nil {
		return nil, fmt.Errorf("attach payment method: %w", err)
	}
	if err := s.gateway.UpdateCustomerDefaultPaymentMethod(ctx, customerID, paymentMethodID); err != nil {
		return nil, fmt.Errorf("set default payment method: %w", err)
	}

	exists, err := s.gateway.HasActiveSubscriptionForPrice(ctx, customerID, offer.PriceID())
	if err != nil {
		return nil, fmt.Errorf("check stripe subscriptions: %w", err)
	}
	if exists {
		return nil, domain.Conflict("an active stripe subscription for this offer already exists")
	}

	stripeSub, err := s.gateway.CreateSubscription(ctx, stripe.SubscriptionInput{
		CustomerID:      customerID,
		PriceID:         offer.PriceID(),
		PaymentMethodID: paymentMethodID,
		IdempotencyKey:  uuid.NewString(),
		Metadata: map[string]string{
			stripe.MetadataUserIDKey:  subscriber.ID.String(),
			stripe.MetadataOfferIDKey: offer.ID.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create stripe subscription: %w", err)
	}

	if stripeSub.PaymentFailed() {
		s.log.Warnw("Subscription payment failed",
			"userID", subscriber.ID,
			"stripeSubscriptionID", stripeSub.ID,
			"status", stripeSub.Status,
			"paymentIntentStatus", stripeSub.PaymentIntentStatus,
		)
		return nil, &domain.AppError{
			Kind:    domain.KindUpstream,
			Message: fmt.Sprintf("payment failed, subscription status: %s", stripeSub.Status),
			Err:     domain.ErrPaymentFailed,
		}
	}
	return stripeSub, nil
}

// compensate отменяет подписку Stripe, для которой не удалось сохранить локальную запись,
// и возвращает уже списанный первый платеж: локального Payment нет, вебхук удаления его не вернет.
func (s *SubscriptionService) compensate(ctx context.Context, stripeSub *stripe.Subscription) {
	ctx = context.WithoutCancel(ctx)
	if err := s.gateway.CancelSubscriptionNow(ctx, stripeSub.ID); err != nil {
		s.log.Errorw("Failed to cancel orphaned stripe subscription", "error", err, "stripeSubscriptionID", stripeSub.ID)
	}
	if stripeSub.PaymentIntentID == "" || stripeSub.PaymentIntentStatus != stripego.PaymentIntentStatusSucceeded {
		return
	}
	// ключ идемпотентности refund-<intent> задает шлюз
	refundID, err := s.gateway.RefundPaymentIntent(ctx, stripeSub.PaymentIntentID)
	if err != nil {
		s.log.Errorw("Failed to refund orphaned subscription payment", "error", err,
			"stripeSubscriptionID", stripeSub.ID, "paymentIntentID", stripeSub.PaymentIntentID)
		return
	}
	s.log.Infow("Orphaned subscription payment refunded",
		"stripeSubscriptionID", stripeSub.ID, "paymentIntentID", stripeSub.PaymentIntentID, "refundID", refundID)
}

// afterCharge - действия после коммита. Их ошибки только логируются.
func (s *SubscriptionService) afterCharge(ctx context.Context, eventType string, subscriber *domain.Subscriber, offer *domain.SubscriptionOffer, sub *domain.UserSubscription, payment *domain.Payment, stripeSub *stripe.Subscription) {
	if stripeSub.Status == stripego.SubscriptionStatusActive && stripeSub.LatestInvoiceID != "" {
		email := subscriber.Email
		s.bg.Go(ctx, "send_invoice", func(ctx context.Context) error {
			err := s.gateway.SendInvoice(ctx, stripeSub.LatestInvoiceID)
			if err == nil {
				return nil
			}
			s.log.Warnw("Failed to send stripe invoice, sending fallback email", "error", err, "invoiceID", stripeSub.LatestInvoiceID)
			subject, body := notify.InvoiceFallbackEmail(offer.Title, payment.Amount, payment.Currency, stripeSub.HostedInvoiceURL)
			return s.notifier.Send(ctx, subject, email, body)
		})
	}

	s.publishSubscription(ctx, eventType, sub)
	event := paymentEvent(domain.EventPaymentCompleted, payment, s.now())
	s.bg.Go(ctx, "publish_payment_event", func(ctx context.Context) error {
		return s.publisher.PublishPaymentEvent(ctx, event)
	})
}

func (s *SubscriptionService) publishSubscription(ctx context.Context, eventType string, sub *domain.UserSubscription) {
	event := subscriptionEvent(eventType, sub, s.now())
	s.bg.Go(ctx, "publish_subscription_event", func(ctx context.Context) error {
		return s.publisher.PublishSubscriptionEvent(ctx, event)
	})
}

// subscriptionPeriod берет период из Stripe, иначе считает от now по длительности предложения.
func subscriptionPeriod(stripeSub *stripe.Subscription, offer *domain.SubscriptionOffer, now time.Time) (time.Time, time.Time) {
	start := stripeSub.CurrentPeriodStart
	if start.IsZero() {
		start = now
	}
	end := stripeSub.CurrentPeriodEnd
	if end.IsZero() {
		end = offer.Duration.PeriodEnd(start)
	}
	return start, end
}

func newSubscriptionPayment(userID uuid.UUID, customerID string, offer *domain.SubscriptionOffer, stripeSub *stripe.Subscription, now time.Time) *domain.Payment {
	amount := offer.Price
	if stripeSub.AmountPaid > 0 {
		amount = stripe.FromMinorUnits(stripeSub.AmountPaid)
	}
	currency := offer.Currency
	if stripeSub.Currency != "" {
		currency = stripeSub.Currency
	}
	return &domain.Payment{
		ID:                   uuid.New(),
		UserID:               userID,
		Amount:               amount,
		Currency:             currency,
		PaymentIntentID:      domain.StrPtr(stripeSub.PaymentIntentID),
		InvoiceID:            domain.StrPtr(stripeSub.LatestInvoiceID),
		StripeSubscriptionID: domain.StrPtr(stripeSub.ID),
		StripeCustomerID:     domain.StrPtr(customerID),
		Status:               domain.PaymentStatusCompleted,
		PaidAt:               &now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}

func activeFlags(offer *domain.SubscriptionOffer, sub *domain.UserSubscription) domain.SubscriptionFlags {
	plan := offer.PlanType
	end := sub.EndDate
	return domain.SubscriptionFlags{
		IsSubscribed:         true,
		SubscriptionEnd:      &end,
		SubscriptionPlan:     &plan,
		StripeSubscriptionID: sub.StripeSubscriptionID,
	}
}
