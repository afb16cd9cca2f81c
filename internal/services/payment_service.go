package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/config"
	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/internal/repository"
	"github.com/Dhoini/fitness-billing-service/internal/stripe"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/google/uuid"
	stripego "github.com/stripe/stripe-go/v78"
)

// PaymentService - история платежей и разовые покупки через Stripe Checkout.
type PaymentService struct {
	payments    repository.PaymentRepository
	subscribers repository.SubscriberRepository
	offers      repository.OfferRepository
	gateway     stripe.Gateway
	frontendURL string
	log         *logger.Logger
	now         func() time.Time
}

// NewPaymentService конструктор сервиса
func NewPaymentService(cfg *config.Config, repos Repositories, gateway stripe.Gateway, log *logger.Logger) *PaymentService {
	return &PaymentService{
		payments:    repos.Payments,
		subscribers: repos.Subscribers,
		offers:      repos.Offers,
		gateway:     gateway,
		frontendURL: strings.TrimRight(cfg.App.FrontendURL, "/"),
		log:         log,
		now:         time.Now,
	}
}

// ListPayments возвращает историю платежей пользователя, новые первыми.
func (s *PaymentService) ListPayments(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	payments, err := s.payments.ListByUser(ctx, userID)
	if err != nil {
		s.log.Errorw("Failed to list payments", "error", err, "userID", userID)
		return nil, fmt.Errorf("list payments: %w", err)
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	return payments, nil
}

// CreatePaymentCheckout открывает payment-сессию Checkout на разовую оплату предложения.
// Платеж записывает вебхук checkout.session.completed; подписка при этом не создается.
func (s *PaymentService) CreatePaymentCheckout(ctx context.Context, userID uuid.UUID, in domain.PaymentCheckoutInput) (*domain.CheckoutSession, error) {
	subscriber, err := s.subscribers.GetByID(ctx, userID)
	if err != nil {
		return nil, notFoundAs(err, "user not found")
	}
	offer, err := s.offers.GetByID(ctx, in.OfferID)
	if err != nil {
		return nil, notFoundAs(err, "subscription offer not found")
	}
	if !offer.IsActive {
		return nil, domain.BadRequest("subscription offer is not active")
	}
	if offer.CreatorID == subscriber.ID {
		return nil, domain.BadRequest("cannot buy your own offer")
	}
	productID := domain.StrVal(offer.StripeProductID)
	if productID == "" {
		return nil, domain.NotFound("subscription offer has no stripe product")
	}

	customerID, err := ensureStripeCustomer(ctx, s.gateway, s.subscribers, s.log, subscriber)
	if err != nil {
		return nil, err
	}
	priceID, err := s.gateway.CreateOneTimePrice(ctx, stripe.PriceInput{
		ProductID:  productID,
		UnitAmount: stripe.ToMinorUnits(offer.Price),
		Currency:   offer.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("create one-time price: %w", err)
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, stripe.CheckoutInput{
		Mode:          stripe.CheckoutModePayment,
		CustomerID:    customerID,
		PriceID:       priceID,
		Currency:      offer.Currency,
		SuccessURL:    s.frontendURL + "/payments/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.frontendURL + "/payments/checkout/cancel",
		ManualCapture: in.ManualCapture,
		Metadata: map[string]string{
			stripe.MetadataUserIDKey:  userID.String(),
			stripe.MetadataOfferIDKey: offer.ID.String(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	s.log.Infow("Payment checkout session created",
		"userID", userID,
		"offerID", offer.ID,
		"sessionID", session.ID,
		"manualCapture", in.ManualCapture,
	)
	return &domain.CheckoutSession{SessionID: session.ID, SessionURL: session.URL}, nil
}

// CapturePayment списывает авторизованный платеж. Доступно владельцу платежа и администраторам.
func (s *PaymentService) CapturePayment(ctx context.Context, actor domain.Actor, in domain.CapturePaymentInput) (*domain.Payment, error) {
	payment, err := s.payments.GetByPaymentIntentID(ctx, in.PaymentIntentID)
	if err != nil {
		return nil, notFoundAs(err, "payment not found")
	}
	if payment.UserID != actor.UserID && !actor.Role.IsAdmin() {
		return nil, domain.Forbidden("payment belongs to another user")
	}
	if payment.Status != domain.PaymentStatusRequiresCapture {
		return nil, domain.Conflict("payment is not awaiting capture, status: %s", payment.Status)
	}

	status, err := s.gateway.CapturePaymentIntent(ctx, in.PaymentIntentID)
	if err != nil {
		s.log.Errorw("Failed to capture payment", "error", err, "paymentIntentID", in.PaymentIntentID)
		return nil, &domain.AppError{Kind: domain.KindConflict, Message: "payment capture failed", Err: err}
	}
	if status != stripego.PaymentIntentStatusSucceeded {
		// остальное догонит payment_intent.succeeded
		s.log.Warnw("Payment capture not settled yet", "paymentIntentID", in.PaymentIntentID, "status", status)
		return payment, nil
	}

	now := s.now()
	if _, err := s.payments.UpdateStatusByIntent(ctx, in.PaymentIntentID, domain.PaymentStatusCompleted, nil, &now); err != nil {
		return nil, fmt.Errorf("update captured payment: %w", err)
	}
	payment.Status = domain.PaymentStatusCompleted
	payment.PaidAt = &now
	payment.UpdatedAt = now

	s.log.Infow("Payment captured", "paymentIntentID", in.PaymentIntentID, "userID", payment.UserID, "actorID", actor.UserID)
	return payment, nil
}
