package handlers

import (
	"context"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/internal/services"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stripe/stripe-go/v78"
)

type MockWebhookProcessor struct {
	mock.Mock
}

func (m *MockWebhookProcessor) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	args := m.Called(payload, signature)
	return args.Get(0).(stripe.Event), args.Error(1)
}

func (m *MockWebhookProcessor) Process(ctx context.Context, event stripe.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockSubscriptionUseCases struct {
	mock.Mock
}

func (m *MockSubscriptionUseCases) Subscribe(ctx context.Context, subscriberID uuid.UUID, in domain.SubscribeInput) (*domain.SubscriptionResult, error) {
	args := m.Called(ctx, subscriberID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SubscriptionResult), args.Error(1)
}

func (m *MockSubscriptionUseCases) Renew(ctx context.Context, subscriberID, subscriptionID uuid.UUID, in domain.RenewInput) (*domain.SubscriptionResult, error) {
	args := m.Called(ctx, subscriberID, subscriptionID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SubscriptionResult), args.Error(1)
}

func (m *MockSubscriptionUseCases) CancelDeferred(ctx context.Context, subscriberID, subscriptionID uuid.UUID) (*domain.UserSubscription, error) {
	args := m.Called(ctx, subscriberID, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserSubscription), args.Error(1)
}

func (m *MockSubscriptionUseCases) CancelImmediate(ctx context.Context, actor domain.Actor, subscriptionID uuid.UUID) (*domain.UserSubscription, error) {
	args := m.Called(ctx, actor, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserSubscription), args.Error(1)
}

func (m *MockSubscriptionUseCases) CreateSetupCheckout(ctx context.Context, subscriberID uuid.UUID, in domain.CheckoutSetupInput) (*domain.CheckoutSession, error) {
	args := m.Called(ctx, subscriberID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutSession), args.Error(1)
}

func (m *MockSubscriptionUseCases) GetMySubscriptionPlan(ctx context.Context, subscriberID uuid.UUID) (*domain.SubscriptionPlanView, error) {
	args := m.Called(ctx, subscriberID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SubscriptionPlanView), args.Error(1)
}

func (m *MockSubscriptionUseCases) ListSubscriptions(ctx context.Context, subscriberID uuid.UUID) ([]domain.UserSubscription, error) {
	args := m.Called(ctx, subscriberID)
	return args.Get(0).([]domain.UserSubscription), args.Error(1)
}

func (m *MockSubscriptionUseCases) GetSubscription(ctx context.Context, subscriberID, subscriptionID uuid.UUID) (*domain.UserSubscription, error) {
	args := m.Called(ctx, subscriberID, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.UserSubscription), args.Error(1)
}

type MockOfferUseCases struct {
	mock.Mock
}

func (m *MockOfferUseCases) CreateOffer(ctx context.Context, actor domain.Actor, in domain.CreateOfferInput) (*domain.SubscriptionOffer, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SubscriptionOffer), args.Error(1)
}

func (m *MockOfferUseCases) UpdateOffer(ctx context.Context, actor domain.Actor, offerID uuid.UUID, in domain.UpdateOfferInput) (*domain.SubscriptionOffer, error) {
	args := m.Called(ctx, actor, offerID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SubscriptionOffer), args.Error(1)
}

func (m *MockOfferUseCases) GetOffer(ctx context.Context, id uuid.UUID) (*domain.SubscriptionOffer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SubscriptionOffer), args.Error(1)
}

func (m *MockOfferUseCases) ListOffers(ctx context.Context, filter domain.OfferFilter) (*services.OfferPage, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.OfferPage), args.Error(1)
}

type MockPricingUseCases struct {
	mock.Mock
}

func (m *MockPricingUseCases) ListApplicableRules(ctx context.Context, trainerID, offerID uuid.UUID) ([]domain.ApplicableRule, error) {
	args := m.Called(ctx, trainerID, offerID)
	return args.Get(0).([]domain.ApplicableRule), args.Error(1)
}

func (m *MockPricingUseCases) ApplyRule(ctx context.Context, subscriberID, ruleID uuid.UUID, subscriptionID *uuid.UUID) (*domain.PricingRuleUsage, error) {
	args := m.Called(ctx, subscriberID, ruleID, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PricingRuleUsage), args.Error(1)
}

func (m *MockPricingUseCases) CreateRule(ctx context.Context, actor domain.Actor, in domain.CreateRuleInput) (*domain.RuleView, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RuleView), args.Error(1)
}

func (m *MockPricingUseCases) UpdateRule(ctx context.Context, actor domain.Actor, ruleID uuid.UUID, in domain.UpdateRuleInput) (*domain.RuleView, error) {
	args := m.Called(ctx, actor, ruleID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RuleView), args.Error(1)
}

func (m *MockPricingUseCases) DeleteRule(ctx context.Context, actor domain.Actor, ruleID uuid.UUID) error {
	return m.Called(ctx, actor, ruleID).Error(0)
}

func (m *MockPricingUseCases) GetRule(ctx context.Context, ruleID uuid.UUID) (*domain.RuleView, error) {
	args := m.Called(ctx, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RuleView), args.Error(1)
}

func (m *MockPricingUseCases) ListRules(ctx context.Context) ([]domain.RuleView, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.RuleView), args.Error(1)
}

type MockOnboardingStarter struct {
	mock.Mock
}

func (m *MockOnboardingStarter) StartOnboarding(ctx context.Context, actor domain.Actor) (*domain.OnboardingLink, error) {
	args := m.Called(ctx, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OnboardingLink), args.Error(1)
}

type MockPaymentUseCases struct {
	mock.Mock
}

func (m *MockPaymentUseCases) ListPayments(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]domain.Payment), args.Error(1)
}

func (m *MockPaymentUseCases) CreatePaymentCheckout(ctx context.Context, userID uuid.UUID, in domain.PaymentCheckoutInput) (*domain.CheckoutSession, error) {
	args := m.Called(ctx, userID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CheckoutSession), args.Error(1)
}

func (m *MockPaymentUseCases) CapturePayment(ctx context.Context, actor domain.Actor, in domain.CapturePaymentInput) (*domain.Payment, error) {
	args := m.Called(ctx, actor, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Payment), args.Error(1)
}
