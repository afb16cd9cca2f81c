package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/config"
	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/internal/stripe"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v78"
)

func newPaymentHarness(t *testing.T) (*fixture, *PaymentService, *MockGateway) {
	t.Helper()
	fx := newFixture()
	gw := &MockGateway{}
	t.Cleanup(func() { gw.AssertExpectations(t) })
	cfg := &config.Config{App: config.AppConfig{FrontendURL: "https://app.example.com/"}}
	return fx, NewPaymentService(cfg, fx.store.repos(), gw, logger.NewNop()), gw
}

func TestListPayments(t *testing.T) {
	fx, svc, _ := newPaymentHarness(t)

	payments, err := svc.ListPayments(context.Background(), fx.subscriber.ID)
	require.NoError(t, err)
	assert.NotNil(t, payments)
	assert.Empty(t, payments)

	seedPayment(fx, "sub_1", "pi_1", domain.PaymentStatusCompleted, time.Now())
	payments, err = svc.ListPayments(context.Background(), fx.subscriber.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestCreatePaymentCheckout(t *testing.T) {
	fx, svc, gw := newPaymentHarness(t)

	gw.On("CreateOneTimePrice", mock.Anything, stripe.PriceInput{
		ProductID:  "prod_test",
		UnitAmount: 10000,
		Currency:   "usd",
	}).Return("price_once", nil).Once()
	gw.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(in stripe.CheckoutInput) bool {
		return in.Mode == stripe.CheckoutModePayment &&
			in.CustomerID == "cus_test" &&
			in.PriceID == "price_once" &&
			in.ManualCapture &&
			in.SuccessURL == "https://app.example.com/payments/checkout/success?session_id={CHECKOUT_SESSION_ID}" &&
			in.Metadata[stripe.MetadataUserIDKey] == fx.subscriber.ID.String() &&
			in.Metadata[stripe.MetadataOfferIDKey] == fx.offer.ID.String() &&
			in.Metadata[stripe.MetadataPaymentMethodKey] == ""
	})).Return(&stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/cs_1"}, nil).Once()

	session, err := svc.CreatePaymentCheckout(context.Background(), fx.subscriber.ID, domain.PaymentCheckoutInput{
		OfferID:       fx.offer.ID,
		ManualCapture: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_1", session.SessionID)
	assert.Equal(t, "https://checkout.stripe.com/cs_1", session.SessionURL)
}

func TestCreatePaymentCheckout_Rejects(t *testing.T) {
	t.Run("unknown offer", func(t *testing.T) {
		fx, svc, _ := newPaymentHarness(t)
		_, err := svc.CreatePaymentCheckout(context.Background(), fx.subscriber.ID, domain.PaymentCheckoutInput{OfferID: uuid.New()})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("inactive offer", func(t *testing.T) {
		fx, svc, _ := newPaymentHarness(t)
		fx.offer.IsActive = false
		_, err := svc.CreatePaymentCheckout(context.Background(), fx.subscriber.ID, domain.PaymentCheckoutInput{OfferID: fx.offer.ID})
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})

	t.Run("own offer", func(t *testing.T) {
		fx, svc, _ := newPaymentHarness(t)
		fx.offer.CreatorID = fx.subscriber.ID
		_, err := svc.CreatePaymentCheckout(context.Background(), fx.subscriber.ID, domain.PaymentCheckoutInput{OfferID: fx.offer.ID})
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})

	t.Run("offer without product", func(t *testing.T) {
		fx, svc, _ := newPaymentHarness(t)
		fx.offer.StripeProductID = nil
		_, err := svc.CreatePaymentCheckout(context.Background(), fx.subscriber.ID, domain.PaymentCheckoutInput{OfferID: fx.offer.ID})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestCapturePayment(t *testing.T) {
	t.Run("owner captures authorized payment", func(t *testing.T) {
		fx, svc, gw := newPaymentHarness(t)
		seedPayment(fx, "", "pi_auth", domain.PaymentStatusRequiresCapture, time.Now())
		gw.On("CapturePaymentIntent", mock.Anything, "pi_auth").Return(stripego.PaymentIntentStatusSucceeded, nil).Once()

		payment, err := svc.CapturePayment(context.Background(),
			domain.Actor{UserID: fx.subscriber.ID, Role: domain.RoleMember},
			domain.CapturePaymentInput{PaymentIntentID: "pi_auth"})
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusCompleted, payment.Status)
		require.NotNil(t, payment.PaidAt)

		stored := fx.store.allPayments()[0]
		assert.Equal(t, domain.PaymentStatusCompleted, stored.Status)
		assert.NotNil(t, stored.PaidAt)
	})

	t.Run("admin may capture for another user", func(t *testing.T) {
		fx, svc, gw := newPaymentHarness(t)
		seedPayment(fx, "", "pi_auth", domain.PaymentStatusRequiresCapture, time.Now())
		gw.On("CapturePaymentIntent", mock.Anything, "pi_auth").Return(stripego.PaymentIntentStatusSucceeded, nil).Once()

		_, err := svc.CapturePayment(context.Background(),
			domain.Actor{UserID: uuid.New(), Role: domain.RoleAdmin},
			domain.CapturePaymentInput{PaymentIntentID: "pi_auth"})
		require.NoError(t, err)
	})

	t.Run("other member is forbidden", func(t *testing.T) {
		fx, svc, _ := newPaymentHarness(t)
		seedPayment(fx, "", "pi_auth", domain.PaymentStatusRequiresCapture, time.Now())

		_, err := svc.CapturePayment(context.Background(),
			domain.Actor{UserID: uuid.New(), Role: domain.RoleMember},
			domain.CapturePaymentInput{PaymentIntentID: "pi_auth"})
		assert.True(t, errors.Is(err, domain.ErrForbidden))
	})

	t.Run("already completed", func(t *testing.T) {
		fx, svc, _ := newPaymentHarness(t)
		seedPayment(fx, "", "pi_done", domain.PaymentStatusCompleted, time.Now())

		_, err := svc.CapturePayment(context.Background(),
			domain.Actor{UserID: fx.subscriber.ID, Role: domain.RoleMember},
			domain.CapturePaymentInput{PaymentIntentID: "pi_done"})
		assert.True(t, errors.Is(err, domain.ErrConflict))
	})

	t.Run("unknown intent", func(t *testing.T) {
		fx, svc, _ := newPaymentHarness(t)
		_, err := svc.CapturePayment(context.Background(),
			domain.Actor{UserID: fx.subscriber.ID, Role: domain.RoleMember},
			domain.CapturePaymentInput{PaymentIntentID: "pi_missing"})
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("stripe rejection is a conflict", func(t *testing.T) {
		fx, svc, gw := newPaymentHarness(t)
		seedPayment(fx, "", "pi_auth", domain.PaymentStatusRequiresCapture, time.Now())
		gw.On("CapturePaymentIntent", mock.Anything, "pi_auth").
			Return(stripego.PaymentIntentStatus(""), errors.New("authorization expired")).Once()

		_, err := svc.CapturePayment(context.Background(),
			domain.Actor{UserID: fx.subscriber.ID, Role: domain.RoleMember},
			domain.CapturePaymentInput{PaymentIntentID: "pi_auth"})
		assert.True(t, errors.Is(err, domain.ErrConflict))
		assert.Equal(t, domain.PaymentStatusRequiresCapture, fx.store.allPayments()[0].Status)
	})
}
