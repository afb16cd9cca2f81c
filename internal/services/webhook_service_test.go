package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/internal/metrics"
	"github.com/Dhoini/fitness-billing-service/internal/stripe"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v78"
)

type checkoutCall struct {
	UserID uuid.UUID
	Input  domain.SubscribeInput
}

type recordingCheckout struct {
	mu    sync.Mutex
	calls []checkoutCall
	err   error
}

func (c *recordingCheckout) Subscribe(_ context.Context, subscriberID uuid.UUID, in domain.SubscribeInput) (*domain.SubscriptionResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, checkoutCall{UserID: subscriberID, Input: in})
	if c.err != nil {
		return nil, c.err
	}
	return &domain.SubscriptionResult{}, nil
}

type webhookHarness struct {
	*fixture
	svc       *WebhookService
	gateway   *MockGateway
	publisher *recordingPublisher
	notifier  *recordingNotifier
	checkout  *recordingCheckout
	ledger    *memWebhooks
}

func newWebhookHarness(t *testing.T) *webhookHarness {
	t.Helper()
	fx := newFixture()
	gw := &MockGateway{}
	pub := &recordingPublisher{}
	ntf := &recordingNotifier{}
	co := &recordingCheckout{}
	repos := fx.store.repos()

	svc := NewWebhookService(repos, newMemDedup(), gw, co, ntf, pub, metrics.NewNop(), logger.NewNop())
	t.Cleanup(func() {
		svc.Wait()
		gw.AssertExpectations(t)
	})
	return &webhookHarness{
		fixture:   fx,
		svc:       svc,
		gateway:   gw,
		publisher: pub,
		notifier:  ntf,
		checkout:  co,
		ledger:    repos.Webhooks.(*memWebhooks),
	}
}

func newEvent(t *testing.T, id, eventType string, object any) stripego.Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return stripego.Event{
		ID:   id,
		Type: stripego.EventType(eventType),
		Data: &stripego.EventData{Raw: raw},
	}
}

// linkSubscriber связывает подписчика с подпиской Stripe, как после успешного subscribe.
func (h *webhookHarness) linkSubscriber(stripeID string, end time.Time) {
	plan := h.offer.PlanType
	s := h.store.subscribers[h.subscriber.ID]
	s.IsSubscribed = true
	s.SubscriptionEnd = &end
	s.SubscriptionPlan = &plan
	s.StripeSubscriptionID = domain.StrPtr(stripeID)
}

func cycleInvoice(invoiceID, stripeSubID string, periodEnd time.Time) map[string]any {
	return map[string]any{
		"id":             invoiceID,
		"object":         "invoice",
		"billing_reason": "subscription_cycle",
		"subscription":   stripeSubID,
		"customer":       "cus_test",
		"payment_intent": "pi_" + invoiceID,
		"amount_paid":    10000,
		"currency":       "usd",
		"lines": map[string]any{
			"object": "list",
			"data": []any{
				map[string]any{"id": "il_1", "period": map[string]any{"start": periodEnd.AddDate(0, -1, 0).Unix(), "end": periodEnd.Unix()}},
			},
		},
	}
}

func TestConstructEvent(t *testing.T) {
	h := newWebhookHarness(t)

	_, err := h.svc.ConstructEvent([]byte(`{}`), "")
	assert.True(t, errors.Is(err, domain.ErrWebhookValidationFailed))

	h.gateway.On("ConstructEvent", []byte(`{}`), "t=1,v1=bad").Return(stripego.Event{}, errors.New("signature mismatch")).Once()
	_, err = h.svc.ConstructEvent([]byte(`{}`), "t=1,v1=bad")
	assert.True(t, errors.Is(err, domain.ErrWebhookValidationFailed))

	h.gateway.On("ConstructEvent", []byte(`{"id":"evt_1"}`), "t=1,v1=ok").Return(stripego.Event{ID: "evt_1"}, nil).Once()
	event, err := h.svc.ConstructEvent([]byte(`{"id":"evt_1"}`), "t=1,v1=ok")
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
}

func TestInvoicePaidCycle_Replay(t *testing.T) {
	h := newWebhookHarness(t)
	oldEnd := time.Now().Add(time.Hour).Truncate(time.Second)
	newEnd := oldEnd.AddDate(0, 1, 0)
	sub := seedSubscription(h.fixture, oldEnd, domain.PaymentStatusCompleted, "sub_1")
	h.linkSubscriber("sub_1", oldEnd)

	h.gateway.On("GetSubscription", mock.Anything, "sub_1").Return(&stripe.Subscription{ID: "sub_1", CurrentPeriodEnd: newEnd}, nil)

	event := newEvent(t, "evt_cycle", "invoice.paid", cycleInvoice("in_2", "sub_1", newEnd))
	require.NoError(t, h.svc.Process(context.Background(), event))

	assertCycleApplied := func() {
		t.Helper()
		stored := h.store.subscription(sub.ID)
		assert.True(t, stored.EndDate.Equal(newEnd), "end date %s", stored.EndDate)
		assert.Equal(t, domain.PaymentStatusCompleted, stored.PaymentStatus)

		subscriber := h.store.subscriber(h.subscriber.ID)
		require.NotNil(t, subscriber.SubscriptionEnd)
		assert.True(t, subscriber.SubscriptionEnd.Equal(newEnd))
		assert.True(t, subscriber.IsSubscribed)

		payments := h.store.allPayments()
		require.Len(t, payments, 1)
		assert.Equal(t, "in_2", domain.StrVal(payments[0].InvoiceID))
		assert.Equal(t, h.subscriber.ID, payments[0].UserID)
		assert.InDelta(t, 100.0, payments[0].Amount, 0.001)
	}
	assertCycleApplied()
	assert.Equal(t, domain.WebhookEventStatusProcessed, h.ledger.status("evt_cycle"))

	// та же доставка
	require.NoError(t, h.svc.Process(context.Background(), event))
	assertCycleApplied()
	h.gateway.AssertNumberOfCalls(t, "GetSubscription", 1)

	// тот же счет в другом событии
	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_cycle_2", "invoice.paid", cycleInvoice("in_2", "sub_1", newEnd))))
	assertCycleApplied()

	h.svc.Wait()
	assert.Equal(t, []string{domain.EventPaymentCompleted}, h.publisher.paymentTypes())
	assert.Equal(t, []string{domain.EventSubscriptionRenewed}, h.publisher.subscriptionTypes())
}

func TestInvoicePaidCycle_FallsBackToInvoicePeriod(t *testing.T) {
	h := newWebhookHarness(t)
	oldEnd := time.Now().Add(time.Hour).Truncate(time.Second)
	newEnd := oldEnd.AddDate(0, 1, 0)
	sub := seedSubscription(h.fixture, oldEnd, domain.PaymentStatusCompleted, "sub_1")

	h.gateway.On("GetSubscription", mock.Anything, "sub_1").Return(nil, errors.New("stripe unavailable"))

	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_1", "invoice.paid", cycleInvoice("in_2", "sub_1", newEnd))))
	assert.True(t, h.store.subscription(sub.ID).EndDate.Equal(newEnd))
}

func TestInvoicePaidCycle_LateInvoiceKeepsCancelledSubscription(t *testing.T) {
	h := newWebhookHarness(t)
	now := time.Now().Truncate(time.Second)
	cancelledEnd := now.Add(-time.Minute)
	currentEnd := now.AddDate(0, 0, 20)
	lateEnd := now.AddDate(0, 1, 0)

	cancelled := seedSubscription(h.fixture, cancelledEnd, domain.PaymentStatusCancelled, "sub_old")
	current := seedSubscription(h.fixture, currentEnd, domain.PaymentStatusCompleted, "sub_new")
	h.linkSubscriber("sub_new", currentEnd)

	h.gateway.On("GetSubscription", mock.Anything, "sub_old").Return(&stripe.Subscription{ID: "sub_old", CurrentPeriodEnd: lateEnd}, nil)

	event := newEvent(t, "evt_late", "invoice.paid", cycleInvoice("in_late", "sub_old", lateEnd))
	require.NoError(t, h.svc.Process(context.Background(), event))

	stored := h.store.subscription(cancelled.ID)
	assert.Equal(t, domain.PaymentStatusCancelled, stored.PaymentStatus)
	assert.True(t, stored.EndDate.Equal(cancelledEnd), "end date %s", stored.EndDate)
	assert.True(t, h.store.subscription(current.ID).EndDate.Equal(currentEnd))

	active := 0
	for _, sub := range h.store.allSubscriptions() {
		if sub.IsActiveAt(time.Now()) {
			active++
		}
	}
	assert.Equal(t, 1, active)

	subscriber := h.store.subscriber(h.subscriber.ID)
	require.NotNil(t, subscriber.SubscriptionEnd)
	assert.True(t, subscriber.SubscriptionEnd.Equal(currentEnd))

	h.svc.Wait()
	assert.Empty(t, h.publisher.subscriptionTypes())
}

func TestInvoicePaidCreate_BackfillsInitialPayment(t *testing.T) {
	h := newWebhookHarness(t)
	seedSubscription(h.fixture, time.Now().Add(time.Hour), domain.PaymentStatusCompleted, "sub_1")
	p := seedPayment(h.fixture, "sub_1", "", domain.PaymentStatusCompleted, time.Now())
	p.PaymentIntentID = nil

	invoice := map[string]any{
		"id":             "in_1",
		"billing_reason": "subscription_create",
		"subscription":   "sub_1",
		"payment_intent": "pi_1",
		"amount_paid":    10000,
		"currency":       "usd",
	}
	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_1", "invoice.paid", invoice)))

	payments := h.store.allPayments()
	require.Len(t, payments, 1)
	assert.Equal(t, "in_1", domain.StrVal(payments[0].InvoiceID))
	assert.Equal(t, "pi_1", domain.StrVal(payments[0].PaymentIntentID))
}

func subscriptionObject(id, status string, cancelAtPeriodEnd bool, periodEnd time.Time) map[string]any {
	return map[string]any{
		"id":                   id,
		"object":               "subscription",
		"customer":             "cus_test",
		"status":               status,
		"cancel_at_period_end": cancelAtPeriodEnd,
		"current_period_end":   periodEnd.Unix(),
		"items": map[string]any{
			"object": "list",
			"data": []any{
				map[string]any{"id": "si_1", "price": map[string]any{"id": "price_test"}},
			},
		},
	}
}

func TestSubscriptionDeleted_RevokesAndRefundsOnce(t *testing.T) {
	h := newWebhookHarness(t)
	end := time.Now().Add(10 * 24 * time.Hour)
	sub := seedSubscription(h.fixture, end, domain.PaymentStatusCompleted, "sub_1")
	seedPayment(h.fixture, "sub_1", "pi_old", domain.PaymentStatusCompleted, time.Now().Add(-40*24*time.Hour))
	seedPayment(h.fixture, "sub_1", "pi_last", domain.PaymentStatusCompleted, time.Now().Add(-time.Hour))
	h.linkSubscriber("sub_1", end)

	h.gateway.On("RefundPaymentIntent", mock.Anything, "pi_last").Return("re_1", nil).Once()

	obj := subscriptionObject("sub_1", "canceled", false, end)
	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_del", "customer.subscription.deleted", obj)))

	stored := h.store.subscription(sub.ID)
	assert.Equal(t, domain.PaymentStatusRefunded, stored.PaymentStatus)
	assert.False(t, stored.EndDate.After(time.Now()))
	for _, p := range h.store.allPayments() {
		assert.Equal(t, domain.PaymentStatusRefunded, p.Status)
	}
	subscriber := h.store.subscriber(h.subscriber.ID)
	assert.False(t, subscriber.IsSubscribed)
	assert.Nil(t, subscriber.SubscriptionPlan)

	// повтор с новым id не возвращает деньги второй раз
	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_del_2", "customer.subscription.deleted", obj)))

	h.svc.Wait()
	assert.Contains(t, h.publisher.subscriptionTypes(), domain.EventSubscriptionRefunded)
	assert.Contains(t, h.publisher.paymentTypes(), domain.EventPaymentRefunded)
}

func TestSubscriptionDeleted_KeepsCancelledRows(t *testing.T) {
	h := newWebhookHarness(t)
	end := time.Now().Add(10 * 24 * time.Hour)
	sub := seedSubscription(h.fixture, end, domain.PaymentStatusCancelled, "sub_1")
	seedPayment(h.fixture, "sub_1", "pi_1", domain.PaymentStatusCancelled, time.Now())

	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_del", "customer.subscription.deleted", subscriptionObject("sub_1", "canceled", false, end))))

	assert.Equal(t, domain.PaymentStatusCancelled, h.store.subscription(sub.ID).PaymentStatus)
	assert.Equal(t, domain.PaymentStatusCancelled, h.store.allPayments()[0].Status)
	h.gateway.AssertNotCalled(t, "RefundPaymentIntent", mock.Anything, mock.Anything)
}

func TestSubscriptionUpdated(t *testing.T) {
	t.Run("syncs flags", func(t *testing.T) {
		h := newWebhookHarness(t)
		end := time.Now().Add(20 * 24 * time.Hour).Truncate(time.Second)
		h.linkSubscriber("sub_1", time.Now())

		require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_upd", "customer.subscription.updated", subscriptionObject("sub_1", "active", true, end))))

		subscriber := h.store.subscriber(h.subscriber.ID)
		assert.True(t, subscriber.IsSubscribed)
		require.NotNil(t, subscriber.SubscriptionEnd)
		assert.True(t, subscriber.SubscriptionEnd.Equal(end))
		require.NotNil(t, subscriber.SubscriptionPlan)
		assert.Equal(t, h.offer.PlanType, *subscriber.SubscriptionPlan)
	})

	t.Run("stale subscription does not override flags", func(t *testing.T) {
		h := newWebhookHarness(t)
		current := time.Now().Add(30 * 24 * time.Hour)
		h.linkSubscriber("sub_new", current)

		require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_old", "customer.subscription.updated", subscriptionObject("sub_old", "past_due", false, time.Now()))))

		subscriber := h.store.subscriber(h.subscriber.ID)
		assert.True(t, subscriber.IsSubscribed)
		assert.Equal(t, "sub_new", domain.StrVal(subscriber.StripeSubscriptionID))
	})

	t.Run("immediate cancel refunds", func(t *testing.T) {
		h := newWebhookHarness(t)
		end := time.Now().Add(10 * 24 * time.Hour)
		sub := seedSubscription(h.fixture, end, domain.PaymentStatusCompleted, "sub_1")
		seedPayment(h.fixture, "sub_1", "pi_1", domain.PaymentStatusCompleted, time.Now())
		h.linkSubscriber("sub_1", end)
		h.gateway.On("RefundPaymentIntent", mock.Anything, "pi_1").Return("re_1", nil).Once()

		require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_cancel", "customer.subscription.updated", subscriptionObject("sub_1", "canceled", false, end))))

		assert.Equal(t, domain.PaymentStatusRefunded, h.store.subscription(sub.ID).PaymentStatus)
		assert.False(t, h.store.subscriber(h.subscriber.ID).IsSubscribed)
	})
}

func TestAccountUpdated_CompletesOnboarding(t *testing.T) {
	h := newWebhookHarness(t)
	h.store.trainers[h.trainer.UserID].StripeAccountID = domain.StrPtr("acct_1")
	h.store.trainers[h.trainer.UserID].OnboardingURL = domain.StrPtr("https://connect.stripe.com/setup/x")

	notReady := map[string]any{"id": "acct_1", "charges_enabled": true, "payouts_enabled": false, "details_submitted": true}
	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_1", "account.updated", notReady)))
	assert.False(t, h.store.trainers[h.trainer.UserID].OnboardingCompleted)

	ready := map[string]any{"id": "acct_1", "charges_enabled": true, "payouts_enabled": true, "details_submitted": true}
	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_2", "account.updated", ready)))
	assert.True(t, h.store.trainers[h.trainer.UserID].OnboardingCompleted)
	assert.Nil(t, h.store.trainers[h.trainer.UserID].OnboardingURL)

	unknown := map[string]any{"id": "acct_unknown", "charges_enabled": true, "payouts_enabled": true, "details_submitted": true}
	assert.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_3", "account.updated", unknown)))
}

func TestChargeSucceeded_RecordsReceipt(t *testing.T) {
	h := newWebhookHarness(t)
	seedPayment(h.fixture, "sub_1", "pi_1", domain.PaymentStatusPending, time.Now())
	created := time.Now().Add(-time.Minute).Truncate(time.Second)

	charge := map[string]any{
		"id":              "ch_1",
		"payment_intent":  "pi_1",
		"amount":          2999,
		"currency":        "usd",
		"created":         created.Unix(),
		"receipt_url":     "https://pay.stripe.com/receipts/ch_1",
		"billing_details": map[string]any{"email": "billing@example.com"},
	}
	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_1", "charge.succeeded", charge)))

	p := h.store.allPayments()[0]
	assert.Equal(t, domain.PaymentStatusCompleted, p.Status)
	assert.Equal(t, "https://pay.stripe.com/receipts/ch_1", domain.StrVal(p.ReceiptURL))
	require.NotNil(t, p.PaidAt)
	assert.True(t, p.PaidAt.Equal(created))

	h.svc.Wait()
	mails := h.notifier.messages()
	require.Len(t, mails, 1)
	assert.Equal(t, "billing@example.com", mails[0].To)
	assert.Contains(t, mails[0].Body, "29.99")
}

func TestPaymentIntentEvents(t *testing.T) {
	h := newWebhookHarness(t)
	seedPayment(h.fixture, "sub_1", "pi_1", domain.PaymentStatusPending, time.Now())
	intent := map[string]any{"id": "pi_1", "amount": 10000, "currency": "usd"}

	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_1", "payment_intent.processing", intent)))
	assert.Equal(t, domain.PaymentStatusRequiresCapture, h.store.allPayments()[0].Status)

	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_2", "payment_intent.payment_failed", intent)))
	assert.Equal(t, domain.PaymentStatusFailed, h.store.allPayments()[0].Status)

	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_3", "payment_intent.succeeded", intent)))
	assert.Equal(t, domain.PaymentStatusCompleted, h.store.allPayments()[0].Status)

	h.svc.Wait()
	assert.Equal(t, []string{domain.EventPaymentFailed}, h.publisher.paymentTypes())
}

func TestCheckoutCompleted_PaymentMode(t *testing.T) {
	h := newWebhookHarness(t)
	session := map[string]any{
		"id":             "cs_1",
		"mode":           "payment",
		"payment_intent": "pi_checkout",
		"payment_status": "paid",
		"customer":       "cus_test",
		"amount_total":   4500,
		"currency":       "usd",
		"metadata": map[string]string{
			stripe.MetadataUserIDKey:        h.subscriber.ID.String(),
			stripe.MetadataOfferIDKey:       h.offer.ID.String(),
			stripe.MetadataPaymentMethodKey: "pm_saved",
		},
	}
	event := newEvent(t, "evt_cs", "checkout.session.completed", session)
	require.NoError(t, h.svc.Process(context.Background(), event))

	payments := h.store.allPayments()
	require.Len(t, payments, 1)
	assert.Equal(t, "pi_checkout", domain.StrVal(payments[0].PaymentIntentID))
	assert.Equal(t, domain.PaymentStatusCompleted, payments[0].Status)
	assert.InDelta(t, 45.0, payments[0].Amount, 0.001)

	require.Len(t, h.checkout.calls, 1)
	assert.Equal(t, h.subscriber.ID, h.checkout.calls[0].UserID)
	assert.Equal(t, h.offer.ID, h.checkout.calls[0].Input.OfferID)
	assert.Equal(t, "pm_saved", h.checkout.calls[0].Input.PaymentMethodID)

	// повтор с новым id обновляет тот же платеж; конфликт подписки не ломает событие
	h.checkout.err = domain.Conflict("user already has an active subscription")
	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_cs_2", "checkout.session.completed", session)))
	assert.Len(t, h.store.allPayments(), 1)
}

func TestCheckoutCompleted_ManualCaptureAwaitsCapture(t *testing.T) {
	h := newWebhookHarness(t)
	session := map[string]any{
		"id":             "cs_auth",
		"mode":           "payment",
		"payment_intent": "pi_auth",
		"payment_status": "unpaid",
		"customer":       "cus_test",
		"amount_total":   4500,
		"currency":       "usd",
		"metadata": map[string]string{
			stripe.MetadataUserIDKey:  h.subscriber.ID.String(),
			stripe.MetadataOfferIDKey: h.offer.ID.String(),
		},
	}
	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_auth", "checkout.session.completed", session)))

	payments := h.store.allPayments()
	require.Len(t, payments, 1)
	assert.Equal(t, domain.PaymentStatusRequiresCapture, payments[0].Status)
	assert.Nil(t, payments[0].PaidAt)
	assert.Empty(t, h.checkout.calls)

	intent := map[string]any{"id": "pi_auth", "object": "payment_intent", "amount": 4500, "currency": "usd"}
	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_auth_ok", "payment_intent.succeeded", intent)))
	assert.Equal(t, domain.PaymentStatusCompleted, h.store.allPayments()[0].Status)

	// повтор сессии после списания не откатывает статус
	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_auth_2", "checkout.session.completed", session)))
	assert.Equal(t, domain.PaymentStatusCompleted, h.store.allPayments()[0].Status)

	h.svc.Wait()
	assert.Empty(t, h.publisher.paymentTypes())
}

func TestCheckoutCompleted_SetupMode(t *testing.T) {
	h := newWebhookHarness(t)
	h.gateway.On("GetSetupIntentPaymentMethod", mock.Anything, "seti_1").Return("pm_new", nil).Once()

	session := map[string]any{
		"id":           "cs_setup",
		"mode":         "setup",
		"setup_intent": "seti_1",
		"customer":     "cus_test",
		"metadata": map[string]string{
			stripe.MetadataUserIDKey:  h.subscriber.ID.String(),
			stripe.MetadataOfferIDKey: h.offer.ID.String(),
		},
	}
	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_setup", "checkout.session.completed", session)))

	h.svc.Wait()
	mails := h.notifier.messages()
	require.Len(t, mails, 1)
	assert.Equal(t, h.subscriber.Email, mails[0].To)
	assert.Contains(t, mails[0].Body, h.offer.Title)
	assert.Empty(t, h.store.allPayments())
}

func TestInvoiceUpcoming_SendsReminder(t *testing.T) {
	h := newWebhookHarness(t)
	due := time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)
	invoice := map[string]any{
		"id":                   "in_next",
		"customer":             "cus_test",
		"amount_due":           10000,
		"currency":             "usd",
		"next_payment_attempt": due.Unix(),
	}
	require.NoError(t, h.svc.Process(context.Background(), newEvent(t, "evt_up", "invoice.upcoming", invoice)))

	h.svc.Wait()
	mails := h.notifier.messages()
	require.Len(t, mails, 1)
	assert.Equal(t, h.subscriber.Email, mails[0].To)
	assert.Contains(t, mails[0].Body, "2026-11-01")
}

func TestProcess_FailureAllowsRetry(t *testing.T) {
	h := newWebhookHarness(t)
	broken := stripego.Event{ID: "evt_retry", Type: "invoice.paid", Data: &stripego.EventData{Raw: json.RawMessage(`{"id": 42`)}}

	err := h.svc.Process(context.Background(), broken)
	require.Error(t, err)
	assert.Equal(t, domain.WebhookEventStatusFailed, h.ledger.status("evt_retry"))

	fixed := newEvent(t, "evt_retry", "invoice.paid", map[string]any{"id": "in_9", "billing_reason": "manual"})
	require.NoError(t, h.svc.Process(context.Background(), fixed))
	assert.Equal(t, domain.WebhookEventStatusProcessed, h.ledger.status("evt_retry"))
}

func TestProcess_SkipsProcessedEvents(t *testing.T) {
	h := newWebhookHarness(t)
	h.store.events["evt_done"] = domain.WebhookEventStatusProcessed

	// GetSubscription не ожидается: обработчик не должен запускаться
	event := newEvent(t, "evt_done", "invoice.paid", cycleInvoice("in_1", "sub_1", time.Now()))
	require.NoError(t, h.svc.Process(context.Background(), event))
	assert.Empty(t, h.store.allPayments())
}

func TestProcess_IgnoresUnknownTypes(t *testing.T) {
	h := newWebhookHarness(t)
	for i, eventType := range []string{"customer.created", "product.updated"} {
		event := newEvent(t, fmt.Sprintf("evt_%d", i), eventType, map[string]any{"id": "x"})
		assert.NoError(t, h.svc.Process(context.Background(), event))
	}
}
