package stripe

import (
	"math"
	"time"

	"github.com/stripe/stripe-go/v78"
)

// CustomerInput данные для создания клиента
type CustomerInput struct {
	UserID string
	Email  string
	Name   string
}

// ProductInput данные продукта
type ProductInput struct {
	Name        string
	Description string
	Metadata    map[string]string
}

// PriceInput данные цены. UnitAmount в минорных единицах.
type PriceInput struct {
	ProductID     string
	UnitAmount    int64
	Currency      string
	Interval      string
	IntervalCount int64
}

// SubscriptionInput данные для создания подписки
type SubscriptionInput struct {
	CustomerID      string
	PriceID         string
	PaymentMethodID string
	Coupon          string
	IdempotencyKey  string
	Metadata        map[string]string
}

// Subscription - то, что сервису нужно знать о подписке Stripe.
type Subscription struct {
	ID                  string
	Status              stripe.SubscriptionStatus
	CurrentPeriodStart  time.Time
	CurrentPeriodEnd    time.Time
	CancelAtPeriodEnd   bool
	PriceID             string
	LatestInvoiceID     string
	HostedInvoiceURL    string
	AmountPaid          int64
	Currency            string
	PaymentIntentID     string
	PaymentIntentStatus stripe.PaymentIntentStatus
}

// PaymentFailed - статус подписки означает неуспешную первую оплату.
func (s *Subscription) PaymentFailed() bool {
	switch s.Status {
	case stripe.SubscriptionStatusIncomplete:
		return s.PaymentIntentStatus != stripe.PaymentIntentStatusSucceeded
	case stripe.SubscriptionStatusIncompleteExpired, stripe.SubscriptionStatusPastDue:
		return true
	}
	return false
}

// CheckoutMode режим сессии Checkout
type CheckoutMode string

const (
	CheckoutModePayment CheckoutMode = "payment"
	CheckoutModeSetup   CheckoutMode = "setup"
)

// CheckoutInput данные для сессии Checkout
type CheckoutInput struct {
	Mode       CheckoutMode
	CustomerID string
	PriceID    string
	Currency   string
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
	// ManualCapture - только авторизация, списание через CapturePaymentIntent. Только для payment.
	ManualCapture bool
}

// CheckoutSession - созданная сессия.
type CheckoutSession struct {
	ID  string
	URL string
}

// ToMinorUnits переводит сумму в центы.
func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromMinorUnits переводит центы в основную валюту.
func FromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}

// UnixTime возвращает nil для нулевой метки.
func UnixTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func fromStripeSubscription(sub *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                sub.ID,
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.CurrentPeriodStart > 0 {
		out.CurrentPeriodStart = time.Unix(sub.CurrentPeriodStart, 0).UTC()
	}
	if sub.CurrentPeriodEnd > 0 {
		out.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		out.PriceID = sub.Items.Data[0].Price.ID
	}
	if inv := sub.LatestInvoice; inv != nil {
		out.LatestInvoiceID = inv.ID
		out.HostedInvoiceURL = inv.HostedInvoiceURL
		out.AmountPaid = inv.AmountPaid
		out.Currency = string(inv.Currency)
		if inv.PaymentIntent != nil {
			out.PaymentIntentID = inv.PaymentIntent.ID
			out.PaymentIntentStatus = inv.PaymentIntent.Status
		}
	}
	return out
}
