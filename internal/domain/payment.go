package domain

import (
	"time"

	"github.com/google/uuid"
)

// Payment представляет собой финансовую транзакцию.
// Один payment_intent_id - не более одной строки; несколько строк могут делить stripe_subscription_id.
type Payment struct {
	ID                   uuid.UUID     `db:"id" json:"id"`
	UserID               uuid.UUID     `db:"user_id" json:"user_id"`
	Amount               float64       `db:"amount" json:"amount"`
	Currency             string        `db:"currency" json:"currency"`
	PaymentIntentID      *string       `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	InvoiceID            *string       `db:"invoice_id" json:"invoice_id,omitempty"`
	StripeSubscriptionID *string       `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	StripeCustomerID     *string       `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	ReceiptURL           *string       `db:"receipt_url" json:"receipt_url,omitempty"`
	Status               PaymentStatus `db:"status" json:"status"`
	PaidAt               *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt            time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updated_at"`
}

// PaymentCheckoutInput запрос на разовую оплату предложения через Checkout
type PaymentCheckoutInput struct {
	OfferID       uuid.UUID `json:"offer_id" binding:"required"`
	ManualCapture bool      `json:"manual_capture"`
}

// CapturePaymentInput запрос на списание авторизованного платежа
type CapturePaymentInput struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required,startswith=pi_"`
}

// StrPtr возвращает nil для пустой строки.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// StrVal разыменовывает указатель, nil -> "".
func StrVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
