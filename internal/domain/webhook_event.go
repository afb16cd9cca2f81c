package domain

import (
	"time"
)

// WebhookEventStatus статус обработки события
type WebhookEventStatus string

const (
	WebhookEventStatusPending   WebhookEventStatus = "pending"
	WebhookEventStatusProcessed WebhookEventStatus = "processed"
	WebhookEventStatusFailed    WebhookEventStatus = "failed"
)

// WebhookEvent - запись журнала доставки события Stripe. Ключ - id события в Stripe.
type WebhookEvent struct {
	ID           string             `db:"id" json:"id"`
	Type         string             `db:"type" json:"type"`
	Status       WebhookEventStatus `db:"status" json:"status"`
	AttemptCount int                `db:"attempt_count" json:"attempt_count"`
	LastError    *string            `db:"last_error" json:"last_error,omitempty"`
	ReceivedAt   time.Time          `db:"received_at" json:"received_at"`
	ProcessedAt  *time.Time         `db:"processed_at" json:"processed_at,omitempty"`
}

// Topic names for events published to Kafka.
const (
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionRenewed   = "subscription.renewed"
	EventSubscriptionCancelled = "subscription.cancelled"
	EventSubscriptionRefunded  = "subscription.refunded"

	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
	EventPaymentRefunded  = "payment.refunded"
)

// SubscriptionEvent - сообщение о жизненном цикле подписки.
type SubscriptionEvent struct {
	Type                 string        `json:"type"`
	SubscriptionID       string        `json:"subscription_id"`
	UserID               string        `json:"user_id"`
	OfferID              string        `json:"offer_id"`
	StripeSubscriptionID string        `json:"stripe_subscription_id,omitempty"`
	Status               PaymentStatus `json:"status"`
	EndDate              time.Time     `json:"end_date"`
	Timestamp            time.Time     `json:"timestamp"`
}

// PaymentEvent - сообщение о платеже.
type PaymentEvent struct {
	Type            string        `json:"type"`
	PaymentID       string        `json:"payment_id,omitempty"`
	UserID          string        `json:"user_id,omitempty"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	InvoiceID       string        `json:"invoice_id,omitempty"`
	Amount          float64       `json:"amount"`
	Currency        string        `json:"currency"`
	Status          PaymentStatus `json:"status"`
	Timestamp       time.Time     `json:"timestamp"`
}
