package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus - статус оплаты подписки и платежа
type PaymentStatus string

const (
	PaymentStatusPending         PaymentStatus = "PENDING"
	PaymentStatusCompleted       PaymentStatus = "COMPLETED"
	PaymentStatusFailed          PaymentStatus = "FAILED"
	PaymentStatusCancelled       PaymentStatus = "CANCELLED"
	PaymentStatusRefunded        PaymentStatus = "REFUNDED"
	PaymentStatusRequiresCapture PaymentStatus = "REQUIRES_CAPTURE"
)

// UserSubscription - экземпляр подписки пользователя на предложение. Не удаляется физически.
type UserSubscription struct {
	ID                   uuid.UUID     `db:"id" json:"id"`
	UserID               uuid.UUID     `db:"user_id" json:"user_id"`
	OfferID              uuid.UUID     `db:"offer_id" json:"offer_id"`
	StartDate            time.Time     `db:"start_date" json:"start_date"`
	EndDate              time.Time     `db:"end_date" json:"end_date"`
	StripeSubscriptionID *string       `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	PaymentStatus        PaymentStatus `db:"payment_status" json:"payment_status"`
	CreatedAt            time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updated_at"`
}

// IsActiveAt - оплачена и не истекла на момент now.
func (s *UserSubscription) IsActiveAt(now time.Time) bool {
	return s.PaymentStatus == PaymentStatusCompleted && s.EndDate.After(now)
}

// ExternalID возвращает Stripe subscription id или пустую строку.
func (s *UserSubscription) ExternalID() string {
	if s.StripeSubscriptionID == nil {
		return ""
	}
	return *s.StripeSubscriptionID
}

// SubscribeInput запрос на оформление подписки
type SubscribeInput struct {
	OfferID         uuid.UUID `json:"offer_id" binding:"required"`
	PaymentMethodID string    `json:"payment_method_id" binding:"required,startswith=pm_"`
}

// RenewInput запрос на продление истекшей подписки
type RenewInput struct {
	OfferID         uuid.UUID `json:"offer_id" binding:"required"`
	PaymentMethodID string    `json:"payment_method_id" binding:"required,startswith=pm_"`
}

// CheckoutSetupInput запрос на setup-сессию Stripe Checkout
type CheckoutSetupInput struct {
	OfferID uuid.UUID `json:"offer_id" binding:"required"`
}

// SubscriptionResult - результат subscribe/renew.
type SubscriptionResult struct {
	Subscription         *UserSubscription `json:"subscription"`
	StripeSubscriptionID string            `json:"stripe_subscription_id"`
	PaymentIntentID      string            `json:"payment_intent_id,omitempty"`
	InvoiceURL           string            `json:"invoice_url,omitempty"`
}

// CheckoutSession - ссылка на Stripe Checkout.
type CheckoutSession struct {
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
}

// SubscriptionPlanView - сводка текущего плана пользователя.
type SubscriptionPlanView struct {
	SubscriptionPlan     *PlanType      `json:"subscription_plan,omitempty"`
	IsSubscribed         bool           `json:"is_subscribed"`
	SubscriptionStart    *time.Time     `json:"subscription_start,omitempty"`
	SubscriptionEnd      *time.Time     `json:"subscription_end,omitempty"`
	StripeSubscriptionID *string        `json:"stripe_subscription_id,omitempty"`
	Duration             *OfferDuration `json:"duration,omitempty"`
	Price                *float64       `json:"price,omitempty"`
	Description          *string        `json:"description,omitempty"`
}
