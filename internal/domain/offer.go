package domain

import (
	"time"

	"github.com/google/uuid"
)

// PlanType тип тарифного плана
type PlanType string

const (
	PlanBasic    PlanType = "BASIC"
	PlanStandard PlanType = "STANDARD"
	PlanPremium  PlanType = "PREMIUM"
)

// OfferDuration период списания. Не меняется после создания предложения.
type OfferDuration string

const (
	DurationMonthly   OfferDuration = "MONTHLY"
	DurationQuarterly OfferDuration = "QUARTERLY"
	DurationYearly    OfferDuration = "YEARLY"
)

// BillingInterval возвращает интервал Stripe и количество интервалов.
func (d OfferDuration) BillingInterval() (interval string, count int64) {
	switch d {
	case DurationQuarterly:
		return "month", 3
	case DurationYearly:
		return "year", 1
	default:
		return "month", 1
	}
}

// PeriodEnd - конец периода, если Stripe не вернул даты.
func (d OfferDuration) PeriodEnd(start time.Time) time.Time {
	switch d {
	case DurationQuarterly:
		return start.AddDate(0, 3, 0)
	case DurationYearly:
		return start.AddDate(1, 0, 0)
	default:
		return start.AddDate(0, 1, 0)
	}
}

// SubscriptionOffer - продаваемый план тренера.
type SubscriptionOffer struct {
	ID              uuid.UUID     `db:"id" json:"id"`
	CreatorID       uuid.UUID     `db:"creator_id" json:"creator_id"`
	Title           string        `db:"title" json:"title"`
	Description     string        `db:"description" json:"description"`
	Price           float64       `db:"price" json:"price"`
	Currency        string        `db:"currency" json:"currency"`
	PlanType        PlanType      `db:"plan_type" json:"plan_type"`
	Duration        OfferDuration `db:"duration" json:"duration"`
	StripeProductID *string       `db:"stripe_product_id" json:"stripe_product_id,omitempty"`
	StripePriceID   *string       `db:"stripe_price_id" json:"stripe_price_id,omitempty"`
	IsActive        bool          `db:"is_active" json:"is_active"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// PriceID возвращает Stripe price id или пустую строку.
func (o *SubscriptionOffer) PriceID() string {
	if o.StripePriceID == nil {
		return ""
	}
	return *o.StripePriceID
}

// CreateOfferInput входные данные для создания предложения
type CreateOfferInput struct {
	Title       string        `json:"title" binding:"required,min=3,max=120"`
	Description string        `json:"description" binding:"max=2000"`
	Price       float64       `json:"price" binding:"required,gt=0"`
	Currency    string        `json:"currency" binding:"omitempty,len=3"`
	PlanType    PlanType      `json:"plan_type" binding:"required,oneof=BASIC STANDARD PREMIUM"`
	Duration    OfferDuration `json:"duration" binding:"required,oneof=MONTHLY QUARTERLY YEARLY"`
}

// UpdateOfferInput - частичное обновление. Duration присутствует только чтобы отклонить попытку изменения.
type UpdateOfferInput struct {
	Title       *string        `json:"title" binding:"omitempty,min=3,max=120"`
	Description *string        `json:"description" binding:"omitempty,max=2000"`
	Price       *float64       `json:"price" binding:"omitempty,gt=0"`
	PlanType    *PlanType      `json:"plan_type" binding:"omitempty,oneof=BASIC STANDARD PREMIUM"`
	IsActive    *bool          `json:"is_active"`
	Duration    *OfferDuration `json:"duration"`
}

// OfferFilter параметры списка предложений
type OfferFilter struct {
	SearchTerm string         `form:"search"`
	MinPrice   *float64       `form:"price_min"`
	MaxPrice   *float64       `form:"price_max"`
	Duration   *OfferDuration `form:"duration"`
	IsActive   *bool          `form:"is_active"`
	Page       int            `form:"page"`
	Limit      int            `form:"limit"`
}

// Normalize выставляет значения пагинации по умолчанию.
func (f *OfferFilter) Normalize() {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 10
	}
	if f.Page <= 0 {
		f.Page = 1
	}
}

// Offset смещение для SQL.
func (f OfferFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}
