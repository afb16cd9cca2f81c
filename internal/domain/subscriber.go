package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role роль пользователя маркетплейса
type Role string

const (
	RoleMember     Role = "MEMBER"
	RoleTrainer    Role = "TRAINER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

// IsAdmin - администратор или супер-администратор.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Actor - уже аутентифицированный вызывающий.
type Actor struct {
	UserID uuid.UUID
	Email  string
	Role   Role
}

// Subscriber - биллинговые поля пользователя. Остальной профиль принадлежит user-сервису.
type Subscriber struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	Email                string     `db:"email" json:"email"`
	FullName             string     `db:"full_name" json:"full_name"`
	Role                 Role       `db:"role" json:"role"`
	StripeCustomerID     *string    `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	IsSubscribed         bool       `db:"is_subscribed" json:"is_subscribed"`
	SubscriptionEnd      *time.Time `db:"subscription_end" json:"subscription_end,omitempty"`
	SubscriptionPlan     *PlanType  `db:"subscription_plan" json:"subscription_plan,omitempty"`
	StripeSubscriptionID *string    `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// CustomerID возвращает Stripe customer id или пустую строку.
func (s *Subscriber) CustomerID() string {
	if s.StripeCustomerID == nil {
		return ""
	}
	return *s.StripeCustomerID
}

// SubscriptionFlags - денормализованные поля подписки у пользователя.
type SubscriptionFlags struct {
	IsSubscribed         bool
	SubscriptionEnd      *time.Time
	SubscriptionPlan     *PlanType
	StripeSubscriptionID *string
}

// TrainerProfile - профиль тренера; user_id является идентичностью тренера.
type TrainerProfile struct {
	UserID              uuid.UUID `db:"user_id" json:"user_id"`
	StripeAccountID     *string   `db:"stripe_account_id" json:"stripe_account_id,omitempty"`
	OnboardingCompleted bool      `db:"onboarding_completed" json:"onboarding_completed"`
	OnboardingURL       *string   `db:"onboarding_url" json:"onboarding_url,omitempty"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// OnboardingLink - ссылка на онбординг подключенного аккаунта Stripe.
type OnboardingLink struct {
	AccountID string `json:"account_id"`
	URL       string `json:"url"`
}
