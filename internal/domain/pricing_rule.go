package domain

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
)

// RuleType тип правила ценообразования
type RuleType string

const (
	RuleFirstCome       RuleType = "FIRST_COME"
	RuleSpecificTrainer RuleType = "SPECIFIC_TRAINER"
	RuleTimeBased       RuleType = "TIME_BASED"
	RuleReferral        RuleType = "REFERRAL"
)

// PricingRule - скидочная политика, привязанная к одному предложению.
type PricingRule struct {
	ID              uuid.UUID   `db:"id" json:"id"`
	OfferID         uuid.UUID   `db:"offer_id" json:"offer_id"`
	CreatedBy       uuid.UUID   `db:"created_by" json:"created_by"`
	Name            string      `db:"name" json:"name"`
	Type            RuleType    `db:"type" json:"type"`
	DiscountPercent *float64    `db:"discount_percent" json:"discount_percent,omitempty"`
	DiscountAmount  *float64    `db:"discount_amount" json:"discount_amount,omitempty"`
	MaxSubscribers  *int        `db:"max_subscribers" json:"max_subscribers,omitempty"`
	StartDate       *time.Time  `db:"start_date" json:"start_date,omitempty"`
	EndDate         *time.Time  `db:"end_date" json:"end_date,omitempty"`
	DurationMonths  *int        `db:"duration_months" json:"duration_months,omitempty"`
	UsageCount      int         `db:"usage_count" json:"usage_count"`
	IsActive        bool        `db:"is_active" json:"is_active"`
	TrainerIDs      []uuid.UUID `db:"-" json:"trainer_ids,omitempty"`
	CreatedAt       time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updated_at"`
}

// PricingRuleUsage - факт применения правила пользователем. Уникален по (rule_id, user_id).
type PricingRuleUsage struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	RuleID         uuid.UUID  `db:"rule_id" json:"rule_id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	SubscriptionID *uuid.UUID `db:"subscription_id" json:"subscription_id,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// ApplicableRule - правило с рассчитанной ценой для конкретного предложения.
type ApplicableRule struct {
	Rule            *PricingRule `json:"rule"`
	OriginalPrice   float64      `json:"original_price"`
	DiscountedPrice float64      `json:"discounted_price"`
	Savings         float64      `json:"savings"`
	RemainingSlots  *int         `json:"remaining_slots,omitempty"`
}

// RuleView - правило с числом оставшихся мест для админских списков.
type RuleView struct {
	*PricingRule
	RemainingSlots *int `json:"remaining_slots,omitempty"`
}

// IsPercent - скидка в процентах.
func (r *PricingRule) IsPercent() bool {
	return r.DiscountPercent != nil
}

// DiscountValue - значение скидки в том поле, которое заполнено.
func (r *PricingRule) DiscountValue() float64 {
	switch {
	case r.DiscountPercent != nil:
		return *r.DiscountPercent
	case r.DiscountAmount != nil:
		return *r.DiscountAmount
	default:
		return 0
	}
}

// DiscountedPrice считает цену со скидкой, не ниже нуля. Округление до центов.
func (r *PricingRule) DiscountedPrice(original float64) float64 {
	price := original
	switch {
	case r.DiscountPercent != nil:
		price = original - original*(*r.DiscountPercent)/100
	case r.DiscountAmount != nil:
		price = original - *r.DiscountAmount
	}
	if price < 0 {
		price = 0
	}
	return math.Round(price*100) / 100
}

// RemainingSlots - свободные места для правил с лимитом, иначе nil.
func (r *PricingRule) RemainingSlots() *int {
	if r.MaxSubscribers == nil {
		return nil
	}
	left := *r.MaxSubscribers - r.UsageCount
	if left < 0 {
		left = 0
	}
	return &left
}

// WithinWindow - now попадает в [start_date, end_date].
func (r *PricingRule) WithinWindow(now time.Time) bool {
	if r.StartDate == nil || r.EndDate == nil {
		return false
	}
	return !now.Before(*r.StartDate) && !now.After(*r.EndDate)
}

// HasCapacity - для FIRST_COME usage_count < max_subscribers.
func (r *PricingRule) HasCapacity() bool {
	return r.MaxSubscribers != nil && r.UsageCount < *r.MaxSubscribers
}

// HasTrainer проверяет членство в наборе тренеров.
func (r *PricingRule) HasTrainer(trainerID uuid.UUID) bool {
	for _, id := range r.TrainerIDs {
		if id == trainerID {
			return true
		}
	}
	return false
}

// EligibleFor проверяет условия, зависящие от типа правила. REFERRAL проверяется при погашении.
func (r *PricingRule) EligibleFor(trainerID uuid.UUID, now time.Time) bool {
	switch r.Type {
	case RuleTimeBased:
		return r.WithinWindow(now)
	case RuleFirstCome:
		return r.HasCapacity()
	case RuleSpecificTrainer:
		return r.HasTrainer(trainerID)
	case RuleReferral:
		return true
	default:
		return false
	}
}

// SortApplicable сортирует по убыванию скидки: процентные правила по проценту, фиксированные по сумме.
// При равенстве значений процентные идут первыми, затем более старые.
func SortApplicable(rules []ApplicableRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i].Rule, rules[j].Rule
		if av, bv := a.DiscountValue(), b.DiscountValue(); av != bv {
			return av > bv
		}
		if a.IsPercent() != b.IsPercent() {
			return a.IsPercent()
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// CreateRuleInput входные данные для создания правила
type CreateRuleInput struct {
	OfferID         uuid.UUID   `json:"offer_id" binding:"required"`
	Name            string      `json:"name" binding:"required,min=2,max=120"`
	Type            RuleType    `json:"type" binding:"required,oneof=FIRST_COME SPECIFIC_TRAINER TIME_BASED REFERRAL"`
	DiscountPercent *float64    `json:"discount_percent" binding:"omitempty,gt=0,lte=100"`
	DiscountAmount  *float64    `json:"discount_amount" binding:"omitempty,gt=0"`
	MaxSubscribers  *int        `json:"max_subscribers" binding:"omitempty,gt=0"`
	StartDate       *time.Time  `json:"start_date"`
	EndDate         *time.Time  `json:"end_date"`
	DurationMonths  *int        `json:"duration_months" binding:"omitempty,gt=0"`
	TrainerIDs      []uuid.UUID `json:"trainer_ids"`
}

// Validate проверяет требования, зависящие от типа, и взаимоисключение процента и суммы.
func (in *CreateRuleInput) Validate() error {
	var verrs ValidationErrors
	validateDiscount(&verrs, in.DiscountPercent, in.DiscountAmount)
	validateTypeRequirements(&verrs, in.Type, in.MaxSubscribers, in.StartDate, in.EndDate, in.TrainerIDs)
	if verrs.HasErrors() {
		return verrs
	}
	return nil
}

// UpdateRuleInput - частичное обновление правила.
type UpdateRuleInput struct {
	Name            *string     `json:"name" binding:"omitempty,min=2,max=120"`
	DiscountPercent *float64    `json:"discount_percent" binding:"omitempty,gt=0,lte=100"`
	DiscountAmount  *float64    `json:"discount_amount" binding:"omitempty,gt=0"`
	MaxSubscribers  *int        `json:"max_subscribers" binding:"omitempty,gt=0"`
	StartDate       *time.Time  `json:"start_date"`
	EndDate         *time.Time  `json:"end_date"`
	DurationMonths  *int        `json:"duration_months" binding:"omitempty,gt=0"`
	IsActive        *bool       `json:"is_active"`
	TrainerIDs      []uuid.UUID `json:"trainer_ids"`
}

// ApplyTo возвращает копию правила с применённым обновлением для повторной валидации.
func (in *UpdateRuleInput) ApplyTo(rule PricingRule) PricingRule {
	if in.Name != nil {
		rule.Name = *in.Name
	}
	if in.DiscountPercent != nil {
		rule.DiscountPercent = in.DiscountPercent
		rule.DiscountAmount = nil
	}
	if in.DiscountAmount != nil {
		rule.DiscountAmount = in.DiscountAmount
		if in.DiscountPercent == nil {
			rule.DiscountPercent = nil
		}
	}
	if in.MaxSubscribers != nil {
		rule.MaxSubscribers = in.MaxSubscribers
	}
	if in.StartDate != nil {
		rule.StartDate = in.StartDate
	}
	if in.EndDate != nil {
		rule.EndDate = in.EndDate
	}
	if in.DurationMonths != nil {
		rule.DurationMonths = in.DurationMonths
	}
	if in.IsActive != nil {
		rule.IsActive = *in.IsActive
	}
	if in.TrainerIDs != nil {
		rule.TrainerIDs = in.TrainerIDs
	}
	return rule
}

// ValidateRule проверяет итоговое состояние правила после обновления.
func ValidateRule(r *PricingRule) error {
	var verrs ValidationErrors
	validateDiscount(&verrs, r.DiscountPercent, r.DiscountAmount)
	validateTypeRequirements(&verrs, r.Type, r.MaxSubscribers, r.StartDate, r.EndDate, r.TrainerIDs)
	if verrs.HasErrors() {
		return verrs
	}
	return nil
}

func validateDiscount(verrs *ValidationErrors, percent, amount *float64) {
	switch {
	case percent == nil && amount == nil:
		verrs.Add("discount", "either discount_percent or discount_amount is required")
	case percent != nil && amount != nil:
		verrs.Add("discount", "discount_percent and discount_amount are mutually exclusive")
	case percent != nil && (*percent <= 0 || *percent > 100):
		verrs.Add("discount_percent", "must be in (0, 100]")
	case amount != nil && *amount <= 0:
		verrs.Add("discount_amount", "must be positive")
	}
}

func validateTypeRequirements(verrs *ValidationErrors, t RuleType, maxSubs *int, start, end *time.Time, trainers []uuid.UUID) {
	switch t {
	case RuleTimeBased:
		if start == nil {
			verrs.Add("start_date", "required for TIME_BASED rules")
		}
		if end == nil {
			verrs.Add("end_date", "required for TIME_BASED rules")
		}
		if start != nil && end != nil && !end.After(*start) {
			verrs.Add("end_date", "must be after start_date")
		}
	case RuleFirstCome:
		if maxSubs == nil || *maxSubs <= 0 {
			verrs.Add("max_subscribers", "required for FIRST_COME rules")
		}
	case RuleSpecificTrainer:
		if len(trainers) == 0 {
			verrs.Add("trainer_ids", "required for SPECIFIC_TRAINER rules")
		}
	case RuleReferral:
	default:
		verrs.Add("type", "unknown rule type")
	}
}
