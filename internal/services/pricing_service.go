package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/internal/metrics"
	"github.com/Dhoini/fitness-billing-service/internal/repository"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/google/uuid"
)

// PricingService подбирает и применяет правила ценообразования, управляет ими.
type PricingService struct {
	rules    repository.PricingRuleRepository
	offers   repository.OfferRepository
	trainers repository.TrainerRepository
	tx       repository.Transactor
	metrics  metrics.BillingMetrics
	log      *logger.Logger
	now      func() time.Time
}

// NewPricingService конструктор сервиса
func NewPricingService(repos Repositories, m metrics.BillingMetrics, log *logger.Logger) *PricingService {
	return &PricingService{
		rules:    repos.Rules,
		offers:   repos.Offers,
		trainers: repos.Trainers,
		tx:       repos.Tx,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// ListApplicableRules возвращает правила предложения, доступные тренеру, по убыванию скидки.
func (s *PricingService) ListApplicableRules(ctx context.Context, trainerID, offerID uuid.UUID) ([]domain.ApplicableRule, error) {
	if _, err := s.trainers.GetByUserID(ctx, trainerID); err != nil {
		return nil, notFoundAs(err, "trainer profile not found")
	}
	offer, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, notFoundAs(err, "subscription offer not found")
	}

	rules, err := s.rules.ListByOffer(ctx, offerID, true)
	if err != nil {
		s.log.Errorw("Failed to list pricing rules", "error", err, "offerID", offerID)
		return nil, fmt.Errorf("list pricing rules: %w", err)
	}

	now := s.now()
	candidates := make([]domain.PricingRule, 0, len(rules))
	ids := make([]uuid.UUID, 0, len(rules))
	for _, r := range rules {
		if r.EligibleFor(trainerID, now) {
			candidates = append(candidates, r)
			ids = append(ids, r.ID)
		}
	}
	if len(candidates) == 0 {
		return []domain.ApplicableRule{}, nil
	}

	used, err := s.rules.UsedRuleIDs(ctx, trainerID, ids)
	if err != nil {
		return nil, fmt.Errorf("load rule usages: %w", err)
	}

	result := make([]domain.ApplicableRule, 0, len(candidates))
	for i := range candidates {
		rule := &candidates[i]
		if used[rule.ID] {
			continue
		}
		discounted := rule.DiscountedPrice(offer.Price)
		result = append(result, domain.ApplicableRule{
			Rule:            rule,
			OriginalPrice:   offer.Price,
			DiscountedPrice: discounted,
			Savings:         roundCents(offer.Price - discounted),
			RemainingSlots:  rule.RemainingSlots(),
		})
	}
	domain.SortApplicable(result)

	s.log.Debugw("Applicable pricing rules resolved", "trainerID", trainerID, "offerID", offerID, "count", len(result))
	return result, nil
}

// ApplyRule фиксирует использование правила подписчиком.
func (s *PricingService) ApplyRule(ctx context.Context, subscriberID, ruleID uuid.UUID, subscriptionID *uuid.UUID) (*domain.PricingRuleUsage, error) {
	rule, err := s.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, notFoundAs(err, "pricing rule not found")
	}
	if !rule.IsActive {
		return nil, domain.NotFound("pricing rule not found or inactive")
	}

	used, err := s.rules.HasUsage(ctx, ruleID, subscriberID)
	if err != nil {
		return nil, fmt.Errorf("check rule usage: %w", err)
	}
	if used {
		return nil, domain.Conflict("pricing rule already used")
	}

	now := s.now()
	switch rule.Type {
	case domain.RuleTimeBased:
		if !rule.WithinWindow(now) {
			return nil, domain.BadRequest("pricing rule is not active at this time")
		}
	case domain.RuleFirstCome:
		if !rule.HasCapacity() {
			return nil, domain.Conflict("pricing rule capacity exhausted")
		}
	case domain.RuleSpecificTrainer:
		if !rule.HasTrainer(subscriberID) {
			return nil, domain.Forbidden("pricing rule is not available for this trainer")
		}
	}

	usage := &domain.PricingRuleUsage{
		ID:             uuid.New(),
		RuleID:         ruleID,
		UserID:         subscriberID,
		SubscriptionID: subscriptionID,
		CreatedAt:      now,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.rules.InsertUsage(ctx, usage); err != nil {
			return conflictAs(err, "pricing rule already used")
		}
		ok, err := s.rules.IncrementUsage(ctx, ruleID, rule.Type == domain.RuleFirstCome)
		if err != nil {
			return err
		}
		if !ok {
			if rule.Type == domain.RuleFirstCome {
				return domain.Conflict("pricing rule capacity exhausted")
			}
			return domain.NotFound("pricing rule not found")
		}
		return nil
	})
	if err != nil {
		s.log.Warnw("Failed to apply pricing rule", "error", err, "ruleID", ruleID, "userID", subscriberID)
		return nil, err
	}

	s.metrics.IncPricingRuleApplied(rule.Type)
	s.log.Infow("Pricing rule applied", "ruleID", ruleID, "userID", subscriberID, "type", rule.Type)
	return usage, nil
}

// CreateRule создает правило вместе с набором тренеров.
func (s *PricingService) CreateRule(ctx context.Context, actor domain.Actor, in domain.CreateRuleInput) (*domain.RuleView, error) {
	if !actor.Role.IsAdmin() {
		return nil, domain.Forbidden("only administrators can manage pricing rules")
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.offers.GetByID(ctx, in.OfferID); err != nil {
		return nil, notFoundAs(err, "subscription offer not found")
	}

	now := s.now()
	rule := &domain.PricingRule{
		ID:              uuid.New(),
		OfferID:         in.OfferID,
		CreatedBy:       actor.UserID,
		Name:            in.Name,
		Type:            in.Type,
		DiscountPercent: in.DiscountPercent,
		DiscountAmount:  in.DiscountAmount,
		MaxSubscribers:  in.MaxSubscribers,
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
		DurationMonths:  in.DurationMonths,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.Type == domain.RuleSpecificTrainer {
		rule.TrainerIDs = in.TrainerIDs
	}

	if err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		return s.rules.Create(ctx, rule)
	}); err != nil {
		s.log.Errorw("Failed to create pricing rule", "error", err, "offerID", in.OfferID)
		return nil, conflictAs(err, "pricing rule already exists")
	}

	s.log.Infow("Pricing rule created", "ruleID", rule.ID, "type", rule.Type, "adminID", actor.UserID)
	return &domain.RuleView{PricingRule: rule, RemainingSlots: rule.RemainingSlots()}, nil
}

// UpdateRule частично обновляет правило. Итоговое состояние проверяется целиком.
func (s *PricingService) UpdateRule(ctx context.Context, actor domain.Actor, ruleID uuid.UUID, in domain.UpdateRuleInput) (*domain.RuleView, error) {
	if !actor.Role.IsAdmin() {
		return nil, domain.Forbidden("only administrators can manage pricing rules")
	}
	current, err := s.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, notFoundAs(err, "pricing rule not found")
	}

	next := in.ApplyTo(*current)
	if err := domain.ValidateRule(&next); err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.rules.Update(ctx, ruleID, in); err != nil {
			return err
		}
		if in.TrainerIDs != nil && current.Type == domain.RuleSpecificTrainer {
			return s.rules.ReplaceTrainers(ctx, ruleID, in.TrainerIDs)
		}
		return nil
	})
	if err != nil {
		s.log.Errorw("Failed to update pricing rule", "error", err, "ruleID", ruleID)
		return nil, notFoundAs(err, "pricing rule not found")
	}

	s.log.Infow("Pricing rule updated", "ruleID", ruleID, "adminID", actor.UserID)
	return s.GetRule(ctx, ruleID)
}

// DeleteRule удаляет правило без применений.
func (s *PricingService) DeleteRule(ctx context.Context, actor domain.Actor, ruleID uuid.UUID) error {
	if !actor.Role.IsAdmin() {
		return domain.Forbidden("only administrators can manage pricing rules")
	}
	if _, err := s.rules.GetByID(ctx, ruleID); err != nil {
		return notFoundAs(err, "pricing rule not found")
	}

	usages, err := s.rules.CountUsages(ctx, ruleID)
	if err != nil {
		return fmt.Errorf("count rule usages: %w", err)
	}
	if usages > 0 {
		return domain.BadRequest("pricing rule has been used %d time(s), deactivate it instead", usages)
	}

	if err := s.rules.Delete(ctx, ruleID); err != nil {
		if errors.Is(err, repository.ErrInvalidData) {
			return domain.BadRequest("pricing rule is referenced, deactivate it instead")
		}
		return notFoundAs(err, "pricing rule not found")
	}
	s.log.Infow("Pricing rule deleted", "ruleID", ruleID, "adminID", actor.UserID)
	return nil
}

// GetRule возвращает правило с оставшимися местами.
func (s *PricingService) GetRule(ctx context.Context, ruleID uuid.UUID) (*domain.RuleView, error) {
	rule, err := s.rules.GetByID(ctx, ruleID)
	if err != nil {
		return nil, notFoundAs(err, "pricing rule not found")
	}
	return &domain.RuleView{PricingRule: rule, RemainingSlots: rule.RemainingSlots()}, nil
}

// ListRules возвращает все правила.
func (s *PricingService) ListRules(ctx context.Context) ([]domain.RuleView, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pricing rules: %w", err)
	}
	views := make([]domain.RuleView, len(rules))
	for i := range rules {
		views[i] = domain.RuleView{PricingRule: &rules[i], RemainingSlots: rules[i].RemainingSlots()}
	}
	return views, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
