package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/config"
	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/internal/repository"
	"github.com/Dhoini/fitness-billing-service/internal/stripe"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/google/uuid"
)

// OfferPage - страница каталога предложений.
type OfferPage struct {
	Items []domain.SubscriptionOffer `json:"items"`
	Total int                        `json:"total"`
	Page  int                        `json:"page"`
	Limit int                        `json:"limit"`
}

// OfferService управляет каталогом предложений и их продуктами в Stripe.
type OfferService struct {
	offers   repository.OfferRepository
	gateway  stripe.Gateway
	currency string
	log      *logger.Logger
	now      func() time.Time
}

// NewOfferService конструктор сервиса
func NewOfferService(repos Repositories, gateway stripe.Gateway, cfg config.StripeConfig, log *logger.Logger) *OfferService {
	return &OfferService{
		offers:   repos.Offers,
		gateway:  gateway,
		currency: cfg.Currency,
		log:      log,
		now:      time.Now,
	}
}

// CreateOffer создает продукт и recurring-цену в Stripe, затем сохраняет предложение.
func (s *OfferService) CreateOffer(ctx context.Context, actor domain.Actor, in domain.CreateOfferInput) (*domain.SubscriptionOffer, error) {
	if actor.Role != domain.RoleTrainer {
		return nil, domain.Forbidden("only trainers can publish subscription offers")
	}
	currency := strings.ToLower(in.Currency)
	if currency == "" {
		currency = s.currency
	}

	productID, err := s.gateway.CreateProduct(ctx, stripe.ProductInput{
		Name:        in.Title,
		Description: in.Description,
		Metadata:    map[string]string{stripe.MetadataUserIDKey: actor.UserID.String()},
	})
	if err != nil {
		return nil, fmt.Errorf("create stripe product: %w", err)
	}

	interval, count := in.Duration.BillingInterval()
	priceID, err := s.gateway.CreateRecurringPrice(ctx, stripe.PriceInput{
		ProductID:     productID,
		UnitAmount:    stripe.ToMinorUnits(in.Price),
		Currency:      currency,
		Interval:      interval,
		IntervalCount: count,
	})
	if err != nil {
		// продукт без цены бесполезен
		if delErr := s.gateway.DeleteProduct(ctx, productID); delErr != nil {
			s.log.Errorw("Failed to delete orphaned stripe product", "error", delErr, "productID", productID)
		}
		return nil, fmt.Errorf("create stripe price: %w", err)
	}

	now := s.now()
	offer := &domain.SubscriptionOffer{
		ID:              uuid.New(),
		CreatorID:       actor.UserID,
		Title:           in.Title,
		Description:     in.Description,
		Price:           in.Price,
		Currency:        currency,
		PlanType:        in.PlanType,
		Duration:        in.Duration,
		StripeProductID: &productID,
		StripePriceID:   &priceID,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.offers.Create(ctx, offer); err != nil {
		s.log.Errorw("Failed to save subscription offer", "error", err, "productID", productID, "priceID", priceID)
		return nil, fmt.Errorf("save offer: %w", err)
	}

	s.log.Infow("Subscription offer created", "offerID", offer.ID, "trainerID", actor.UserID, "priceID", priceID)
	return offer, nil
}

// UpdateOffer обновляет предложение владельца. Смена цены создает новую цену в Stripe.
func (s *OfferService) UpdateOffer(ctx context.Context, actor domain.Actor, offerID uuid.UUID, in domain.UpdateOfferInput) (*domain.SubscriptionOffer, error) {
	offer, err := s.offers.GetByID(ctx, offerID)
	if err != nil {
		return nil, notFoundAs(err, "subscription offer not found")
	}
	if offer.CreatorID != actor.UserID {
		return nil, domain.NotFound("subscription offer not found")
	}
	if in.Duration != nil {
		return nil, domain.BadRequest("duration cannot be changed after the offer is created")
	}

	productChanged := false
	if in.Title != nil && *in.Title != offer.Title {
		offer.Title = *in.Title
		productChanged = true
	}
	if in.Description != nil && *in.Description != offer.Description {
		offer.Description = *in.Description
		productChanged = true
	}
	if in.PlanType != nil {
		offer.PlanType = *in.PlanType
	}
	if in.IsActive != nil {
		offer.IsActive = *in.IsActive
	}

	productID := domain.StrVal(offer.StripeProductID)
	if productChanged && productID != "" {
		if err := s.gateway.UpdateProduct(ctx, productID, stripe.ProductInput{
			Name:        offer.Title,
			Description: offer.Description,
		}); err != nil {
			return nil, fmt.Errorf("update stripe product: %w", err)
		}
	}

	if in.Price != nil && *in.Price != offer.Price {
		if productID == "" {
			return nil, domain.BadRequest("offer has no stripe product")
		}
		interval, count := offer.Duration.BillingInterval()
		newPriceID, err := s.gateway.CreateRecurringPrice(ctx, stripe.PriceInput{
			ProductID:     productID,
			UnitAmount:    stripe.ToMinorUnits(*in.Price),
			Currency:      offer.Currency,
			Interval:      interval,
			IntervalCount: count,
		})
		if err != nil {
			return nil, fmt.Errorf("create stripe price: %w", err)
		}
		if old := offer.PriceID(); old != "" {
			if err := s.gateway.DeactivatePrice(ctx, old); err != nil {
				s.log.Errorw("Failed to deactivate previous stripe price", "error", err, "priceID", old)
			}
		}
		offer.Price = *in.Price
		offer.StripePriceID = &newPriceID
	}

	offer.UpdatedAt = s.now()
	if err := s.offers.Update(ctx, offer); err != nil {
		return nil, notFoundAs(err, "subscription offer not found")
	}
	s.log.Infow("Subscription offer updated", "offerID", offer.ID, "priceID", offer.PriceID())
	return offer, nil
}

// GetOffer возвращает предложение по id.
func (s *OfferService) GetOffer(ctx context.Context, id uuid.UUID) (*domain.SubscriptionOffer, error) {
	offer, err := s.offers.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, "subscription offer not found")
	}
	return offer, nil
}

// ListOffers возвращает страницу каталога.
func (s *OfferService) ListOffers(ctx context.Context, filter domain.OfferFilter) (*OfferPage, error) {
	filter.Normalize()
	if filter.MinPrice != nil && filter.MaxPrice != nil && *filter.MinPrice > *filter.MaxPrice {
		return nil, domain.BadRequest("price_min cannot exceed price_max")
	}
	items, total, err := s.offers.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	if items == nil {
		items = []domain.SubscriptionOffer{}
	}
	return &OfferPage{Items: items, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}
