package repository

import (
	"context"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/google/uuid"
)

// CachedOfferRepository реализует OfferRepository с кешированием
type CachedOfferRepository struct {
	repo  OfferRepository
	cache *RedisCacheRepository
	log   *logger.Logger
}

// NewCachedOfferRepository создает новый репозиторий с кешированием
func NewCachedOfferRepository(repo OfferRepository, cache *RedisCacheRepository, log *logger.Logger) OfferRepository {
	return &CachedOfferRepository{
		repo:  repo,
		cache: cache,
		log:   log,
	}
}

// Create сохраняет предложение в БД и кеширует его
func (r *CachedOfferRepository) Create(ctx context.Context, offer *domain.SubscriptionOffer) error {
	if err := r.repo.Create(ctx, offer); err != nil {
		return err
	}
	if err := r.cache.CacheOffer(ctx, offer); err != nil {
		r.log.Warnw("Failed to cache offer after creation", "error", err, "offerID", offer.ID)
	}
	return nil
}

// GetByID получает предложение по ID (сначала из кеша, потом из БД)
func (r *CachedOfferRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.SubscriptionOffer, error) {
	cached, err := r.cache.GetCachedOffer(ctx, id)
	if err != nil {
		// Продолжаем выполнение при ошибке кеша
		r.log.Warnw("Error getting offer from cache", "error", err, "offerID", id)
	}
	if cached != nil {
		return cached, nil
	}

	offer, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.cache.CacheOffer(ctx, offer); err != nil {
		r.log.Warnw("Failed to cache offer after fetching", "error", err, "offerID", id)
	}
	return offer, nil
}

func (r *CachedOfferRepository) GetByStripePriceID(ctx context.Context, priceID string) (*domain.SubscriptionOffer, error) {
	return r.repo.GetByStripePriceID(ctx, priceID)
}

// Update обновляет предложение и инвалидирует кеш
func (r *CachedOfferRepository) Update(ctx context.Context, offer *domain.SubscriptionOffer) error {
	if err := r.repo.Update(ctx, offer); err != nil {
		return err
	}
	if err := r.cache.DeleteCachedOffer(ctx, offer.ID); err != nil {
		r.log.Warnw("Failed to invalidate offer cache", "error", err, "offerID", offer.ID)
	}
	return nil
}

// List не кешируется: фильтры делают ключи неограниченными.
func (r *CachedOfferRepository) List(ctx context.Context, filter domain.OfferFilter) ([]domain.SubscriptionOffer, int, error) {
	return r.repo.List(ctx, filter)
}
