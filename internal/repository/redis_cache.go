package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/config"
	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Префиксы ключей для различных типов данных
	offerKeyPrefix   = "offer:"
	webhookKeyPrefix = "webhook:"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// NewRedisClient подключается к Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Проверяем соединение с Redis
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", cfg.Addr)
	return client, nil
}

// RedisCacheRepository хранит предложения в Redis в виде JSON.
type RedisCacheRepository struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisCacheRepository создает кеш. Пустой ttl заменяется значением по умолчанию.
func NewRedisCacheRepository(client redis.Cmdable, prefix string, ttl time.Duration, log *logger.Logger) *RedisCacheRepository {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCacheRepository{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		log:    log,
	}
}

func (r *RedisCacheRepository) offerKey(id uuid.UUID) string {
	return r.prefix + ":" + offerKeyPrefix + id.String()
}

// CacheOffer кеширует предложение в Redis
func (r *RedisCacheRepository) CacheOffer(ctx context.Context, offer *domain.SubscriptionOffer) error {
	data, err := json.Marshal(offer)
	if err != nil {
		r.log.Errorw("Failed to marshal offer for caching", "error", err, "offerID", offer.ID)
		return fmt.Errorf("failed to marshal offer: %w", err)
	}

	if err := r.client.Set(ctx, r.offerKey(offer.ID), data, r.ttl).Err(); err != nil {
		r.log.Errorw("Failed to cache offer in Redis", "error", err, "offerID", offer.ID)
		return fmt.Errorf("failed to cache offer: %w", err)
	}

	r.log.Debugw("Offer cached successfully", "offerID", offer.ID)
	return nil
}

// GetCachedOffer возвращает (nil, nil), если ключа нет.
func (r *RedisCacheRepository) GetCachedOffer(ctx context.Context, id uuid.UUID) (*domain.SubscriptionOffer, error) {
	data, err := r.client.Get(ctx, r.offerKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.log.Debugw("Offer not found in cache", "offerID", id)
			return nil, nil
		}
		r.log.Errorw("Error getting offer from Redis", "error", err, "offerID", id)
		return nil, fmt.Errorf("failed to get offer from cache: %w", err)
	}

	var offer domain.SubscriptionOffer
	if err := json.Unmarshal(data, &offer); err != nil {
		r.log.Errorw("Failed to unmarshal cached offer", "error", err, "offerID", id)
		return nil, fmt.Errorf("failed to unmarshal cached offer: %w", err)
	}

	r.log.Debugw("Offer retrieved from cache", "offerID", id)
	return &offer, nil
}

// DeleteCachedOffer удаляет предложение из кеша
func (r *RedisCacheRepository) DeleteCachedOffer(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, r.offerKey(id)).Err(); err != nil {
		r.log.Errorw("Failed to delete offer from cache", "error", err, "offerID", id)
		return fmt.Errorf("failed to delete offer from cache: %w", err)
	}

	r.log.Debugw("Offer deleted from cache", "offerID", id)
	return nil
}

// ClaimWebhookEvent атомарно помечает событие как полученное. false - событие уже было.
func (r *RedisCacheRepository) ClaimWebhookEvent(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	key := r.prefix + ":" + webhookKeyPrefix + eventID
	ok, err := r.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim webhook event: %w", err)
	}
	return ok, nil
}

// ReleaseWebhookEvent снимает отметку, чтобы повторная доставка обработала событие заново.
func (r *RedisCacheRepository) ReleaseWebhookEvent(ctx context.Context, eventID string) error {
	key := r.prefix + ":" + webhookKeyPrefix + eventID
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release webhook event: %w", err)
	}
	return nil
}
