package repository

import (
	"context"
	"time"

	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	gocache "github.com/patrickmn/go-cache"
)

const defaultDedupTTL = 24 * time.Hour

// EventDeduplicator отсеивает повторные доставки одного события.
type EventDeduplicator interface {
	// Claim возвращает false, если событие уже было получено.
	Claim(ctx context.Context, eventID string) bool
	// Release забывает событие после неудачной обработки.
	Release(ctx context.Context, eventID string)
}

// TwoLevelDeduplicator - локальный кеш процесса, затем общий Redis.
type TwoLevelDeduplicator struct {
	local  *gocache.Cache
	remote *RedisCacheRepository
	ttl    time.Duration
	log    *logger.Logger
}

// NewEventDeduplicator создает дедупликатор. remote может быть nil.
func NewEventDeduplicator(remote *RedisCacheRepository, ttl time.Duration, log *logger.Logger) *TwoLevelDeduplicator {
	if ttl <= 0 {
		ttl = defaultDedupTTL
	}
	return &TwoLevelDeduplicator{
		local:  gocache.New(ttl, ttl/2),
		remote: remote,
		ttl:    ttl,
		log:    log,
	}
}

func (d *TwoLevelDeduplicator) Claim(ctx context.Context, eventID string) bool {
	// Add атомарен и не перезаписывает существующий ключ
	if err := d.local.Add(eventID, struct{}{}, d.ttl); err != nil {
		d.log.Debugw("Webhook event already seen locally", "eventID", eventID)
		return false
	}
	if d.remote == nil {
		return true
	}

	ok, err := d.remote.ClaimWebhookEvent(ctx, eventID, d.ttl)
	if err != nil {
		// Redis недоступен: решение остаётся за журналом в БД
		d.log.Warnw("Webhook dedup via Redis failed", "error", err, "eventID", eventID)
		return true
	}
	if !ok {
		// событие принадлежит другому экземпляру; после его Release повтор должен пройти здесь
		d.local.Delete(eventID)
		d.log.Debugw("Webhook event already claimed by another instance", "eventID", eventID)
	}
	return ok
}

func (d *TwoLevelDeduplicator) Release(ctx context.Context, eventID string) {
	d.local.Delete(eventID)
	if d.remote == nil {
		return
	}
	if err := d.remote.ReleaseWebhookEvent(ctx, eventID); err != nil {
		d.log.Warnw("Failed to release webhook event", "error", err, "eventID", eventID)
	}
}
