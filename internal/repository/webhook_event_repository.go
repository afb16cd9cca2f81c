package repository

import (
	"context"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/jmoiron/sqlx"
)

// WebhookEventRepository - журнал доставки событий Stripe.
type WebhookEventRepository interface {
	// Begin регистрирует попытку обработки и возвращает текущий статус события.
	Begin(ctx context.Context, eventID, eventType string) (domain.WebhookEventStatus, error)
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, cause error) error
}

type postgresWebhookEventRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresWebhookEventRepository создает журнал событий.
func NewPostgresWebhookEventRepository(db *sqlx.DB, log *logger.Logger) WebhookEventRepository {
	return &postgresWebhookEventRepo{db: db, log: log}
}

func (r *postgresWebhookEventRepo) Begin(ctx context.Context, eventID, eventType string) (domain.WebhookEventStatus, error) {
	var status domain.WebhookEventStatus
	err := conn(ctx, r.db).GetContext(ctx, &status, `
        INSERT INTO webhook_events (id, type, status, attempt_count, received_at)
        VALUES ($1, $2, $3, 1, NOW())
        ON CONFLICT (id) DO UPDATE SET attempt_count = webhook_events.attempt_count + 1
        RETURNING status`,
		eventID, eventType, domain.WebhookEventStatusPending)
	if err != nil {
		r.log.Errorw("Failed to register webhook event", "error", err, "eventID", eventID)
		return "", wrapQueryErr("begin webhook event", err)
	}
	return status, nil
}

func (r *postgresWebhookEventRepo) MarkProcessed(ctx context.Context, eventID string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
        UPDATE webhook_events SET status = $2, last_error = NULL, processed_at = NOW()
        WHERE id = $1`,
		eventID, domain.WebhookEventStatusProcessed)
	return wrapQueryErr("mark webhook processed", err)
}

func (r *postgresWebhookEventRepo) MarkFailed(ctx context.Context, eventID string, cause error) error {
	var msg *string
	if cause != nil {
		s := cause.Error()
		msg = &s
	}
	_, err := conn(ctx, r.db).ExecContext(ctx, `
        UPDATE webhook_events SET status = $2, last_error = $3
        WHERE id = $1`,
		eventID, domain.WebhookEventStatusFailed, msg)
	return wrapQueryErr("mark webhook failed", err)
}
