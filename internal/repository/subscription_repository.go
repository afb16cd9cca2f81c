package repository

import (
	"context"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SubscriptionRepository - подписки пользователей. Записи никогда не удаляются.
type SubscriptionRepository interface {
	Create(ctx context.Context, sub *domain.UserSubscription) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSubscription, error)
	GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*domain.UserSubscription, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.UserSubscription, error)
	// FindActiveByUser возвращает ErrNotFound, если активной подписки нет.
	FindActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.UserSubscription, error)
	CountActiveByUser(ctx context.Context, userID uuid.UUID, excludeID uuid.UUID, now time.Time) (int, error)
	// Update перезаписывает предложение, период, stripe id и статус.
	Update(ctx context.Context, sub *domain.UserSubscription) error
	// UpdateByStripeID массово обновляет строки одной подписки Stripe.
	UpdateByStripeID(ctx context.Context, stripeSubscriptionID string, upd SubscriptionUpdate) (int64, error)
}

// SubscriptionUpdate - частичное обновление. OnlyStatus/UserID сужают выборку.
type SubscriptionUpdate struct {
	OnlyStatus *domain.PaymentStatus
	UserID     *uuid.UUID
	Status     *domain.PaymentStatus
	EndDate    *time.Time
}

const userSubscriptionColumns = `id, user_id, offer_id, start_date, end_date, stripe_subscription_id,
       payment_status, created_at, updated_at`

type postgresSubscriptionRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresSubscriptionRepository создает новый экземпляр репозитория для PostgreSQL.
func NewPostgresSubscriptionRepository(db *sqlx.DB, log *logger.Logger) SubscriptionRepository {
	return &postgresSubscriptionRepo{
		db:  db,
		log: log,
	}
}

// Create сохраняет новую подписку в базе данных.
func (r *postgresSubscriptionRepo) Create(ctx context.Context, sub *domain.UserSubscription) error {
	now := time.Now().UTC()
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	sub.CreatedAt = now
	sub.UpdatedAt = now

	query := `
        INSERT INTO user_subscriptions (
            id, user_id, offer_id, start_date, end_date, stripe_subscription_id,
            payment_status, created_at, updated_at
        ) VALUES (
            :id, :user_id, :offer_id, :start_date, :end_date, :stripe_subscription_id,
            :payment_status, :created_at, :updated_at
        )`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, sub); err != nil {
		r.log.Errorw("Failed to create subscription in DB", "error", err, "subscriptionID", sub.ID, "userID", sub.UserID)
		return wrapQueryErr("create subscription", err)
	}

	r.log.Debugw("Successfully created subscription in DB", "subscriptionID", sub.ID, "userID", sub.UserID)
	return nil
}

// GetByID возвращает подписку по ее ID.
func (r *postgresSubscriptionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.UserSubscription, error) {
	var sub domain.UserSubscription
	query := `SELECT ` + userSubscriptionColumns + ` FROM user_subscriptions WHERE id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &sub, query, id); err != nil {
		return nil, wrapQueryErr("get subscription", err)
	}
	return &sub, nil
}

// GetByStripeSubscriptionID возвращает подписку по ее Stripe ID.
func (r *postgresSubscriptionRepo) GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*domain.UserSubscription, error) {
	var sub domain.UserSubscription
	query := `SELECT ` + userSubscriptionColumns + ` FROM user_subscriptions WHERE stripe_subscription_id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &sub, query, stripeSubscriptionID); err != nil {
		return nil, wrapQueryErr("get subscription by stripe id", err)
	}
	return &sub, nil
}

// ListByUser возвращает все подписки пользователя, новые первыми.
func (r *postgresSubscriptionRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.UserSubscription, error) {
	subs := []domain.UserSubscription{}
	query := `SELECT ` + userSubscriptionColumns + ` FROM user_subscriptions WHERE user_id = $1 ORDER BY created_at DESC`
	if err := conn(ctx, r.db).SelectContext(ctx, &subs, query, userID); err != nil {
		r.log.Errorw("Failed to get subscriptions by user ID from DB", "error", err, "userID", userID)
		return nil, wrapQueryErr("list subscriptions", err)
	}
	return subs, nil
}

func (r *postgresSubscriptionRepo) FindActiveByUser(ctx context.Context, userID uuid.UUID, now time.Time) (*domain.UserSubscription, error) {
	var sub domain.UserSubscription
	query := `SELECT ` + userSubscriptionColumns + `
        FROM user_subscriptions
        WHERE user_id = $1 AND payment_status = $2 AND end_date > $3
        ORDER BY end_date DESC
        LIMIT 1`
	if err := conn(ctx, r.db).GetContext(ctx, &sub, query, userID, domain.PaymentStatusCompleted, now); err != nil {
		return nil, wrapQueryErr("find active subscription", err)
	}
	return &sub, nil
}

func (r *postgresSubscriptionRepo) CountActiveByUser(ctx context.Context, userID uuid.UUID, excludeID uuid.UUID, now time.Time) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM user_subscriptions
        WHERE user_id = $1 AND payment_status = $2 AND end_date > $3 AND id <> $4`
	if err := conn(ctx, r.db).GetContext(ctx, &n, query, userID, domain.PaymentStatusCompleted, now, excludeID); err != nil {
		return 0, wrapQueryErr("count active subscriptions", err)
	}
	return n, nil
}

func (r *postgresSubscriptionRepo) Update(ctx context.Context, sub *domain.UserSubscription) error {
	sub.UpdatedAt = time.Now().UTC()
	query := `
        UPDATE user_subscriptions SET
            offer_id = :offer_id,
            start_date = :start_date,
            end_date = :end_date,
            stripe_subscription_id = :stripe_subscription_id,
            payment_status = :payment_status,
            updated_at = :updated_at
        WHERE id = :id`
	res, err := conn(ctx, r.db).NamedExecContext(ctx, query, sub)
	if err != nil {
		r.log.Errorw("Failed to update subscription in DB", "error", err, "subscriptionID", sub.ID)
		return wrapQueryErr("update subscription", err)
	}
	return requireAffected(res)
}

func (r *postgresSubscriptionRepo) UpdateByStripeID(ctx context.Context, stripeSubscriptionID string, upd SubscriptionUpdate) (int64, error) {
	builder := psql.Update("user_subscriptions").
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"stripe_subscription_id": stripeSubscriptionID})

	if upd.Status == nil && upd.EndDate == nil {
		return 0, nil
	}
	if upd.Status != nil {
		builder = builder.Set("payment_status", *upd.Status)
	}
	if upd.EndDate != nil {
		builder = builder.Set("end_date", *upd.EndDate)
	}
	if upd.OnlyStatus != nil {
		builder = builder.Where(squirrel.Eq{"payment_status": *upd.OnlyStatus})
	}
	if upd.UserID != nil {
		builder = builder.Where(squirrel.Eq{"user_id": *upd.UserID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}
	res, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Errorw("Failed to update subscriptions by stripe id", "error", err, "stripeSubscriptionID", stripeSubscriptionID)
		return 0, wrapQueryErr("update subscriptions by stripe id", err)
	}
	return res.RowsAffected()
}
