package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SubscriberRepository - биллинговые поля пользователей.
type SubscriberRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscriber, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Subscriber, error)
	// LockForUpdate блокирует строку пользователя до конца транзакции.
	LockForUpdate(ctx context.Context, id uuid.UUID) error
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
	UpdateSubscriptionFlags(ctx context.Context, id uuid.UUID, flags domain.SubscriptionFlags) error
	// ExtendByStripeSubscription продлевает пользователей с оплаченной (COMPLETED) подпиской на этот stripe id.
	ExtendByStripeSubscription(ctx context.Context, stripeSubscriptionID string, end time.Time, markSubscribed bool) (int64, error)
}

// TrainerRepository - профили тренеров.
type TrainerRepository interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.TrainerProfile, error)
	GetByStripeAccountID(ctx context.Context, accountID string) (*domain.TrainerProfile, error)
	SetStripeAccount(ctx context.Context, userID uuid.UUID, accountID, onboardingURL string) error
	// CompleteOnboarding возвращает false, если онбординг уже был отмечен.
	CompleteOnboarding(ctx context.Context, userID uuid.UUID) (bool, error)
}

const subscriberColumns = `id, email, full_name, role, stripe_customer_id, is_subscribed,
       subscription_end, subscription_plan, stripe_subscription_id, updated_at`

type postgresSubscriberRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresSubscriberRepository создает репозиторий пользователей.
func NewPostgresSubscriberRepository(db *sqlx.DB, log *logger.Logger) SubscriberRepository {
	return &postgresSubscriberRepo{db: db, log: log}
}

func (r *postgresSubscriberRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Subscriber, error) {
	var s domain.Subscriber
	query := `SELECT ` + subscriberColumns + ` FROM users WHERE id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &s, query, id); err != nil {
		return nil, wrapQueryErr("get subscriber", err)
	}
	return &s, nil
}

func (r *postgresSubscriberRepo) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.Subscriber, error) {
	var s domain.Subscriber
	query := `SELECT ` + subscriberColumns + ` FROM users WHERE stripe_customer_id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &s, query, customerID); err != nil {
		return nil, wrapQueryErr("get subscriber by stripe customer", err)
	}
	return &s, nil
}

func (r *postgresSubscriberRepo) LockForUpdate(ctx context.Context, id uuid.UUID) error {
	var locked uuid.UUID
	err := conn(ctx, r.db).GetContext(ctx, &locked, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, id)
	return wrapQueryErr("lock subscriber", err)
}

func (r *postgresSubscriberRepo) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	res, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE users SET stripe_customer_id = $2, updated_at = NOW() WHERE id = $1`, id, customerID)
	if err != nil {
		r.log.Errorw("Failed to set stripe customer id", "error", err, "userID", id)
		return wrapQueryErr("set stripe customer", err)
	}
	return requireAffected(res)
}

func (r *postgresSubscriberRepo) UpdateSubscriptionFlags(ctx context.Context, id uuid.UUID, flags domain.SubscriptionFlags) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
        UPDATE users SET
            is_subscribed = $2,
            subscription_end = $3,
            subscription_plan = $4,
            stripe_subscription_id = $5,
            updated_at = NOW()
        WHERE id = $1`,
		id, flags.IsSubscribed, flags.SubscriptionEnd, flags.SubscriptionPlan, flags.StripeSubscriptionID)
	if err != nil {
		r.log.Errorw("Failed to update subscription flags", "error", err, "userID", id)
		return wrapQueryErr("update subscription flags", err)
	}
	return requireAffected(res)
}

func (r *postgresSubscriberRepo) ExtendByStripeSubscription(ctx context.Context, stripeSubscriptionID string, end time.Time, markSubscribed bool) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
        UPDATE users SET
            subscription_end = $2,
            is_subscribed = CASE WHEN $3 THEN TRUE ELSE is_subscribed END,
            updated_at = NOW()
        WHERE id IN (
            SELECT user_id FROM user_subscriptions
            WHERE stripe_subscription_id = $1 AND payment_status = $4)`,
		stripeSubscriptionID, end, markSubscribed, domain.PaymentStatusCompleted)
	if err != nil {
		return 0, wrapQueryErr("extend subscribers", err)
	}
	return res.RowsAffected()
}

const trainerColumns = `user_id, stripe_account_id, onboarding_completed, onboarding_url, created_at, updated_at`

type postgresTrainerRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresTrainerRepository создает репозиторий профилей тренеров.
func NewPostgresTrainerRepository(db *sqlx.DB, log *logger.Logger) TrainerRepository {
	return &postgresTrainerRepo{db: db, log: log}
}

func (r *postgresTrainerRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.TrainerProfile, error) {
	var p domain.TrainerProfile
	query := `SELECT ` + trainerColumns + ` FROM trainer_profiles WHERE user_id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &p, query, userID); err != nil {
		return nil, wrapQueryErr("get trainer profile", err)
	}
	return &p, nil
}

func (r *postgresTrainerRepo) GetByStripeAccountID(ctx context.Context, accountID string) (*domain.TrainerProfile, error) {
	var p domain.TrainerProfile
	query := `SELECT ` + trainerColumns + ` FROM trainer_profiles WHERE stripe_account_id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &p, query, accountID); err != nil {
		return nil, wrapQueryErr("get trainer by account", err)
	}
	return &p, nil
}

func (r *postgresTrainerRepo) SetStripeAccount(ctx context.Context, userID uuid.UUID, accountID, onboardingURL string) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
        INSERT INTO trainer_profiles (user_id, stripe_account_id, onboarding_url)
        VALUES ($1, $2, $3)
        ON CONFLICT (user_id) DO UPDATE SET
            stripe_account_id = EXCLUDED.stripe_account_id,
            onboarding_url = EXCLUDED.onboarding_url,
            updated_at = NOW()`,
		userID, accountID, onboardingURL)
	if err != nil {
		r.log.Errorw("Failed to store stripe account", "error", err, "userID", userID)
		return wrapQueryErr("set stripe account", err)
	}
	return nil
}

func (r *postgresTrainerRepo) CompleteOnboarding(ctx context.Context, userID uuid.UUID) (bool, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
        UPDATE trainer_profiles SET
            onboarding_completed = TRUE,
            onboarding_url = NULL,
            updated_at = NOW()
        WHERE user_id = $1 AND onboarding_completed = FALSE`, userID)
	if err != nil {
		return false, wrapQueryErr("complete onboarding", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// wrapQueryErr сохраняет ErrNotFound/ErrDuplicate для errors.Is и добавляет контекст.
func wrapQueryErr(op string, err error) error {
	if err == nil {
		return nil
	}
	mapped := mapDBError(err)
	if mapped == ErrNotFound {
		return ErrNotFound
	}
	return fmt.Errorf("repository: %s: %w", op, mapped)
}

func requireAffected(res interface{ RowsAffected() (int64, error) }) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
