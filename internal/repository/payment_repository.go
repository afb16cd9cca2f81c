package repository

import (
	"context"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PaymentRepository - платежи. payment_intent_id и invoice_id уникальны.
type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	Update(ctx context.Context, p *domain.Payment) error
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Payment, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (*domain.Payment, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error)
	// FindLastBySubscription - последний платеж подписки; status nil означает любой статус.
	FindLastBySubscription(ctx context.Context, stripeSubscriptionID string, status *domain.PaymentStatus) (*domain.Payment, error)
	UpdateStatusByIntent(ctx context.Context, paymentIntentID string, status domain.PaymentStatus, receiptURL *string, paidAt *time.Time) (int64, error)
	UpdateStatusBySubscription(ctx context.Context, stripeSubscriptionID string, from, to domain.PaymentStatus) (int64, error)
	// BackfillInitial заполняет только пустые intent/invoice у первого платежа подписки.
	BackfillInitial(ctx context.Context, stripeSubscriptionID, invoiceID, paymentIntentID string) (int64, error)
}

const paymentColumns = `id, user_id, amount, currency, payment_intent_id, invoice_id, stripe_subscription_id,
       stripe_customer_id, receipt_url, status, paid_at, created_at, updated_at`

type postgresPaymentRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresPaymentRepository создает репозиторий платежей.
func NewPostgresPaymentRepository(db *sqlx.DB, log *logger.Logger) PaymentRepository {
	return &postgresPaymentRepo{db: db, log: log}
}

func (r *postgresPaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	now := time.Now().UTC()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	query := `
        INSERT INTO payments (
            id, user_id, amount, currency, payment_intent_id, invoice_id, stripe_subscription_id,
            stripe_customer_id, receipt_url, status, paid_at, created_at, updated_at
        ) VALUES (
            :id, :user_id, :amount, :currency, :payment_intent_id, :invoice_id, :stripe_subscription_id,
            :stripe_customer_id, :receipt_url, :status, :paid_at, :created_at, :updated_at
        )`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, p); err != nil {
		r.log.Errorw("Failed to create payment in DB", "error", err, "paymentID", p.ID, "userID", p.UserID)
		return wrapQueryErr("create payment", err)
	}
	r.log.Debugw("Successfully created payment in DB", "paymentID", p.ID)
	return nil
}

func (r *postgresPaymentRepo) Update(ctx context.Context, p *domain.Payment) error {
	p.UpdatedAt = time.Now().UTC()
	query := `
        UPDATE payments SET
            amount = :amount,
            payment_intent_id = :payment_intent_id,
            invoice_id = :invoice_id,
            stripe_customer_id = :stripe_customer_id,
            receipt_url = :receipt_url,
            status = :status,
            paid_at = :paid_at,
            updated_at = :updated_at
        WHERE id = :id`
	res, err := conn(ctx, r.db).NamedExecContext(ctx, query, p)
	if err != nil {
		return wrapQueryErr("update payment", err)
	}
	return requireAffected(res)
}

func (r *postgresPaymentRepo) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.Payment, error) {
	var p domain.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_intent_id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &p, query, paymentIntentID); err != nil {
		return nil, wrapQueryErr("get payment by intent", err)
	}
	return &p, nil
}

func (r *postgresPaymentRepo) GetByInvoiceID(ctx context.Context, invoiceID string) (*domain.Payment, error) {
	var p domain.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE invoice_id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &p, query, invoiceID); err != nil {
		return nil, wrapQueryErr("get payment by invoice", err)
	}
	return &p, nil
}

func (r *postgresPaymentRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	payments := []domain.Payment{}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`
	if err := conn(ctx, r.db).SelectContext(ctx, &payments, query, userID); err != nil {
		return nil, wrapQueryErr("list payments", err)
	}
	return payments, nil
}

func (r *postgresPaymentRepo) FindLastBySubscription(ctx context.Context, stripeSubscriptionID string, status *domain.PaymentStatus) (*domain.Payment, error) {
	builder := psql.Select(paymentColumns).
		From("payments").
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		OrderBy("created_at DESC").
		Limit(1)
	if status != nil {
		builder = builder.Where("status = ?", *status)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var p domain.Payment
	if err := conn(ctx, r.db).GetContext(ctx, &p, query, args...); err != nil {
		return nil, wrapQueryErr("find last payment", err)
	}
	return &p, nil
}

func (r *postgresPaymentRepo) UpdateStatusByIntent(ctx context.Context, paymentIntentID string, status domain.PaymentStatus, receiptURL *string, paidAt *time.Time) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
        UPDATE payments SET
            status = $2,
            receipt_url = COALESCE($3, receipt_url),
            paid_at = COALESCE($4, paid_at),
            updated_at = NOW()
        WHERE payment_intent_id = $1`,
		paymentIntentID, status, receiptURL, paidAt)
	if err != nil {
		r.log.Errorw("Failed to update payments by intent", "error", err, "paymentIntentID", paymentIntentID)
		return 0, wrapQueryErr("update payment status by intent", err)
	}
	return res.RowsAffected()
}

func (r *postgresPaymentRepo) UpdateStatusBySubscription(ctx context.Context, stripeSubscriptionID string, from, to domain.PaymentStatus) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
        UPDATE payments SET status = $3, updated_at = NOW()
        WHERE stripe_subscription_id = $1 AND status = $2`,
		stripeSubscriptionID, from, to)
	if err != nil {
		return 0, wrapQueryErr("update payment status by subscription", err)
	}
	return res.RowsAffected()
}

func (r *postgresPaymentRepo) BackfillInitial(ctx context.Context, stripeSubscriptionID, invoiceID, paymentIntentID string) (int64, error) {
	res, err := conn(ctx, r.db).ExecContext(ctx, `
        UPDATE payments SET
            invoice_id = COALESCE(invoice_id, NULLIF($2, '')),
            payment_intent_id = COALESCE(payment_intent_id, NULLIF($3, '')),
            updated_at = NOW()
        WHERE id = (
            SELECT id FROM payments
            WHERE stripe_subscription_id = $1
              AND status = 'COMPLETED'
              AND (invoice_id = $2 OR invoice_id IS NULL OR payment_intent_id IS NULL)
            ORDER BY created_at ASC
            LIMIT 1
        )
        AND (invoice_id IS NULL OR payment_intent_id IS NULL)`,
		stripeSubscriptionID, invoiceID, paymentIntentID)
	if err != nil {
		return 0, wrapQueryErr("backfill initial payment", err)
	}
	return res.RowsAffected()
}
