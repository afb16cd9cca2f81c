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

// OfferRepository - каталог предложений.
type OfferRepository interface {
	Create(ctx context.Context, offer *domain.SubscriptionOffer) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SubscriptionOffer, error)
	GetByStripePriceID(ctx context.Context, priceID string) (*domain.SubscriptionOffer, error)
	Update(ctx context.Context, offer *domain.SubscriptionOffer) error
	List(ctx context.Context, filter domain.OfferFilter) ([]domain.SubscriptionOffer, int, error)
}

const offerColumns = `id, creator_id, title, description, price, currency, plan_type, duration,
       stripe_product_id, stripe_price_id, is_active, created_at, updated_at`

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

type postgresOfferRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresOfferRepository создает репозиторий предложений.
func NewPostgresOfferRepository(db *sqlx.DB, log *logger.Logger) OfferRepository {
	return &postgresOfferRepo{db: db, log: log}
}

func (r *postgresOfferRepo) Create(ctx context.Context, offer *domain.SubscriptionOffer) error {
	now := time.Now().UTC()
	if offer.ID == uuid.Nil {
		offer.ID = uuid.New()
	}
	offer.CreatedAt = now
	offer.UpdatedAt = now

	query := `
        INSERT INTO subscription_offers (
            id, creator_id, title, description, price, currency, plan_type, duration,
            stripe_product_id, stripe_price_id, is_active, created_at, updated_at
        ) VALUES (
            :id, :creator_id, :title, :description, :price, :currency, :plan_type, :duration,
            :stripe_product_id, :stripe_price_id, :is_active, :created_at, :updated_at
        )`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, offer); err != nil {
		r.log.Errorw("Failed to create offer in DB", "error", err, "offerID", offer.ID)
		return wrapQueryErr("create offer", err)
	}
	r.log.Debugw("Successfully created offer in DB", "offerID", offer.ID)
	return nil
}

func (r *postgresOfferRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.SubscriptionOffer, error) {
	var o domain.SubscriptionOffer
	query := `SELECT ` + offerColumns + ` FROM subscription_offers WHERE id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &o, query, id); err != nil {
		return nil, wrapQueryErr("get offer", err)
	}
	return &o, nil
}

func (r *postgresOfferRepo) GetByStripePriceID(ctx context.Context, priceID string) (*domain.SubscriptionOffer, error) {
	var o domain.SubscriptionOffer
	query := `SELECT ` + offerColumns + ` FROM subscription_offers WHERE stripe_price_id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &o, query, priceID); err != nil {
		return nil, wrapQueryErr("get offer by price", err)
	}
	return &o, nil
}

// Update обновляет изменяемые поля. duration и creator_id не обновляются.
func (r *postgresOfferRepo) Update(ctx context.Context, offer *domain.SubscriptionOffer) error {
	offer.UpdatedAt = time.Now().UTC()
	query := `
        UPDATE subscription_offers SET
            title = :title,
            description = :description,
            price = :price,
            plan_type = :plan_type,
            stripe_product_id = :stripe_product_id,
            stripe_price_id = :stripe_price_id,
            is_active = :is_active,
            updated_at = :updated_at
        WHERE id = :id`
	res, err := conn(ctx, r.db).NamedExecContext(ctx, query, offer)
	if err != nil {
		r.log.Errorw("Failed to update offer in DB", "error", err, "offerID", offer.ID)
		return wrapQueryErr("update offer", err)
	}
	return requireAffected(res)
}

// List возвращает страницу предложений и общее количество по фильтру.
func (r *postgresOfferRepo) List(ctx context.Context, filter domain.OfferFilter) ([]domain.SubscriptionOffer, int, error) {
	filter.Normalize()

	where := squirrel.And{}
	if filter.SearchTerm != "" {
		pattern := "%" + filter.SearchTerm + "%"
		where = append(where, squirrel.Or{
			squirrel.ILike{"title": pattern},
			squirrel.ILike{"description": pattern},
		})
	}
	if filter.MinPrice != nil {
		where = append(where, squirrel.GtOrEq{"price": *filter.MinPrice})
	}
	if filter.MaxPrice != nil {
		where = append(where, squirrel.LtOrEq{"price": *filter.MaxPrice})
	}
	if filter.Duration != nil {
		where = append(where, squirrel.Eq{"duration": *filter.Duration})
	}
	if filter.IsActive != nil {
		where = append(where, squirrel.Eq{"is_active": *filter.IsActive})
	}

	countQuery, countArgs, err := psql.Select("COUNT(*)").From("subscription_offers").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := conn(ctx, r.db).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		return nil, 0, wrapQueryErr("count offers", err)
	}

	listQuery, listArgs, err := psql.Select(offerColumns).
		From("subscription_offers").
		Where(where).
		OrderBy("created_at DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset())).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	offers := []domain.SubscriptionOffer{}
	if err := conn(ctx, r.db).SelectContext(ctx, &offers, listQuery, listArgs...); err != nil {
		return nil, 0, wrapQueryErr("list offers", err)
	}
	return offers, total, nil
}
