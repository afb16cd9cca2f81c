package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Dhoini/fitness-billing-service/internal/domain"
	"github.com/Dhoini/fitness-billing-service/pkg/logger"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// PricingRuleRepository - правила ценообразования и их использования.
type PricingRuleRepository interface {
	// Create сохраняет правило вместе с набором тренеров.
	Create(ctx context.Context, rule *domain.PricingRule) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PricingRule, error)
	List(ctx context.Context) ([]domain.PricingRule, error)
	ListByOffer(ctx context.Context, offerID uuid.UUID, activeOnly bool) ([]domain.PricingRule, error)
	// Update записывает только заданные поля.
	Update(ctx context.Context, id uuid.UUID, in domain.UpdateRuleInput) error
	ReplaceTrainers(ctx context.Context, ruleID uuid.UUID, trainerIDs []uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error

	CountUsages(ctx context.Context, ruleID uuid.UUID) (int, error)
	HasUsage(ctx context.Context, ruleID, userID uuid.UUID) (bool, error)
	// UsedRuleIDs возвращает подмножество ruleIDs, уже использованных userID.
	UsedRuleIDs(ctx context.Context, userID uuid.UUID, ruleIDs []uuid.UUID) (map[uuid.UUID]bool, error)
	// InsertUsage возвращает ErrDuplicate при повторном использовании.
	InsertUsage(ctx context.Context, usage *domain.PricingRuleUsage) error
	// IncrementUsage возвращает false, если лимит уже исчерпан (только при capped).
	IncrementUsage(ctx context.Context, ruleID uuid.UUID, capped bool) (bool, error)
}

const pricingRuleColumns = `id, offer_id, created_by, name, type, discount_percent, discount_amount,
       max_subscribers, start_date, end_date, duration_months, usage_count, is_active, created_at, updated_at`

type postgresPricingRuleRepo struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewPostgresPricingRuleRepository создает репозиторий правил.
func NewPostgresPricingRuleRepository(db *sqlx.DB, log *logger.Logger) PricingRuleRepository {
	return &postgresPricingRuleRepo{db: db, log: log}
}

func (r *postgresPricingRuleRepo) Create(ctx context.Context, rule *domain.PricingRule) error {
	now := time.Now().UTC()
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	rule.CreatedAt = now
	rule.UpdatedAt = now

	query := `
        INSERT INTO pricing_rules (
            id, offer_id, created_by, name, type, discount_percent, discount_amount,
            max_subscribers, start_date, end_date, duration_months, usage_count, is_active,
            created_at, updated_at
        ) VALUES (
            :id, :offer_id, :created_by, :name, :type, :discount_percent, :discount_amount,
            :max_subscribers, :start_date, :end_date, :duration_months, :usage_count, :is_active,
            :created_at, :updated_at
        )`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, rule); err != nil {
		r.log.Errorw("Failed to create pricing rule in DB", "error", err, "ruleID", rule.ID)
		return wrapQueryErr("create pricing rule", err)
	}
	if err := r.insertTrainers(ctx, rule.ID, rule.TrainerIDs); err != nil {
		return err
	}

	r.log.Debugw("Successfully created pricing rule in DB", "ruleID", rule.ID, "type", rule.Type)
	return nil
}

func (r *postgresPricingRuleRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PricingRule, error) {
	var rule domain.PricingRule
	query := `SELECT ` + pricingRuleColumns + ` FROM pricing_rules WHERE id = $1`
	if err := conn(ctx, r.db).GetContext(ctx, &rule, query, id); err != nil {
		return nil, wrapQueryErr("get pricing rule", err)
	}

	rules := []domain.PricingRule{rule}
	if err := r.loadTrainers(ctx, rules); err != nil {
		return nil, err
	}
	return &rules[0], nil
}

func (r *postgresPricingRuleRepo) List(ctx context.Context) ([]domain.PricingRule, error) {
	rules := []domain.PricingRule{}
	query := `SELECT ` + pricingRuleColumns + ` FROM pricing_rules ORDER BY created_at DESC`
	if err := conn(ctx, r.db).SelectContext(ctx, &rules, query); err != nil {
		return nil, wrapQueryErr("list pricing rules", err)
	}
	if err := r.loadTrainers(ctx, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *postgresPricingRuleRepo) ListByOffer(ctx context.Context, offerID uuid.UUID, activeOnly bool) ([]domain.PricingRule, error) {
	builder := psql.Select(pricingRuleColumns).
		From("pricing_rules").
		Where(squirrel.Eq{"offer_id": offerID}).
		OrderBy("created_at ASC")
	if activeOnly {
		builder = builder.Where(squirrel.Eq{"is_active": true})
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	rules := []domain.PricingRule{}
	if err := conn(ctx, r.db).SelectContext(ctx, &rules, query, args...); err != nil {
		return nil, wrapQueryErr("list offer pricing rules", err)
	}
	if err := r.loadTrainers(ctx, rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *postgresPricingRuleRepo) Update(ctx context.Context, id uuid.UUID, in domain.UpdateRuleInput) error {
	builder := psql.Update("pricing_rules").
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": id})

	if in.Name != nil {
		builder = builder.Set("name", *in.Name)
	}
	// процент и сумма взаимоисключающие: заданное поле обнуляет другое
	if in.DiscountPercent != nil {
		builder = builder.Set("discount_percent", *in.DiscountPercent).Set("discount_amount", nil)
	} else if in.DiscountAmount != nil {
		builder = builder.Set("discount_amount", *in.DiscountAmount).Set("discount_percent", nil)
	}
	if in.MaxSubscribers != nil {
		builder = builder.Set("max_subscribers", *in.MaxSubscribers)
	}
	if in.StartDate != nil {
		builder = builder.Set("start_date", *in.StartDate)
	}
	if in.EndDate != nil {
		builder = builder.Set("end_date", *in.EndDate)
	}
	if in.DurationMonths != nil {
		builder = builder.Set("duration_months", *in.DurationMonths)
	}
	if in.IsActive != nil {
		builder = builder.Set("is_active", *in.IsActive)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	res, err := conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Errorw("Failed to update pricing rule", "error", err, "ruleID", id)
		return wrapQueryErr("update pricing rule", err)
	}
	return requireAffected(res)
}

func (r *postgresPricingRuleRepo) ReplaceTrainers(ctx context.Context, ruleID uuid.UUID, trainerIDs []uuid.UUID) error {
	if _, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM pricing_rule_trainers WHERE rule_id = $1`, ruleID); err != nil {
		return wrapQueryErr("clear rule trainers", err)
	}
	return r.insertTrainers(ctx, ruleID, trainerIDs)
}

func (r *postgresPricingRuleRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM pricing_rules WHERE id = $1`, id)
	if err != nil {
		return wrapQueryErr("delete pricing rule", err)
	}
	return requireAffected(res)
}

func (r *postgresPricingRuleRepo) CountUsages(ctx context.Context, ruleID uuid.UUID) (int, error) {
	var n int
	if err := conn(ctx, r.db).GetContext(ctx, &n, `SELECT COUNT(*) FROM pricing_rule_usages WHERE rule_id = $1`, ruleID); err != nil {
		return 0, wrapQueryErr("count rule usages", err)
	}
	return n, nil
}

func (r *postgresPricingRuleRepo) HasUsage(ctx context.Context, ruleID, userID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM pricing_rule_usages WHERE rule_id = $1 AND user_id = $2)`
	if err := conn(ctx, r.db).GetContext(ctx, &exists, query, ruleID, userID); err != nil {
		return false, wrapQueryErr("check rule usage", err)
	}
	return exists, nil
}

func (r *postgresPricingRuleRepo) UsedRuleIDs(ctx context.Context, userID uuid.UUID, ruleIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	used := make(map[uuid.UUID]bool)
	if len(ruleIDs) == 0 {
		return used, nil
	}

	query, args, err := psql.Select("rule_id").
		From("pricing_rule_usages").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"rule_id": ruleIDs}).
		ToSql()
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	if err := conn(ctx, r.db).SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, wrapQueryErr("used rule ids", err)
	}
	for _, id := range ids {
		used[id] = true
	}
	return used, nil
}

func (r *postgresPricingRuleRepo) InsertUsage(ctx context.Context, usage *domain.PricingRuleUsage) error {
	if usage.ID == uuid.Nil {
		usage.ID = uuid.New()
	}
	usage.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO pricing_rule_usages (id, rule_id, user_id, subscription_id, created_at)
        VALUES (:id, :rule_id, :user_id, :subscription_id, :created_at)`
	if _, err := conn(ctx, r.db).NamedExecContext(ctx, query, usage); err != nil {
		err = wrapQueryErr("insert rule usage", err)
		if !errors.Is(err, ErrDuplicate) {
			r.log.Errorw("Failed to insert rule usage", "error", err, "ruleID", usage.RuleID, "userID", usage.UserID)
		}
		return err
	}
	return nil
}

func (r *postgresPricingRuleRepo) IncrementUsage(ctx context.Context, ruleID uuid.UUID, capped bool) (bool, error) {
	query := `UPDATE pricing_rules SET usage_count = usage_count + 1, updated_at = NOW() WHERE id = $1`
	if capped {
		query += ` AND usage_count < max_subscribers`
	}
	res, err := conn(ctx, r.db).ExecContext(ctx, query, ruleID)
	if err != nil {
		return false, wrapQueryErr("increment rule usage", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *postgresPricingRuleRepo) insertTrainers(ctx context.Context, ruleID uuid.UUID, trainerIDs []uuid.UUID) error {
	if len(trainerIDs) == 0 {
		return nil
	}
	builder := psql.Insert("pricing_rule_trainers").
		Columns("rule_id", "trainer_id").
		Suffix("ON CONFLICT DO NOTHING")
	for _, id := range trainerIDs {
		builder = builder.Values(ruleID, id)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return err
	}
	if _, err := conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		return wrapQueryErr("insert rule trainers", err)
	}
	return nil
}

type ruleTrainerRow struct {
	RuleID    uuid.UUID `db:"rule_id"`
	TrainerID uuid.UUID `db:"trainer_id"`
}

// loadTrainers заполняет TrainerIDs одним запросом на весь список.
func (r *postgresPricingRuleRepo) loadTrainers(ctx context.Context, rules []domain.PricingRule) error {
	if len(rules) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(rules))
	index := make(map[uuid.UUID]int, len(rules))
	for i, rule := range rules {
		ids = append(ids, rule.ID)
		index[rule.ID] = i
	}

	query, args, err := psql.Select("rule_id", "trainer_id").
		From("pricing_rule_trainers").
		Where(squirrel.Eq{"rule_id": ids}).
		ToSql()
	if err != nil {
		return err
	}
	var rows []ruleTrainerRow
	if err := conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		return wrapQueryErr("load rule trainers", err)
	}
	for _, row := range rows {
		i := index[row.RuleID]
		rules[i].TrainerIDs = append(rules[i].TrainerIDs, row.TrainerID)
	}
	return nil
}
