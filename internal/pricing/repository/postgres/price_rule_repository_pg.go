package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/argsms/rangepool/internal/pricing/domain"
)

// Querier is the common surface of pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgPriceRuleRepository struct {
	db     Querier
	logger *slog.Logger
}

// NewPgPriceRuleRepository creates the PostgreSQL price rule store.
func NewPgPriceRuleRepository(db Querier, logger *slog.Logger) *PgPriceRuleRepository {
	return &PgPriceRuleRepository{db: db, logger: logger.With("component", "price_rule_repository_pg")}
}

func (r *PgPriceRuleRepository) Create(ctx context.Context, rule *domain.PriceRule) (*domain.PriceRule, error) {
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO price_rules (id, pattern, price, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, rule.ID, rule.Pattern, rule.Price, rule.CreatedBy, rule.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting price rule: %w", err)
	}
	return rule, nil
}

func (r *PgPriceRuleRepository) List(ctx context.Context) ([]domain.PriceRule, error) {
	query := `
		SELECT id, pattern, price, created_by, created_at
		FROM price_rules
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing price rules: %w", err)
	}
	defer rows.Close()

	var rules []domain.PriceRule
	for rows.Next() {
		var rule domain.PriceRule
		if err := rows.Scan(&rule.ID, &rule.Pattern, &rule.Price, &rule.CreatedBy, &rule.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning price rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *PgPriceRuleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM price_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting price rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRuleNotFound
	}
	return nil
}
