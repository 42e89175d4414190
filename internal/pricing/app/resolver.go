package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	identitydomain "github.com/argsms/rangepool/internal/identity/domain"
	"github.com/argsms/rangepool/internal/pricing/domain"
)

// Resolver maps range names to a unit price via substring rules with a
// configured default fallback. It is read-only from the engine's perspective;
// rule changes happen through the admin operations below.
type Resolver struct {
	rules        domain.PriceRuleRepository
	defaultPrice float64
	logger       *slog.Logger
}

// NewResolver creates a Resolver. A defaultPrice of zero means no default is
// configured; resolution then fails when no rule matches.
func NewResolver(rules domain.PriceRuleRepository, defaultPrice float64, logger *slog.Logger) *Resolver {
	return &Resolver{
		rules:        rules,
		defaultPrice: defaultPrice,
		logger:       logger.With("service", "pricing"),
	}
}

// Resolve returns the unit price for a range name. Every rule whose pattern
// is a case-insensitive substring of the name matches; among matches the most
// recently created rule wins. With no match the configured default applies,
// and with no default either, ErrNoDefaultPrice is returned — callers must
// treat that as a hard stop, never as a zero-price charge.
func (r *Resolver) Resolve(ctx context.Context, rangeName string) (float64, error) {
	rules, err := r.rules.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading price rules: %w", err)
	}

	var winner *domain.PriceRule
	for i := range rules {
		rule := &rules[i]
		if !rule.Matches(rangeName) {
			continue
		}
		if winner == nil || rule.CreatedAt.After(winner.CreatedAt) {
			winner = rule
		}
	}
	if winner != nil {
		r.logger.DebugContext(ctx, "price rule matched", "range_name", rangeName, "pattern", winner.Pattern, "price", winner.Price)
		return winner.Price, nil
	}
	if r.defaultPrice > 0 {
		return r.defaultPrice, nil
	}
	return 0, domain.ErrNoDefaultPrice
}

// CreateRule adds a pricing rule; admin only.
func (r *Resolver) CreateRule(ctx context.Context, cap identitydomain.AdminCapability, pattern string, price float64) (*domain.PriceRule, error) {
	if !cap.Valid() {
		return nil, identitydomain.ErrNotAdmin
	}
	rule := &domain.PriceRule{
		Pattern:   pattern,
		Price:     price,
		CreatedBy: uuid.NullUUID{UUID: cap.ActorID(), Valid: true},
	}
	created, err := r.rules.Create(ctx, rule)
	if err != nil {
		return nil, fmt.Errorf("creating price rule: %w", err)
	}
	r.logger.InfoContext(ctx, "price rule created", "pattern", pattern, "price", price, "created_by", cap.ActorID())
	return created, nil
}

// ListRules returns all configured rules, newest first.
func (r *Resolver) ListRules(ctx context.Context) ([]domain.PriceRule, error) {
	return r.rules.List(ctx)
}

// DeleteRule removes a pricing rule; admin only.
func (r *Resolver) DeleteRule(ctx context.Context, cap identitydomain.AdminCapability, id uuid.UUID) error {
	if !cap.Valid() {
		return identitydomain.ErrNotAdmin
	}
	if err := r.rules.Delete(ctx, id); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "price rule deleted", "rule_id", id, "deleted_by", cap.ActorID())
	return nil
}
