package domain

import (
	"context"

	"github.com/google/uuid"
)

// PriceRuleRepository persists pricing rules.
type PriceRuleRepository interface {
	Create(ctx context.Context, rule *PriceRule) (*PriceRule, error)
	List(ctx context.Context) ([]PriceRule, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
