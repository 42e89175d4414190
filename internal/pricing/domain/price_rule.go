package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PriceRule maps range names to a unit price. The pattern is a
// case-insensitive substring match against the range name; when several rules
// match, the most recently created one wins.
type PriceRule struct {
	ID        uuid.UUID     `json:"id"`
	Pattern   string        `json:"pattern"`
	Price     float64       `json:"price"`
	CreatedBy uuid.NullUUID `json:"created_by,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Matches reports whether the rule applies to the given range name.
func (r *PriceRule) Matches(rangeName string) bool {
	return strings.Contains(strings.ToLower(rangeName), strings.ToLower(r.Pattern))
}
