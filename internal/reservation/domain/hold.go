package domain

import (
	"time"

	"github.com/google/uuid"
)

// Hold is a claim on a single number. It is temporary until settlement
// promotes it to permanent; release hard-deletes the row, returning the
// number to the available pool.
//
// State machine: ACTIVE_UNSEARCHED -> ACTIVE_SEARCHED -> PERMANENT (terminal,
// immutable), or either active state -> RELEASED via expiry, explicit release
// or a superseding allocation by the same holder.
type Hold struct {
	ID              uuid.UUID  `json:"id"`
	NumberID        uuid.UUID  `json:"number_id"`
	Number          string     `json:"number"`
	HolderID        uuid.UUID  `json:"holder_id"`
	Permanent       bool       `json:"permanent"`
	CreatedAt       time.Time  `json:"created_at"`
	FirstSearchedAt *time.Time `json:"first_searched_at,omitempty"`
}

// Deadline returns the instant at which the hold expires. Exactly one rule
// applies: before the first search attempt the initial TTL counts from
// creation; once a search attempt is recorded, only the retry TTL counted
// from that attempt applies, even if the initial window already elapsed.
// Permanent holds never expire; Deadline returns the zero time for them.
func (h *Hold) Deadline(initialTTL, retryTTL time.Duration) time.Time {
	if h.Permanent {
		return time.Time{}
	}
	if h.FirstSearchedAt != nil {
		return h.FirstSearchedAt.Add(retryTTL)
	}
	return h.CreatedAt.Add(initialTTL)
}

// Expired reports whether the hold's deadline has passed at the given instant.
func (h *Hold) Expired(now time.Time, initialTTL, retryTTL time.Duration) bool {
	if h.Permanent {
		return false
	}
	return h.Deadline(initialTTL, retryTTL).Before(now)
}
