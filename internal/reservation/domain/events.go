package domain

import (
	"time"

	"github.com/google/uuid"
)

// NATS subjects for hold lifecycle events.
const (
	SubjectHoldSettled = "reservation.hold.settled"
	SubjectHoldExpired = "reservation.hold.expired"
)

// HoldSettledEvent is published after a settlement transaction commits.
type HoldSettledEvent struct {
	Number    string    `json:"number"`
	HolderID  uuid.UUID `json:"holder_id"`
	RangeID   string    `json:"range_id"`
	Price     float64   `json:"price"`
	SettledAt time.Time `json:"settled_at"`
}

// HoldExpiredEvent is published for each hold released by the sweeper.
type HoldExpiredEvent struct {
	Number    string    `json:"number"`
	HolderID  uuid.UUID `json:"holder_id"`
	ExpiredAt time.Time `json:"expired_at"`
}
