package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// User is a holder identity, keyed by the external chat identity the
// conversational layer reports.
type User struct {
	ID            uuid.UUID `json:"id"`
	ChatID        int64     `json:"chat_id"`
	Username      string    `json:"username,omitempty"`
	IsAdmin       bool      `json:"is_admin"`
	ReceivedCount int       `json:"received_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// AccessLog records one user action for auditing.
type AccessLog struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Action    string    `json:"action"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats is an aggregate snapshot for the admin panel.
type Stats struct {
	TotalUsers    int `json:"total_users"`
	AdminCount    int `json:"admin_count"`
	RecentActions int `json:"recent_actions"`
}

var (
	ErrUserNotFound = errors.New("user not found")
	ErrNotAdmin     = errors.New("user is not an admin")
)

// AdminCapability is proof of admin authority. It is only issued by
// IdentityService.Authorize for users whose admin flag is set, and is passed
// explicitly into admin-only operations instead of an ambient config check.
type AdminCapability struct {
	actorID uuid.UUID
}

// NewAdminCapability is used by the identity service (and tests) to mint a
// capability for the given actor.
func NewAdminCapability(actorID uuid.UUID) AdminCapability {
	return AdminCapability{actorID: actorID}
}

// ActorID identifies the admin the capability was issued to, for audit.
func (c AdminCapability) ActorID() uuid.UUID {
	return c.actorID
}

// Valid reports whether the capability was actually issued (the zero value is
// not usable).
func (c AdminCapability) Valid() bool {
	return c.actorID != uuid.Nil
}
