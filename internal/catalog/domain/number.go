package domain

import (
	"time"

	"github.com/google/uuid"
)

// PhoneNumber is a single number belonging to a range. Availability is not
// stored: a number is available iff it has no hold row.
type PhoneNumber struct {
	ID        uuid.UUID `json:"id"`
	Number    string    `json:"number"`
	RangeID   string    `json:"range_id"`
	CreatedAt time.Time `json:"created_at"`
}
