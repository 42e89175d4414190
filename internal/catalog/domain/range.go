package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Range is a named group of phone numbers offered as one product.
type Range struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// RangeIDFromName derives the range identifier from its display name, so
// re-uploading a catalog with the same range name reuses the same identifier.
// Matching is done on the trimmed, case-folded name.
func RangeIDFromName(name string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(name))))
	return hex.EncodeToString(sum[:8])
}
