package domain

import "context"

// CatalogRepository is the inventory store. The read side (ListAvailable,
// Exists) is what the reservation engine consumes; the write side is called
// by catalog ingestion.
type CatalogRepository interface {
	UpsertRange(ctx context.Context, name string) (*Range, error)
	GetRange(ctx context.Context, rangeID string) (*Range, error)
	Exists(ctx context.Context, rangeID string) (bool, error)
	DeleteRange(ctx context.Context, rangeID string) error

	// UpsertNumber creates the number under rangeID, or re-parents an existing
	// number to rangeID. Re-parenting fails with ErrNumberPermanentlyHeld when
	// the number has a permanent hold.
	UpsertNumber(ctx context.Context, number string, rangeID string) (*PhoneNumber, error)

	// ListAvailable returns numbers in the range with no hold of any kind.
	ListAvailable(ctx context.Context, rangeID string) ([]PhoneNumber, error)
}
