package domain

import "errors"

var (
	// ErrInsufficientBalance: the holder's balance does not cover one unit at
	// the range's resolved price.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientInventory: the range has fewer available numbers than the
	// requested batch, or concurrent allocators exhausted the candidates.
	ErrInsufficientInventory = errors.New("insufficient inventory")

	// ErrNotHeld: the caller has no active hold on the number (or, for
	// settlement, no active non-permanent hold).
	ErrNotHeld = errors.New("number not held by caller")
)
