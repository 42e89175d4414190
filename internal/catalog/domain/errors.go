package domain

import "errors"

var (
	ErrRangeNotFound  = errors.New("range not found")
	ErrNumberNotFound = errors.New("number not found")

	// ErrNumberPermanentlyHeld is returned when ingestion tries to re-parent a
	// number that has a permanent hold. Re-parenting a settled number would
	// corrupt its pricing history, so the conflict is surfaced instead.
	ErrNumberPermanentlyHeld = errors.New("number is permanently held")
)
