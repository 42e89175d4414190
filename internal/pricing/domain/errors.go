package domain

import "errors"

var (
	// ErrNoDefaultPrice means no rule matched and no default unit price is
	// configured. Settlement treats this as fatal misconfiguration, never as a
	// zero-price charge.
	ErrNoDefaultPrice = errors.New("no pricing rule matched and no default price configured")

	ErrRuleNotFound = errors.New("price rule not found")
)
