package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionCategory defines the nature of a ledger entry.
type TransactionCategory string

const (
	CategoryRecharge    TransactionCategory = "recharge"
	CategorySMSCharge   TransactionCategory = "sms_charge"
	CategoryAdminAdd    TransactionCategory = "admin_add"
	CategoryAdminDeduct TransactionCategory = "admin_deduct"
)

// Transaction is one append-only ledger entry. Amount sign encodes direction:
// positive credits the holder, negative debits them. A holder's balance is the
// sum of their transactions; no separate balance field exists anywhere.
type Transaction struct {
	ID          uuid.UUID           `json:"id"`
	UserID      uuid.UUID           `json:"user_id"`
	Amount      float64             `json:"amount"`
	Category    TransactionCategory `json:"category"`
	Description string              `json:"description,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}
