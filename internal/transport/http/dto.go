package http

import "time"

// AllocateRequest reserves a batch of numbers for a holder.
type AllocateRequest struct {
	ChatID   int64  `json:"chat_id" validate:"required"`
	Username string `json:"username,omitempty"`
	RangeID  string `json:"range_id" validate:"required"`
}

// HoldResponse is one reserved number.
type HoldResponse struct {
	Number          string     `json:"number"`
	Permanent       bool       `json:"permanent"`
	CreatedAt       time.Time  `json:"created_at"`
	FirstSearchedAt *time.Time `json:"first_searched_at,omitempty"`
}

// AllocateResponse is the newly reserved batch.
type AllocateResponse struct {
	RangeID string         `json:"range_id"`
	Holds   []HoldResponse `json:"holds"`
}

// SearchAttemptRequest records an SMS lookup against a held number.
type SearchAttemptRequest struct {
	ChatID int64  `json:"chat_id" validate:"required"`
	Number string `json:"number" validate:"required"`
}

// SearchAttemptResponse reports the hold's expiry deadline. ExpiresAt is
// omitted for permanent holds, which never expire.
type SearchAttemptResponse struct {
	Number    string     `json:"number"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// SettleRequest reports the outcome of an external SMS lookup.
type SettleRequest struct {
	ChatID int64  `json:"chat_id" validate:"required"`
	Number string `json:"number" validate:"required"`
	Found  bool   `json:"found"`
}

// BalanceResponse is a holder's ledger balance.
type BalanceResponse struct {
	ChatID  int64   `json:"chat_id"`
	Balance float64 `json:"balance"`
}

// TransactionResponse is one ledger entry.
type TransactionResponse struct {
	ID          string    `json:"id"`
	Amount      float64   `json:"amount"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RechargeRequest credits a holder's balance.
type RechargeRequest struct {
	ChatID      int64   `json:"chat_id" validate:"required"`
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	Description string  `json:"description,omitempty"`
}

// PriceRuleRequest creates a pricing rule (admin).
type PriceRuleRequest struct {
	Pattern string  `json:"pattern" validate:"required,min=1"`
	Price   float64 `json:"price" validate:"required,gt=0"`
}

// PriceRuleResponse is one configured pricing rule.
type PriceRuleResponse struct {
	ID        string    `json:"id"`
	Pattern   string    `json:"pattern"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// ReleaseAllRequest bulk-releases temporary holds (admin). RangeID scopes the
// release to one range when set.
type ReleaseAllRequest struct {
	RangeID *string `json:"range_id,omitempty"`
}

// ReleaseAllResponse reports how many holds were released.
type ReleaseAllResponse struct {
	Released int64 `json:"released"`
}

// AdjustBalanceRequest credits or debits a holder on admin authority.
type AdjustBalanceRequest struct {
	ChatID      int64   `json:"chat_id" validate:"required"`
	Amount      float64 `json:"amount" validate:"required"`
	Description string  `json:"description,omitempty"`
}

// SetAdminRequest grants or revokes admin rights.
type SetAdminRequest struct {
	ChatID int64 `json:"chat_id" validate:"required"`
	Admin  bool  `json:"admin"`
}

// UpsertRangeRequest creates or refreshes a range.
type UpsertRangeRequest struct {
	Name string `json:"name" validate:"required,min=1"`
}

// RangeResponse is one catalog range.
type RangeResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UpsertNumberRequest adds a number to a range.
type UpsertNumberRequest struct {
	Number  string `json:"number" validate:"required,min=1"`
	RangeID string `json:"range_id" validate:"required"`
}

// StatsResponse is the admin aggregate snapshot.
type StatsResponse struct {
	TotalUsers    int `json:"total_users"`
	AdminCount    int `json:"admin_count"`
	RecentActions int `json:"recent_actions"`
}

// GenericErrorResponse for API errors.
type GenericErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
