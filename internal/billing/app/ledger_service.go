package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/argsms/rangepool/internal/billing/domain"
	"github.com/argsms/rangepool/internal/billing/repository"
	identitydomain "github.com/argsms/rangepool/internal/identity/domain"
)

// LedgerService owns transaction creation. Nothing else writes balances; a
// holder's balance is always the sum of their transactions.
type LedgerService struct {
	transactionRepo repository.TransactionRepository
	logger          *slog.Logger
}

func NewLedgerService(transactionRepo repository.TransactionRepository, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		transactionRepo: transactionRepo,
		logger:          logger.With("service", "ledger"),
	}
}

// Balance returns the holder's balance as of all committed transactions.
func (s *LedgerService) Balance(ctx context.Context, userID uuid.UUID) (float64, error) {
	return s.transactionRepo.SumByUserID(ctx, nil, userID)
}

// BalanceIn is Balance evaluated on the given querier, so settlement can read
// inside its own transaction.
func (s *LedgerService) BalanceIn(ctx context.Context, querier repository.Querier, userID uuid.UUID) (float64, error) {
	return s.transactionRepo.SumByUserID(ctx, querier, userID)
}

// History returns the holder's transactions, newest first.
func (s *LedgerService) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.transactionRepo.ListByUserID(ctx, nil, userID, limit, offset)
}

// Append records a transaction on the given querier. Amount sign encodes
// direction; the ledger never rejects an entry for driving the balance
// negative — sufficiency checks belong to the caller, before this point.
func (s *LedgerService) Append(ctx context.Context, querier repository.Querier, userID uuid.UUID, amount float64, category domain.TransactionCategory, description string) (*domain.Transaction, error) {
	if amount == 0 {
		return nil, errors.New("transaction amount must be non-zero")
	}
	tx := &domain.Transaction{
		UserID:      userID,
		Amount:      amount,
		Category:    category,
		Description: description,
	}
	created, err := s.transactionRepo.Create(ctx, querier, tx)
	if err != nil {
		return nil, fmt.Errorf("recording transaction: %w", err)
	}
	s.logger.InfoContext(ctx, "transaction recorded",
		"user_id", userID, "amount", amount, "category", category, "transaction_id", created.ID)
	return created, nil
}

// Recharge credits the holder's balance (category recharge).
func (s *LedgerService) Recharge(ctx context.Context, userID uuid.UUID, amount float64, description string) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, errors.New("recharge amount must be positive")
	}
	return s.Append(ctx, nil, userID, amount, domain.CategoryRecharge, description)
}

// AdminAdjust credits or debits a holder's balance on admin authority. A
// negative amount may drive the balance below zero (admin override).
func (s *LedgerService) AdminAdjust(ctx context.Context, cap identitydomain.AdminCapability, userID uuid.UUID, amount float64, description string) (*domain.Transaction, error) {
	if !cap.Valid() {
		return nil, identitydomain.ErrNotAdmin
	}
	category := domain.CategoryAdminAdd
	if amount < 0 {
		category = domain.CategoryAdminDeduct
	}
	tx, err := s.Append(ctx, nil, userID, amount, category, description)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "admin balance adjustment",
		"user_id", userID, "amount", amount, "admin_id", cap.ActorID())
	return tx, nil
}
