package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/argsms/rangepool/internal/billing/domain"
)

// Querier is the common surface of pgxpool.Pool and pgx.Tx, so repository
// methods can run inside or outside a caller-managed transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TransactionRepository persists ledger entries. Entries are append-only;
// there is no update or delete.
type TransactionRepository interface {
	Create(ctx context.Context, querier Querier, tx *domain.Transaction) (*domain.Transaction, error)
	SumByUserID(ctx context.Context, querier Querier, userID uuid.UUID) (float64, error)
	ListByUserID(ctx context.Context, querier Querier, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error)
}
