package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/argsms/rangepool/internal/billing/domain"
	"github.com/argsms/rangepool/internal/billing/repository"
)

type PgTransactionRepository struct {
	db     repository.Querier
	logger *slog.Logger
}

// NewPgTransactionRepository creates the PostgreSQL ledger store.
func NewPgTransactionRepository(db repository.Querier, logger *slog.Logger) *PgTransactionRepository {
	return &PgTransactionRepository{db: db, logger: logger.With("component", "transaction_repository_pg")}
}

func (r *PgTransactionRepository) Create(ctx context.Context, querier repository.Querier, tx *domain.Transaction) (*domain.Transaction, error) {
	if querier == nil {
		querier = r.db
	}
	if tx.ID == uuid.Nil {
		tx.ID = uuid.New()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO transactions (id, user_id, amount, category, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := querier.Exec(ctx, query, tx.ID, tx.UserID, tx.Amount, tx.Category, tx.Description, tx.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting transaction: %w", err)
	}
	return tx, nil
}

func (r *PgTransactionRepository) SumByUserID(ctx context.Context, querier repository.Querier, userID uuid.UUID) (float64, error) {
	if querier == nil {
		querier = r.db
	}
	var sum float64
	query := `SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE user_id = $1`
	if err := querier.QueryRow(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("summing transactions: %w", err)
	}
	return sum, nil
}

func (r *PgTransactionRepository) ListByUserID(ctx context.Context, querier repository.Querier, userID uuid.UUID, limit, offset int) ([]domain.Transaction, error) {
	if querier == nil {
		querier = r.db
	}
	query := `
		SELECT id, user_id, amount, category, description, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := querier.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Category, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		transactions = append(transactions, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}
