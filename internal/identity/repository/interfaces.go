package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/argsms/rangepool/internal/identity/domain"
)

// Querier is the common surface of pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository persists holder identities and their audit trail.
type UserRepository interface {
	GetOrCreateByChatID(ctx context.Context, chatID int64, username string) (*domain.User, error)
	GetByID(ctx context.Context, querier Querier, id uuid.UUID) (*domain.User, error)
	GetByChatID(ctx context.Context, chatID int64) (*domain.User, error)
	SetAdmin(ctx context.Context, id uuid.UUID, isAdmin bool) error
	IncrementReceivedCount(ctx context.Context, querier Querier, id uuid.UUID) error
	LogAccess(ctx context.Context, userID uuid.UUID, action string) error
	Stats(ctx context.Context, recentSince time.Time) (*domain.Stats, error)
}
