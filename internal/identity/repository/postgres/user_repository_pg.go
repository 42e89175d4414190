package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/argsms/rangepool/internal/identity/domain"
	"github.com/argsms/rangepool/internal/identity/repository"
)

type PgUserRepository struct {
	db     repository.Querier
	logger *slog.Logger
}

// NewPgUserRepository creates the PostgreSQL user store.
func NewPgUserRepository(db repository.Querier, logger *slog.Logger) *PgUserRepository {
	return &PgUserRepository{db: db, logger: logger.With("component", "user_repository_pg")}
}

const userColumns = `id, chat_id, username, is_admin, received_count, created_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.ChatID, &u.Username, &u.IsAdmin, &u.ReceivedCount, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PgUserRepository) GetOrCreateByChatID(ctx context.Context, chatID int64, username string) (*domain.User, error) {
	// Single round trip: insert if absent, refresh the username either way.
	query := `
		INSERT INTO users (id, chat_id, username, is_admin, received_count, created_at)
		VALUES ($1, $2, $3, FALSE, 0, $4)
		ON CONFLICT (chat_id) DO UPDATE SET username = EXCLUDED.username
		RETURNING ` + userColumns
	u, err := scanUser(r.db.QueryRow(ctx, query, uuid.New(), chatID, username, time.Now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("get-or-create user: %w", err)
	}
	return u, nil
}

func (r *PgUserRepository) GetByID(ctx context.Context, querier repository.Querier, id uuid.UUID) (*domain.User, error) {
	if querier == nil {
		querier = r.db
	}
	u, err := scanUser(querier.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user by id: %w", err)
	}
	return u, nil
}

func (r *PgUserRepository) GetByChatID(ctx context.Context, chatID int64) (*domain.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE chat_id = $1`, chatID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("querying user by chat id: %w", err)
	}
	return u, nil
}

func (r *PgUserRepository) SetAdmin(ctx context.Context, id uuid.UUID, isAdmin bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET is_admin = $2 WHERE id = $1`, id, isAdmin)
	if err != nil {
		return fmt.Errorf("updating admin flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *PgUserRepository) IncrementReceivedCount(ctx context.Context, querier repository.Querier, id uuid.UUID) error {
	if querier == nil {
		querier = r.db
	}
	tag, err := querier.Exec(ctx, `UPDATE users SET received_count = received_count + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("incrementing received count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *PgUserRepository) LogAccess(ctx context.Context, userID uuid.UUID, action string) error {
	_, err := r.db.Exec(ctx, `INSERT INTO access_logs (user_id, action) VALUES ($1, $2)`, userID, action)
	if err != nil {
		return fmt.Errorf("logging access: %w", err)
	}
	return nil
}

func (r *PgUserRepository) Stats(ctx context.Context, recentSince time.Time) (*domain.Stats, error) {
	var s domain.Stats
	query := `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE is_admin),
			(SELECT COUNT(*) FROM access_logs WHERE created_at >= $1)
	`
	if err := r.db.QueryRow(ctx, query, recentSince).Scan(&s.TotalUsers, &s.AdminCount, &s.RecentActions); err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	return &s, nil
}
