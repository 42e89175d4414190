package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/argsms/rangepool/internal/catalog/domain"
)

// Querier is the common surface of pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgCatalogRepository struct {
	db     Querier
	logger *slog.Logger
}

// NewPgCatalogRepository creates the PostgreSQL number/range inventory store.
func NewPgCatalogRepository(db Querier, logger *slog.Logger) *PgCatalogRepository {
	return &PgCatalogRepository{db: db, logger: logger.With("component", "catalog_repository_pg")}
}

func (r *PgCatalogRepository) UpsertRange(ctx context.Context, name string) (*domain.Range, error) {
	rng := &domain.Range{
		ID:        domain.RangeIDFromName(name),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	// The ID is a content hash of the name, so re-uploading the same range
	// resolves to the same row.
	query := `
		INSERT INTO ranges (id, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
		RETURNING created_at
	`
	if err := r.db.QueryRow(ctx, query, rng.ID, rng.Name, rng.CreatedAt).Scan(&rng.CreatedAt); err != nil {
		return nil, fmt.Errorf("upserting range: %w", err)
	}
	return rng, nil
}

func (r *PgCatalogRepository) GetRange(ctx context.Context, rangeID string) (*domain.Range, error) {
	var rng domain.Range
	err := r.db.QueryRow(ctx, `SELECT id, name, created_at FROM ranges WHERE id = $1`, rangeID).
		Scan(&rng.ID, &rng.Name, &rng.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRangeNotFound
		}
		return nil, fmt.Errorf("querying range: %w", err)
	}
	return &rng, nil
}

func (r *PgCatalogRepository) Exists(ctx context.Context, rangeID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ranges WHERE id = $1)`, rangeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking range existence: %w", err)
	}
	return exists, nil
}

func (r *PgCatalogRepository) DeleteRange(ctx context.Context, rangeID string) error {
	// Numbers and any holds on them (permanent included) go with the range;
	// the FKs cascade.
	tag, err := r.db.Exec(ctx, `DELETE FROM ranges WHERE id = $1`, rangeID)
	if err != nil {
		return fmt.Errorf("deleting range: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRangeNotFound
	}
	return nil
}

func (r *PgCatalogRepository) UpsertNumber(ctx context.Context, number string, rangeID string) (*domain.PhoneNumber, error) {
	pn := &domain.PhoneNumber{
		ID:        uuid.New(),
		Number:    number,
		RangeID:   rangeID,
		CreatedAt: time.Now().UTC(),
	}
	// Moving the number to a different range is refused while a permanent
	// hold exists on it; the WHERE on the conflict arm makes the update a
	// no-op in that case. Re-ingestion under its current range is always
	// accepted, permanently held or not.
	query := `
		INSERT INTO numbers (id, number, range_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (number) DO UPDATE SET range_id = EXCLUDED.range_id
		WHERE numbers.range_id = EXCLUDED.range_id OR NOT EXISTS (
			SELECT 1 FROM holds h WHERE h.number_id = numbers.id AND h.permanent
		)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, pn.ID, pn.Number, pn.RangeID, pn.CreatedAt).Scan(&pn.ID, &pn.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Conflict arm skipped: the number exists under another range
			// and is permanently held there.
			return nil, domain.ErrNumberPermanentlyHeld
		}
		return nil, fmt.Errorf("upserting number: %w", err)
	}
	return pn, nil
}

func (r *PgCatalogRepository) ListAvailable(ctx context.Context, rangeID string) ([]domain.PhoneNumber, error) {
	query := `
		SELECT n.id, n.number, n.range_id, n.created_at
		FROM numbers n
		LEFT JOIN holds h ON h.number_id = n.id
		WHERE n.range_id = $1 AND h.id IS NULL
		ORDER BY n.number
	`
	rows, err := r.db.Query(ctx, query, rangeID)
	if err != nil {
		return nil, fmt.Errorf("listing available numbers: %w", err)
	}
	defer rows.Close()

	var numbers []domain.PhoneNumber
	for rows.Next() {
		var pn domain.PhoneNumber
		if err := rows.Scan(&pn.ID, &pn.Number, &pn.RangeID, &pn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning number: %w", err)
		}
		numbers = append(numbers, pn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return numbers, nil
}
