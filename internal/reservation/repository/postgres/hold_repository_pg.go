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

	"github.com/argsms/rangepool/internal/reservation/domain"
	"github.com/argsms/rangepool/internal/reservation/repository"
)

type PgHoldRepository struct {
	db     repository.Querier
	logger *slog.Logger
}

// NewPgHoldRepository creates the PostgreSQL reservation store. The db handle
// is used for methods called outside an engine transaction; transactional
// methods receive their querier per call.
func NewPgHoldRepository(db repository.Querier, logger *slog.Logger) *PgHoldRepository {
	return &PgHoldRepository{db: db, logger: logger.With("component", "hold_repository_pg")}
}

func (r *PgHoldRepository) CandidateNumbers(ctx context.Context, querier repository.Querier, rangeID string) ([]repository.Candidate, error) {
	if querier == nil {
		querier = r.db
	}
	query := `
		SELECT n.id, n.number
		FROM numbers n
		LEFT JOIN holds h ON h.number_id = n.id
		WHERE n.range_id = $1 AND h.id IS NULL
	`
	rows, err := querier.Query(ctx, query, rangeID)
	if err != nil {
		return nil, fmt.Errorf("querying candidate numbers: %w", err)
	}
	defer rows.Close()

	var candidates []repository.Candidate
	for rows.Next() {
		var c repository.Candidate
		if err := rows.Scan(&c.NumberID, &c.Number); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return candidates, nil
}

func (r *PgHoldRepository) CreateHold(ctx context.Context, querier repository.Querier, hold *domain.Hold) (bool, error) {
	if querier == nil {
		querier = r.db
	}
	// The unique constraint on number_id is the compare-and-create: a
	// concurrent hold on the same number makes this insert a no-op.
	query := `
		INSERT INTO holds (id, number_id, holder_id, permanent, created_at, first_searched_at)
		VALUES ($1, $2, $3, FALSE, $4, NULL)
		ON CONFLICT (number_id) DO NOTHING
	`
	tag, err := querier.Exec(ctx, query, hold.ID, hold.NumberID, hold.HolderID, hold.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			// Lost race surfaced as an error by some drivers; treat like the
			// ON CONFLICT no-op.
			return false, nil
		}
		return false, fmt.Errorf("inserting hold: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const holdColumns = `h.id, h.number_id, n.number, h.holder_id, h.permanent, h.created_at, h.first_searched_at`

func scanHold(row pgx.Row) (*domain.Hold, error) {
	var h domain.Hold
	if err := row.Scan(&h.ID, &h.NumberID, &h.Number, &h.HolderID, &h.Permanent, &h.CreatedAt, &h.FirstSearchedAt); err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *PgHoldRepository) GetActiveByNumber(ctx context.Context, querier repository.Querier, number string) (*domain.Hold, error) {
	if querier == nil {
		querier = r.db
	}
	query := `
		SELECT ` + holdColumns + `
		FROM holds h
		JOIN numbers n ON n.id = h.number_id
		WHERE n.number = $1
	`
	h, err := scanHold(querier.QueryRow(ctx, query, number))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("querying hold by number: %w", err)
	}
	return h, nil
}

func (r *PgHoldRepository) MarkSearched(ctx context.Context, querier repository.Querier, number string, holderID uuid.UUID, now time.Time) (*domain.Hold, error) {
	if querier == nil {
		querier = r.db
	}
	// Permanent holds are immutable; the CASE leaves their row as-is while
	// still returning it, so a search against a settled number is a no-op
	// rather than an error.
	query := `
		UPDATE holds h
		SET first_searched_at = CASE
			WHEN h.permanent THEN h.first_searched_at
			ELSE COALESCE(h.first_searched_at, $3)
		END
		FROM numbers n
		WHERE n.id = h.number_id AND n.number = $1 AND h.holder_id = $2
		RETURNING ` + holdColumns
	h, err := scanHold(querier.QueryRow(ctx, query, number, holderID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("marking hold searched: %w", err)
	}
	return h, nil
}

func (r *PgHoldRepository) PromoteToPermanent(ctx context.Context, querier repository.Querier, number string, holderID uuid.UUID) (*repository.Promoted, error) {
	if querier == nil {
		querier = r.db
	}
	// The NOT permanent condition inside the update is what makes promotion
	// race-safe against a concurrent settle on the same hold.
	query := `
		UPDATE holds h
		SET permanent = TRUE
		FROM numbers n
		JOIN ranges rg ON rg.id = n.range_id
		WHERE n.id = h.number_id AND n.number = $1 AND h.holder_id = $2 AND NOT h.permanent
		RETURNING ` + holdColumns + `, n.range_id, rg.name`
	var p repository.Promoted
	err := querier.QueryRow(ctx, query, number, holderID).Scan(
		&p.Hold.ID, &p.Hold.NumberID, &p.Hold.Number, &p.Hold.HolderID,
		&p.Hold.Permanent, &p.Hold.CreatedAt, &p.Hold.FirstSearchedAt,
		&p.RangeID, &p.RangeName,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("promoting hold: %w", err)
	}
	return &p, nil
}

func (r *PgHoldRepository) ReleaseTemporaryByHolder(ctx context.Context, querier repository.Querier, holderID uuid.UUID) (int64, error) {
	if querier == nil {
		querier = r.db
	}
	tag, err := querier.Exec(ctx, `DELETE FROM holds WHERE holder_id = $1 AND NOT permanent`, holderID)
	if err != nil {
		return 0, fmt.Errorf("releasing holder's temporary holds: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgHoldRepository) DeleteExpired(ctx context.Context, querier repository.Querier, initialCutoff, retryCutoff time.Time, limit int) ([]repository.Released, error) {
	if querier == nil {
		querier = r.db
	}
	// The subselect bounds and locks the batch (SKIP LOCKED keeps sweeps off
	// rows foreground transactions are touching); the outer DELETE restates
	// the expiry predicate so a hold promoted or re-searched between scan and
	// delete is left alone.
	query := `
		DELETE FROM holds h
		USING numbers n
		WHERE h.id IN (
			SELECT id FROM holds
			WHERE NOT permanent
			  AND ((first_searched_at IS NULL AND created_at < $1)
			    OR (first_searched_at IS NOT NULL AND first_searched_at < $2))
			ORDER BY created_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		AND n.id = h.number_id
		AND NOT h.permanent
		AND ((h.first_searched_at IS NULL AND h.created_at < $1)
		  OR (h.first_searched_at IS NOT NULL AND h.first_searched_at < $2))
		RETURNING n.number, h.holder_id
	`
	rows, err := querier.Query(ctx, query, initialCutoff, retryCutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("deleting expired holds: %w", err)
	}
	defer rows.Close()

	var released []repository.Released
	for rows.Next() {
		var rel repository.Released
		if err := rows.Scan(&rel.Number, &rel.HolderID); err != nil {
			return nil, fmt.Errorf("scanning released hold: %w", err)
		}
		released = append(released, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return released, nil
}

func (r *PgHoldRepository) ReleaseAllTemporary(ctx context.Context, querier repository.Querier, rangeID *string) (int64, error) {
	if querier == nil {
		querier = r.db
	}
	var (
		tag pgconn.CommandTag
		err error
	)
	if rangeID != nil {
		tag, err = querier.Exec(ctx, `
			DELETE FROM holds h
			USING numbers n
			WHERE n.id = h.number_id AND n.range_id = $1 AND NOT h.permanent`, *rangeID)
	} else {
		tag, err = querier.Exec(ctx, `DELETE FROM holds WHERE NOT permanent`)
	}
	if err != nil {
		return 0, fmt.Errorf("bulk releasing temporary holds: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgHoldRepository) ListByHolder(ctx context.Context, querier repository.Querier, holderID uuid.UUID) ([]domain.Hold, error) {
	if querier == nil {
		querier = r.db
	}
	query := `
		SELECT ` + holdColumns + `
		FROM holds h
		JOIN numbers n ON n.id = h.number_id
		WHERE h.holder_id = $1
		ORDER BY h.created_at
	`
	rows, err := querier.Query(ctx, query, holderID)
	if err != nil {
		return nil, fmt.Errorf("listing holds by holder: %w", err)
	}
	defer rows.Close()

	var holds []domain.Hold
	for rows.Next() {
		var h domain.Hold
		if err := rows.Scan(&h.ID, &h.NumberID, &h.Number, &h.HolderID, &h.Permanent, &h.CreatedAt, &h.FirstSearchedAt); err != nil {
			return nil, fmt.Errorf("scanning hold: %w", err)
		}
		holds = append(holds, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return holds, nil
}
