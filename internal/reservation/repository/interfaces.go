package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/argsms/rangepool/internal/reservation/domain"
)

// Querier is the common surface of pgxpool.Pool and pgx.Tx, so repository
// methods can participate in an engine-managed transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Candidate is an available number considered for allocation.
type Candidate struct {
	NumberID uuid.UUID
	Number   string
}

// Released identifies a hold removed by a sweep or bulk release.
type Released struct {
	Number   string
	HolderID uuid.UUID
}

// Promoted is the result of a successful promotion to permanent, carrying the
// range data settlement needs for pricing and events.
type Promoted struct {
	Hold      domain.Hold
	RangeID   string
	RangeName string
}

// HoldRepository is the durable reservation store. All writes are conditional
// on the row's current state; none trust a previously read snapshot.
type HoldRepository interface {
	// CandidateNumbers returns numbers in the range with no hold row.
	CandidateNumbers(ctx context.Context, querier Querier, rangeID string) ([]Candidate, error)

	// CreateHold inserts a temporary hold. It reports created=false when a
	// concurrent hold on the same number won the race (unique number_id).
	CreateHold(ctx context.Context, querier Querier, hold *domain.Hold) (created bool, err error)

	// GetActiveByNumber returns the hold on the given number string, if any.
	GetActiveByNumber(ctx context.Context, querier Querier, number string) (*domain.Hold, error)

	// MarkSearched sets first_searched_at to now if unset (idempotent) on the
	// holder's hold and returns the updated row; nil when no such hold exists.
	// Permanent holds are returned unchanged, never written.
	MarkSearched(ctx context.Context, querier Querier, number string, holderID uuid.UUID, now time.Time) (*domain.Hold, error)

	// PromoteToPermanent flips the holder's non-permanent hold on the number
	// to permanent; nil result when no such hold exists.
	PromoteToPermanent(ctx context.Context, querier Querier, number string, holderID uuid.UUID) (*Promoted, error)

	// ReleaseTemporaryByHolder deletes all non-permanent holds of the holder.
	ReleaseTemporaryByHolder(ctx context.Context, querier Querier, holderID uuid.UUID) (int64, error)

	// DeleteExpired removes up to limit expired temporary holds. The expiry
	// predicate is re-evaluated inside the deleting statement so holds
	// promoted or re-touched since the scan are never removed.
	DeleteExpired(ctx context.Context, querier Querier, initialCutoff, retryCutoff time.Time, limit int) ([]Released, error)

	// ReleaseAllTemporary deletes every non-permanent hold, optionally scoped
	// to one range. Permanent holds are never touched.
	ReleaseAllTemporary(ctx context.Context, querier Querier, rangeID *string) (int64, error)

	// ListByHolder returns the holder's holds, permanent ones included.
	ListByHolder(ctx context.Context, querier Querier, holderID uuid.UUID) ([]domain.Hold, error)
}
