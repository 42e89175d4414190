package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	billingdomain "github.com/argsms/rangepool/internal/billing/domain"
	billingrepo "github.com/argsms/rangepool/internal/billing/repository"
	catalogdomain "github.com/argsms/rangepool/internal/catalog/domain"
	"github.com/argsms/rangepool/internal/clock"
	identitydomain "github.com/argsms/rangepool/internal/identity/domain"
	identityrepo "github.com/argsms/rangepool/internal/identity/repository"
	"github.com/argsms/rangepool/internal/reservation/domain"
	"github.com/argsms/rangepool/internal/reservation/repository"
)

// allocationAttempts bounds internal retries after lost compare-and-create
// races before the shortfall is surfaced as insufficient inventory. The same
// bound applies to re-running an allocation transaction the database aborted
// for a transient conflict.
const allocationAttempts = 3

// retryableTxError reports whether the database aborted the transaction for
// a transient conflict (deadlock_detected or serialization_failure), in
// which case the whole unit can be re-run.
func retryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40P01" || pgErr.Code == "40001"
}

// Beginner starts database transactions (satisfied by pgxpool.Pool).
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// RangeReader is the catalog read side the engine consumes.
type RangeReader interface {
	GetRange(ctx context.Context, rangeID string) (*catalogdomain.Range, error)
}

// PriceResolver resolves a range name to a unit price.
type PriceResolver interface {
	Resolve(ctx context.Context, rangeName string) (float64, error)
}

// Ledger is the balance side the engine consumes: reads for the allocation
// precondition, appends for settlement debits.
type Ledger interface {
	BalanceIn(ctx context.Context, querier billingrepo.Querier, userID uuid.UUID) (float64, error)
	Append(ctx context.Context, querier billingrepo.Querier, userID uuid.UUID, amount float64, category billingdomain.TransactionCategory, description string) (*billingdomain.Transaction, error)
}

// UserCounter increments a holder's received-number counter.
type UserCounter interface {
	IncrementReceivedCount(ctx context.Context, querier identityrepo.Querier, id uuid.UUID) error
}

// EventPublisher publishes hold lifecycle events; delivery is best-effort
// and never part of the database transaction.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// EngineConfig carries the engine's domain constants.
type EngineConfig struct {
	HoldInitialTTL      time.Duration
	HoldRetryTTL        time.Duration
	AllocationBatchSize int
	SweepBatchSize      int
}

// Engine orchestrates the reservation lifecycle: allocation, search
// tracking, settlement, expiry sweeps and administrative release. It is the
// sole owner of hold creation, mutation and deletion.
type Engine struct {
	db        Beginner
	holds     repository.HoldRepository
	ranges    RangeReader
	pricing   PriceResolver
	ledger    Ledger
	users     UserCounter
	publisher EventPublisher
	clock     clock.Clock
	cfg       EngineConfig
	logger    *slog.Logger
}

func NewEngine(
	db Beginner,
	holds repository.HoldRepository,
	ranges RangeReader,
	pricing PriceResolver,
	ledger Ledger,
	users UserCounter,
	publisher EventPublisher,
	clk clock.Clock,
	cfg EngineConfig,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		db:        db,
		holds:     holds,
		ranges:    ranges,
		pricing:   pricing,
		ledger:    ledger,
		users:     users,
		publisher: publisher,
		clock:     clk,
		cfg:       cfg,
		logger:    logger.With("service", "reservation_engine"),
	}
}

// Allocate reserves a batch of numbers from the range for the holder.
//
// Inside one transaction it releases the holder's previous temporary batch (a
// fresh allocation supersedes a stale one; permanent holds are untouched),
// verifies the balance covers one unit at the range's resolved price, and
// creates temporary holds on an unbiased random subset of the available
// numbers. Hold creation is conditional on the number still being free, so
// concurrent allocators can never share a number; lost races are retried
// internally up to allocationAttempts before ErrInsufficientInventory. A
// transaction the database aborts for a deadlock or serialization conflict
// is re-run as a whole under the same bound, never surfaced to the caller.
func (e *Engine) Allocate(ctx context.Context, holderID uuid.UUID, rangeID string) ([]domain.Hold, error) {
	count := e.cfg.AllocationBatchSize

	rng, err := e.ranges.GetRange(ctx, rangeID)
	if err != nil {
		return nil, err
	}
	unitPrice, err := e.pricing.Resolve(ctx, rng.Name)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	var allocated []domain.Hold

	for txAttempt := 1; ; txAttempt++ {
		allocated = nil
		err = e.allocateTx(ctx, holderID, rangeID, unitPrice, count, now, &allocated)
		if err == nil || !retryableTxError(err) || txAttempt >= allocationAttempts {
			break
		}
		allocationConflictsCounter.Inc()
		e.logger.WarnContext(ctx, "allocation transaction aborted, retrying",
			"holder_id", holderID, "range_id", rangeID, "attempt", txAttempt, "error", err)
	}
	if err != nil {
		return nil, err
	}

	holdsAllocatedCounter.Add(float64(len(allocated)))
	e.logger.InfoContext(ctx, "batch allocated", "holder_id", holderID, "range_id", rangeID, "count", len(allocated))
	return allocated, nil
}

func (e *Engine) allocateTx(ctx context.Context, holderID uuid.UUID, rangeID string, unitPrice float64, count int, now time.Time, allocated *[]domain.Hold) error {
	return pgx.BeginFunc(ctx, e.db, func(tx pgx.Tx) error {
		released, err := e.holds.ReleaseTemporaryByHolder(ctx, tx, holderID)
		if err != nil {
			return err
		}
		if released > 0 {
			e.logger.InfoContext(ctx, "superseded stale temporary batch", "holder_id", holderID, "released", released)
		}

		balance, err := e.ledger.BalanceIn(ctx, tx, holderID)
		if err != nil {
			return err
		}
		if balance < unitPrice {
			return domain.ErrInsufficientBalance
		}

		var holds []domain.Hold
		for attempt := 0; attempt < allocationAttempts && len(holds) < count; attempt++ {
			candidates, err := e.holds.CandidateNumbers(ctx, tx, rangeID)
			if err != nil {
				return err
			}
			remaining := count - len(holds)
			if len(candidates) < remaining {
				return domain.ErrInsufficientInventory
			}

			// Random subset rather than the first N, to spread load across
			// the pool.
			rand.Shuffle(len(candidates), func(i, j int) {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			})

			// Insert the subset in number-id order. Concurrent allocators
			// then acquire the unique-index locks in the same sequence and
			// cannot deadlock on each other.
			batch := candidates[:remaining]
			slices.SortFunc(batch, func(a, b repository.Candidate) int {
				return bytes.Compare(a.NumberID[:], b.NumberID[:])
			})

			for _, c := range batch {
				hold := domain.Hold{
					ID:        uuid.New(),
					NumberID:  c.NumberID,
					Number:    c.Number,
					HolderID:  holderID,
					CreatedAt: now,
				}
				created, err := e.holds.CreateHold(ctx, tx, &hold)
				if err != nil {
					return err
				}
				if !created {
					// A concurrent allocation won this number; pick a
					// replacement on the next attempt.
					allocationConflictsCounter.Inc()
					continue
				}
				holds = append(holds, hold)
			}
		}

		if len(holds) < count {
			return domain.ErrInsufficientInventory
		}
		*allocated = holds
		return nil
	})
}

// RecordSearchAttempt notes that the holder ran an SMS lookup against a held
// number. The first attempt starts the retry expiry window; repeats are
// idempotent. It returns the hold's current expiry deadline (zero for a
// permanent hold, which never expires).
func (e *Engine) RecordSearchAttempt(ctx context.Context, holderID uuid.UUID, number string) (time.Time, error) {
	hold, err := e.holds.MarkSearched(ctx, nil, number, holderID, e.clock.Now())
	if err != nil {
		return time.Time{}, err
	}
	if hold == nil {
		return time.Time{}, domain.ErrNotHeld
	}
	return hold.Deadline(e.cfg.HoldInitialTTL, e.cfg.HoldRetryTTL), nil
}

// Settle records the externally reported outcome of an SMS lookup.
//
// On a found outcome it atomically promotes the hold to permanent, resolves
// the range's unit price, appends the debit transaction and increments the
// holder's received counter — all four in one database transaction, so a
// permanent hold without its debit (or the reverse) is unobservable. On a
// not-found outcome the hold is left untouched, still subject to its expiry.
func (e *Engine) Settle(ctx context.Context, holderID uuid.UUID, number string, found bool) error {
	if !found {
		hold, err := e.holds.GetActiveByNumber(ctx, nil, number)
		if err != nil {
			return err
		}
		if hold == nil || hold.HolderID != holderID || hold.Permanent {
			return domain.ErrNotHeld
		}
		return nil
	}

	var (
		promoted *repository.Promoted
		price    float64
	)
	err := pgx.BeginFunc(ctx, e.db, func(tx pgx.Tx) error {
		var err error
		promoted, err = e.holds.PromoteToPermanent(ctx, tx, number, holderID)
		if err != nil {
			return err
		}
		if promoted == nil {
			return domain.ErrNotHeld
		}

		price, err = e.pricing.Resolve(ctx, promoted.RangeName)
		if err != nil {
			return err
		}

		description := fmt.Sprintf("number %s (%s)", number, promoted.RangeName)
		if _, err := e.ledger.Append(ctx, tx, holderID, -price, billingdomain.CategorySMSCharge, description); err != nil {
			return err
		}
		return e.users.IncrementReceivedCount(ctx, tx, holderID)
	})
	if err != nil {
		return err
	}

	holdsSettledCounter.Inc()
	e.logger.InfoContext(ctx, "hold settled",
		"holder_id", holderID, "number", number, "range_id", promoted.RangeID, "price", price)
	e.publish(ctx, domain.SubjectHoldSettled, domain.HoldSettledEvent{
		Number:    number,
		HolderID:  holderID,
		RangeID:   promoted.RangeID,
		Price:     price,
		SettledAt: e.clock.Now(),
	})
	return nil
}

// SweepExpired releases expired temporary holds, at most SweepBatchSize per
// call so a large backlog cannot starve foreground traffic. The expiry rule
// is exclusive: before the first search the initial TTL counts from creation;
// after it, only the retry TTL counts from the first search. State is
// revalidated inside the deleting statement, so a hold settled or re-touched
// concurrently is never released.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) ([]repository.Released, error) {
	timer := time.Now()
	released, err := e.holds.DeleteExpired(ctx, nil,
		now.Add(-e.cfg.HoldInitialTTL),
		now.Add(-e.cfg.HoldRetryTTL),
		e.cfg.SweepBatchSize,
	)
	sweepDurationHist.Observe(time.Since(timer).Seconds())
	if err != nil {
		return nil, err
	}
	if len(released) == 0 {
		return nil, nil
	}

	holdsSweptCounter.Add(float64(len(released)))
	e.logger.InfoContext(ctx, "expired holds released", "count", len(released))
	for _, rel := range released {
		e.publish(ctx, domain.SubjectHoldExpired, domain.HoldExpiredEvent{
			Number:    rel.Number,
			HolderID:  rel.HolderID,
			ExpiredAt: now,
		})
	}
	return released, nil
}

// ReleaseAll is the administrative emergency valve: it deletes every
// non-permanent hold, optionally scoped to one range. Permanent holds are
// never touched and no settlement side effects occur.
func (e *Engine) ReleaseAll(ctx context.Context, cap identitydomain.AdminCapability, rangeID *string) (int64, error) {
	if !cap.Valid() {
		return 0, identitydomain.ErrNotAdmin
	}
	released, err := e.holds.ReleaseAllTemporary(ctx, nil, rangeID)
	if err != nil {
		return 0, err
	}
	scope := "all ranges"
	if rangeID != nil {
		scope = *rangeID
	}
	e.logger.InfoContext(ctx, "bulk release executed", "scope", scope, "released", released, "admin_id", cap.ActorID())
	return released, nil
}

// Holds lists the holder's current holds.
func (e *Engine) Holds(ctx context.Context, holderID uuid.UUID) ([]domain.Hold, error) {
	return e.holds.ListByHolder(ctx, nil, holderID)
}

func (e *Engine) publish(ctx context.Context, subject string, event any) {
	if e.publisher == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		e.logger.ErrorContext(ctx, "failed to marshal event", "error", err, "subject", subject)
		return
	}
	if err := e.publisher.Publish(ctx, subject, data); err != nil {
		e.logger.WarnContext(ctx, "failed to publish event", "error", err, "subject", subject)
	}
}
