package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	billingdomain "github.com/argsms/rangepool/internal/billing/domain"
	billingrepo "github.com/argsms/rangepool/internal/billing/repository"
	catalogdomain "github.com/argsms/rangepool/internal/catalog/domain"
	"github.com/argsms/rangepool/internal/clock"
	identitydomain "github.com/argsms/rangepool/internal/identity/domain"
	identityrepo "github.com/argsms/rangepool/internal/identity/repository"
	"github.com/argsms/rangepool/internal/reservation/domain"
	"github.com/argsms/rangepool/internal/reservation/repository"
)

// MockHoldRepository is a mock implementation of repository.HoldRepository.
type MockHoldRepository struct {
	mock.Mock
}

func (m *MockHoldRepository) CandidateNumbers(ctx context.Context, querier repository.Querier, rangeID string) ([]repository.Candidate, error) {
	args := m.Called(ctx, querier, rangeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.Candidate), args.Error(1)
}

func (m *MockHoldRepository) CreateHold(ctx context.Context, querier repository.Querier, hold *domain.Hold) (bool, error) {
	args := m.Called(ctx, querier, hold)
	return args.Bool(0), args.Error(1)
}

func (m *MockHoldRepository) GetActiveByNumber(ctx context.Context, querier repository.Querier, number string) (*domain.Hold, error) {
	args := m.Called(ctx, querier, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Hold), args.Error(1)
}

func (m *MockHoldRepository) MarkSearched(ctx context.Context, querier repository.Querier, number string, holderID uuid.UUID, now time.Time) (*domain.Hold, error) {
	args := m.Called(ctx, querier, number, holderID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Hold), args.Error(1)
}

func (m *MockHoldRepository) PromoteToPermanent(ctx context.Context, querier repository.Querier, number string, holderID uuid.UUID) (*repository.Promoted, error) {
	args := m.Called(ctx, querier, number, holderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Promoted), args.Error(1)
}

func (m *MockHoldRepository) ReleaseTemporaryByHolder(ctx context.Context, querier repository.Querier, holderID uuid.UUID) (int64, error) {
	args := m.Called(ctx, querier, holderID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockHoldRepository) DeleteExpired(ctx context.Context, querier repository.Querier, initialCutoff, retryCutoff time.Time, limit int) ([]repository.Released, error) {
	args := m.Called(ctx, querier, initialCutoff, retryCutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.Released), args.Error(1)
}

func (m *MockHoldRepository) ReleaseAllTemporary(ctx context.Context, querier repository.Querier, rangeID *string) (int64, error) {
	args := m.Called(ctx, querier, rangeID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockHoldRepository) ListByHolder(ctx context.Context, querier repository.Querier, holderID uuid.UUID) ([]domain.Hold, error) {
	args := m.Called(ctx, querier, holderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Hold), args.Error(1)
}

// MockRangeReader is a mock implementation of RangeReader.
type MockRangeReader struct {
	mock.Mock
}

func (m *MockRangeReader) GetRange(ctx context.Context, rangeID string) (*catalogdomain.Range, error) {
	args := m.Called(ctx, rangeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalogdomain.Range), args.Error(1)
}

// MockPriceResolver is a mock implementation of PriceResolver.
type MockPriceResolver struct {
	mock.Mock
}

func (m *MockPriceResolver) Resolve(ctx context.Context, rangeName string) (float64, error) {
	args := m.Called(ctx, rangeName)
	return args.Get(0).(float64), args.Error(1)
}

// MockLedger is a mock implementation of Ledger.
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) BalanceIn(ctx context.Context, querier billingrepo.Querier, userID uuid.UUID) (float64, error) {
	args := m.Called(ctx, querier, userID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockLedger) Append(ctx context.Context, querier billingrepo.Querier, userID uuid.UUID, amount float64, category billingdomain.TransactionCategory, description string) (*billingdomain.Transaction, error) {
	args := m.Called(ctx, querier, userID, amount, category, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billingdomain.Transaction), args.Error(1)
}

// MockUserCounter is a mock implementation of UserCounter.
type MockUserCounter struct {
	mock.Mock
}

func (m *MockUserCounter) IncrementReceivedCount(ctx context.Context, querier identityrepo.Querier, id uuid.UUID) error {
	args := m.Called(ctx, querier, id)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of EventPublisher.
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	args := m.Called(ctx, subject, data)
	return args.Error(0)
}

// fakeTx satisfies pgx.Tx for pgx.BeginFunc; the repository mocks never
// touch the embedded interface, so it stays nil. Rollback after Commit
// reports ErrTxClosed, matching a real transaction.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(_ context.Context) error {
	if t.rolledBack {
		return pgx.ErrTxClosed
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(_ context.Context) error {
	if t.committed || t.rolledBack {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

// fakeDB records the transactions it hands out so tests can assert on
// commit versus rollback and on how many times a unit was attempted.
type fakeDB struct {
	tx     *fakeTx
	begins int
}

func (d *fakeDB) Begin(_ context.Context) (pgx.Tx, error) {
	d.begins++
	d.tx = &fakeTx{}
	return d.tx, nil
}

type engineFixture struct {
	engine    *Engine
	db        *fakeDB
	holds     *MockHoldRepository
	ranges    *MockRangeReader
	pricing   *MockPriceResolver
	ledger    *MockLedger
	users     *MockUserCounter
	publisher *MockEventPublisher
	clock     *clock.Manual
}

func newEngineFixture(t *testing.T, batchSize int) *engineFixture {
	t.Helper()

	f := &engineFixture{
		db:        &fakeDB{},
		holds:     new(MockHoldRepository),
		ranges:    new(MockRangeReader),
		pricing:   new(MockPriceResolver),
		ledger:    new(MockLedger),
		users:     new(MockUserCounter),
		publisher: new(MockEventPublisher),
		clock:     clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.engine = NewEngine(
		f.db, f.holds, f.ranges, f.pricing, f.ledger, f.users, f.publisher, f.clock,
		EngineConfig{
			HoldInitialTTL:      10 * time.Minute,
			HoldRetryTTL:        5 * time.Minute,
			AllocationBatchSize: batchSize,
			SweepBatchSize:      200,
		},
		logger,
	)
	return f
}

func candidates(numbers ...string) []repository.Candidate {
	out := make([]repository.Candidate, 0, len(numbers))
	for _, n := range numbers {
		out = append(out, repository.Candidate{NumberID: uuid.New(), Number: n})
	}
	return out
}

func TestEngine_Allocate_Success(t *testing.T) {
	f := newEngineFixture(t, 2)
	holderID := uuid.New()

	f.ranges.On("GetRange", mock.Anything, "r1").Return(&catalogdomain.Range{ID: "r1", Name: "Russia Lion"}, nil)
	f.pricing.On("Resolve", mock.Anything, "Russia Lion").Return(2.5, nil)

	f.holds.On("ReleaseTemporaryByHolder", mock.Anything, mock.Anything, holderID).Return(int64(0), nil)
	f.ledger.On("BalanceIn", mock.Anything, mock.Anything, holderID).Return(10.0, nil)
	f.holds.On("CandidateNumbers", mock.Anything, mock.Anything, "r1").
		Return(candidates("79001", "79002", "79003"), nil)
	f.holds.On("CreateHold", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	holds, err := f.engine.Allocate(context.Background(), holderID, "r1")
	require.NoError(t, err)
	require.Len(t, holds, 2)
	for _, h := range holds {
		assert.Equal(t, holderID, h.HolderID)
		assert.False(t, h.Permanent)
		assert.Equal(t, f.clock.Now(), h.CreatedAt)
		assert.Nil(t, h.FirstSearchedAt)
	}
	f.holds.AssertNumberOfCalls(t, "CreateHold", 2)
	assert.True(t, f.db.tx.committed)
}

func TestEngine_Allocate_SupersedesStaleBatch(t *testing.T) {
	f := newEngineFixture(t, 1)
	holderID := uuid.New()

	f.ranges.On("GetRange", mock.Anything, "r1").Return(&catalogdomain.Range{ID: "r1", Name: "Russia Lion"}, nil)
	f.pricing.On("Resolve", mock.Anything, "Russia Lion").Return(2.5, nil)

	// Previous temporary batch released inside the same transaction.
	f.holds.On("ReleaseTemporaryByHolder", mock.Anything, mock.Anything, holderID).Return(int64(20), nil)
	f.ledger.On("BalanceIn", mock.Anything, mock.Anything, holderID).Return(10.0, nil)
	f.holds.On("CandidateNumbers", mock.Anything, mock.Anything, "r1").Return(candidates("79001"), nil)
	f.holds.On("CreateHold", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	_, err := f.engine.Allocate(context.Background(), holderID, "r1")
	require.NoError(t, err)
	f.holds.AssertCalled(t, "ReleaseTemporaryByHolder", mock.Anything, mock.Anything, holderID)
	assert.True(t, f.db.tx.committed)
}

func TestEngine_Allocate_InsufficientBalance(t *testing.T) {
	f := newEngineFixture(t, 2)
	holderID := uuid.New()

	f.ranges.On("GetRange", mock.Anything, "r1").Return(&catalogdomain.Range{ID: "r1", Name: "Russia Lion"}, nil)
	f.pricing.On("Resolve", mock.Anything, "Russia Lion").Return(2.5, nil)

	f.holds.On("ReleaseTemporaryByHolder", mock.Anything, mock.Anything, holderID).Return(int64(0), nil)
	f.ledger.On("BalanceIn", mock.Anything, mock.Anything, holderID).Return(1.0, nil)

	_, err := f.engine.Allocate(context.Background(), holderID, "r1")
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
	f.holds.AssertNotCalled(t, "CandidateNumbers", mock.Anything, mock.Anything, mock.Anything)
	assert.True(t, f.db.tx.rolledBack)
}

func TestEngine_Allocate_InsufficientInventory(t *testing.T) {
	f := newEngineFixture(t, 5)
	holderID := uuid.New()

	f.ranges.On("GetRange", mock.Anything, "r1").Return(&catalogdomain.Range{ID: "r1", Name: "Russia Lion"}, nil)
	f.pricing.On("Resolve", mock.Anything, "Russia Lion").Return(2.5, nil)

	f.holds.On("ReleaseTemporaryByHolder", mock.Anything, mock.Anything, holderID).Return(int64(0), nil)
	f.ledger.On("BalanceIn", mock.Anything, mock.Anything, holderID).Return(10.0, nil)
	f.holds.On("CandidateNumbers", mock.Anything, mock.Anything, "r1").Return(candidates("79001", "79002"), nil)

	_, err := f.engine.Allocate(context.Background(), holderID, "r1")
	assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
	// Nothing survives the rolled-back transaction.
	f.holds.AssertNotCalled(t, "CreateHold", mock.Anything, mock.Anything, mock.Anything)
	assert.True(t, f.db.tx.rolledBack)
}

func TestEngine_Allocate_RetriesLostRaces(t *testing.T) {
	f := newEngineFixture(t, 2)
	holderID := uuid.New()

	f.ranges.On("GetRange", mock.Anything, "r1").Return(&catalogdomain.Range{ID: "r1", Name: "Russia Lion"}, nil)
	f.pricing.On("Resolve", mock.Anything, "Russia Lion").Return(2.5, nil)

	f.holds.On("ReleaseTemporaryByHolder", mock.Anything, mock.Anything, holderID).Return(int64(0), nil)
	f.ledger.On("BalanceIn", mock.Anything, mock.Anything, holderID).Return(10.0, nil)
	f.holds.On("CandidateNumbers", mock.Anything, mock.Anything, "r1").
		Return(candidates("79001", "79002"), nil).Once()
	// A concurrent allocator wins one number; the next attempt re-scans and
	// picks a replacement.
	f.holds.On("CreateHold", mock.Anything, mock.Anything, mock.Anything).Return(false, nil).Once()
	f.holds.On("CreateHold", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	f.holds.On("CandidateNumbers", mock.Anything, mock.Anything, "r1").
		Return(candidates("79003"), nil).Once()

	holds, err := f.engine.Allocate(context.Background(), holderID, "r1")
	require.NoError(t, err)
	assert.Len(t, holds, 2)
	assert.True(t, f.db.tx.committed)
}

func TestEngine_Allocate_InsertsInNumberIDOrder(t *testing.T) {
	f := newEngineFixture(t, 3)
	holderID := uuid.New()

	f.ranges.On("GetRange", mock.Anything, "r1").Return(&catalogdomain.Range{ID: "r1", Name: "Russia Lion"}, nil)
	f.pricing.On("Resolve", mock.Anything, "Russia Lion").Return(2.5, nil)
	f.holds.On("ReleaseTemporaryByHolder", mock.Anything, mock.Anything, holderID).Return(int64(0), nil)
	f.ledger.On("BalanceIn", mock.Anything, mock.Anything, holderID).Return(10.0, nil)
	f.holds.On("CandidateNumbers", mock.Anything, mock.Anything, "r1").
		Return(candidates("79003", "79001", "79002"), nil)

	var inserted []uuid.UUID
	f.holds.On("CreateHold", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			inserted = append(inserted, args.Get(2).(*domain.Hold).NumberID)
		}).
		Return(true, nil)

	_, err := f.engine.Allocate(context.Background(), holderID, "r1")
	require.NoError(t, err)
	require.Len(t, inserted, 3)
	// Ascending number-id order regardless of the shuffle, so two
	// allocators working the same range lock rows in the same sequence.
	assert.True(t, slices.IsSortedFunc(inserted, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	}))
	assert.True(t, f.db.tx.committed)
}

func TestEngine_Allocate_RetriesDeadlockAbort(t *testing.T) {
	f := newEngineFixture(t, 1)
	holderID := uuid.New()

	f.ranges.On("GetRange", mock.Anything, "r1").Return(&catalogdomain.Range{ID: "r1", Name: "Russia Lion"}, nil)
	f.pricing.On("Resolve", mock.Anything, "Russia Lion").Return(2.5, nil)
	f.holds.On("ReleaseTemporaryByHolder", mock.Anything, mock.Anything, holderID).Return(int64(0), nil)
	f.ledger.On("BalanceIn", mock.Anything, mock.Anything, holderID).Return(10.0, nil)
	f.holds.On("CandidateNumbers", mock.Anything, mock.Anything, "r1").Return(candidates("79001"), nil)

	// The database aborts the first transaction as the deadlock victim; the
	// engine re-runs the whole unit and succeeds.
	f.holds.On("CreateHold", mock.Anything, mock.Anything, mock.Anything).
		Return(false, &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}).Once()
	f.holds.On("CreateHold", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)

	holds, err := f.engine.Allocate(context.Background(), holderID, "r1")
	require.NoError(t, err)
	assert.Len(t, holds, 1)
	assert.Equal(t, 2, f.db.begins)
	assert.True(t, f.db.tx.committed)
}

func TestEngine_Allocate_DeadlockRetriesBounded(t *testing.T) {
	f := newEngineFixture(t, 1)
	holderID := uuid.New()

	f.ranges.On("GetRange", mock.Anything, "r1").Return(&catalogdomain.Range{ID: "r1", Name: "Russia Lion"}, nil)
	f.pricing.On("Resolve", mock.Anything, "Russia Lion").Return(2.5, nil)
	f.holds.On("ReleaseTemporaryByHolder", mock.Anything, mock.Anything, holderID).Return(int64(0), nil)
	f.ledger.On("BalanceIn", mock.Anything, mock.Anything, holderID).Return(10.0, nil)
	f.holds.On("CandidateNumbers", mock.Anything, mock.Anything, "r1").Return(candidates("79001"), nil)

	pgErr := &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	f.holds.On("CreateHold", mock.Anything, mock.Anything, mock.Anything).Return(false, pgErr)

	_, err := f.engine.Allocate(context.Background(), holderID, "r1")
	assert.ErrorIs(t, err, pgErr)
	assert.Equal(t, allocationAttempts, f.db.begins)
	assert.True(t, f.db.tx.rolledBack)
}

func TestEngine_Allocate_NonRetryableErrorNotReRun(t *testing.T) {
	f := newEngineFixture(t, 1)
	holderID := uuid.New()

	f.ranges.On("GetRange", mock.Anything, "r1").Return(&catalogdomain.Range{ID: "r1", Name: "Russia Lion"}, nil)
	f.pricing.On("Resolve", mock.Anything, "Russia Lion").Return(2.5, nil)
	f.holds.On("ReleaseTemporaryByHolder", mock.Anything, mock.Anything, holderID).Return(int64(0), nil)

	dbDown := errors.New("connection reset")
	f.ledger.On("BalanceIn", mock.Anything, mock.Anything, holderID).Return(0.0, dbDown)

	_, err := f.engine.Allocate(context.Background(), holderID, "r1")
	assert.ErrorIs(t, err, dbDown)
	assert.Equal(t, 1, f.db.begins)
}

func TestEngine_Allocate_RangeNotFound(t *testing.T) {
	f := newEngineFixture(t, 2)

	f.ranges.On("GetRange", mock.Anything, "missing").Return(nil, catalogdomain.ErrRangeNotFound)

	_, err := f.engine.Allocate(context.Background(), uuid.New(), "missing")
	assert.ErrorIs(t, err, catalogdomain.ErrRangeNotFound)
	assert.Nil(t, f.db.tx)
}

func TestEngine_Allocate_PricingUnresolvedBlocksAllocation(t *testing.T) {
	f := newEngineFixture(t, 2)

	f.ranges.On("GetRange", mock.Anything, "r1").Return(&catalogdomain.Range{ID: "r1", Name: "Unpriced"}, nil)
	resolveErr := errors.New("no default unit price configured")
	f.pricing.On("Resolve", mock.Anything, "Unpriced").Return(0.0, resolveErr)

	_, err := f.engine.Allocate(context.Background(), uuid.New(), "r1")
	assert.ErrorIs(t, err, resolveErr)
	assert.Nil(t, f.db.tx)
}

func TestEngine_RecordSearchAttempt(t *testing.T) {
	f := newEngineFixture(t, 2)
	holderID := uuid.New()
	now := f.clock.Now()

	searched := now
	f.holds.On("MarkSearched", mock.Anything, nil, "79001", holderID, now).
		Return(&domain.Hold{Number: "79001", HolderID: holderID, CreatedAt: now.Add(-time.Minute), FirstSearchedAt: &searched}, nil)

	deadline, err := f.engine.RecordSearchAttempt(context.Background(), holderID, "79001")
	require.NoError(t, err)
	assert.Equal(t, now.Add(5*time.Minute), deadline)
}

func TestEngine_RecordSearchAttempt_NotHeld(t *testing.T) {
	f := newEngineFixture(t, 2)
	holderID := uuid.New()

	f.holds.On("MarkSearched", mock.Anything, nil, "79001", holderID, f.clock.Now()).Return(nil, nil)

	_, err := f.engine.RecordSearchAttempt(context.Background(), holderID, "79001")
	assert.ErrorIs(t, err, domain.ErrNotHeld)
}

func TestEngine_Settle_Found(t *testing.T) {
	f := newEngineFixture(t, 2)
	holderID := uuid.New()

	promoted := &repository.Promoted{
		Hold:      domain.Hold{Number: "79001", HolderID: holderID, Permanent: true},
		RangeID:   "r1",
		RangeName: "Russia Lion",
	}

	f.holds.On("PromoteToPermanent", mock.Anything, mock.Anything, "79001", holderID).Return(promoted, nil)
	f.pricing.On("Resolve", mock.Anything, "Russia Lion").Return(2.5, nil)
	f.ledger.On("Append", mock.Anything, mock.Anything, holderID, -2.5, billingdomain.CategorySMSCharge, mock.Anything).
		Return(&billingdomain.Transaction{ID: uuid.New(), Amount: -2.5}, nil)
	f.users.On("IncrementReceivedCount", mock.Anything, mock.Anything, holderID).Return(nil)
	f.publisher.On("Publish", mock.Anything, domain.SubjectHoldSettled, mock.Anything).Return(nil)

	err := f.engine.Settle(context.Background(), holderID, "79001", true)
	require.NoError(t, err)
	f.ledger.AssertNumberOfCalls(t, "Append", 1)
	f.publisher.AssertCalled(t, "Publish", mock.Anything, domain.SubjectHoldSettled, mock.Anything)
	assert.True(t, f.db.tx.committed)
}

func TestEngine_Settle_Found_NotHeld(t *testing.T) {
	f := newEngineFixture(t, 2)
	holderID := uuid.New()

	f.holds.On("PromoteToPermanent", mock.Anything, mock.Anything, "79001", holderID).Return(nil, nil)

	err := f.engine.Settle(context.Background(), holderID, "79001", true)
	assert.ErrorIs(t, err, domain.ErrNotHeld)
	f.ledger.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.True(t, f.db.tx.rolledBack)
}

func TestEngine_Settle_Found_DebitFailureRollsBackPromotion(t *testing.T) {
	f := newEngineFixture(t, 2)
	holderID := uuid.New()

	promoted := &repository.Promoted{
		Hold:      domain.Hold{Number: "79001", HolderID: holderID, Permanent: true},
		RangeID:   "r1",
		RangeName: "Russia Lion",
	}

	f.holds.On("PromoteToPermanent", mock.Anything, mock.Anything, "79001", holderID).Return(promoted, nil)
	f.pricing.On("Resolve", mock.Anything, "Russia Lion").Return(2.5, nil)
	appendErr := errors.New("ledger write failed")
	f.ledger.On("Append", mock.Anything, mock.Anything, holderID, -2.5, billingdomain.CategorySMSCharge, mock.Anything).
		Return(nil, appendErr)

	err := f.engine.Settle(context.Background(), holderID, "79001", true)
	assert.ErrorIs(t, err, appendErr)
	f.users.AssertNotCalled(t, "IncrementReceivedCount", mock.Anything, mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	assert.True(t, f.db.tx.rolledBack)
}

func TestEngine_Settle_NotFound_LeavesHoldUntouched(t *testing.T) {
	f := newEngineFixture(t, 2)
	holderID := uuid.New()

	f.holds.On("GetActiveByNumber", mock.Anything, nil, "79001").
		Return(&domain.Hold{Number: "79001", HolderID: holderID}, nil)

	err := f.engine.Settle(context.Background(), holderID, "79001", false)
	require.NoError(t, err)
	f.holds.AssertNotCalled(t, "PromoteToPermanent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.ledger.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_Settle_NotFound_WrongHolder(t *testing.T) {
	f := newEngineFixture(t, 2)

	f.holds.On("GetActiveByNumber", mock.Anything, nil, "79001").
		Return(&domain.Hold{Number: "79001", HolderID: uuid.New()}, nil)

	err := f.engine.Settle(context.Background(), uuid.New(), "79001", false)
	assert.ErrorIs(t, err, domain.ErrNotHeld)
}

func TestEngine_Settle_NotFound_AlreadyPermanent(t *testing.T) {
	f := newEngineFixture(t, 2)
	holderID := uuid.New()

	f.holds.On("GetActiveByNumber", mock.Anything, nil, "79001").
		Return(&domain.Hold{Number: "79001", HolderID: holderID, Permanent: true}, nil)

	err := f.engine.Settle(context.Background(), holderID, "79001", false)
	assert.ErrorIs(t, err, domain.ErrNotHeld)
}

func TestEngine_SweepExpired(t *testing.T) {
	f := newEngineFixture(t, 2)
	now := f.clock.Now()
	h1 := uuid.New()
	h2 := uuid.New()

	f.holds.On("DeleteExpired", mock.Anything, nil, now.Add(-10*time.Minute), now.Add(-5*time.Minute), 200).
		Return([]repository.Released{{Number: "79001", HolderID: h1}, {Number: "79002", HolderID: h2}}, nil)
	f.publisher.On("Publish", mock.Anything, domain.SubjectHoldExpired, mock.Anything).Return(nil)

	released, err := f.engine.SweepExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Len(t, released, 2)
	f.publisher.AssertNumberOfCalls(t, "Publish", 2)
}

func TestEngine_SweepExpired_Empty(t *testing.T) {
	f := newEngineFixture(t, 2)
	now := f.clock.Now()

	f.holds.On("DeleteExpired", mock.Anything, nil, mock.Anything, mock.Anything, 200).
		Return([]repository.Released{}, nil)

	released, err := f.engine.SweepExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Empty(t, released)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_ReleaseAll_RequiresCapability(t *testing.T) {
	f := newEngineFixture(t, 2)

	_, err := f.engine.ReleaseAll(context.Background(), identitydomain.AdminCapability{}, nil)
	assert.ErrorIs(t, err, identitydomain.ErrNotAdmin)
	f.holds.AssertNotCalled(t, "ReleaseAllTemporary", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_ReleaseAll_ScopedToRange(t *testing.T) {
	f := newEngineFixture(t, 2)
	cap := identitydomain.NewAdminCapability(uuid.New())
	rangeID := "r1"

	f.holds.On("ReleaseAllTemporary", mock.Anything, nil, &rangeID).Return(int64(7), nil)

	released, err := f.engine.ReleaseAll(context.Background(), cap, &rangeID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), released)
}

func TestEngine_PublishFailureDoesNotFailSettlement(t *testing.T) {
	f := newEngineFixture(t, 2)
	holderID := uuid.New()

	promoted := &repository.Promoted{
		Hold:      domain.Hold{Number: "79001", HolderID: holderID, Permanent: true},
		RangeID:   "r1",
		RangeName: "Russia Lion",
	}

	f.holds.On("PromoteToPermanent", mock.Anything, mock.Anything, "79001", holderID).Return(promoted, nil)
	f.pricing.On("Resolve", mock.Anything, "Russia Lion").Return(2.5, nil)
	f.ledger.On("Append", mock.Anything, mock.Anything, holderID, -2.5, billingdomain.CategorySMSCharge, mock.Anything).
		Return(&billingdomain.Transaction{ID: uuid.New()}, nil)
	f.users.On("IncrementReceivedCount", mock.Anything, mock.Anything, holderID).Return(nil)
	f.publisher.On("Publish", mock.Anything, domain.SubjectHoldSettled, mock.Anything).Return(errors.New("nats down"))

	err := f.engine.Settle(context.Background(), holderID, "79001", true)
	assert.NoError(t, err)
}
