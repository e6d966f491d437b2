package booking_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"ms-booking/internal/booking"
	"ms-booking/internal/booking/db"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("connection reset by peer")

func setupStore(t *testing.T) *db.DB {
	t.Helper()

	bunDB, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunDB.Close() })
	require.NoError(t, db.CreateSchema(context.Background(), bunDB))

	store := db.New(bunDB)
	var tick atomic.Int64
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store.Now = func() time.Time {
		return start.Add(time.Duration(tick.Add(1)) * time.Second)
	}
	return store
}

func seedEvent(t *testing.T, store booking.Store, id string, total int) {
	t.Helper()
	_, err := store.Ledger().CreateEvent(context.Background(), &models.Event{ID: id, Name: "Event " + id, Total: total})
	require.NoError(t, err)
}

func testOptions() booking.Options {
	return booking.Options{
		MaxAttempts:          3,
		RetryInitialInterval: time.Millisecond,
		AttemptTimeout:       2 * time.Second,
	}
}

func newTestService(store booking.Store) *booking.Service {
	return booking.NewService(store, nil, nil, logger.NewTestLogger(nil), testOptions())
}

// flakyStore fails the first failures transactions with errTransient.
type flakyStore struct {
	booking.Store
	failures int32
	calls    atomic.Int32
}

func (s *flakyStore) RunInTx(ctx context.Context, fn booking.TxFunc) error {
	if s.calls.Add(1) <= s.failures {
		return errTransient
	}
	return s.Store.RunInTx(ctx, fn)
}

// failingRegistryStore runs real transactions but makes Create fail after the
// ledger has already reserved a spot.
type failingRegistryStore struct {
	booking.Store
	err error
}

func (s *failingRegistryStore) RunInTx(ctx context.Context, fn booking.TxFunc) error {
	return s.Store.RunInTx(ctx, func(ctx context.Context, ledger booking.Ledger, registry booking.Registry) error {
		return fn(ctx, ledger, &failingRegistry{Registry: registry, err: s.err})
	})
}

type failingRegistry struct {
	booking.Registry
	err error
}

func (r *failingRegistry) Create(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	return nil, r.err
}

// MockStatsCache is a testify mock of booking.StatsCache.
type MockStatsCache struct {
	mock.Mock
}

func (m *MockStatsCache) Get(ctx context.Context, eventID string) (*models.EventStats, int64, bool, error) {
	args := m.Called(ctx, eventID)
	stats, _ := args.Get(0).(*models.EventStats)
	return stats, args.Get(1).(int64), args.Bool(2), args.Error(3)
}

func (m *MockStatsCache) Set(ctx context.Context, stats models.EventStats, generation int64) error {
	args := m.Called(ctx, stats, generation)
	return args.Error(0)
}

func (m *MockStatsCache) Invalidate(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

// MockPublisher is a testify mock of booking.EventPublisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishBookingCreated(ctx context.Context, b models.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}

func (m *MockPublisher) PublishBookingCancelled(ctx context.Context, b models.Booking) error {
	args := m.Called(ctx, b)
	return args.Error(0)
}
