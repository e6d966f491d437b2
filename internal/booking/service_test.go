package booking_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBook_Success(t *testing.T) {
	store := setupStore(t)
	seedEvent(t, store, "evt-1", 10)
	svc := newTestService(store)

	b, err := svc.Book(context.Background(), "user-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", b.UserID)
	assert.Equal(t, "evt-1", b.EventID)
	assert.Equal(t, models.BookingConfirmed, b.Status)

	event, err := store.Ledger().GetEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 9, event.Remaining)
}

func TestBook_InvalidRequest(t *testing.T) {
	svc := newTestService(setupStore(t))

	_, err := svc.Book(context.Background(), "", "evt-1")
	assert.ErrorIs(t, err, booking.ErrInvalidRequest)

	_, err = svc.Book(context.Background(), "user-1", "")
	assert.ErrorIs(t, err, booking.ErrInvalidRequest)
}

func TestBook_UnknownEvent(t *testing.T) {
	store := setupStore(t)
	svc := newTestService(store)

	_, err := svc.Book(context.Background(), "user-1", "missing")
	assert.ErrorIs(t, err, booking.ErrNotFound)

	bookings, err := store.Registry().FindByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestBook_AlreadyBookedLeavesCapacity(t *testing.T) {
	store := setupStore(t)
	seedEvent(t, store, "evt-1", 10)
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Book(ctx, "user-1", "evt-1")
	require.NoError(t, err)

	_, err = svc.Book(ctx, "user-1", "evt-1")
	assert.ErrorIs(t, err, booking.ErrAlreadyBooked)

	event, err := store.Ledger().GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 9, event.Remaining, "rejected duplicate must not consume a spot")
}

func TestBook_NoCapacity(t *testing.T) {
	store := setupStore(t)
	seedEvent(t, store, "evt-0", 0)
	svc := newTestService(store)

	_, err := svc.Book(context.Background(), "user-1", "evt-0")
	assert.ErrorIs(t, err, booking.ErrNoCapacity)
}

func TestBook_ConcurrentRequestsNeverOversell(t *testing.T) {
	store := setupStore(t)
	const capacity = 10
	seedEvent(t, store, "evt-race", capacity)
	svc := newTestService(store)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		confirmed int
		rejected  int
	)
	for i := 0; i < capacity+1; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Book(context.Background(), fmt.Sprintf("user-%d", i), "evt-race")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				confirmed++
				return
			}
			assert.ErrorIs(t, err, booking.ErrNoCapacity)
			rejected++
		}(i)
	}
	wg.Wait()

	assert.Equal(t, capacity, confirmed)
	assert.Equal(t, 1, rejected)

	event, err := store.Ledger().GetEvent(context.Background(), "evt-race")
	require.NoError(t, err)
	assert.Equal(t, 0, event.Remaining)
}

func TestBook_ConcurrentSameUserGetsOneBooking(t *testing.T) {
	store := setupStore(t)
	seedEvent(t, store, "evt-dup", 5)
	svc := newTestService(store)

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), "user-1", "evt-dup")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, booking.ErrAlreadyBooked)
	}
	assert.Equal(t, 1, successes)

	bookings, err := store.Registry().FindByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, bookings, 1)

	event, err := store.Ledger().GetEvent(context.Background(), "evt-dup")
	require.NoError(t, err)
	assert.Equal(t, 4, event.Remaining)
}

func TestBook_LastSpotGoesToExactlyOneUser(t *testing.T) {
	store := setupStore(t)
	seedEvent(t, store, "evt-1", 1)
	svc := newTestService(store)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), fmt.Sprintf("user-%d", i), "evt-1")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, booking.ErrNoCapacity)
		}
	}
	assert.Equal(t, 1, successes)
}

func TestBook_FailedInsertRollsBackReservation(t *testing.T) {
	store := setupStore(t)
	seedEvent(t, store, "evt-1", 1)
	svc := newTestService(&failingRegistryStore{Store: store, err: errTransient})

	_, err := svc.Book(context.Background(), "user-1", "evt-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, booking.ErrTransactionFailed)

	event, err := store.Ledger().GetEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, event.Remaining)

	bookings, err := store.Registry().FindByEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestBook_RetriesTransientFailures(t *testing.T) {
	store := setupStore(t)
	seedEvent(t, store, "evt-1", 5)
	flaky := &flakyStore{Store: store, failures: 2}
	svc := newTestService(flaky)

	b, err := svc.Book(context.Background(), "user-1", "evt-1")
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, int32(3), flaky.calls.Load())
}

func TestBook_GivesUpAfterMaxAttempts(t *testing.T) {
	store := setupStore(t)
	seedEvent(t, store, "evt-1", 5)
	flaky := &flakyStore{Store: store, failures: 100}
	svc := newTestService(flaky)

	_, err := svc.Book(context.Background(), "user-1", "evt-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, booking.ErrTransactionFailed)
	assert.ErrorIs(t, err, errTransient)

	var txErr *booking.TransactionError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, "book", txErr.Op)
	assert.Equal(t, 3, txErr.Attempts)
	assert.Equal(t, int32(3), flaky.calls.Load())

	event, err := store.Ledger().GetEvent(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 5, event.Remaining)
}

func TestBook_DomainErrorsAreNotRetried(t *testing.T) {
	store := setupStore(t)
	seedEvent(t, store, "evt-0", 0)
	flaky := &flakyStore{Store: store}
	svc := newTestService(flaky)

	_, err := svc.Book(context.Background(), "user-1", "evt-0")
	assert.ErrorIs(t, err, booking.ErrNoCapacity)
	assert.Equal(t, int32(1), flaky.calls.Load())
}

func TestBook_CancelledContextStopsRetrying(t *testing.T) {
	store := setupStore(t)
	seedEvent(t, store, "evt-1", 5)
	flaky := &flakyStore{Store: store, failures: 100}
	svc := newTestService(flaky)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Book(ctx, "user-1", "evt-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, booking.ErrTransactionFailed)
	assert.LessOrEqual(t, flaky.calls.Load(), int32(1))
}

func TestBook_PublishesAndInvalidatesAfterCommit(t *testing.T) {
	store := setupStore(t)
	seedEvent(t, store, "evt-1", 5)

	cache := new(MockStatsCache)
	cache.On("Invalidate", mock.Anything, "evt-1").Return(nil)
	publisher := new(MockPublisher)
	publisher.On("PublishBookingCreated", mock.Anything, mock.MatchedBy(func(b models.Booking) bool {
		return b.UserID == "user-1" && b.EventID == "evt-1"
	})).Return(errors.New("broker down"))

	svc := booking.NewService(store, cache, publisher, logger.NewTestLogger(nil), testOptions())

	b, err := svc.Book(context.Background(), "user-1", "evt-1")
	require.NoError(t, err, "publish failures must not fail a committed booking")
	assert.NotNil(t, b)

	cache.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestCancel_ReleasesSpot(t *testing.T) {
	store := setupStore(t)
	seedEvent(t, store, "evt-1", 1)
	svc := newTestService(store)
	ctx := context.Background()
	owner := models.Identity{UserID: "user-1", Role: models.RoleUser}

	b, err := svc.Book(ctx, owner.UserID, "evt-1")
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)

	event, err := store.Ledger().GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 1, event.Remaining)

	// The freed spot is bookable again, including by the same user.
	_, err = svc.Book(ctx, owner.UserID, "evt-1")
	assert.NoError(t, err)
}

func TestCancel_IsIdempotent(t *testing.T) {
	store := setupStore(t)
	seedEvent(t, store, "evt-1", 3)
	svc := newTestService(store)
	ctx := context.Background()
	owner := models.Identity{UserID: "user-1", Role: models.RoleUser}

	b, err := svc.Book(ctx, owner.UserID, "evt-1")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, owner, b.ID)
	require.NoError(t, err)
	again, err := svc.Cancel(ctx, owner, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, again.Status)

	event, err := store.Ledger().GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, 3, event.Remaining, "second cancel must not release twice")
}

func TestCancel_Ownership(t *testing.T) {
	store := setupStore(t)
	seedEvent(t, store, "evt-1", 3)
	svc := newTestService(store)
	ctx := context.Background()

	b, err := svc.Book(ctx, "user-1", "evt-1")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, models.Identity{UserID: "user-2", Role: models.RoleUser}, b.ID)
	assert.ErrorIs(t, err, booking.ErrBookingNotFound)

	cancelled, err := svc.Cancel(ctx, models.Identity{UserID: "admin-1", Role: models.RoleAdmin}, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingCancelled, cancelled.Status)
}

func TestCancel_UnknownBooking(t *testing.T) {
	svc := newTestService(setupStore(t))

	_, err := svc.Cancel(context.Background(), models.Identity{UserID: "user-1"}, "missing")
	assert.ErrorIs(t, err, booking.ErrBookingNotFound)
}

func TestCancel_PublishesOnRelease(t *testing.T) {
	store := setupStore(t)
	seedEvent(t, store, "evt-1", 2)
	publisher := new(MockPublisher)
	publisher.On("PublishBookingCreated", mock.Anything, mock.Anything).Return(nil).Once()
	publisher.On("PublishBookingCancelled", mock.Anything, mock.MatchedBy(func(b models.Booking) bool {
		return b.Status == models.BookingCancelled
	})).Return(nil).Once()

	svc := booking.NewService(store, nil, publisher, logger.NewTestLogger(nil), testOptions())
	ctx := context.Background()
	owner := models.Identity{UserID: "user-1"}

	b, err := svc.Book(ctx, owner.UserID, "evt-1")
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, owner, b.ID)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, owner, b.ID)
	require.NoError(t, err)

	publisher.AssertExpectations(t)
}

func TestCapacityConservedAcrossBookAndCancel(t *testing.T) {
	store := setupStore(t)
	const capacity = 4
	seedEvent(t, store, "evt-1", capacity)
	svc := newTestService(store)
	query := booking.NewQueryService(store, nil, logger.NewTestLogger(nil), 2)
	ctx := context.Background()

	var ids []string
	for i := 0; i < capacity; i++ {
		b, err := svc.Book(ctx, fmt.Sprintf("user-%d", i), "evt-1")
		require.NoError(t, err)
		ids = append(ids, b.ID)
	}
	_, err := svc.Cancel(ctx, models.Identity{UserID: "user-0"}, ids[0])
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, models.Identity{UserID: "user-2"}, ids[2])
	require.NoError(t, err)

	stats, err := query.EventStats(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, stats.Consistent())
	assert.Equal(t, 2, stats.Remaining)
	assert.Equal(t, 2, stats.Counts[models.BookingConfirmed])
	assert.Equal(t, 2, stats.Counts[models.BookingCancelled])
}
