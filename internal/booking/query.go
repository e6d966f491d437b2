package booking

import (
	"context"
	"fmt"
	"iter"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

const defaultPageSize = 100

// QueryService serves the read paths. Nothing here feeds admission
// decisions; the ledger's remaining count stays authoritative.
type QueryService struct {
	Store    Store
	Cache    StatsCache
	Logger   *logger.Logger
	PageSize int
}

func NewQueryService(store Store, cache StatsCache, log *logger.Logger, pageSize int) *QueryService {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &QueryService{Store: store, Cache: cache, Logger: log, PageSize: pageSize}
}

// MyBookings yields the user's bookings oldest first, fetching one page at a
// time. Every range over the returned sequence starts again from the first
// booking.
func (q *QueryService) MyBookings(ctx context.Context, userID string) iter.Seq2[models.Booking, error] {
	return func(yield func(models.Booking, error) bool) {
		var cursor *models.BookingCursor
		for {
			page, err := q.Store.Registry().PageByUser(ctx, userID, cursor, q.PageSize)
			if err != nil {
				yield(models.Booking{}, fmt.Errorf("list bookings for user %s: %w", userID, err))
				return
			}

			for _, b := range page {
				if !yield(b, nil) {
					return
				}
			}

			if len(page) < q.PageSize {
				return
			}
			last := page[len(page)-1]
			cursor = &models.BookingCursor{CreatedAt: last.CreatedAt, ID: last.ID}
		}
	}
}

// ListMyBookings drains MyBookings into a slice.
func (q *QueryService) ListMyBookings(ctx context.Context, userID string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	for b, err := range q.MyBookings(ctx, userID) {
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, nil
}

func (q *QueryService) EventBookings(ctx context.Context, eventID string) ([]models.Booking, error) {
	if _, err := q.Store.Ledger().GetEvent(ctx, eventID); err != nil {
		return nil, err
	}

	bookings, err := q.Store.Registry().FindByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list bookings for event %s: %w", eventID, err)
	}
	if bookings == nil {
		bookings = []models.Booking{}
	}
	return bookings, nil
}

// EventStats returns booking counts by status next to the ledger totals,
// served from the cache when present. The cache generation is read before the
// store, so a booking committed mid-read keeps the snapshot out of the cache.
func (q *QueryService) EventStats(ctx context.Context, eventID string) (*models.EventStats, error) {
	var (
		generation int64
		cacheable  bool
	)
	if q.Cache != nil {
		cached, gen, ok, err := q.Cache.Get(ctx, eventID)
		switch {
		case err != nil:
			q.Logger.Warn("REDIS", fmt.Sprintf("Stats cache read failed for event %s: %v", eventID, err))
		case ok:
			return cached, nil
		default:
			generation, cacheable = gen, true
		}
	}

	event, err := q.Store.Ledger().GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	counts, err := q.Store.Registry().CountByStatus(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("count bookings for event %s: %w", eventID, err)
	}

	stats := models.EventStats{
		EventID:   event.ID,
		Total:     event.Total,
		Remaining: event.Remaining,
		Counts: map[models.BookingStatus]int{
			models.BookingPending:   counts[models.BookingPending],
			models.BookingConfirmed: counts[models.BookingConfirmed],
			models.BookingCancelled: counts[models.BookingCancelled],
		},
	}

	if !stats.Consistent() {
		q.Logger.Warn("INVARIANT", fmt.Sprintf("Event %s: %d confirmed bookings but %d spots taken", eventID, stats.Counts[models.BookingConfirmed], stats.Total-stats.Remaining))
	}

	if cacheable {
		if err := q.Cache.Set(ctx, stats, generation); err != nil {
			q.Logger.Warn("REDIS", fmt.Sprintf("Stats cache write failed for event %s: %v", eventID, err))
		}
	}
	return &stats, nil
}
