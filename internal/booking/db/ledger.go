package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"ms-booking/internal/booking"
	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

// Ledger owns events.remaining. Both mutations are single conditional
// UPDATEs, so the bounds check and the write cannot be split by a concurrent
// writer.
type Ledger struct {
	db bun.IDB
}

func (l *Ledger) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := l.db.NewSelect().
		Model(&event).
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return &event, nil
}

// CreateEvent registers an event with remaining = total. It reports false
// when the event already exists; the stored row is left untouched.
func (l *Ledger) CreateEvent(ctx context.Context, event *models.Event) (bool, error) {
	if event.ID == "" || event.Total < 0 {
		return false, fmt.Errorf("%w: event needs an id and a non-negative capacity", booking.ErrInvalidRequest)
	}
	event.Remaining = event.Total
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.CreatedAt = event.CreatedAt.UTC().Truncate(time.Microsecond)

	res, err := l.db.NewInsert().
		Model(event).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("create event %s: %w", event.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// TryReserve takes one spot if any is left.
func (l *Ledger) TryReserve(ctx context.Context, eventID string) (models.Reservation, error) {
	res, err := l.db.NewUpdate().
		Model((*models.Event)(nil)).
		Set("remaining = remaining - 1").
		Where("id = ?", eventID).
		Where("remaining > 0").
		Exec(ctx)
	if err != nil {
		return models.Reservation{}, fmt.Errorf("reserve spot on event %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Reservation{}, err
	}

	event, err := l.GetEvent(ctx, eventID)
	if err != nil {
		return models.Reservation{}, err
	}
	return models.Reservation{Granted: n == 1, Remaining: event.Remaining}, nil
}

// Release gives one spot back. Releasing into a full event is an invariant
// violation and changes nothing.
func (l *Ledger) Release(ctx context.Context, eventID string) (int, error) {
	res, err := l.db.NewUpdate().
		Model((*models.Event)(nil)).
		Set("remaining = remaining + 1").
		Where("id = ?", eventID).
		Where("remaining < total").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("release spot on event %s: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	event, err := l.GetEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return event.Remaining, fmt.Errorf("%w: release on event %s with remaining %d of %d",
			booking.ErrInvariantViolation, eventID, event.Remaining, event.Total)
	}
	return event.Remaining, nil
}
