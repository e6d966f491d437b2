package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/booking"
	"ms-booking/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"
)

type Registry struct {
	db  bun.IDB
	now func() time.Time
}

// Create inserts a confirmed booking. The partial unique index on active
// bookings turns a second active row for the same user and event into
// ErrDuplicateBooking.
func (r *Registry) Create(ctx context.Context, userID, eventID string) (*models.Booking, error) {
	now := r.now()
	b := &models.Booking{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventID:   eventID,
		Status:    models.BookingConfirmed,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.NewInsert().Model(b).Exec(ctx)
	if isUniqueViolation(err) {
		return nil, booking.ErrDuplicateBooking
	}
	if err != nil {
		return nil, fmt.Errorf("create booking for user %s on event %s: %w", userID, eventID, err)
	}
	return b, nil
}

func (r *Registry) GetByID(ctx context.Context, bookingID string) (*models.Booking, error) {
	var b models.Booking
	err := r.db.NewSelect().
		Model(&b).
		Where("id = ?", bookingID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrBookingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get booking %s: %w", bookingID, err)
	}
	return &b, nil
}

// Cancel reports whether the booking moved from an active status to
// cancelled. An already cancelled booking yields (false, nil).
func (r *Registry) Cancel(ctx context.Context, bookingID string) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", models.BookingCancelled).
		Set("updated_at = ?", r.now()).
		Where("id = ?", bookingID).
		Where("status IN (?)", bun.In(models.ActiveStatuses)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("cancel booking %s: %w", bookingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	if _, err := r.GetByID(ctx, bookingID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Registry) FindByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.NewSelect().
		Model(&bookings).
		Where("user_id = ?", userID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find bookings for user %s: %w", userID, err)
	}
	return bookings, nil
}

func (r *Registry) FindByEvent(ctx context.Context, eventID string) ([]models.Booking, error) {
	var bookings []models.Booking
	err := r.db.NewSelect().
		Model(&bookings).
		Where("event_id = ?", eventID).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("find bookings for event %s: %w", eventID, err)
	}
	return bookings, nil
}

// PageByUser returns up to limit bookings of userID strictly after the cursor
// in (created_at, id) order. A nil cursor starts from the beginning.
func (r *Registry) PageByUser(ctx context.Context, userID string, after *models.BookingCursor, limit int) ([]models.Booking, error) {
	var bookings []models.Booking
	q := r.db.NewSelect().
		Model(&bookings).
		Where("user_id = ?", userID)
	if after != nil {
		q = q.Where("(created_at > ?) OR (created_at = ? AND id > ?)", after.CreatedAt, after.CreatedAt, after.ID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.OrderExpr("created_at ASC, id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("page bookings for user %s: %w", userID, err)
	}
	return bookings, nil
}

func (r *Registry) CountByStatus(ctx context.Context, eventID string) (map[models.BookingStatus]int, error) {
	var rows []struct {
		Status models.BookingStatus `bun:"status"`
		Count  int                  `bun:"count"`
	}
	err := r.db.NewSelect().
		Model((*models.Booking)(nil)).
		Column("status").
		ColumnExpr("COUNT(*) AS count").
		Where("event_id = ?", eventID).
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("count bookings for event %s: %w", eventID, err)
	}

	counts := make(map[models.BookingStatus]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
