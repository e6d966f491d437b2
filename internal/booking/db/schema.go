package db

import (
	"context"
	"fmt"

	"ms-booking/internal/models"

	"github.com/uptrace/bun"
)

const (
	activeBookingIndex  = "bookings_active_user_event_uidx"
	capacityBoundsCheck = "events_capacity_bounds"
)

// CreateSchema creates the events and bookings tables with their indexes. It
// is idempotent and mirrors the SQL migrations for drivers golang-migrate does
// not cover.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	if _, err := db.NewCreateTable().
		Model((*models.Event)(nil)).
		IfNotExists().
		ColumnExpr("CONSTRAINT " + capacityBoundsCheck + " CHECK (remaining >= 0 AND remaining <= total)").
		Exec(ctx); err != nil {
		return fmt.Errorf("create events table: %w", err)
	}

	if _, err := db.NewCreateTable().
		Model((*models.Booking)(nil)).
		IfNotExists().
		ForeignKey(`("event_id") REFERENCES "events" ("id") ON DELETE CASCADE`).
		ColumnExpr("CONSTRAINT bookings_status_check CHECK (status IN ('pending', 'confirmed', 'cancelled'))").
		Exec(ctx); err != nil {
		return fmt.Errorf("create bookings table: %w", err)
	}

	// At most one active booking per (user, event); cancelled rows are free.
	if _, err := db.NewCreateIndex().
		Model((*models.Booking)(nil)).
		Index(activeBookingIndex).
		Unique().
		IfNotExists().
		Column("user_id", "event_id").
		Where("status IN ('pending', 'confirmed')").
		Exec(ctx); err != nil {
		return fmt.Errorf("create %s: %w", activeBookingIndex, err)
	}

	if _, err := db.NewCreateIndex().
		Model((*models.Booking)(nil)).
		Index("bookings_user_created_idx").
		IfNotExists().
		Column("user_id", "created_at", "id").
		Exec(ctx); err != nil {
		return fmt.Errorf("create bookings_user_created_idx: %w", err)
	}

	if _, err := db.NewCreateIndex().
		Model((*models.Booking)(nil)).
		Index("bookings_event_status_idx").
		IfNotExists().
		Column("event_id", "status").
		Exec(ctx); err != nil {
		return fmt.Errorf("create bookings_event_status_idx: %w", err)
	}
	return nil
}
