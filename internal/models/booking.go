package models

import (
	"time"

	"github.com/uptrace/bun"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
)

// ActiveStatuses are the statuses covered by the one-booking-per-user-and-event index.
var ActiveStatuses = []BookingStatus{BookingPending, BookingConfirmed}

func (s BookingStatus) Active() bool {
	return s == BookingPending || s == BookingConfirmed
}

type Booking struct {
	bun.BaseModel `bun:"table:bookings"`

	ID        string        `bun:"id,pk" json:"id"`
	UserID    string        `bun:"user_id,notnull" json:"user_id"`
	EventID   string        `bun:"event_id,notnull" json:"event_id"`
	Status    BookingStatus `bun:"status,notnull" json:"status"`
	CreatedAt time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time     `bun:"updated_at,notnull" json:"updated_at"`
}

// BookingCursor marks the last row of a page when walking bookings in
// (created_at, id) order.
type BookingCursor struct {
	CreatedAt time.Time
	ID        string
}

type BookingRequest struct {
	EventID string `json:"event_id"`
}
