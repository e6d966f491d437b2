package booking

import (
	"context"
	"ms-booking/internal/models"
)

// Ledger holds per-event capacity. Remaining is mutated only by TryReserve
// and Release, each a single conditional update.
type Ledger interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	CreateEvent(ctx context.Context, event *models.Event) (bool, error)
	TryReserve(ctx context.Context, eventID string) (models.Reservation, error)
	Release(ctx context.Context, eventID string) (int, error)
}

// Registry is the durable record of bookings. Uniqueness of active bookings
// per (user, event) is enforced by the storage layer.
type Registry interface {
	Create(ctx context.Context, userID, eventID string) (*models.Booking, error)
	GetByID(ctx context.Context, bookingID string) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID string) (bool, error)
	FindByUser(ctx context.Context, userID string) ([]models.Booking, error)
	FindByEvent(ctx context.Context, eventID string) ([]models.Booking, error)
	PageByUser(ctx context.Context, userID string, after *models.BookingCursor, limit int) ([]models.Booking, error)
	CountByStatus(ctx context.Context, eventID string) (map[models.BookingStatus]int, error)
}

// TxFunc receives a Ledger and Registry bound to the same transaction.
type TxFunc func(ctx context.Context, ledger Ledger, registry Registry) error

type Store interface {
	Ledger() Ledger
	Registry() Registry
	// RunInTx commits when fn returns nil and rolls back otherwise.
	RunInTx(ctx context.Context, fn TxFunc) error
}

// StatsCache holds EventStats snapshots for the read path. Every Invalidate
// starts a new generation for the event. On a miss Get reports the current
// generation, and Set drops snapshots taken under an older one.
type StatsCache interface {
	Get(ctx context.Context, eventID string) (stats *models.EventStats, generation int64, ok bool, err error)
	Set(ctx context.Context, stats models.EventStats, generation int64) error
	Invalidate(ctx context.Context, eventID string) error
}

type EventPublisher interface {
	PublishBookingCreated(ctx context.Context, booking models.Booking) error
	PublishBookingCancelled(ctx context.Context, booking models.Booking) error
}
