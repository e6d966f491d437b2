package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Event is the capacity record of a bookable event. Remaining is only ever
// changed through the ledger's reserve/release primitives.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Total     int       `bun:"total,notnull" json:"total"`
	Remaining int       `bun:"remaining,notnull" json:"remaining"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// Reservation is the outcome of a single reserve attempt against an event.
type Reservation struct {
	Granted   bool `json:"granted"`
	Remaining int  `json:"remaining"`
}
