package models

// EventStats is an operational snapshot of one event: ledger totals plus
// booking counts grouped by status.
type EventStats struct {
	EventID   string                `json:"event_id"`
	Total     int                   `json:"total"`
	Remaining int                   `json:"remaining"`
	Counts    map[BookingStatus]int `json:"counts"`
}

// Consistent reports whether confirmed bookings account exactly for the
// capacity taken from the ledger.
func (s EventStats) Consistent() bool {
	return s.Counts[BookingConfirmed] == s.Total-s.Remaining
}
