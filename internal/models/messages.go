package models

import "time"

// EventCreatedMessage is published by the event catalogue when a new event
// becomes bookable.
type EventCreatedMessage struct {
	EventID  string `json:"event_id"`
	Name     string `json:"name"`
	Capacity int    `json:"capacity"`
}

const (
	BookingEventCreated   = "booking.created"
	BookingEventCancelled = "booking.cancelled"
)

// BookingEventMessage is the payload of the booking lifecycle topics.
type BookingEventMessage struct {
	Type       string    `json:"type"`
	Booking    Booking   `json:"booking"`
	OccurredAt time.Time `json:"occurred_at"`
}
