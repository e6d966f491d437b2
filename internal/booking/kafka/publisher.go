package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-booking/internal/models"
)

// MessageWriter is satisfied by *kafka.Producer.
type MessageWriter interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

type Topics struct {
	BookingCreated   string
	BookingCancelled string
}

// BookingPublisher announces committed booking changes. Messages are keyed by
// event id so consumers see one event's changes in order.
type BookingPublisher struct {
	Writer MessageWriter
	Topics Topics
	Now    func() time.Time
}

func NewBookingPublisher(writer MessageWriter, topics Topics) *BookingPublisher {
	return &BookingPublisher{
		Writer: writer,
		Topics: topics,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

func (p *BookingPublisher) PublishBookingCreated(ctx context.Context, booking models.Booking) error {
	return p.publish(ctx, p.Topics.BookingCreated, models.BookingEventCreated, booking)
}

func (p *BookingPublisher) PublishBookingCancelled(ctx context.Context, booking models.Booking) error {
	return p.publish(ctx, p.Topics.BookingCancelled, models.BookingEventCancelled, booking)
}

func (p *BookingPublisher) publish(ctx context.Context, topic, eventType string, booking models.Booking) error {
	payload, err := json.Marshal(models.BookingEventMessage{
		Type:       eventType,
		Booking:    booking,
		OccurredAt: p.Now(),
	})
	if err != nil {
		return fmt.Errorf("encode %s for booking %s: %w", eventType, booking.ID, err)
	}
	return p.Writer.Publish(ctx, topic, booking.EventID, payload)
}
