package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"ms-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) Publish(ctx context.Context, topic, key string, value []byte) error {
	args := m.Called(ctx, topic, key, value)
	return args.Error(0)
}

var testTopics = Topics{
	BookingCreated:   "ticketly.booking.created",
	BookingCancelled: "ticketly.booking.cancelled",
}

func fixedPublisher(w MessageWriter) *BookingPublisher {
	p := NewBookingPublisher(w, testTopics)
	p.Now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return p
}

func TestPublishBookingCreated(t *testing.T) {
	writer := new(MockWriter)
	b := models.Booking{ID: "bk-1", UserID: "user-1", EventID: "evt-1", Status: models.BookingConfirmed}

	var captured []byte
	writer.On("Publish", mock.Anything, "ticketly.booking.created", "evt-1", mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(3).([]byte) }).
		Return(nil)

	require.NoError(t, fixedPublisher(writer).PublishBookingCreated(context.Background(), b))
	writer.AssertExpectations(t)

	var msg models.BookingEventMessage
	require.NoError(t, json.Unmarshal(captured, &msg))
	assert.Equal(t, models.BookingEventCreated, msg.Type)
	assert.Equal(t, "bk-1", msg.Booking.ID)
	assert.Equal(t, models.BookingConfirmed, msg.Booking.Status)
	assert.True(t, msg.OccurredAt.Equal(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))
}

func TestPublishBookingCancelled(t *testing.T) {
	writer := new(MockWriter)
	b := models.Booking{ID: "bk-1", UserID: "user-1", EventID: "evt-1", Status: models.BookingCancelled}
	writer.On("Publish", mock.Anything, "ticketly.booking.cancelled", "evt-1", mock.Anything).Return(nil)

	require.NoError(t, fixedPublisher(writer).PublishBookingCancelled(context.Background(), b))
	writer.AssertExpectations(t)
}

func TestPublish_WriterError(t *testing.T) {
	writer := new(MockWriter)
	writer.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("leader not available"))

	err := fixedPublisher(writer).PublishBookingCreated(context.Background(), models.Booking{ID: "bk-1", EventID: "evt-1"})
	assert.EqualError(t, err, "leader not available")
}
