package kafka

import (
	"encoding/json"
	"errors"
	"testing"

	"ms-booking/internal/config"
	"ms-booking/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) Publish(topic, key string, value []byte) error {
	args := m.Called(topic, key, value)
	return args.Error(0)
}

var topics = config.TopicConfig{
	BookingReserved:  "t.reserved",
	BookingConfirmed: "t.confirmed",
	BookingCancelled: "t.cancelled",
}

func TestPublisher_RoutesByStatus(t *testing.T) {
	w := new(MockWriter)
	p := NewPublisher(w, topics, nil)
	b := models.Booking{ID: "bk-1", EventID: "evt-1", Seats: 2, Status: models.BookingConfirmed}

	w.On("Publish", "t.confirmed", "bk-1", mock.MatchedBy(func(value []byte) bool {
		var dto models.BookingEventDto
		require.NoError(t, json.Unmarshal(value, &dto))
		return dto.BookingID == "bk-1" && dto.EventID == "evt-1" && dto.Seats == 2 && dto.Status == models.BookingConfirmed
	})).Return(nil)
	w.On("Publish", "t.reserved", "bk-1", mock.Anything).Return(nil)
	w.On("Publish", "t.cancelled", "bk-1", mock.Anything).Return(errors.New("broker down"))

	assert.NoError(t, p.PublishBookingConfirmed(b))
	assert.NoError(t, p.PublishBookingReserved(b))
	assert.EqualError(t, p.PublishBookingCancelled(b), "broker down")
	w.AssertExpectations(t)
}

func TestPublisher_NoWriter(t *testing.T) {
	p := NewPublisher(nil, topics, nil)
	assert.NoError(t, p.PublishBookingConfirmed(models.Booking{ID: "bk-1"}))
}
