package kafka

import (
	"encoding/json"
	"fmt"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
)

// MessageWriter is the part of the shared producer the publisher needs.
type MessageWriter interface {
	Publish(topic, key string, value []byte) error
}

// Publisher streams booking state changes, keyed by booking id.
type Publisher struct {
	Writer MessageWriter
	Topics config.TopicConfig
	Logger *logger.Logger
}

func NewPublisher(writer MessageWriter, topics config.TopicConfig, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Publisher{Writer: writer, Topics: topics, Logger: log}
}

// PublishBookingReserved streams a new pending reservation.
func (p *Publisher) PublishBookingReserved(b models.Booking) error {
	return p.publish(p.Topics.BookingReserved, b)
}

func (p *Publisher) PublishBookingConfirmed(b models.Booking) error {
	return p.publish(p.Topics.BookingConfirmed, b)
}

func (p *Publisher) PublishBookingCancelled(b models.Booking) error {
	return p.publish(p.Topics.BookingCancelled, b)
}

func (p *Publisher) publish(topic string, b models.Booking) error {
	if p.Writer == nil {
		return nil
	}
	msgBytes, err := json.Marshal(models.NewBookingEventDto(b))
	if err != nil {
		return fmt.Errorf("marshal booking event: %w", err)
	}
	return p.Writer.Publish(topic, b.ID, msgBytes)
}
