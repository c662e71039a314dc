package models

import (
	"time"
)

// BookingEventDto is the message published to Kafka on every booking state
// change. Consumers only rely on the ids, status and seat count.
type BookingEventDto struct {
	BookingID     string        `json:"booking_id"`
	EventID       string        `json:"event_id"`
	Status        BookingStatus `json:"status"`
	PaymentStatus string        `json:"payment_status,omitempty"`
	Seats         int           `json:"seats"`
	TotalAmount   int64         `json:"total_amount"`
	OccurredAt    time.Time     `json:"occurred_at"`
}

func NewBookingEventDto(b Booking) BookingEventDto {
	return BookingEventDto{
		BookingID:     b.ID,
		EventID:       b.EventID,
		Status:        b.Status,
		PaymentStatus: b.PaymentStatus,
		Seats:         b.Seats,
		TotalAmount:   b.TotalAmount,
		OccurredAt:    time.Now().UTC(),
	}
}

// ConfirmationData is everything the confirmation document shows.
type ConfirmationData struct {
	UserName         string
	UserEmail        string
	EventID          string
	EventTitle       string
	EventDate        time.Time
	EventTime        string
	Seats            int
	BookingReference string
}
