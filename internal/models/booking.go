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

// HoldsSeats reports whether a booking in this status counts against capacity.
func (s BookingStatus) HoldsSeats() bool {
	return s == BookingPending || s == BookingConfirmed
}

// Booking is a reservation of Seats for one event. (event_id, payment_id) is
// unique so a payment outcome can only ever produce one row.
type Booking struct {
	bun.BaseModel `bun:"table:bookings,alias:b"`

	ID            string        `bun:"id,pk" json:"id"`
	EventID       string        `bun:"event_id,notnull,unique:bookings_event_payment" json:"event_id"`
	UserName      string        `bun:"user_name,notnull" json:"user_name"`
	UserEmail     string        `bun:"user_email,notnull" json:"user_email"`
	UserPhone     string        `bun:"user_phone,notnull" json:"user_phone"`
	Seats         int           `bun:"seats,notnull" json:"seats"`
	TotalAmount   int64         `bun:"total_amount,notnull" json:"total_amount"`
	Status        BookingStatus `bun:"status,notnull" json:"status"`
	PaymentStatus string        `bun:"payment_status,nullzero" json:"payment_status,omitempty"`
	PaymentID     string        `bun:"payment_id,nullzero,unique:bookings_event_payment" json:"payment_id,omitempty"`
	HoldExpiresAt time.Time     `bun:"hold_expires_at,nullzero" json:"hold_expires_at,omitempty"`
	CreatedAt     time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time     `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`

	Event *Event `bun:"rel:belongs-to,join:event_id=id" json:"event,omitempty"`
}

// BookingUpdate is a partial update; nil fields are left unchanged.
type BookingUpdate struct {
	UserName  *string `json:"user_name,omitempty" validate:"omitempty,min=2"`
	UserEmail *string `json:"user_email,omitempty" validate:"omitempty,email"`
	UserPhone *string `json:"user_phone,omitempty" validate:"omitempty,phone"`
	Seats     *int    `json:"seats,omitempty" validate:"omitempty,min=1,max=10"`
}

// Empty reports whether the update changes nothing.
func (u BookingUpdate) Empty() bool {
	return u.UserName == nil && u.UserEmail == nil && u.UserPhone == nil && u.Seats == nil
}
