package models

import (
	"bytes"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a sum in minor units. On the wire it is a decimal in major
// units, the way the booking form sends it: 42, 42.5 or "42.50".
type Amount int64

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(decimal.New(int64(a), -2).StringFixed(2)), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(data, `"`))
	if raw == "" || raw == "null" {
		*a = 0
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	*a = Amount(d.Shift(2).Round(0).IntPart())
	return nil
}

// BookingDraft is the not yet persisted booking carried through the payment
// redirect.
type BookingDraft struct {
	EventID     string `json:"event_id" validate:"required,max=64"`
	UserName    string `json:"user_name" validate:"required,min=2,max=120"`
	UserEmail   string `json:"user_email" validate:"required,email"`
	UserPhone   string `json:"user_phone" validate:"required,phone"`
	Seats       int    `json:"seats" validate:"required,min=1,max=10"`
	TotalAmount Amount `json:"total_amount" validate:"min=0"`
}

// Booking builds an unsaved booking row from the draft.
func (d BookingDraft) Booking() Booking {
	return Booking{
		EventID:     d.EventID,
		UserName:    d.UserName,
		UserEmail:   d.UserEmail,
		UserPhone:   d.UserPhone,
		Seats:       d.Seats,
		TotalAmount: int64(d.TotalAmount),
	}
}
