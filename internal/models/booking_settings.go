package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

const (
	DefaultMaxSeats        = 50
	DefaultSeatsPerBooking = 10
	DefaultBookingDeadline = "1 hour"
)

// BookingSettings holds the per-event capacity configuration. There is at
// most one row per event.
type BookingSettings struct {
	bun.BaseModel `bun:"table:booking_settings,alias:bs"`

	ID              int64     `bun:"id,pk,autoincrement" json:"id"`
	EventID         string    `bun:"event_id,notnull,unique" json:"event_id"`
	MaxSeats        int       `bun:"max_seats,notnull" json:"max_seats"`
	SeatsPerBooking int       `bun:"seats_per_booking,notnull" json:"seats_per_booking"`
	BookingDeadline string    `bun:"booking_deadline,notnull" json:"booking_deadline"`
	CreatedAt       time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
}

// Evaluate applies the capacity rule for a request of n seats given the seats
// already held by pending and confirmed bookings.
func (s BookingSettings) Evaluate(booked, requested int) Availability {
	remaining := s.MaxSeats - booked
	if remaining < 0 {
		remaining = 0
	}
	maxSeats := s.MaxSeats
	return Availability{
		Available:      requested > 0 && requested <= remaining && requested <= s.SeatsPerBooking,
		MaxSeats:       &maxSeats,
		RemainingSeats: &remaining,
	}
}

// Deadline is how long a pending reservation is held before it expires.
func (s BookingSettings) Deadline() time.Duration {
	d, err := ParseDeadline(s.BookingDeadline)
	if err != nil {
		return time.Hour
	}
	return d
}

// ParseDeadline accepts Go durations ("90m") and interval text ("1 hour",
// "30 minutes", "2 days").
func ParseDeadline(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return 0, fmt.Errorf("empty deadline")
	}
	if d, err := time.ParseDuration(raw); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("deadline must be positive: %q", raw)
		}
		return d, nil
	}

	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return 0, fmt.Errorf("unrecognised deadline %q", raw)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("unrecognised deadline %q", raw)
	}

	var unit time.Duration
	switch strings.TrimSuffix(fields[1], "s") {
	case "second", "sec":
		unit = time.Second
	case "minute", "min":
		unit = time.Minute
	case "hour":
		unit = time.Hour
	case "day":
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("unrecognised deadline unit %q", fields[1])
	}
	return time.Duration(n) * unit, nil
}
