package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	settings := BookingSettings{MaxSeats: 10, SeatsPerBooking: 4}

	tests := []struct {
		name      string
		booked    int
		requested int
		available bool
		remaining int
	}{
		{"fresh event", 0, 4, true, 10},
		{"over per-booking cap", 0, 5, false, 10},
		{"exactly remaining", 7, 3, true, 3},
		{"one over remaining", 8, 3, false, 2},
		{"sold out", 10, 1, false, 0},
		{"overbooked clamps to zero", 12, 1, false, 0},
		{"zero seats", 0, 0, false, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := settings.Evaluate(tt.booked, tt.requested)
			assert.Equal(t, tt.available, a.Available)
			require.NotNil(t, a.RemainingSeats)
			require.NotNil(t, a.MaxSeats)
			assert.Equal(t, tt.remaining, *a.RemainingSeats)
			assert.Equal(t, 10, *a.MaxSeats)
		})
	}
}

func TestParseDeadline(t *testing.T) {
	valid := map[string]time.Duration{
		"1 hour":     time.Hour,
		"2 hours":    2 * time.Hour,
		"30 minutes": 30 * time.Minute,
		"1 day":      24 * time.Hour,
		"45 secs":    45 * time.Second,
		"90m":        90 * time.Minute,
		" 1 Hour ":   time.Hour,
	}
	for raw, want := range valid {
		got, err := ParseDeadline(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "soon", "0 hours", "-5m", "1 fortnight", "one hour"} {
		_, err := ParseDeadline(raw)
		assert.Error(t, err, raw)
	}
}

func TestDeadline_FallsBackToOneHour(t *testing.T) {
	assert.Equal(t, time.Hour, BookingSettings{BookingDeadline: "whenever"}.Deadline())
	assert.Equal(t, 15*time.Minute, BookingSettings{BookingDeadline: "15 minutes"}.Deadline())
}

func TestPaymentStatusSucceeded(t *testing.T) {
	assert.True(t, PaymentStatus("succeeded").Succeeded())
	assert.True(t, PaymentStatus("success").Succeeded())
	assert.True(t, PaymentStatus("paid").Succeeded())
	assert.False(t, PaymentStatus("failed").Succeeded())
	assert.False(t, PaymentStatus("").Succeeded())
}
