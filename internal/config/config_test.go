package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("BOOKING_DEFAULT_DEADLINE", "")

	cfg := Load()

	assert.Equal(t, 50, cfg.Booking.DefaultMaxSeats)
	assert.Equal(t, 10, cfg.Booking.DefaultSeatsPerBooking)
	assert.Equal(t, "1 hour", cfg.Booking.DefaultDeadline)
	assert.Equal(t, "stripe", cfg.Payment.Provider)
	assert.Equal(t, "eur", cfg.Payment.Currency)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Email.Enabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PAYMENT_PROVIDER", "REMOTE")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RESERVATION_SWEEP_INTERVAL", "30s")
	t.Setenv("SMTP_HOST", "smtp.example.org")
	t.Setenv("PUBLIC_URL", "https://club.example.org/")
	t.Setenv("PAYMENT_RETURN_SECRET", "s3cret")

	cfg := Load()

	assert.Equal(t, "remote", cfg.Payment.Provider)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Second, cfg.Booking.SweepInterval)
	assert.True(t, cfg.Email.Enabled())
	assert.Equal(t, "https://club.example.org", cfg.Server.PublicURL)
	assert.Equal(t, "s3cret", cfg.Payment.ReturnSecret)
}

func TestGetEnvInt_InvalidFallsBack(t *testing.T) {
	t.Setenv("BOOKING_DEFAULT_MAX_SEATS", "lots")
	assert.Equal(t, 50, Load().Booking.DefaultMaxSeats)
}
