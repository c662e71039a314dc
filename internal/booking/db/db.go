package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/models"

	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// DB is the booking store. Log may be nil.
type DB struct {
	Bun *bun.DB
	Log *logger.Logger
}

var holdingStatuses = []models.BookingStatus{models.BookingPending, models.BookingConfirmed}

// ---------------- EVENTS ----------------

// GetEvent → fetch one event by id
func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetUpcomingEvents → next events starting on or after from, soonest first
func (d *DB) GetUpcomingEvents(ctx context.Context, from time.Time, limit int) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Where("start_date >= ?", from).
		Order("start_date ASC", "start_time ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ---------------- SETTINGS ----------------

// EnsureSettings returns the event's settings, inserting defaults first if
// there are none. A concurrent insert for the same event is absorbed by the
// unique constraint and the winner's row is returned.
func (d *DB) EnsureSettings(ctx context.Context, defaults models.BookingSettings) (*models.BookingSettings, error) {
	return ensureSettings(ctx, d.Bun, defaults, false)
}

func ensureSettings(ctx context.Context, idb bun.IDB, defaults models.BookingSettings, lock bool) (*models.BookingSettings, error) {
	settings, err := getSettings(ctx, idb, defaults.EventID, lock)
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	row := defaults
	row.ID = 0
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	_, err = idb.NewInsert().
		Model(&row).
		On("CONFLICT (event_id) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("insert default settings: %w", err)
	}
	return getSettings(ctx, idb, defaults.EventID, lock)
}

func getSettings(ctx context.Context, idb bun.IDB, eventID string, lock bool) (*models.BookingSettings, error) {
	var settings models.BookingSettings
	q := idb.NewSelect().
		Model(&settings).
		Where("event_id = ?", eventID).
		Limit(1)
	if lock && idb.Dialect().Name() == dialect.PG {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return &settings, nil
}

// ---------------- BOOKINGS ----------------

// SumBookedSeats → seats held by pending and confirmed bookings
func (d *DB) SumBookedSeats(ctx context.Context, eventID string) (int, error) {
	return sumBookedSeats(ctx, d.Bun, eventID, "")
}

func sumBookedSeats(ctx context.Context, idb bun.IDB, eventID, excludeID string) (int, error) {
	var booked int
	q := idb.NewSelect().
		Model((*models.Booking)(nil)).
		ColumnExpr("COALESCE(SUM(seats), 0)").
		Where("event_id = ?", eventID).
		Where("status IN (?)", bun.In(holdingStatuses))
	if excludeID != "" {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Scan(ctx, &booked); err != nil {
		return 0, err
	}
	return booked, nil
}

// ReserveSeats inserts booking if the event still has room for it. The
// capacity read and the insert run in one transaction holding the event's
// settings row lock, so concurrent reservations cannot oversell. The
// returned availability describes the state before the insert.
func (d *DB) ReserveSeats(ctx context.Context, booking *models.Booking, defaults models.BookingSettings) (models.Availability, error) {
	var availability models.Availability
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		settings, err := ensureSettings(ctx, tx, defaults, true)
		if err != nil {
			return err
		}
		booked, err := sumBookedSeats(ctx, tx, booking.EventID, "")
		if err != nil {
			return err
		}
		availability = settings.Evaluate(booked, booking.Seats)
		if !availability.Available {
			return nil
		}
		return insertBooking(ctx, tx, booking)
	})
	if err != nil {
		return models.Availability{}, err
	}
	if availability.Available {
		d.Log.LogDatabase("INSERT", "bookings", fmt.Sprintf("Reserved %d seats for event %s as %s booking %s", booking.Seats, booking.EventID, booking.Status, booking.ID))
	} else {
		d.Log.LogDatabase("REJECT", "bookings", fmt.Sprintf("Event %s cannot take %d more seats", booking.EventID, booking.Seats))
	}
	return availability, nil
}

// ResizeBooking changes the seat count of a live booking, re-checking
// capacity without counting the booking's current seats.
func (d *DB) ResizeBooking(ctx context.Context, id string, seats int, totalAmount int64, defaults models.BookingSettings) (models.Availability, error) {
	var availability models.Availability
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		settings, err := ensureSettings(ctx, tx, defaults, true)
		if err != nil {
			return err
		}
		booked, err := sumBookedSeats(ctx, tx, defaults.EventID, id)
		if err != nil {
			return err
		}
		availability = settings.Evaluate(booked, seats)
		if !availability.Available {
			return nil
		}
		res, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("seats = ?", seats).
			Set("total_amount = ?", totalAmount).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", id).
			Where("status IN (?)", bun.In(holdingStatuses)).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
	if err != nil {
		return models.Availability{}, err
	}
	return availability, nil
}

// ReinstateBooking confirms a cancelled booking again if its seats still fit.
// It is used when a payment settles after the reservation already expired.
func (d *DB) ReinstateBooking(ctx context.Context, id, paymentStatus string, defaults models.BookingSettings) (models.Availability, error) {
	var availability models.Availability
	err := d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		settings, err := ensureSettings(ctx, tx, defaults, true)
		if err != nil {
			return err
		}
		var booking models.Booking
		if err := tx.NewSelect().Model(&booking).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
			return err
		}
		booked, err := sumBookedSeats(ctx, tx, booking.EventID, id)
		if err != nil {
			return err
		}
		availability = settings.Evaluate(booked, booking.Seats)
		if !availability.Available {
			return nil
		}
		res, err := tx.NewUpdate().
			Model((*models.Booking)(nil)).
			Set("status = ?", models.BookingConfirmed).
			Set("payment_status = ?", paymentStatus).
			Set("updated_at = ?", time.Now().UTC()).
			Where("id = ?", id).
			Where("status = ?", models.BookingCancelled).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
	if err != nil {
		return models.Availability{}, err
	}
	return availability, nil
}

// InsertBooking → insert without any capacity check
func (d *DB) InsertBooking(ctx context.Context, booking *models.Booking) error {
	return insertBooking(ctx, d.Bun, booking)
}

func insertBooking(ctx context.Context, idb bun.IDB, booking *models.Booking) error {
	now := time.Now().UTC()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = now
	}
	booking.UpdatedAt = now
	if _, err := idb.NewInsert().Model(booking).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: booking for event %s payment %s", models.ErrDuplicate, booking.EventID, booking.PaymentID)
		}
		return err
	}
	return nil
}

// GetBooking → booking with its event
func (d *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Relation("Event").
		Where("b.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetBookingsByEmail → bookings for a customer, newest first
func (d *DB) GetBookingsByEmail(ctx context.Context, email string) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := d.Bun.NewSelect().
		Model(&bookings).
		Relation("Event").
		Where("LOWER(b.user_email) = LOWER(?)", email).
		Order("b.created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// FindBookingByPayment → the booking recorded for one payment attempt
func (d *DB) FindBookingByPayment(ctx context.Context, eventID, paymentID string) (*models.Booking, error) {
	var booking models.Booking
	err := d.Bun.NewSelect().
		Model(&booking).
		Where("event_id = ?", eventID).
		Where("payment_id = ?", paymentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// UpdateBookingContact → update the customer fields only
func (d *DB) UpdateBookingContact(ctx context.Context, booking *models.Booking) error {
	booking.UpdatedAt = time.Now().UTC()
	_, err := d.Bun.NewUpdate().
		Model(booking).
		Column("user_name", "user_email", "user_phone", "updated_at").
		Where("id = ?", booking.ID).
		Exec(ctx)
	return err
}

// TransitionBooking moves a booking to status `to` only if it is currently
// in one of `from`. It reports whether a row changed.
func (d *DB) TransitionBooking(ctx context.Context, id string, from []models.BookingStatus, to models.BookingStatus, paymentStatus string) (bool, error) {
	q := d.Bun.NewUpdate().
		Model((*models.Booking)(nil)).
		Set("status = ?", to).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status IN (?)", bun.In(from))
	if paymentStatus != "" {
		q = q.Set("payment_status = ?", paymentStatus)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		d.Log.LogDatabase("UPDATE", "bookings", fmt.Sprintf("Booking %s moved to %s", id, to))
	}
	return n > 0, nil
}

// ListExpiredPending → pending bookings whose hold ran out before now
func (d *DB) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := d.Bun.NewSelect().
		Model(&bookings).
		Where("status = ?", models.BookingPending).
		Where("hold_expires_at IS NOT NULL").
		Where("hold_expires_at < ?", now.UTC()).
		Order("hold_expires_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// ---------------- PAYMENTS ----------------

// SavePayment inserts a payment record, or updates status, booking and
// provider session of an existing one with the same reference.
func (d *DB) SavePayment(ctx context.Context, payment *models.Payment) error {
	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now
	res, err := d.Bun.NewInsert().
		Model(payment).
		On("CONFLICT (reference) DO NOTHING").
		Returning("NULL").
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		d.Log.LogDatabase("INSERT", "payments", fmt.Sprintf("Payment %s saved as %s", payment.Reference, payment.Status))
		return nil
	}

	q := d.Bun.NewUpdate().
		Model((*models.Payment)(nil)).
		Set("status = ?", payment.Status).
		Set("updated_at = ?", now).
		Where("reference = ?", payment.Reference)
	if payment.BookingID != "" {
		q = q.Set("booking_id = ?", payment.BookingID)
	}
	if payment.ProviderSessionID != "" {
		q = q.Set("provider_session_id = ?", payment.ProviderSessionID)
	}
	if _, err = q.Exec(ctx); err != nil {
		return err
	}
	d.Log.LogDatabase("UPDATE", "payments", fmt.Sprintf("Payment %s updated to %s", payment.Reference, payment.Status))
	return nil
}

// GetPaymentByReference → payment attempt by its local reference
func (d *DB) GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error) {
	var payment models.Payment
	err := d.Bun.NewSelect().
		Model(&payment).
		Where("reference = ?", reference).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
