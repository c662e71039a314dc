package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/config"
	"ms-booking/internal/logger"
	"ms-booking/internal/metrics"
	"ms-booking/internal/models"

	"github.com/google/uuid"
)

const availabilityFailed = "availability check failed"

var liveStatuses = []models.BookingStatus{models.BookingPending, models.BookingConfirmed}

type DBLayer interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetUpcomingEvents(ctx context.Context, from time.Time, limit int) ([]models.Event, error)
	EnsureSettings(ctx context.Context, defaults models.BookingSettings) (*models.BookingSettings, error)
	SumBookedSeats(ctx context.Context, eventID string) (int, error)
	ReserveSeats(ctx context.Context, booking *models.Booking, defaults models.BookingSettings) (models.Availability, error)
	ResizeBooking(ctx context.Context, id string, seats int, totalAmount int64, defaults models.BookingSettings) (models.Availability, error)
	ReinstateBooking(ctx context.Context, id, paymentStatus string, defaults models.BookingSettings) (models.Availability, error)
	InsertBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetBookingsByEmail(ctx context.Context, email string) ([]models.Booking, error)
	FindBookingByPayment(ctx context.Context, eventID, paymentID string) (*models.Booking, error)
	UpdateBookingContact(ctx context.Context, booking *models.Booking) error
	TransitionBooking(ctx context.Context, id string, from []models.BookingStatus, to models.BookingStatus, paymentStatus string) (bool, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
	SavePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByReference(ctx context.Context, reference string) (*models.Payment, error)
}

type HoldStore interface {
	HoldReservation(ctx context.Context, bookingID string, ttl time.Duration) error
	ReleaseReservation(ctx context.Context, bookingID string) error
	LockReconcile(ctx context.Context, session, owner string, ttl time.Duration) (bool, error)
	UnlockReconcile(ctx context.Context, session, owner string) error
}

type KafkaPublisher interface {
	PublishBookingReserved(b models.Booking) error
	PublishBookingConfirmed(b models.Booking) error
	PublishBookingCancelled(b models.Booking) error
}

type Notifier interface {
	SendConfirmation(ctx context.Context, data models.ConfirmationData) error
}

type PaymentGateway interface {
	Name() string
	CreateSession(ctx context.Context, req models.PaymentSessionRequest) (*models.PaymentSession, error)
}

// SessionExpirer is implemented by gateways that can close an unpaid session.
type SessionExpirer interface {
	ExpireSession(ctx context.Context, sessionID string) error
}

// SessionVerifier is implemented by gateways that can report the real state
// of a session.
type SessionVerifier interface {
	SessionStatus(ctx context.Context, sessionID string) (models.PaymentStatus, error)
}

// Options carries the settings the service needs from configuration.
type Options struct {
	Booking   config.BookingConfig
	PublicURL string
	Currency  string

	// ReturnSecret signs return URLs. A random one is used when empty, which
	// makes returns issued before a restart unverifiable.
	ReturnSecret string
}

// BookingService owns availability, reservations and payment reconciliation.
// Redis, Kafka, Notifier and Gateway may be nil.
type BookingService struct {
	DB       DBLayer
	Redis    HoldStore
	Kafka    KafkaPublisher
	Notifier Notifier
	Gateway  PaymentGateway
	Logger   *logger.Logger

	opts         Options
	returnSecret []byte
	now          func() time.Time
}

func NewBookingService(db DBLayer, redis HoldStore, kafka KafkaPublisher, notifier Notifier, gateway PaymentGateway, opts Options, log *logger.Logger) *BookingService {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	if opts.Booking.DefaultMaxSeats <= 0 {
		opts.Booking.DefaultMaxSeats = models.DefaultMaxSeats
	}
	if opts.Booking.DefaultSeatsPerBooking <= 0 {
		opts.Booking.DefaultSeatsPerBooking = models.DefaultSeatsPerBooking
	}
	if opts.Booking.DefaultDeadline == "" {
		opts.Booking.DefaultDeadline = models.DefaultBookingDeadline
	}
	if opts.Booking.ReconcileLockTTL <= 0 {
		opts.Booking.ReconcileLockTTL = 30 * time.Second
	}
	if opts.Currency == "" {
		opts.Currency = "eur"
	}
	opts.PublicURL = strings.TrimRight(opts.PublicURL, "/")
	secret := []byte(opts.ReturnSecret)
	if len(secret) == 0 {
		log.Warn("CONFIG", "PAYMENT_RETURN_SECRET not set, using a random secret for this process")
		secret = randomSecret()
	}
	return &BookingService{
		DB:           db,
		Redis:        redis,
		Kafka:        kafka,
		Notifier:     notifier,
		Gateway:      gateway,
		Logger:       log,
		opts:         opts,
		returnSecret: secret,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (s *BookingService) defaults(eventID string) models.BookingSettings {
	return models.BookingSettings{
		EventID:         eventID,
		MaxSeats:        s.opts.Booking.DefaultMaxSeats,
		SeatsPerBooking: s.opts.Booking.DefaultSeatsPerBooking,
		BookingDeadline: s.opts.Booking.DefaultDeadline,
	}
}

// ---------------- EVENTS ----------------

func (s *BookingService) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.DB.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundError("event", id, err)
		}
		return nil, storageError("load event "+id, err)
	}
	return event, nil
}

// GetUpcomingEvents returns the next events starting today or later.
func (s *BookingService) GetUpcomingEvents(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 3
	}
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	events, err := s.DB.GetUpcomingEvents(ctx, today, limit)
	if err != nil {
		return nil, storageError("load upcoming events", err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

// ---------------- AVAILABILITY ----------------

// EnsureSettings returns the event's capacity settings, creating the
// defaults on first access.
func (s *BookingService) EnsureSettings(ctx context.Context, eventID string) (*models.BookingSettings, error) {
	if strings.TrimSpace(eventID) == "" {
		return nil, validationError("event_id is required", nil)
	}
	settings, err := s.DB.EnsureSettings(ctx, s.defaults(eventID))
	if err != nil {
		return nil, storageError("ensure settings for "+eventID, err)
	}
	return settings, nil
}

// CheckAvailability never fails: storage errors are logged and reported as
// unavailable.
func (s *BookingService) CheckAvailability(ctx context.Context, eventID string, seats int) models.Availability {
	_, availability, err := s.evaluate(ctx, eventID, seats)
	if err != nil {
		s.Logger.Error("AVAILABILITY", fmt.Sprintf("Availability check failed for event %s: %v", eventID, err))
		metrics.TrackAvailability("error")
		return models.Availability{Available: false, Error: availabilityFailed}
	}
	if availability.Available {
		metrics.TrackAvailability("available")
	} else {
		metrics.TrackAvailability("unavailable")
	}
	return availability
}

func (s *BookingService) evaluate(ctx context.Context, eventID string, seats int) (*models.BookingSettings, models.Availability, error) {
	settings, err := s.EnsureSettings(ctx, eventID)
	if err != nil {
		return nil, models.Availability{}, err
	}
	booked, err := s.DB.SumBookedSeats(ctx, eventID)
	if err != nil {
		return nil, models.Availability{}, storageError("sum booked seats for "+eventID, err)
	}
	return settings, settings.Evaluate(booked, seats), nil
}

// ---------------- BOOKINGS ----------------

// CreateBooking writes a confirmed booking directly, without payment. It is
// the box-office path used by administrators.
func (s *BookingService) CreateBooking(ctx context.Context, draft models.BookingDraft) (*models.Booking, error) {
	if err := ValidateDraft(draft); err != nil {
		return nil, err
	}
	event, err := s.GetEvent(ctx, draft.EventID)
	if err != nil {
		return nil, err
	}

	booking := draft.Booking()
	booking.ID = uuid.NewString()
	booking.TotalAmount = event.Price * int64(draft.Seats)
	booking.Status = models.BookingConfirmed

	availability, err := s.DB.ReserveSeats(ctx, &booking, s.defaults(draft.EventID))
	if err != nil {
		return nil, storageError("reserve seats for "+draft.EventID, err)
	}
	if !availability.Available {
		metrics.TrackBooking("rejected", "direct")
		return nil, unavailableError(draft.EventID, draft.Seats)
	}
	booking.Event = event

	s.Logger.LogBooking("CREATED", booking.ID, fmt.Sprintf("%d seats for event %s", booking.Seats, booking.EventID))
	metrics.TrackBooking(string(models.BookingConfirmed), "direct")
	metrics.TrackSeats(booking.EventID, booking.Seats)

	if s.Kafka != nil {
		if err := s.Kafka.PublishBookingConfirmed(booking); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("Kafka publish error (booking confirmed): %v", err))
		}
	}
	s.sendConfirmation(ctx, &booking)
	return &booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.DB.GetBooking(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundError("booking", id, err)
		}
		return nil, storageError("load booking "+id, err)
	}
	return booking, nil
}

// GetUserBookings lists a customer's bookings, newest first.
func (s *BookingService) GetUserBookings(ctx context.Context, email string) ([]models.Booking, error) {
	if err := validate.Var(strings.TrimSpace(email), "required,email"); err != nil {
		return nil, validationError("email must be a valid email address", err)
	}
	bookings, err := s.DB.GetBookingsByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, storageError("load bookings by email", err)
	}
	return bookings, nil
}

// UpdateBooking applies a partial update. A seat change is checked against
// capacity without counting the booking's own seats.
func (s *BookingService) UpdateBooking(ctx context.Context, id string, upd models.BookingUpdate) (*models.Booking, error) {
	if upd.Empty() {
		return nil, validationError("nothing to update", nil)
	}
	if err := validateStruct(upd); err != nil {
		return nil, err
	}
	booking, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingCancelled {
		return nil, validationError("cancelled bookings cannot be updated", nil)
	}

	if upd.Seats != nil && *upd.Seats != booking.Seats {
		price := int64(0)
		if booking.Event != nil {
			price = booking.Event.Price
		} else if booking.Seats > 0 {
			price = booking.TotalAmount / int64(booking.Seats)
		}
		total := price * int64(*upd.Seats)
		availability, err := s.DB.ResizeBooking(ctx, id, *upd.Seats, total, s.defaults(booking.EventID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, validationError("booking is no longer active", err)
			}
			return nil, storageError("resize booking "+id, err)
		}
		if !availability.Available {
			return nil, unavailableError(booking.EventID, *upd.Seats)
		}
		s.Logger.LogBooking("RESIZED", id, fmt.Sprintf("%d -> %d seats", booking.Seats, *upd.Seats))
	}

	contactChanged := false
	if upd.UserName != nil {
		booking.UserName = strings.TrimSpace(*upd.UserName)
		contactChanged = true
	}
	if upd.UserEmail != nil {
		booking.UserEmail = strings.TrimSpace(*upd.UserEmail)
		contactChanged = true
	}
	if upd.UserPhone != nil {
		booking.UserPhone = strings.TrimSpace(*upd.UserPhone)
		contactChanged = true
	}
	if contactChanged {
		contact := *booking
		contact.Event = nil
		if err := s.DB.UpdateBookingContact(ctx, &contact); err != nil {
			return nil, storageError("update booking "+id, err)
		}
		s.Logger.LogBooking("UPDATED", id, "contact details changed")
	}

	return s.GetBooking(ctx, id)
}

// CancelBooking cancels a live booking. Cancelling twice is a no-op.
func (s *BookingService) CancelBooking(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := s.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == models.BookingCancelled {
		return booking, nil
	}

	paymentStatus := ""
	if booking.Status == models.BookingPending {
		paymentStatus = string(models.PaymentCancelled)
	}
	changed, err := s.DB.TransitionBooking(ctx, id, liveStatuses, models.BookingCancelled, paymentStatus)
	if err != nil {
		return nil, storageError("cancel booking "+id, err)
	}
	if changed {
		if booking.Status == models.BookingPending {
			s.closePaymentSession(ctx, booking.PaymentID)
		}
		s.afterCancel(ctx, booking, "admin")
	}
	return s.GetBooking(ctx, id)
}

// afterCancel runs the side effects of a booking leaving a live status.
func (s *BookingService) afterCancel(ctx context.Context, booking *models.Booking, source string) {
	s.releaseHold(ctx, booking.ID)
	booking.Status = models.BookingCancelled
	s.Logger.LogBooking("CANCELLED", booking.ID, fmt.Sprintf("%d seats released for event %s (%s)", booking.Seats, booking.EventID, source))
	metrics.TrackBooking(string(models.BookingCancelled), source)
	if s.Kafka != nil {
		if err := s.Kafka.PublishBookingCancelled(*booking); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("Kafka publish error (booking cancelled): %v", err))
		}
	}
}

// afterConfirm runs the side effects of a booking becoming confirmed.
func (s *BookingService) afterConfirm(ctx context.Context, booking *models.Booking, source string) {
	s.releaseHold(ctx, booking.ID)
	booking.Status = models.BookingConfirmed
	s.Logger.LogBooking("CONFIRMED", booking.ID, fmt.Sprintf("%d seats for event %s (%s)", booking.Seats, booking.EventID, source))
	metrics.TrackBooking(string(models.BookingConfirmed), source)
	if s.Kafka != nil {
		if err := s.Kafka.PublishBookingConfirmed(*booking); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("Kafka publish error (booking confirmed): %v", err))
		}
	}
	s.sendConfirmation(ctx, booking)
}

func (s *BookingService) releaseHold(ctx context.Context, bookingID string) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.ReleaseReservation(ctx, bookingID); err != nil {
		s.Logger.Warn("REDIS", fmt.Sprintf("Failed to release hold for %s: %v", bookingID, err))
	}
}

// sendConfirmation renders and delivers the confirmation. Delivery problems
// are logged, the booking stands.
func (s *BookingService) sendConfirmation(ctx context.Context, booking *models.Booking) {
	if s.Notifier == nil {
		return
	}
	event := booking.Event
	if event == nil {
		loaded, err := s.DB.GetEvent(ctx, booking.EventID)
		if err != nil {
			s.Logger.Warn("EMAIL", fmt.Sprintf("No event for confirmation %s: %v", booking.ID, err))
			return
		}
		event = loaded
	}
	data := models.ConfirmationData{
		UserName:         booking.UserName,
		UserEmail:        booking.UserEmail,
		EventID:          booking.EventID,
		EventTitle:       event.Title,
		EventDate:        event.StartDate,
		EventTime:        event.StartTime,
		Seats:            booking.Seats,
		BookingReference: booking.ID,
	}
	if err := s.Notifier.SendConfirmation(ctx, data); err != nil {
		s.Logger.Error("EMAIL", fmt.Sprintf("Confirmation for booking %s not delivered: %v", booking.ID, err))
	}
}
