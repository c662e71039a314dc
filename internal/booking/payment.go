package booking

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"ms-booking/internal/metrics"
	"ms-booking/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var errMissingRedirect = errors.New("payment gateway returned no redirect url")

// InitiatePayment opens a payment session for the draft and reserves its
// seats as a pending booking until the outcome comes back or the hold
// expires. amount is the client's decimal total, checked against the
// event's price.
func (s *BookingService) InitiatePayment(ctx context.Context, amount string, draft models.BookingDraft) (*models.PaymentSession, error) {
	if err := ValidateDraft(draft); err != nil {
		return nil, err
	}
	claimed, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, validationError("amount must be a decimal string", err)
	}

	event, err := s.GetEvent(ctx, draft.EventID)
	if err != nil {
		return nil, err
	}
	expected := event.Price * int64(draft.Seats)
	if !claimed.Shift(2).Equal(decimal.NewFromInt(expected)) {
		s.Logger.LogSecurity("AMOUNT_MISMATCH", fmt.Sprintf("event %s: client sent %s, expected %s", draft.EventID, amount, minorToDecimal(expected)))
		return nil, validationError("amount does not match the event price", nil)
	}
	if draft.TotalAmount != 0 && int64(draft.TotalAmount) != expected {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("event %s: booking data total %s replaced by %s", draft.EventID, minorToDecimal(int64(draft.TotalAmount)), minorToDecimal(expected)))
	}
	draft.TotalAmount = models.Amount(expected)

	settings, availability, err := s.evaluate(ctx, draft.EventID, draft.Seats)
	if err != nil {
		return nil, err
	}
	if !availability.Available {
		return nil, unavailableError(draft.EventID, draft.Seats)
	}
	if s.Gateway == nil {
		return nil, paymentInitiationError("no payment gateway configured", nil)
	}

	encoded, err := EncodeDraft(draft)
	if err != nil {
		return nil, validationError("booking data could not be encoded", err)
	}
	deadline := settings.Deadline()
	expiresAt := s.now().Add(deadline)
	reference := uuid.NewString()
	provider := s.Gateway.Name()
	successURL, err := s.returnURL(models.PaymentSucceeded, reference, encoded)
	if err != nil {
		return nil, paymentInitiationError("sign return url for "+reference, err)
	}
	cancelURL, err := s.returnURL(models.PaymentCancelled, reference, encoded)
	if err != nil {
		return nil, paymentInitiationError("sign return url for "+reference, err)
	}

	session, err := s.Gateway.CreateSession(ctx, models.PaymentSessionRequest{
		Reference:   reference,
		Amount:      minorToDecimal(expected),
		AmountMinor: expected,
		Currency:    s.opts.Currency,
		EventTitle:  event.Title,
		BookingData: draft,
		EncodedData: encoded,
		SuccessURL:  successURL,
		CancelURL:   cancelURL,
		ExpiresAt:   expiresAt,
	})
	if err == nil && (session == nil || session.URL == "") {
		err = errMissingRedirect
	}
	if err != nil {
		metrics.TrackPaymentSession(provider, "failed")
		s.Logger.Error("PAYMENT", fmt.Sprintf("Payment session for event %s failed: %v", draft.EventID, err))
		return nil, paymentInitiationError("create payment session via "+provider, err)
	}
	metrics.TrackPaymentSession(provider, "created")

	booking := draft.Booking()
	booking.ID = uuid.NewString()
	booking.Status = models.BookingPending
	booking.PaymentStatus = string(models.PaymentPending)
	booking.PaymentID = reference
	booking.HoldExpiresAt = expiresAt

	availability, err = s.DB.ReserveSeats(ctx, &booking, s.defaults(draft.EventID))
	if err != nil || !availability.Available {
		s.expireSession(ctx, session.ProviderSessionID)
		if err != nil {
			return nil, storageError("reserve seats for "+draft.EventID, err)
		}
		metrics.TrackBooking("rejected", "payment")
		return nil, unavailableError(draft.EventID, draft.Seats)
	}

	payment := &models.Payment{
		ID:                uuid.NewString(),
		Reference:         reference,
		Provider:          provider,
		ProviderSessionID: session.ProviderSessionID,
		EventID:           draft.EventID,
		BookingID:         booking.ID,
		Amount:            expected,
		Currency:          s.opts.Currency,
		Status:            models.PaymentPending,
	}
	if err := s.DB.SavePayment(ctx, payment); err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("Failed to record payment %s: %v", reference, err))
	}
	if s.Redis != nil {
		if err := s.Redis.HoldReservation(ctx, booking.ID, deadline); err != nil {
			s.Logger.Warn("REDIS", fmt.Sprintf("Hold for %s not set, sweeper will expire it: %v", booking.ID, err))
		}
	}

	s.Logger.LogBooking("RESERVED", booking.ID, fmt.Sprintf("%d seats for event %s until %s", booking.Seats, booking.EventID, expiresAt.Format("15:04:05")))
	metrics.TrackBooking(string(models.BookingPending), "payment")
	metrics.TrackSeats(booking.EventID, booking.Seats)
	if s.Kafka != nil {
		if err := s.Kafka.PublishBookingReserved(booking); err != nil {
			s.Logger.Warn("KAFKA", fmt.Sprintf("Kafka publish error (booking reserved): %v", err))
		}
	}

	session.Reference = reference
	session.BookingID = booking.ID
	return session, nil
}

// returnURL is where the processor sends the customer back. encoded is
// already query-escaped. token signs status and reference.
func (s *BookingService) returnURL(status models.PaymentStatus, reference, encoded string) (string, error) {
	token, err := s.returnToken(status, reference)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/?status=%s&session=%s&bookingData=%s&token=%s",
		s.opts.PublicURL, url.QueryEscape(string(status)), url.QueryEscape(reference), encoded, url.QueryEscape(token)), nil
}

// closePaymentSession expires the provider session behind a local payment
// reference, if the gateway supports it.
func (s *BookingService) closePaymentSession(ctx context.Context, reference string) {
	if reference == "" {
		return
	}
	payment, err := s.DB.GetPaymentByReference(ctx, reference)
	if err != nil {
		return
	}
	s.expireSession(ctx, payment.ProviderSessionID)
}

func (s *BookingService) expireSession(ctx context.Context, providerSessionID string) {
	if providerSessionID == "" {
		return
	}
	expirer, ok := s.Gateway.(SessionExpirer)
	if !ok {
		return
	}
	if err := expirer.ExpireSession(ctx, providerSessionID); err != nil {
		s.Logger.Warn("PAYMENT", fmt.Sprintf("Could not expire payment session %s: %v", providerSessionID, err))
	}
}

func (s *BookingService) updatePayment(ctx context.Context, payment *models.Payment, status models.PaymentStatus, bookingID string) {
	if payment == nil {
		return
	}
	update := *payment
	update.Status = status
	if bookingID != "" {
		update.BookingID = bookingID
	}
	if err := s.DB.SavePayment(ctx, &update); err != nil {
		s.Logger.Error("PAYMENT", fmt.Sprintf("Failed to update payment %s: %v", payment.Reference, err))
	}
}

func minorToDecimal(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}
