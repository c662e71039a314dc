package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-booking/internal/metrics"
	"ms-booking/internal/models"

	"github.com/google/uuid"
)

// Reconcile results.
const (
	ResultConfirmed  = "confirmed"
	ResultCancelled  = "cancelled"
	ResultDuplicate  = "duplicate"
	ResultPending    = "pending"
	ResultOversold   = "oversold"
	ResultInProgress = "in_progress"
	ResultUnverified = "unverified"
)

var notices = map[string]string{
	ResultConfirmed:  "Your booking is confirmed. A confirmation email is on its way.",
	ResultCancelled:  "The payment did not go through. No seats were booked.",
	ResultDuplicate:  "This payment has already been recorded.",
	ResultPending:    "Your payment is still being processed.",
	ResultOversold:   "Your payment was received but the show is now full. The club will contact you for a refund.",
	ResultInProgress: "Your payment is being recorded.",
	ResultUnverified: "We could not confirm your payment yet. Your booking will be confirmed by email once it is.",
}

// ReconcileResult is what the return page shows.
type ReconcileResult struct {
	Result  string          `json:"result"`
	Notice  string          `json:"notice"`
	Booking *models.Booking `json:"booking,omitempty"`
}

func newResult(result string, booking *models.Booking) *ReconcileResult {
	metrics.TrackReconciliation(result)
	return &ReconcileResult{Result: result, Notice: notices[result], Booking: booking}
}

// Reconcile turns a payment outcome into the authoritative booking state.
// Delivering the same outcome again leaves exactly one booking row.
func (s *BookingService) Reconcile(ctx context.Context, outcome models.PaymentOutcome) (*ReconcileResult, error) {
	if outcome.Session == "" {
		metrics.TrackReconciliation("failed")
		return nil, reconciliationError("payment outcome has no session", nil)
	}
	if outcome.Status == "" {
		metrics.TrackReconciliation("failed")
		return nil, reconciliationError("payment outcome for "+outcome.Session+" has no status", nil)
	}

	var draft *models.BookingDraft
	if outcome.BookingData != "" {
		decoded, err := DecodeDraft(outcome.BookingData)
		if err != nil {
			metrics.TrackReconciliation("failed")
			return nil, reconciliationError("decode booking data for "+outcome.Session, err)
		}
		draft = &decoded
	}

	if s.Redis != nil {
		owner := uuid.NewString()
		locked, err := s.Redis.LockReconcile(ctx, outcome.Session, owner, s.opts.Booking.ReconcileLockTTL)
		switch {
		case err != nil:
			s.Logger.Warn("REDIS", fmt.Sprintf("Reconcile lock for %s unavailable, relying on storage constraints: %v", outcome.Session, err))
		case !locked:
			s.Logger.Info("RECONCILE", fmt.Sprintf("Outcome for %s is already being recorded", outcome.Session))
			return newResult(ResultInProgress, nil), nil
		default:
			defer func() {
				if err := s.Redis.UnlockReconcile(context.WithoutCancel(ctx), outcome.Session, owner); err != nil {
					s.Logger.Warn("REDIS", fmt.Sprintf("Failed to release reconcile lock for %s: %v", outcome.Session, err))
				}
			}()
		}
	}

	result, err := s.reconcile(ctx, outcome, draft)
	if err != nil {
		metrics.TrackReconciliation("failed")
		s.Logger.Error("RECONCILE", fmt.Sprintf("Reconciliation of %s failed: %v", outcome.Session, err))
		return nil, err
	}
	return result, nil
}

func (s *BookingService) reconcile(ctx context.Context, outcome models.PaymentOutcome, draft *models.BookingDraft) (*ReconcileResult, error) {
	payment, err := s.DB.GetPaymentByReference(ctx, outcome.Session)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, reconciliationError("load payment "+outcome.Session, err)
		}
		payment = nil
	}

	eventID := ""
	switch {
	case draft != nil && payment != nil && draft.EventID != payment.EventID:
		s.Logger.LogSecurity("EVENT_MISMATCH", fmt.Sprintf("payment %s is for event %s, booking data names %s", outcome.Session, payment.EventID, draft.EventID))
		return nil, reconciliationError("booking data does not match payment "+outcome.Session, nil)
	case draft != nil:
		eventID = draft.EventID
	case payment != nil:
		eventID = payment.EventID
	default:
		return nil, reconciliationError("no booking data and no payment for "+outcome.Session, nil)
	}

	status, trusted, err := s.effectiveStatus(ctx, outcome, payment)
	if err != nil {
		return nil, err
	}
	if status == models.PaymentPending {
		return newResult(ResultPending, nil), nil
	}
	success := status.Succeeded()

	existing, err := s.DB.FindBookingByPayment(ctx, eventID, outcome.Session)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, reconciliationError("find booking for "+outcome.Session, err)
	}
	if success && !trusted {
		return s.recordUnverified(ctx, outcome.Session, existing, draft)
	}
	if existing != nil {
		return s.settleExisting(ctx, existing, payment, status, success)
	}
	if draft == nil {
		return nil, reconciliationError("no booking recorded for "+outcome.Session+" and no booking data", nil)
	}
	return s.insertOutcome(ctx, *draft, outcome.Session, payment, status, success)
}

// effectiveStatus works out the status to act on and whether a success may
// take seats. Webhooks are trusted as delivered. An unsigned return is asked
// of the gateway when it can answer, otherwise its token must match. A
// claimed failure stands unless the session was in fact paid.
func (s *BookingService) effectiveStatus(ctx context.Context, outcome models.PaymentOutcome, payment *models.Payment) (models.PaymentStatus, bool, error) {
	claimed := outcome.Status
	if outcome.Verified {
		return claimed, true, nil
	}
	if payment == nil {
		// Every session we open has a payment row.
		return claimed, false, nil
	}

	verifier, ok := s.Gateway.(SessionVerifier)
	if !ok || payment.ProviderSessionID == "" {
		return claimed, s.returnTokenValid(outcome.Token, claimed, outcome.Session), nil
	}
	verified, err := verifier.SessionStatus(ctx, payment.ProviderSessionID)
	if err != nil {
		if claimed.Succeeded() {
			return "", false, reconciliationError("verify payment session "+payment.ProviderSessionID, err)
		}
		return claimed, true, nil
	}
	if claimed.Succeeded() {
		if !verified.Succeeded() {
			s.Logger.LogSecurity("STATUS_MISMATCH", fmt.Sprintf("return for %s claimed %s, gateway says %s", outcome.Session, claimed, verified))
		}
		return verified, true, nil
	}
	if verified.Succeeded() {
		return verified, true, nil
	}
	return claimed, true, nil
}

// recordUnverified handles a success nobody can vouch for. It never takes
// seats: a reservation stays pending until a webhook or its hold settles it,
// and an unknown session is kept as a cancelled row.
func (s *BookingService) recordUnverified(ctx context.Context, session string, existing *models.Booking, draft *models.BookingDraft) (*ReconcileResult, error) {
	s.Logger.LogSecurity("UNVERIFIED_RETURN", fmt.Sprintf("success claimed for %s could not be verified", session))
	if existing != nil {
		if existing.Status == models.BookingConfirmed {
			return newResult(ResultDuplicate, existing), nil
		}
		return newResult(ResultUnverified, existing), nil
	}
	if draft == nil {
		return nil, reconciliationError("no booking recorded for "+session+" and no booking data", nil)
	}

	booking, err := s.outcomeBooking(ctx, *draft, session, models.PaymentUnverified)
	if err != nil {
		return nil, err
	}
	booking.Status = models.BookingCancelled
	if err := s.DB.InsertBooking(ctx, booking); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return s.reread(ctx, booking)
		}
		return nil, reconciliationError("record unverified payment "+session, err)
	}
	s.Logger.LogBooking("RECORDED", booking.ID, fmt.Sprintf("unverified success for %s kept without seats", session))
	metrics.TrackBooking(string(models.BookingCancelled), "unverified")
	return newResult(ResultUnverified, booking), nil
}

// outcomeBooking builds the row for an outcome with no reservation. The
// total comes from the event price, never from the booking data.
func (s *BookingService) outcomeBooking(ctx context.Context, draft models.BookingDraft, session string, status models.PaymentStatus) (*models.Booking, error) {
	event, err := s.DB.GetEvent(ctx, draft.EventID)
	if err != nil {
		return nil, reconciliationError("load event "+draft.EventID+" for "+session, err)
	}
	booking := draft.Booking()
	booking.ID = uuid.NewString()
	booking.PaymentID = session
	booking.PaymentStatus = string(status)
	booking.TotalAmount = event.Price * int64(booking.Seats)
	return &booking, nil
}

func (s *BookingService) settleExisting(ctx context.Context, booking *models.Booking, payment *models.Payment, status models.PaymentStatus, success bool) (*ReconcileResult, error) {
	switch booking.Status {
	case models.BookingPending:
		to := models.BookingCancelled
		if success {
			to = models.BookingConfirmed
		}
		changed, err := s.DB.TransitionBooking(ctx, booking.ID, []models.BookingStatus{models.BookingPending}, to, string(status))
		if err != nil {
			return nil, reconciliationError("transition booking "+booking.ID, err)
		}
		if !changed {
			// Someone else settled it between our read and the update.
			return s.reread(ctx, booking)
		}
		booking.PaymentStatus = string(status)
		s.updatePayment(ctx, payment, status, booking.ID)
		if success {
			s.afterConfirm(ctx, booking, "payment")
			return newResult(ResultConfirmed, booking), nil
		}
		if status != models.PaymentExpired {
			s.expireSession(ctx, providerSession(payment))
		}
		s.afterCancel(ctx, booking, "payment")
		return newResult(ResultCancelled, booking), nil

	case models.BookingCancelled:
		if success && booking.PaymentStatus != string(models.PaymentSucceeded) {
			return s.reinstate(ctx, booking, payment, status)
		}
	}

	if !success && booking.Status == models.BookingConfirmed {
		s.Logger.Warn("RECONCILE", fmt.Sprintf("Ignoring %s outcome for confirmed booking %s", status, booking.ID))
	}
	return newResult(ResultDuplicate, booking), nil
}

// reinstate handles a payment that succeeded after its reservation had
// already been released.
func (s *BookingService) reinstate(ctx context.Context, booking *models.Booking, payment *models.Payment, status models.PaymentStatus) (*ReconcileResult, error) {
	availability, err := s.DB.ReinstateBooking(ctx, booking.ID, string(status), s.defaults(booking.EventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.reread(ctx, booking)
		}
		return nil, reconciliationError("reinstate booking "+booking.ID, err)
	}
	s.updatePayment(ctx, payment, status, booking.ID)
	if availability.Available {
		booking.PaymentStatus = string(status)
		s.afterConfirm(ctx, booking, "payment_late")
		return newResult(ResultConfirmed, booking), nil
	}

	if _, err := s.DB.TransitionBooking(ctx, booking.ID, []models.BookingStatus{models.BookingCancelled}, models.BookingCancelled, string(status)); err != nil {
		s.Logger.Error("RECONCILE", fmt.Sprintf("Failed to record payment on cancelled booking %s: %v", booking.ID, err))
	}
	booking.PaymentStatus = string(status)
	s.Logger.Error("OVERSELL", fmt.Sprintf("Paid booking %s for event %s could not be reinstated, refund required", booking.ID, booking.EventID))
	return newResult(ResultOversold, booking), nil
}

// insertOutcome records an outcome for which no reservation exists.
// Failures are written as cancelled rows without touching capacity.
func (s *BookingService) insertOutcome(ctx context.Context, draft models.BookingDraft, session string, payment *models.Payment, status models.PaymentStatus, success bool) (*ReconcileResult, error) {
	booking, err := s.outcomeBooking(ctx, draft, session, status)
	if err != nil {
		return nil, err
	}

	if !success {
		booking.Status = models.BookingCancelled
		if err := s.DB.InsertBooking(ctx, booking); err != nil {
			if errors.Is(err, models.ErrDuplicate) {
				return s.reread(ctx, booking)
			}
			return nil, reconciliationError("record failed payment "+session, err)
		}
		s.updatePayment(ctx, payment, status, booking.ID)
		s.Logger.LogBooking("RECORDED", booking.ID, fmt.Sprintf("payment %s ended %s", session, status))
		metrics.TrackBooking(string(models.BookingCancelled), "payment")
		return newResult(ResultCancelled, booking), nil
	}

	booking.Status = models.BookingConfirmed
	availability, err := s.DB.ReserveSeats(ctx, booking, s.defaults(draft.EventID))
	if err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return s.reread(ctx, booking)
		}
		return nil, reconciliationError("record payment "+session, err)
	}
	if availability.Available {
		s.updatePayment(ctx, payment, status, booking.ID)
		metrics.TrackSeats(booking.EventID, booking.Seats)
		s.afterConfirm(ctx, booking, "payment")
		return newResult(ResultConfirmed, booking), nil
	}

	booking.Status = models.BookingCancelled
	if err := s.DB.InsertBooking(ctx, booking); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return s.reread(ctx, booking)
		}
		return nil, reconciliationError("record oversold payment "+session, err)
	}
	s.updatePayment(ctx, payment, status, booking.ID)
	s.Logger.Error("OVERSELL", fmt.Sprintf("Paid booking %s for event %s exceeds capacity, refund required", booking.ID, booking.EventID))
	return newResult(ResultOversold, booking), nil
}

func (s *BookingService) reread(ctx context.Context, booking *models.Booking) (*ReconcileResult, error) {
	current, err := s.DB.FindBookingByPayment(ctx, booking.EventID, booking.PaymentID)
	if err != nil {
		return nil, reconciliationError("re-read booking for "+booking.PaymentID, err)
	}
	return newResult(ResultDuplicate, current), nil
}

func providerSession(payment *models.Payment) string {
	if payment == nil {
		return ""
	}
	return payment.ProviderSessionID
}
