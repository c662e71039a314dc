package booking_api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ms-booking/internal/booking"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
)

const maxWebhookBody = 65536

type paymentIntentRequest struct {
	Amount      json.Number         `json:"amount"`
	BookingData models.BookingDraft `json:"bookingData"`
}

// CreatePaymentIntent opens a payment session for the posted booking data and
// answers with the URL to redirect the customer to.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "CreatePaymentIntent: received request")

	var req paymentIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreatePaymentIntent: failed to decode request body: %v", err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Amount == "" {
		http.Error(w, "amount is required", http.StatusBadRequest)
		return
	}

	session, err := h.Service.InitiatePayment(r.Context(), req.Amount.String(), req.BookingData)
	if err != nil {
		h.fail(w, "CreatePaymentIntent", err)
		return
	}

	response := struct {
		URL string `json:"url"`
	}{URL: session.URL}
	h.writeJSON(w, http.StatusOK, response)
	h.Logger.Info("API", fmt.Sprintf("CreatePaymentIntent: session %s opened for booking %s", session.Reference, session.BookingID))
}

// PaymentReturn records the outcome carried by the processor's redirect. It
// always answers 200: the page shows the notice whatever happened.
func (h *Handler) PaymentReturn(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	outcome := models.PaymentOutcome{
		Status:      models.PaymentStatus(q.Get("status")),
		Session:     q.Get("session"),
		BookingData: q.Get("bookingData"),
		Token:       q.Get("token"),
	}
	h.Logger.Info("API", fmt.Sprintf("PaymentReturn: status=%s session=%s", outcome.Status, outcome.Session))

	result, err := h.Service.Reconcile(r.Context(), outcome)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PaymentReturn: %v", err))
		result = &booking.ReconcileResult{Result: "failed", Notice: booking.PublicMessage(err)}
	}
	h.writeJSON(w, http.StatusOK, result)
}

// StripeWebhook feeds signed checkout events into the reconciler.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", "StripeWebhook: received webhook event")

	if h.Webhooks == nil {
		http.Error(w, "Webhooks not configured", http.StatusServiceUnavailable)
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: failed to read body: %v", err))
		http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	event, err := h.Webhooks.Parse(payload, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, payment.ErrIgnoredEvent):
		h.Logger.Debug("API", fmt.Sprintf("StripeWebhook: ignoring event type %s", event.Type))
		w.WriteHeader(http.StatusOK)
		return
	case errors.Is(err, payment.ErrInvalidSignature):
		h.Logger.LogSecurity("WEBHOOK_SIGNATURE", err.Error())
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	case err != nil:
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: failed to parse event: %v", err))
		http.Error(w, "Invalid webhook payload", http.StatusBadRequest)
		return
	}

	result, err := h.Service.Reconcile(r.Context(), event.Outcome)
	if err != nil {
		status := booking.StatusCode(err)
		if errors.Is(err, booking.ErrReconciliationFailed) {
			status = http.StatusBadRequest
		}
		h.Logger.Error("API", fmt.Sprintf("StripeWebhook: event %s: %v", event.ID, err))
		http.Error(w, booking.PublicMessage(err), status)
		return
	}
	if result.Result == booking.ResultInProgress {
		// Ask Stripe to redeliver once the concurrent delivery is done.
		http.Error(w, "Payment is being recorded", http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusOK)
	h.Logger.Info("API", fmt.Sprintf("StripeWebhook: event %s for %s ended %s", event.ID, event.Outcome.Session, result.Result))
}
