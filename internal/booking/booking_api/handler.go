package booking_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"ms-booking/internal/auth"
	"ms-booking/internal/booking"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/payment"
	"ms-booking/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Service is the part of booking.BookingService the HTTP layer uses.
type Service interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetUpcomingEvents(ctx context.Context, limit int) ([]models.Event, error)
	CheckAvailability(ctx context.Context, eventID string, seats int) models.Availability
	CreateBooking(ctx context.Context, draft models.BookingDraft) (*models.Booking, error)
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	GetUserBookings(ctx context.Context, email string) ([]models.Booking, error)
	UpdateBooking(ctx context.Context, id string, upd models.BookingUpdate) (*models.Booking, error)
	CancelBooking(ctx context.Context, id string) (*models.Booking, error)
	InitiatePayment(ctx context.Context, amount string, draft models.BookingDraft) (*models.PaymentSession, error)
	Reconcile(ctx context.Context, outcome models.PaymentOutcome) (*booking.ReconcileResult, error)
}

// WebhookParser verifies and decodes processor webhooks.
type WebhookParser interface {
	Parse(payload []byte, signature string) (*payment.CheckoutEvent, error)
}

type Handler struct {
	Service  Service
	Webhooks WebhookParser
	Logger   *logger.Logger
}

func NewHandler(service Service, webhooks WebhookParser, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Handler{Service: service, Webhooks: webhooks, Logger: log}
}

// RegisterRoutes mounts the public routes on r and the booking management
// routes behind admin.
func (h *Handler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Get("/api/events/upcoming", h.GetUpcomingEvents)
	r.Get("/api/events/{eventId}", h.GetEvent)
	r.Get("/api/events/{eventId}/availability", h.CheckAvailability)

	r.Post("/api/create-payment-intent", h.CreatePaymentIntent)
	r.Get("/api/payment/return", h.PaymentReturn)
	r.Post("/api/stripe/webhook", h.StripeWebhook)

	r.Group(func(r chi.Router) {
		if admin != nil {
			r.Use(admin)
		}
		r.Post("/api/bookings", h.CreateBooking)
		r.Get("/api/bookings", h.GetUserBookings)
		r.Get("/api/bookings/{bookingId}", h.GetBooking)
		r.Put("/api/bookings/{bookingId}", h.UpdateBooking)
		r.Delete("/api/bookings/{bookingId}", h.CancelBooking)
	})
}

func (h *Handler) GetUpcomingEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.Service.GetUpcomingEvents(r.Context(), limit)
	if err != nil {
		h.fail(w, "GetUpcomingEvents", err)
		return
	}
	h.Logger.Debug("API", fmt.Sprintf("GetUpcomingEvents: returning %d events", len(events)))
	h.writeJSON(w, http.StatusOK, events)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	h.Logger.Info("API", fmt.Sprintf("GetEvent: eventId=%s", eventID))

	event, err := h.Service.GetEvent(r.Context(), eventID)
	if err != nil {
		h.fail(w, "GetEvent", err)
		return
	}
	h.writeJSON(w, http.StatusOK, event)
}

func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	seats := 1
	if raw := r.URL.Query().Get("seats"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "seats must be an integer", http.StatusBadRequest)
			return
		}
		seats = n
	}

	availability := h.Service.CheckAvailability(r.Context(), eventID, seats)
	h.Logger.Debug("API", fmt.Sprintf("CheckAvailability: event=%s seats=%d available=%t", eventID, seats, availability.Available))
	h.writeJSON(w, http.StatusOK, availability)
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("API", fmt.Sprintf("CreateBooking: requested by %s", auth.UserID(r.Context())))

	var draft models.BookingDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateBooking: failed to decode request body: %v", err))
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	created, err := h.Service.CreateBooking(r.Context(), draft)
	if err != nil {
		h.failEnvelope(w, "CreateBooking", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, utils.SuccessResponse("Booking created", created))
	h.Logger.Info("API", fmt.Sprintf("CreateBooking: booking %s created", created.ID))
}

func (h *Handler) GetUserBookings(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", "email is required"))
		return
	}

	bookings, err := h.Service.GetUserBookings(r.Context(), email)
	if err != nil {
		h.failEnvelope(w, "GetUserBookings", err)
		return
	}
	h.Logger.Debug("API", fmt.Sprintf("GetUserBookings: found %d bookings", len(bookings)))
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Bookings", bookings))
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("GetBooking: bookingId=%s", bookingID))

	found, err := h.Service.GetBooking(r.Context(), bookingID)
	if err != nil {
		h.failEnvelope(w, "GetBooking", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking", found))
}

func (h *Handler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("UpdateBooking: bookingId=%s by %s", bookingID, auth.UserID(r.Context())))

	var upd models.BookingUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.Logger.Error("API", fmt.Sprintf("UpdateBooking: failed to decode request body: %v", err))
		h.writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	updated, err := h.Service.UpdateBooking(r.Context(), bookingID, upd)
	if err != nil {
		h.failEnvelope(w, "UpdateBooking", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking updated", updated))
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingId")
	h.Logger.Info("API", fmt.Sprintf("CancelBooking: bookingId=%s by %s", bookingID, auth.UserID(r.Context())))

	cancelled, err := h.Service.CancelBooking(r.Context(), bookingID)
	if err != nil {
		h.failEnvelope(w, "CancelBooking", err)
		return
	}
	h.writeJSON(w, http.StatusOK, utils.SuccessResponse("Booking cancelled", cancelled))
}

// fail answers with the error's status and public message as plain text.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status := booking.StatusCode(err)
	h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	http.Error(w, booking.PublicMessage(err), status)
}

// failEnvelope is fail for the management routes, which answer with an
// APIResponse.
func (h *Handler) failEnvelope(w http.ResponseWriter, op string, err error) {
	status := booking.StatusCode(err)
	h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
	h.writeJSON(w, status, utils.ErrorResponse(op+" failed", booking.PublicMessage(err)))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}
