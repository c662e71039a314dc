package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/metrics"
	"ms-booking/internal/models"

	"github.com/stripe/stripe-go/v82"
)

// Stripe refuses checkout sessions that expire sooner than the minimum or
// later than 24 hours after creation. The maximum leaves room for clock skew.
const (
	minSessionLifetime = 30 * time.Minute
	maxSessionLifetime = 24*time.Hour - 5*time.Minute
)

// Stripe metadata values are limited to 500 characters.
const maxMetadataValue = 500

// StripeCheckout opens hosted Stripe Checkout sessions.
type StripeCheckout struct {
	client   *stripe.Client
	currency string
	log      *logger.Logger
}

func NewStripeCheckout(secretKey, currency string, log *logger.Logger) (*StripeCheckout, error) {
	if secretKey == "" {
		log.Error("STRIPE", "STRIPE_SECRET_KEY environment variable not set")
		return nil, ErrClientInitFailed
	}
	sc := stripe.NewClient(secretKey)
	log.Info("STRIPE", "Stripe client initialized successfully")
	return &StripeCheckout{
		client:   sc,
		currency: strings.ToLower(currency),
		log:      log,
	}, nil
}

func (s *StripeCheckout) Name() string { return ProviderStripe }

// CreateSession opens a checkout session for the booking draft.
func (s *StripeCheckout) CreateSession(ctx context.Context, req models.PaymentSessionRequest) (*models.PaymentSession, error) {
	start := time.Now()
	defer metrics.ObserveGateway(ProviderStripe, "create_session", start)

	params := s.checkoutParams(req, time.Now())
	cs, err := s.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		s.log.Error("STRIPE", fmt.Sprintf("Checkout session creation failed for %s: %v", req.Reference, err))
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if cs.URL == "" {
		return nil, ErrMissingRedirectURL
	}

	s.log.LogPayment("SESSION_CREATED", req.Reference, fmt.Sprintf("Stripe session %s for %d %s", cs.ID, req.AmountMinor, currencyOf(req, s.currency)))
	return &models.PaymentSession{
		URL:               cs.URL,
		ProviderSessionID: cs.ID,
		Reference:         req.Reference,
	}, nil
}

func (s *StripeCheckout) checkoutParams(req models.PaymentSessionRequest, now time.Time) *stripe.CheckoutSessionCreateParams {
	currency := currencyOf(req, s.currency)

	metadata := map[string]string{
		"reference": req.Reference,
		"event_id":  req.BookingData.EventID,
	}
	if req.EncodedData != "" && len(req.EncodedData) <= maxMetadataValue {
		metadata["booking_data"] = req.EncodedData
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode:              stripe.String("payment"),
		UIMode:            stripe.String("hosted"),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.Reference),
		CustomerEmail:     stripe.String(req.BookingData.UserEmail),
		Locale:            stripe.String("fr"),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency:   stripe.String(currency),
					UnitAmount: stripe.Int64(req.AmountMinor),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name: stripe.String(productName(req.EventTitle, req.BookingData.Seats)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		Metadata: metadata,
	}
	if !req.ExpiresAt.IsZero() {
		expiresAt := req.ExpiresAt
		if expiresAt.Sub(now) > maxSessionLifetime {
			expiresAt = now.Add(maxSessionLifetime)
		}
		if expiresAt.Sub(now) >= minSessionLifetime {
			params.ExpiresAt = stripe.Int64(expiresAt.Unix())
		}
	}
	return params
}

func productName(title string, seats int) string {
	if title == "" {
		title = "Réservation"
	}
	if seats == 1 {
		return fmt.Sprintf("%s (1 place)", title)
	}
	return fmt.Sprintf("%s (%d places)", title, seats)
}

// ExpireSession closes an open session so it can no longer be paid.
func (s *StripeCheckout) ExpireSession(ctx context.Context, sessionID string) error {
	start := time.Now()
	defer metrics.ObserveGateway(ProviderStripe, "expire_session", start)

	if _, err := s.client.V1CheckoutSessions.Expire(ctx, sessionID, &stripe.CheckoutSessionExpireParams{}); err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	s.log.Info("STRIPE", fmt.Sprintf("Checkout session expired: %s", sessionID))
	return nil
}

// SessionStatus asks Stripe for the authoritative state of a session.
func (s *StripeCheckout) SessionStatus(ctx context.Context, sessionID string) (models.PaymentStatus, error) {
	start := time.Now()
	defer metrics.ObserveGateway(ProviderStripe, "retrieve_session", start)

	cs, err := s.client.V1CheckoutSessions.Retrieve(ctx, sessionID, &stripe.CheckoutSessionRetrieveParams{})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	return checkoutStatus(cs), nil
}

func checkoutStatus(cs *stripe.CheckoutSession) models.PaymentStatus {
	switch cs.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid, stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return models.PaymentSucceeded
	}
	if cs.Status == stripe.CheckoutSessionStatusExpired {
		return models.PaymentExpired
	}
	return models.PaymentPending
}

func currencyOf(req models.PaymentSessionRequest, fallback string) string {
	if req.Currency != "" {
		return req.Currency
	}
	return fallback
}
