package payment

import (
	"encoding/json"
	"fmt"

	"ms-booking/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// CheckoutEvent is a verified Stripe checkout event reduced to what the
// reconciler needs.
type CheckoutEvent struct {
	ID                string
	Type              string
	ProviderSessionID string
	Outcome           models.PaymentOutcome
}

// WebhookVerifier checks Stripe signatures on incoming webhook payloads.
type WebhookVerifier struct {
	secret string
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// Parse verifies the payload signature and maps checkout.session events to a
// payment outcome. Unhandled event types return ErrIgnoredEvent.
func (v *WebhookVerifier) Parse(payload []byte, signature string) (*CheckoutEvent, error) {
	if v.secret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var status models.PaymentStatus
	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		status = models.PaymentSucceeded
	case "checkout.session.async_payment_failed":
		status = models.PaymentFailed
	case "checkout.session.expired":
		status = models.PaymentExpired
	default:
		return &CheckoutEvent{ID: event.ID, Type: string(event.Type)}, ErrIgnoredEvent
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("error parsing checkout session: %w", err)
	}

	// A completed session paid by a delayed method is settled later by
	// async_payment_succeeded or async_payment_failed.
	if status == models.PaymentSucceeded && checkoutStatus(&cs) != models.PaymentSucceeded {
		status = models.PaymentPending
	}

	reference := cs.ClientReferenceID
	if reference == "" {
		reference = cs.Metadata["reference"]
	}

	return &CheckoutEvent{
		ID:                event.ID,
		Type:              string(event.Type),
		ProviderSessionID: cs.ID,
		Outcome: models.PaymentOutcome{
			Status:      status,
			Session:     reference,
			BookingData: cs.Metadata["booking_data"],
			Verified:    true,
		},
	}, nil
}
