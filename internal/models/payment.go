package models

import (
	"time"

	"github.com/uptrace/bun"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentExpired   PaymentStatus = "expired"

	// PaymentUnverified marks a claimed success that could not be checked.
	PaymentUnverified PaymentStatus = "unverified"
)

// Succeeded maps the status strings seen on return URLs and webhooks onto
// success.
func (s PaymentStatus) Succeeded() bool {
	switch s {
	case PaymentSucceeded, "success", "paid", "complete":
		return true
	}
	return false
}

// Payment records one payment attempt. Reference is generated locally and
// travels through the redirect as the "session" parameter.
type Payment struct {
	bun.BaseModel `bun:"table:payments,alias:p"`

	ID                string        `bun:"id,pk" json:"id"`
	Reference         string        `bun:"reference,notnull,unique" json:"reference"`
	Provider          string        `bun:"provider,notnull" json:"provider"`
	ProviderSessionID string        `bun:"provider_session_id,nullzero" json:"provider_session_id,omitempty"`
	EventID           string        `bun:"event_id,notnull" json:"event_id"`
	BookingID         string        `bun:"booking_id,nullzero" json:"booking_id,omitempty"`
	Amount            int64         `bun:"amount,notnull" json:"amount"`
	Currency          string        `bun:"currency,notnull" json:"currency"`
	Status            PaymentStatus `bun:"status,notnull" json:"status"`
	CreatedAt         time.Time     `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt         time.Time     `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// PaymentSessionRequest is what a gateway needs to open a hosted checkout.
type PaymentSessionRequest struct {
	Reference   string       `json:"reference"`
	Amount      string       `json:"amount"`
	AmountMinor int64        `json:"-"`
	Currency    string       `json:"currency"`
	EventTitle  string       `json:"-"`
	BookingData BookingDraft `json:"bookingData"`
	EncodedData string       `json:"-"`
	SuccessURL  string       `json:"successUrl"`
	CancelURL   string       `json:"cancelUrl"`
	ExpiresAt   time.Time    `json:"-"`
}

// PaymentSession is the gateway's answer: where to send the customer.
type PaymentSession struct {
	URL               string `json:"url"`
	ProviderSessionID string `json:"-"`
	Reference         string `json:"reference,omitempty"`
	BookingID         string `json:"bookingId,omitempty"`
}

// PaymentOutcome is what comes back from the processor, either on the return
// URL or through a webhook.
// Verified is set when the outcome already carries the processor's
// signature, as webhooks do. Token is the signature minted into our own
// return URLs.
type PaymentOutcome struct {
	Status      PaymentStatus
	Session     string
	BookingData string
	Token       string
	Verified    bool
}
