package payment

import (
	"errors"
)

const (
	ProviderStripe = "stripe"
	ProviderRemote = "remote"
)

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrMissingRedirectURL = errors.New("payment gateway returned no redirect url")
	ErrClientInitFailed   = errors.New("failed to initialize payment client")
	ErrIgnoredEvent       = errors.New("webhook event type not handled")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
)
