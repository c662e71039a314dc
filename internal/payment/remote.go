package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ms-booking/internal/logger"
	"ms-booking/internal/metrics"
	"ms-booking/internal/models"

	"github.com/cenkalti/backoff/v4"
)

const maxRemoteAttempts = 3

// RemoteSession calls an external payment-session endpoint that answers with
// the URL to redirect the customer to.
type RemoteSession struct {
	endpoint string
	apiKey   string
	client   *http.Client
	log      *logger.Logger
}

type remoteRequest struct {
	Amount      string              `json:"amount"`
	BookingData models.BookingDraft `json:"bookingData"`
	Reference   string              `json:"reference"`
	SuccessURL  string              `json:"successUrl"`
	CancelURL   string              `json:"cancelUrl"`
}

type remoteResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error,omitempty"`
}

func NewRemoteSession(endpoint, apiKey string, timeout time.Duration, log *logger.Logger) (*RemoteSession, error) {
	if endpoint == "" {
		log.Error("PAYMENT", "PAYMENT_SESSION_URL environment variable not set")
		return nil, ErrClientInitFailed
	}
	return &RemoteSession{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: timeout},
		log:      log,
	}, nil
}

func (r *RemoteSession) Name() string { return ProviderRemote }

// CreateSession posts {amount, bookingData} and expects {url}. Transport
// failures and 5xx answers are retried with the reference as idempotency key.
func (r *RemoteSession) CreateSession(ctx context.Context, req models.PaymentSessionRequest) (*models.PaymentSession, error) {
	start := time.Now()
	defer metrics.ObserveGateway(ProviderRemote, "create_session", start)

	body, err := json.Marshal(remoteRequest{
		Amount:      req.Amount,
		BookingData: req.BookingData,
		Reference:   req.Reference,
		SuccessURL:  req.SuccessURL,
		CancelURL:   req.CancelURL,
	})
	if err != nil {
		return nil, err
	}

	var out remoteResponse
	attempt := 0
	op := func() error {
		attempt++
		resp, err := r.post(ctx, req.Reference, body)
		if err != nil {
			r.log.Warn("PAYMENT", fmt.Sprintf("Payment session attempt %d failed: %v", attempt, err))
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
		}
		if resp.StatusCode >= http.StatusBadRequest {
			return backoff.Permanent(fmt.Errorf("%w: status %d: %s", ErrGatewayUnavailable, resp.StatusCode, bytes.TrimSpace(raw)))
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: malformed response: %v", ErrGatewayUnavailable, err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRemoteAttempts-1), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	if out.URL == "" {
		if out.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingRedirectURL, out.Error)
		}
		return nil, ErrMissingRedirectURL
	}

	r.log.LogPayment("SESSION_CREATED", req.Reference, fmt.Sprintf("Remote session for %s", req.Amount))
	return &models.PaymentSession{
		URL:               out.URL,
		ProviderSessionID: out.SessionID,
		Reference:         req.Reference,
	}, nil
}

func (r *RemoteSession) post(ctx context.Context, reference string, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", reference)
	if r.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+r.apiKey)
	}
	return r.client.Do(httpReq)
}
