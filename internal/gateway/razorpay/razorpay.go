// Package razorpay adapts the hosted Razorpay checkout to the orchestrator's
// gateway port. Open registers a gateway order for the amount; completion
// arrives later as a signed webhook, never as a return value.
package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/storefront-go/checkout/internal/domain/checkout"
)

// DefaultBaseURL is the production Razorpay API endpoint.
const DefaultBaseURL = "https://api.razorpay.com/v1"

var _ checkout.Gateway = (*Adapter)(nil)

// Config holds the merchant credentials and webhook secret, injected from
// configuration.
type Config struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
	BaseURL       string
}

// Adapter implements checkout.Gateway against the Razorpay Orders API.
type Adapter struct {
	cfg  Config
	http *http.Client
}

// New creates an Adapter. An empty BaseURL falls back to DefaultBaseURL.
func New(cfg Config) *Adapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	return &Adapter{
		cfg: cfg,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID string `json:"id"`
}

// Open registers a gateway order carrying the minor-unit amount and the
// checkout session id in its notes, so the webhook can be routed back to
// the right session. The returned order id is what the hosted checkout
// frontend passes to the payment modal; the success callback itself is
// delivered through the webhook endpoint, at most once.
func (a *Adapter) Open(ctx context.Context, req checkout.OpenRequest) (string, error) {
	body, err := json.Marshal(orderRequest{
		Amount:   req.AmountMinor,
		Currency: req.Currency,
		Receipt:  req.SessionID,
		Notes: map[string]string{
			"session_id": req.SessionID,
			"merchant":   req.Merchant,
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "encode gateway order")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "build gateway request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(a.cfg.KeyID, a.cfg.KeySecret)

	resp, err := a.http.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, "open gateway order")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", errors.Errorf("gateway order rejected: %d: %s", resp.StatusCode, msg)
	}

	var created orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", errors.Wrap(err, "decode gateway order")
	}
	if created.ID == "" {
		return "", errors.New("gateway returned no order id")
	}
	return created.ID, nil
}
