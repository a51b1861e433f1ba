package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/go-faster/errors"
)

// SignatureHeader carries the webhook body's HMAC.
const SignatureHeader = "X-Razorpay-Signature"

var (
	// ErrBadSignature is returned when the webhook HMAC does not match.
	ErrBadSignature = errors.New("webhook signature mismatch")
	// ErrUnsupportedEvent is returned for events other than a captured
	// payment. The caller acknowledges and ignores them.
	ErrUnsupportedEvent = errors.New("unsupported webhook event")
)

// Event is the parsed, verified outcome of a payment webhook.
type Event struct {
	SessionID string
	PaymentID string
}

type webhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID    string            `json:"id"`
				Notes map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// VerifySignature checks the body's HMAC-SHA256 against the signature
// header using the configured webhook secret.
func (a *Adapter) VerifySignature(body []byte, signature string) error {
	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadSignature
	}
	return nil
}

// ParseEvent verifies and decodes a webhook body. Only payment.captured
// events map to a checkout confirmation; everything else returns
// ErrUnsupportedEvent.
func (a *Adapter) ParseEvent(body []byte, signature string) (*Event, error) {
	if err := a.VerifySignature(body, signature); err != nil {
		return nil, err
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "decode webhook")
	}
	if payload.Event != "payment.captured" {
		return nil, errors.Wrapf(ErrUnsupportedEvent, "%q", payload.Event)
	}

	entity := payload.Payload.Payment.Entity
	if entity.ID == "" {
		return nil, errors.New("webhook payment has no id")
	}
	sessionID := entity.Notes["session_id"]
	if sessionID == "" {
		return nil, errors.New("webhook payment has no session_id note")
	}

	return &Event{SessionID: sessionID, PaymentID: entity.ID}, nil
}
