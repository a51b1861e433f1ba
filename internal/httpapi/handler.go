// Package httpapi exposes the checkout flow over HTTP: session endpoints
// for the storefront screens and the signed gateway webhook.
package httpapi

import (
	"net/http"

	"github.com/go-faster/errors"

	"github.com/storefront-go/checkout/internal/domain/checkout"
	"github.com/storefront-go/checkout/internal/gateway/razorpay"
)

// WebhookParser verifies and decodes gateway webhook bodies.
type WebhookParser interface {
	ParseEvent(body []byte, signature string) (*razorpay.Event, error)
}

// Handler serves the checkout API.
type Handler struct {
	svc           *checkout.Service
	webhooks      WebhookParser
	confirmations *ConfirmationStore
}

// NewHandler constructs a Handler. The returned ConfirmationStore is also
// the Navigator the checkout service must be wired with.
func NewHandler(svc *checkout.Service, webhooks WebhookParser, confirmations *ConfirmationStore) *Handler {
	return &Handler{
		svc:           svc,
		webhooks:      webhooks,
		confirmations: confirmations,
	}
}

// Register attaches all routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/checkout/sessions", h.createSession)
	mux.HandleFunc("GET /api/checkout/sessions/{id}", h.getSession)
	mux.HandleFunc("POST /api/checkout/sessions/{id}/coupon", h.applyCoupon)
	mux.HandleFunc("POST /api/checkout/sessions/{id}/place-order", h.placeOrder)
	mux.HandleFunc("POST /api/checkout/sessions/{id}/cancel", h.cancelSession)
	mux.HandleFunc("POST /api/checkout/sessions/{id}/reset", h.resetSession)
	mux.HandleFunc("GET /api/checkout/sessions/{id}/confirmation", h.getConfirmation)
	mux.HandleFunc("POST /api/webhooks/razorpay", h.gatewayWebhook)
}

// writeError maps domain errors to HTTP statuses.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *checkout.ValidationError
	var serr *checkout.ServiceError

	switch {
	case errors.Is(err, checkout.ErrSessionNotFound):
		writeErrorJSON(w, http.StatusNotFound, err.Error())
	case errors.Is(err, checkout.ErrCheckoutInFlight),
		errors.Is(err, checkout.ErrNotAwaitingPayment),
		errors.Is(err, checkout.ErrNotCancellable),
		errors.Is(err, checkout.ErrNotResolvable),
		errors.Is(err, checkout.ErrIllegalTransition):
		writeErrorJSON(w, http.StatusConflict, err.Error())
	case errors.As(err, &verr):
		writeErrorJSON(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &serr):
		writeErrorJSON(w, http.StatusBadGateway, err.Error())
	default:
		writeErrorJSON(w, http.StatusInternalServerError, err.Error())
	}
}
