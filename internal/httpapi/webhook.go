package httpapi

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/storefront-go/checkout/internal/domain/checkout"
	"github.com/storefront-go/checkout/internal/gateway/razorpay"
)

const maxWebhookBody = 1 << 20

// gatewayWebhook receives the payment gateway's success callback. The body
// signature is verified before anything is trusted; duplicate and late
// deliveries are acknowledged without re-running the flow so the gateway
// stops retrying.
func (h *Handler) gatewayWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "read body")
		return
	}

	event, err := h.webhooks.ParseEvent(body, r.Header.Get(razorpay.SignatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, razorpay.ErrBadSignature):
			writeErrorJSON(w, http.StatusUnauthorized, "signature mismatch")
		case errors.Is(err, razorpay.ErrUnsupportedEvent):
			writeStatus(w, "ignored")
		default:
			writeErrorJSON(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	_, err = h.svc.ConfirmPayment(r.Context(), event.SessionID, checkout.GatewayResult{
		PaymentID: event.PaymentID,
	})
	switch {
	case err == nil:
		writeStatus(w, "completed")
	case errors.Is(err, checkout.ErrNotAwaitingPayment):
		// Duplicate or late delivery: acknowledged, not reprocessed.
		zctx.From(r.Context()).Info("webhook ignored",
			zap.String("session_id", event.SessionID), zap.Error(err))
		writeStatus(w, "ignored")
	default:
		h.writeError(w, err)
	}
}

func writeStatus(w http.ResponseWriter, status string) {
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("status", func(e *jx.Encoder) { e.Str(status) })
		})
	})
}
