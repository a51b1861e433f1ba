package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/storefront-go/checkout/internal/domain/checkout"
	"github.com/storefront-go/checkout/internal/domain/coupon"
	"github.com/storefront-go/checkout/internal/domain/pricing"
)

type createSessionRequest struct {
	AddressID string `json:"addressId"`
	Items     []struct {
		ID       string          `json:"id"`
		Price    decimal.Decimal `json:"price"`
		Quantity int             `json:"quantity"`
	} `json:"items"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Items) == 0 {
		writeErrorJSON(w, http.StatusBadRequest, "items required")
		return
	}
	if req.AddressID == "" {
		writeErrorJSON(w, http.StatusBadRequest, "addressId required")
		return
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			writeErrorJSON(w, http.StatusUnprocessableEntity,
				"quantity must be at least 1 for item "+item.ID)
			return
		}
		if item.Price.IsNegative() {
			writeErrorJSON(w, http.StatusUnprocessableEntity,
				"price must not be negative for item "+item.ID)
			return
		}
	}

	items := make([]pricing.LineItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = pricing.LineItem{ID: item.ID, UnitPrice: item.Price, Quantity: item.Quantity}
	}

	sess := h.svc.StartSession(items, req.AddressID)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("sessionId", func(e *jx.Encoder) { e.Str(sess.ID) })
			e.Field("state", func(e *jx.Encoder) { e.Str(sess.State().String()) })
		})
	})
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Session(r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	state := sess.State()
	cpn := sess.Coupon()
	total, minor := sess.Totals()

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("sessionId", func(e *jx.Encoder) { e.Str(sess.ID) })
			e.Field("state", func(e *jx.Encoder) { e.Str(state.String()) })
			e.Field("couponApplied", func(e *jx.Encoder) { e.Bool(cpn.Applied) })
			e.Field("discount", func(e *jx.Encoder) { e.Str(cpn.Discount.String()) })
			if state != checkout.StateIdle {
				e.Field("total", func(e *jx.Encoder) { e.Str(total.String()) })
				e.Field("amountMinor", func(e *jx.Encoder) { e.Int64(minor) })
			}
			if gwID := sess.GatewayOrderID(); gwID != "" {
				e.Field("gatewayOrderId", func(e *jx.Encoder) { e.Str(gwID) })
			}
			if orderID := sess.OrderID(); orderID != "" {
				e.Field("orderId", func(e *jx.Encoder) { e.Str(orderID) })
			}
		})
	})
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

func (h *Handler) applyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeErrorJSON(w, http.StatusBadRequest, "coupon code required")
		return
	}

	state, err := h.svc.ApplyCoupon(r.Context(), r.PathValue("id"), req.Code)
	notice := ""
	switch {
	case errors.Is(err, coupon.ErrInvalidCode):
		notice = "Invalid coupon code."
	case errors.Is(err, coupon.ErrAlreadyApplied):
		notice = "A coupon has already been applied."
	case err != nil:
		h.writeError(w, err)
		return
	}

	// Coupon notices are user-visible messages, not request failures.
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("applied", func(e *jx.Encoder) { e.Bool(state.Applied) })
			e.Field("code", func(e *jx.Encoder) { e.Str(state.AppliedCode) })
			e.Field("discount", func(e *jx.Encoder) { e.Str(state.Discount.String()) })
			if notice != "" {
				e.Field("notice", func(e *jx.Encoder) { e.Str(notice) })
			}
		})
	})
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := h.svc.PlaceOrder(r.Context(), sessionID); err != nil {
		h.writeError(w, err)
		return
	}

	sess, err := h.svc.Session(sessionID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	total, minor := sess.Totals()

	// The gateway is open; completion arrives through the webhook. The
	// gateway order id is what the storefront hands to the payment modal.
	writeJSON(w, http.StatusAccepted, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("state", func(e *jx.Encoder) { e.Str(sess.State().String()) })
			e.Field("total", func(e *jx.Encoder) { e.Str(total.String()) })
			e.Field("amountMinor", func(e *jx.Encoder) { e.Int64(minor) })
			e.Field("gatewayOrderId", func(e *jx.Encoder) { e.Str(sess.GatewayOrderID()) })
		})
	})
}

func (h *Handler) cancelSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("state", func(e *jx.Encoder) { e.Str(checkout.StateCancelled.String()) })
		})
	})
}

func (h *Handler) resetSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Reset(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("state", func(e *jx.Encoder) { e.Str(checkout.StateIdle.String()) })
		})
	})
}

func (h *Handler) getConfirmation(w http.ResponseWriter, r *http.Request) {
	conf, ok := h.confirmations.Get(r.PathValue("id"))
	if !ok {
		writeErrorJSON(w, http.StatusNotFound, "no confirmation for session")
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeConfirmation(e, conf)
	})
}

func encodeConfirmation(e *jx.Encoder, conf checkout.Confirmation) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("sessionId", func(e *jx.Encoder) { e.Str(conf.SessionID) })
		e.Field("orderId", func(e *jx.Encoder) { e.Str(conf.OrderID) })
		e.Field("addressId", func(e *jx.Encoder) { e.Str(conf.AddressID) })
		e.Field("amount", func(e *jx.Encoder) { e.Str(conf.Amount.String()) })
		e.Field("transactionId", func(e *jx.Encoder) { e.Str(conf.TransactionID) })
		e.Field("paidAt", func(e *jx.Encoder) { e.Str(conf.PaidAt.Format(time.RFC3339)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range conf.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(item.ID) })
						e.Field("price", func(e *jx.Encoder) { e.Str(item.UnitPrice.String()) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
					})
				}
			})
		})
	})
}
