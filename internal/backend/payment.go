package backend

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/storefront-go/checkout/internal/domain/checkout"
)

var _ checkout.PaymentRecorder = (*Client)(nil)

// Save persists a payment record against its order. Failures here are
// retried by the reconciliation worker, so the error is returned as-is.
func (c *Client) Save(ctx context.Context, rec checkout.PaymentRecord) error {
	if err := c.do(ctx, http.MethodPost, "/payments", rec, nil); err != nil {
		return errors.Wrap(err, "save payment record")
	}
	return nil
}
