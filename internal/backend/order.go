package backend

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/storefront-go/checkout/internal/domain/checkout"
)

var _ checkout.OrderCreator = (*Client)(nil)

type orderResponseDTO struct {
	OrderID string `json:"orderId"`
}

// PlaceOrder submits an order request and returns the created order id.
// 4xx responses map to validation errors, everything else to service
// errors.
func (c *Client) PlaceOrder(ctx context.Context, req checkout.OrderRequest) (string, error) {
	var dto orderResponseDTO
	if err := c.do(ctx, http.MethodPost, "/orders", req, &dto); err != nil {
		if s := statusOf(err); s >= 400 && s < 500 {
			return "", &checkout.ValidationError{Reason: err.Error()}
		}
		return "", errors.Wrap(err, "place order")
	}
	if dto.OrderID == "" {
		return "", &checkout.ValidationError{Reason: "backend returned no order id"}
	}
	return dto.OrderID, nil
}
