package backend

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/storefront-go/checkout/internal/domain/checkout"
	"github.com/storefront-go/checkout/internal/domain/pricing"
)

var (
	_ checkout.CartProvider      = (*Client)(nil)
	_ checkout.CartClearNotifier = (*Client)(nil)
)

type cartItemDTO struct {
	ID       string          `json:"id"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

type cartDTO struct {
	CartID string        `json:"cartId"`
	Items  []cartItemDTO `json:"items"`
}

// GetCart fetches the user's active cart.
// Returns checkout.ErrCartNotFound when the backend has none.
func (c *Client) GetCart(ctx context.Context) (*checkout.Cart, error) {
	var dto cartDTO
	if err := c.do(ctx, http.MethodGet, "/cart/user", nil, &dto); err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, checkout.ErrCartNotFound
		}
		return nil, errors.Wrap(err, "get cart")
	}

	cart := &checkout.Cart{
		ID:    dto.CartID,
		Items: make([]pricing.LineItem, len(dto.Items)),
	}
	for i, item := range dto.Items {
		cart.Items[i] = pricing.LineItem{
			ID:        item.ID,
			UnitPrice: item.Price,
			Quantity:  item.Quantity,
		}
	}
	return cart, nil
}

// Clear resets the user's server-side cart state after a confirmed order.
func (c *Client) Clear(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/cart/user", nil, nil); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}
