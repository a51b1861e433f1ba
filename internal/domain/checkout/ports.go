package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/storefront-go/checkout/internal/domain/pricing"
)

// ErrCartNotFound is returned by CartProvider implementations when the user
// has no active cart.
var ErrCartNotFound = errors.New("no active cart")

// ValidationError marks locally recoverable input problems: a missing cart
// identifier, a bad address reference. The session moves to Failed and the
// user can retry.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// ServiceError wraps a backend call failure.
type ServiceError struct {
	Op  string
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Cart is the authoritative server-side cart, re-fetched at order creation
// time rather than trusted from the client snapshot.
type Cart struct {
	ID    string
	Items []pricing.LineItem
}

// OrderItem is one line of an order request.
type OrderItem struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// OrderRequest is the payload submitted to the order backend.
type OrderRequest struct {
	CartID    string      `json:"cartId"`
	AddressID string      `json:"addressId"`
	Items     []OrderItem `json:"items"`
}

// NewOrderRequest builds an OrderRequest from a freshly fetched cart, the
// selected address and the item snapshot captured at place-order time.
// A cart without an identifier fails construction.
func NewOrderRequest(cart *Cart, addressID string, items []pricing.LineItem) (OrderRequest, error) {
	if cart == nil || cart.ID == "" {
		return OrderRequest{}, &ValidationError{Reason: "cart has no identifier"}
	}
	req := OrderRequest{
		CartID:    cart.ID,
		AddressID: addressID,
		Items:     make([]OrderItem, len(items)),
	}
	for i, item := range items {
		req.Items[i] = OrderItem{ItemID: item.ID, Quantity: item.Quantity}
	}
	return req, nil
}

// GatewayResult carries the single field the core reads from a gateway
// success callback.
type GatewayResult struct {
	PaymentID string
}

// PaymentStatus is the outcome recorded against an order.
type PaymentStatus string

const (
	PaymentSuccess PaymentStatus = "Success"
	PaymentFailure PaymentStatus = "Failure"
)

// PaymentRecord is persisted after order creation succeeds. It always
// references a real order id.
type PaymentRecord struct {
	Provider      string          `json:"type"`
	TransactionID string          `json:"transactionId"`
	Amount        decimal.Decimal `json:"amount"`
	OrderID       string          `json:"orderId"`
	Status        PaymentStatus   `json:"status"`
}

// OpenRequest is what the orchestrator hands to the payment gateway.
type OpenRequest struct {
	SessionID   string
	AmountMinor int64
	Currency    string
	Merchant    string
	Description string
}

// Confirmation is the locally cached snapshot shown on the confirmation
// view. The cart is already cleared server-side by the time this renders,
// so the view must not re-fetch.
type Confirmation struct {
	SessionID     string
	OrderID       string
	Items         []pricing.LineItem
	AddressID     string
	Amount        decimal.Decimal
	TransactionID string
	PaidAt        time.Time
}

// CartProvider fetches the authoritative cart.
// Fails with ErrCartNotFound when no active cart exists.
type CartProvider interface {
	GetCart(ctx context.Context) (*Cart, error)
}

// OrderCreator places an order and returns its id.
type OrderCreator interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (orderID string, err error)
}

// PaymentRecorder persists a payment record. Failure is surfaced for
// reconciliation, never dropped.
type PaymentRecorder interface {
	Save(ctx context.Context, rec PaymentRecord) error
}

// Gateway opens the external payment UI. Open returns the provider-side
// order id the frontend needs to launch the hosted checkout. Completion
// arrives asynchronously through the orchestrator's ConfirmPayment; the
// callback fires at most once with a successful result, or never.
type Gateway interface {
	Open(ctx context.Context, req OpenRequest) (orderID string, err error)
}

// CartClearNotifier resets the process-wide cart state. Invoked only after
// the order is confirmed.
type CartClearNotifier interface {
	Clear(ctx context.Context) error
}

// Navigator performs the one-shot transition to the confirmation view.
type Navigator interface {
	ShowConfirmation(ctx context.Context, c Confirmation)
}

// Journal stores payment records whose synchronous save failed, for retry
// and reconciliation.
type Journal interface {
	Enqueue(ctx context.Context, rec PaymentRecord, cause string) error
	Pending(ctx context.Context, limit int) ([]JournalEntry, error)
	MarkRecorded(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, cause string) error
}

// JournalEntry is one queued payment record awaiting a successful save.
type JournalEntry struct {
	ID       int64
	Record   PaymentRecord
	Attempts int
	LastErr  string
}
