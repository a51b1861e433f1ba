// Package coupon validates promo codes against an injected registry and
// tracks the applied-discount state of one checkout session.
package coupon

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidCode is returned when a code does not match any registered
	// coupon. Non-fatal: the caller shows a notice and keeps the session.
	ErrInvalidCode = errors.New("invalid coupon code")
	// ErrAlreadyApplied is returned when the session already carries an
	// applied coupon. Only one coupon is honoured per checkout.
	ErrAlreadyApplied = errors.New("coupon already applied")
)

// Rule is a registered coupon: a code and the fixed amount it takes off
// the subtotal.
type Rule struct {
	Code        string
	Discount    decimal.Decimal
	Description string
}

// State is the discount state of one checkout session. The zero value means
// no coupon applied.
type State struct {
	AppliedCode string
	Discount    decimal.Decimal
	Applied     bool
}

// Registry provides case-insensitive lookup of coupon rules. It returns
// ErrInvalidCode when no rule matches. The interface is the seam for moving
// validation server-side later.
type Registry interface {
	FindByCode(ctx context.Context, code string) (*Rule, error)
}
