package coupon

import (
	"context"

	"github.com/go-faster/errors"
)

// Validator applies a coupon code to a session's discount state.
type Validator interface {
	Apply(ctx context.Context, code string, state State) (State, error)
}

var _ Validator = (*RegistryValidator)(nil)

// RegistryValidator implements Validator by looking codes up in a Registry.
// It is synchronous and side-effect free: the only output is the returned
// state.
type RegistryValidator struct {
	registry Registry
}

// NewRegistryValidator creates a RegistryValidator backed by the given
// Registry.
func NewRegistryValidator(registry Registry) *RegistryValidator {
	return &RegistryValidator{registry: registry}
}

// Apply resolves the code and returns the new discount state.
//
// A session carries at most one applied coupon: when state.Applied is
// already true the state comes back unchanged with ErrAlreadyApplied. An
// unknown code also leaves the state unchanged, with ErrInvalidCode. Both
// errors are user-visible notices, not failures of the checkout.
func (v *RegistryValidator) Apply(ctx context.Context, code string, state State) (State, error) {
	if state.Applied {
		return state, ErrAlreadyApplied
	}

	rule, err := v.registry.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrInvalidCode) {
			return state, ErrInvalidCode
		}
		return state, errors.Wrap(err, "lookup coupon")
	}

	return State{
		AppliedCode: rule.Code,
		Discount:    rule.Discount,
		Applied:     true,
	}, nil
}
