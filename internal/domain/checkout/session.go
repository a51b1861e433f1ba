package checkout

import (
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/storefront-go/checkout/internal/domain/coupon"
	"github.com/storefront-go/checkout/internal/domain/pricing"
)

// Session is one end-to-end attempt to convert a cart into a paid order.
// All mutable fields are owned by the orchestrator and guarded by mu; no
// other component may touch them while the session is alive.
type Session struct {
	ID        string
	Items     []pricing.LineItem
	AddressID string
	CreatedAt time.Time

	mu             sync.Mutex
	state          State
	coupon         coupon.State
	total          decimal.Decimal
	amountMinor    int64
	gateway        GatewayResult
	gatewayOrderID string
	orderID        string
	lastErr        error
	updatedAt      time.Time

	// gatewayTimer cancels the unbounded wait on the gateway callback.
	gatewayTimer *time.Timer
	// evictTimer removes the session from the orchestrator's index once
	// its terminal retention window elapses.
	evictTimer *time.Timer
}

func newSession(id string, items []pricing.LineItem, addressID string, now time.Time) *Session {
	snapshot := make([]pricing.LineItem, len(items))
	copy(snapshot, items)

	return &Session{
		ID:        id,
		Items:     snapshot,
		AddressID: addressID,
		CreatedAt: now,
		state:     StateIdle,
		updatedAt: now,
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Coupon returns the session's discount state.
func (s *Session) Coupon() coupon.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coupon
}

// Totals returns the major-unit total and the minor-unit gateway amount
// computed at place-order time.
func (s *Session) Totals() (decimal.Decimal, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total, s.amountMinor
}

// GatewayOrderID returns the provider-side order id created at
// place-order time, or "". The frontend feeds it to the payment modal.
func (s *Session) GatewayOrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gatewayOrderID
}

// OrderID returns the order id captured after order creation, or "".
func (s *Session) OrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderID
}

// Err returns the error that moved the session to Failed, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// transition moves the session to next if the transition table allows it.
func (s *Session) transition(next State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(next)
}

func (s *Session) transitionLocked(next State) error {
	if !s.state.CanTransitionTo(next) {
		return errors.Wrapf(ErrIllegalTransition, "%s -> %s", s.state, next)
	}
	s.state = next
	s.updatedAt = time.Now()
	return nil
}

// stopGatewayTimerLocked stops the callback-timeout timer, if armed.
func (s *Session) stopGatewayTimerLocked() {
	if s.gatewayTimer != nil {
		s.gatewayTimer.Stop()
		s.gatewayTimer = nil
	}
}

// stopEvictTimerLocked stops the retention timer, if armed.
func (s *Session) stopEvictTimerLocked() {
	if s.evictTimer != nil {
		s.evictTimer.Stop()
		s.evictTimer = nil
	}
}
