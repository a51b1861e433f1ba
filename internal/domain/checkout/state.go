package checkout

import "github.com/go-faster/errors"

// ErrIllegalTransition is returned when a session is asked to move to a
// state its current state does not allow.
var ErrIllegalTransition = errors.New("illegal checkout state transition")

// State is the explicit position of a checkout session in the payment flow.
type State string

const (
	// StateIdle is the initial state: items and address selected, nothing
	// submitted yet.
	StateIdle State = "IDLE"
	// StateGatewayOpen means the payment gateway has been opened with the
	// computed amount and the session is waiting for its callback.
	StateGatewayOpen State = "GATEWAY_OPEN"
	// StateGatewayConfirmed means the gateway reported a successful payment.
	StateGatewayConfirmed State = "GATEWAY_CONFIRMED"
	// StateCartFetching means the authoritative cart is being re-fetched.
	StateCartFetching State = "CART_FETCHING"
	// StateOrderCreating means the order request has been submitted.
	StateOrderCreating State = "ORDER_CREATING"
	// StateOrderCreated means the backend returned an order id.
	StateOrderCreated State = "ORDER_CREATED"
	// StatePaymentRecording means the payment record is being persisted.
	StatePaymentRecording State = "PAYMENT_RECORDING"
	// StateCompleted is the happy terminal state: order placed, payment
	// recorded (or journaled), cart cleared, confirmation shown.
	StateCompleted State = "COMPLETED"
	// StateCancelled means the gateway was never confirmed: the user
	// cancelled, or the callback timed out. Resolvable back to Idle.
	StateCancelled State = "CANCELLED"
	// StateFailed means a required call errored after the gateway
	// confirmed. Resolvable back to Idle for a retry.
	StateFailed State = "FAILED"
)

// transitions is the allowed-transition table. Failed is additionally
// reachable from every non-terminal state (see CanTransitionTo).
var transitions = map[State][]State{
	StateIdle:             {StateGatewayOpen, StateCancelled},
	StateGatewayOpen:      {StateGatewayConfirmed, StateCancelled},
	StateGatewayConfirmed: {StateCartFetching},
	StateCartFetching:     {StateOrderCreating},
	StateOrderCreating:    {StateOrderCreated},
	StateOrderCreated:     {StatePaymentRecording},
	StatePaymentRecording: {StateCompleted},
	StateCompleted:        {},
	StateCancelled:        {StateIdle},
	StateFailed:           {StateIdle},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s State) CanTransitionTo(next State) bool {
	if next == StateFailed {
		// Any in-flight state may abort.
		return !s.IsTerminal()
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the session has finished, successfully or not.
// Cancelled and Failed are resolvable terminals: they only allow the
// explicit reset back to Idle.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

func (s State) String() string {
	return string(s)
}
