// Package checkout drives the end-to-end payment flow: open the gateway,
// await its confirmation, then fetch the cart, create the order, record the
// payment and clear the cart, strictly in that sequence.
package checkout

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/storefront-go/checkout/internal/domain/coupon"
	"github.com/storefront-go/checkout/internal/domain/pricing"
)

// Sentinel errors for session operations.
var (
	ErrSessionNotFound = errors.New("checkout session not found")
	// ErrCheckoutInFlight rejects a repeated place-order click while a
	// gateway session is already open.
	ErrCheckoutInFlight = errors.New("checkout already in flight")
	// ErrNotAwaitingPayment rejects gateway callbacks for sessions that are
	// not waiting on one (already confirmed, cancelled or timed out).
	ErrNotAwaitingPayment = errors.New("session is not awaiting payment")
	// ErrGatewayTimeout marks a session whose gateway callback never
	// fired within the configured bound.
	ErrGatewayTimeout = errors.New("gateway callback timed out")
	// ErrNotCancellable is returned when cancellation is requested after
	// the gateway has already confirmed the payment.
	ErrNotCancellable = errors.New("session can no longer be cancelled")
	// ErrNotResolvable is returned by Reset for sessions that are not in a
	// resolvable terminal state.
	ErrNotResolvable = errors.New("session is not in a resolvable state")
)

// Config holds the merchant-side constants handed to the gateway.
type Config struct {
	Currency string
	Merchant string
	// GatewayTimeout bounds the wait for the gateway callback. Zero
	// disables the watchdog.
	GatewayTimeout time.Duration
	// SessionRetention is how long a terminal session stays fetchable and
	// resolvable before it is removed from the index. Zero disables
	// eviction.
	SessionRetention time.Duration
}

// Service is the checkout orchestrator. It owns every session and is the
// only writer of session state.
type Service struct {
	cfg       Config
	coupons   coupon.Validator
	carts     CartProvider
	orders    OrderCreator
	payments  PaymentRecorder
	gateway   Gateway
	cartClear CartClearNotifier
	navigator Navigator
	journal   Journal

	mu       sync.Mutex
	sessions map[string]*Session

	tracer    trace.Tracer
	completed metric.Int64Counter
	failed    metric.Int64Counter
}

// Deps bundles the collaborators a Service calls out to.
type Deps struct {
	Coupons   coupon.Validator
	Carts     CartProvider
	Orders    OrderCreator
	Payments  PaymentRecorder
	Gateway   Gateway
	CartClear CartClearNotifier
	Navigator Navigator
	Journal   Journal
}

// NewService creates the orchestrator. Telemetry providers fall back to the
// otel globals when nil.
func NewService(cfg Config, deps Deps, tp trace.TracerProvider, mp metric.MeterProvider) *Service {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter("checkout")
	completed, _ := meter.Int64Counter("checkout.sessions.completed",
		metric.WithDescription("Checkout sessions that reached Completed"))
	failed, _ := meter.Int64Counter("checkout.sessions.failed",
		metric.WithDescription("Checkout sessions that reached Failed"))

	return &Service{
		cfg:       cfg,
		coupons:   deps.Coupons,
		carts:     deps.Carts,
		orders:    deps.Orders,
		payments:  deps.Payments,
		gateway:   deps.Gateway,
		cartClear: deps.CartClear,
		navigator: deps.Navigator,
		journal:   deps.Journal,
		sessions:  make(map[string]*Session),
		tracer:    tp.Tracer("checkout"),
		completed: completed,
		failed:    failed,
	}
}

// StartSession creates a new Idle session from the client-side item list
// and the selected address reference.
func (s *Service) StartSession(items []pricing.LineItem, addressID string) *Session {
	sess := newSession(uuid.New().String(), items, addressID, time.Now())

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()

	return sess
}

// Session returns a session by id.
func (s *Service) Session(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// ApplyCoupon validates a code against the registry and updates the
// session's discount state. Invalid codes and repeat applications surface
// as coupon notices with the state unchanged.
func (s *Service) ApplyCoupon(ctx context.Context, sessionID, code string) (coupon.State, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return coupon.State{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	next, err := s.coupons.Apply(ctx, code, sess.coupon)
	if err != nil {
		return sess.coupon, err
	}
	sess.coupon = next
	return next, nil
}

// PlaceOrder computes the total, opens the payment gateway with the
// minor-unit amount and moves the session to GatewayOpen. The next
// transition is driven by the gateway callback (ConfirmPayment), not by
// this call's return value. Re-entrant calls while a session is in flight
// are rejected.
func (s *Service) PlaceOrder(ctx context.Context, sessionID string) error {
	sess, err := s.Session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if sess.state != StateIdle {
		state := sess.state
		sess.mu.Unlock()
		return errors.Wrapf(ErrCheckoutInFlight, "state %s", state)
	}

	total := pricing.Total(sess.Items, sess.coupon.Discount)
	sess.total = total
	sess.amountMinor = pricing.MinorUnits(total)
	if err := sess.transitionLocked(StateGatewayOpen); err != nil {
		sess.mu.Unlock()
		return err
	}
	if s.cfg.GatewayTimeout > 0 {
		sess.gatewayTimer = time.AfterFunc(s.cfg.GatewayTimeout, func() {
			s.expireGateway(sess)
		})
	}
	amountMinor := sess.amountMinor
	sess.mu.Unlock()

	openReq := OpenRequest{
		SessionID:   sess.ID,
		AmountMinor: amountMinor,
		Currency:    s.cfg.Currency,
		Merchant:    s.cfg.Merchant,
		Description: "storefront checkout",
	}
	gatewayOrderID, err := s.gateway.Open(ctx, openReq)
	if err != nil {
		s.fail(ctx, sess, errors.Wrap(err, "open gateway"))
		return errors.Wrap(err, "open gateway")
	}
	sess.mu.Lock()
	sess.gatewayOrderID = gatewayOrderID
	sess.mu.Unlock()

	zctx.From(ctx).Info("gateway opened",
		zap.String("session_id", sess.ID),
		zap.String("gateway_order_id", gatewayOrderID),
		zap.Int64("amount_minor", amountMinor),
		zap.String("currency", s.cfg.Currency),
	)
	return nil
}

// expireGateway moves a session still waiting on the callback to Cancelled.
func (s *Service) expireGateway(sess *Session) {
	sess.mu.Lock()
	if sess.state != StateGatewayOpen {
		sess.mu.Unlock()
		return
	}
	sess.gatewayTimer = nil
	_ = sess.transitionLocked(StateCancelled)
	sess.lastErr = ErrGatewayTimeout
	sess.mu.Unlock()

	s.scheduleEvict(sess)
}

// scheduleEvict arms the retention timer for a session that just reached a
// terminal state. Reset disarms it, so an abandoned checkout can still be
// retried within the window.
func (s *Service) scheduleEvict(sess *Session) {
	if s.cfg.SessionRetention <= 0 {
		return
	}
	sess.mu.Lock()
	sess.stopEvictTimerLocked()
	sess.evictTimer = time.AfterFunc(s.cfg.SessionRetention, func() {
		s.evict(sess)
	})
	sess.mu.Unlock()
}

// evict removes a session from the index if it is still terminal when its
// retention window elapses.
func (s *Service) evict(sess *Session) {
	sess.mu.Lock()
	if !sess.state.IsTerminal() {
		sess.mu.Unlock()
		return
	}
	sess.stopGatewayTimerLocked()
	sess.evictTimer = nil
	sess.mu.Unlock()

	s.mu.Lock()
	delete(s.sessions, sess.ID)
	s.mu.Unlock()
}

// Cancel abandons a session before the gateway confirms. Once the payment
// is confirmed the flow must run to completion and cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, sessionID string) error {
	sess, err := s.Session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	if !sess.state.CanTransitionTo(StateCancelled) {
		state := sess.state
		sess.mu.Unlock()
		return errors.Wrapf(ErrNotCancellable, "state %s", state)
	}
	sess.stopGatewayTimerLocked()
	if err := sess.transitionLocked(StateCancelled); err != nil {
		sess.mu.Unlock()
		return err
	}
	sess.mu.Unlock()

	s.scheduleEvict(sess)
	zctx.From(ctx).Info("checkout cancelled", zap.String("session_id", sess.ID))
	return nil
}

// Reset resolves a Cancelled or Failed session back to Idle so the user can
// place the order again.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	sess, err := s.Session(sessionID)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state != StateCancelled && sess.state != StateFailed {
		return errors.Wrapf(ErrNotResolvable, "state %s", sess.state)
	}
	if err := sess.transitionLocked(StateIdle); err != nil {
		return err
	}
	sess.stopEvictTimerLocked()
	sess.lastErr = nil
	sess.gatewayOrderID = ""
	return nil
}

// ConfirmPayment is the gateway success callback. It accepts the result at
// most once, then runs the post-payment pipeline strictly in sequence:
// cart fetch, order creation, payment recording, cart clear, navigation.
func (s *Service) ConfirmPayment(ctx context.Context, sessionID string, res GatewayResult) (*Confirmation, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return nil, err
	}

	// Claim the callback. Exactly one caller can move GatewayOpen ->
	// GatewayConfirmed; late or duplicate callbacks are rejected here.
	sess.mu.Lock()
	if sess.state != StateGatewayOpen {
		state := sess.state
		sess.mu.Unlock()
		return nil, errors.Wrapf(ErrNotAwaitingPayment, "state %s", state)
	}
	sess.stopGatewayTimerLocked()
	if err := sess.transitionLocked(StateGatewayConfirmed); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	sess.gateway = res
	sess.mu.Unlock()

	ctx, span := s.tracer.Start(ctx, "checkout.ConfirmPayment")
	defer span.End()

	conf, err := s.completePipeline(ctx, sess)
	if err != nil {
		s.fail(ctx, sess, err)
		return nil, err
	}
	s.completed.Add(ctx, 1)
	s.scheduleEvict(sess)
	return conf, nil
}

// completePipeline runs the four post-gateway steps. Order creation must
// observe a cart that still exists, and payment recording must reference a
// real order id, so the steps never reorder or run concurrently.
func (s *Service) completePipeline(ctx context.Context, sess *Session) (*Confirmation, error) {
	lg := zctx.From(ctx).With(zap.String("session_id", sess.ID))

	if err := sess.transition(StateCartFetching); err != nil {
		return nil, err
	}
	cart, err := s.carts.GetCart(ctx)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return nil, &ValidationError{Reason: "no active cart"}
		}
		return nil, &ServiceError{Op: "get cart", Err: err}
	}

	orderReq, err := NewOrderRequest(cart, sess.AddressID, sess.Items)
	if err != nil {
		return nil, err
	}

	if err := sess.transition(StateOrderCreating); err != nil {
		return nil, err
	}
	orderID, err := s.orders.PlaceOrder(ctx, orderReq)
	if err != nil {
		return nil, &ServiceError{Op: "place order", Err: err}
	}

	sess.mu.Lock()
	sess.orderID = orderID
	err = sess.transitionLocked(StateOrderCreated)
	sess.mu.Unlock()
	if err != nil {
		return nil, err
	}
	lg.Info("order created", zap.String("order_id", orderID))

	record := PaymentRecord{
		Provider:      "razorpay",
		TransactionID: sess.gateway.PaymentID,
		Amount:        sess.total,
		OrderID:       orderID,
		Status:        PaymentSuccess,
	}
	if err := sess.transition(StatePaymentRecording); err != nil {
		return nil, err
	}
	if err := s.payments.Save(ctx, record); err != nil {
		// The external payment already succeeded; losing the record is a
		// reconciliation risk, not a checkout failure. Queue it for retry.
		lg.Warn("payment record save failed, journaling",
			zap.String("order_id", orderID), zap.Error(err))
		if jerr := s.journal.Enqueue(ctx, record, err.Error()); jerr != nil {
			lg.Error("journal enqueue failed", zap.Error(jerr))
		}
	}

	if err := sess.transition(StateCompleted); err != nil {
		return nil, err
	}

	if err := s.cartClear.Clear(ctx); err != nil {
		lg.Warn("cart clear notification failed", zap.Error(err))
	}

	conf := &Confirmation{
		SessionID:     sess.ID,
		OrderID:       orderID,
		Items:         sess.Items,
		AddressID:     sess.AddressID,
		Amount:        sess.total,
		TransactionID: record.TransactionID,
		PaidAt:        time.Now(),
	}
	s.navigator.ShowConfirmation(ctx, *conf)
	lg.Info("checkout completed", zap.String("order_id", orderID))
	return conf, nil
}

// fail moves the session to Failed and records the cause.
func (s *Service) fail(ctx context.Context, sess *Session, cause error) {
	sess.mu.Lock()
	sess.stopGatewayTimerLocked()
	if sess.state.CanTransitionTo(StateFailed) {
		sess.state = StateFailed
	}
	sess.lastErr = cause
	sess.mu.Unlock()

	s.scheduleEvict(sess)
	s.failed.Add(ctx, 1)
	zctx.From(ctx).Error("checkout failed",
		zap.String("session_id", sess.ID), zap.Error(cause))
}
