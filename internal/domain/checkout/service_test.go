package checkout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-go/checkout/internal/domain/coupon"
	"github.com/storefront-go/checkout/internal/domain/pricing"
)

// --- Mock collaborators ---
//
// calls records the cross-collaborator invocation order so the sequencing
// invariants can be asserted directly.

type calls struct {
	seq []string
}

func (c *calls) add(name string) { c.seq = append(c.seq, name) }

type mockCarts struct {
	rec  *calls
	cart *Cart
	err  error
}

func (m *mockCarts) GetCart(context.Context) (*Cart, error) {
	m.rec.add("cart.get")
	return m.cart, m.err
}

type mockOrders struct {
	rec     *calls
	orderID string
	err     error
	lastReq OrderRequest
}

func (m *mockOrders) PlaceOrder(_ context.Context, req OrderRequest) (string, error) {
	m.rec.add("order.place")
	m.lastReq = req
	return m.orderID, m.err
}

type mockPayments struct {
	rec   *calls
	err   error
	saved []PaymentRecord
}

func (m *mockPayments) Save(_ context.Context, r PaymentRecord) error {
	m.rec.add("payment.save")
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, r)
	return nil
}

type mockGateway struct {
	rec   *calls
	err   error
	opens []OpenRequest
}

func (m *mockGateway) Open(_ context.Context, req OpenRequest) (string, error) {
	m.rec.add("gateway.open")
	if m.err != nil {
		return "", m.err
	}
	m.opens = append(m.opens, req)
	return fmt.Sprintf("order_rzp_%d", len(m.opens)), nil
}

type mockCartClear struct {
	rec   *calls
	count int
}

func (m *mockCartClear) Clear(context.Context) error {
	m.rec.add("cart.clear")
	m.count++
	return nil
}

type mockNavigator struct {
	rec   *calls
	shown []Confirmation
}

func (m *mockNavigator) ShowConfirmation(_ context.Context, c Confirmation) {
	m.rec.add("navigate")
	m.shown = append(m.shown, c)
}

type mockJournal struct {
	rec      *calls
	enqueued []JournalEntry
	pending  []JournalEntry
	recorded []int64
	failed   []int64
}

func (m *mockJournal) Enqueue(_ context.Context, r PaymentRecord, cause string) error {
	m.rec.add("journal.enqueue")
	m.enqueued = append(m.enqueued, JournalEntry{Record: r, LastErr: cause})
	return nil
}

func (m *mockJournal) Pending(_ context.Context, limit int) ([]JournalEntry, error) {
	if len(m.pending) > limit {
		return m.pending[:limit], nil
	}
	return m.pending, nil
}

func (m *mockJournal) MarkRecorded(_ context.Context, id int64) error {
	m.recorded = append(m.recorded, id)
	return nil
}

func (m *mockJournal) MarkFailed(_ context.Context, id int64, _ string) error {
	m.failed = append(m.failed, id)
	return nil
}

// --- Harness ---

type harness struct {
	svc       *Service
	rec       *calls
	carts     *mockCarts
	orders    *mockOrders
	payments  *mockPayments
	gateway   *mockGateway
	cartClear *mockCartClear
	navigator *mockNavigator
	journal   *mockJournal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rec := &calls{}
	h := &harness{
		rec:       rec,
		carts:     &mockCarts{rec: rec, cart: &Cart{ID: "cart-7"}},
		orders:    &mockOrders{rec: rec, orderID: "order-42"},
		payments:  &mockPayments{rec: rec},
		gateway:   &mockGateway{rec: rec},
		cartClear: &mockCartClear{rec: rec},
		navigator: &mockNavigator{rec: rec},
		journal:   &mockJournal{rec: rec},
	}
	h.svc = NewService(
		Config{Currency: "INR", Merchant: "Digital Bookstore", SessionRetention: time.Hour},
		Deps{
			Coupons: coupon.NewRegistryValidator(coupon.NewMemoryRegistry([]coupon.Rule{
				{Code: "SALE100", Discount: decimal.NewFromInt(100)},
			})),
			Carts:     h.carts,
			Orders:    h.orders,
			Payments:  h.payments,
			Gateway:   h.gateway,
			CartClear: h.cartClear,
			Navigator: h.navigator,
			Journal:   h.journal,
		},
		nil, nil,
	)
	return h
}

func testItems() []pricing.LineItem {
	return []pricing.LineItem{
		{ID: "book-1", UnitPrice: decimal.NewFromInt(500), Quantity: 2},
	}
}

// --- Tests ---

func TestCheckout_HappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")
	require.Equal(t, StateIdle, sess.State())

	state, err := h.svc.ApplyCoupon(ctx, sess.ID, "sale100")
	require.NoError(t, err)
	assert.True(t, state.Applied)

	require.NoError(t, h.svc.PlaceOrder(ctx, sess.ID))
	assert.Equal(t, StateGatewayOpen, sess.State())

	total, minor := sess.Totals()
	assert.Equal(t, "1062", total.String())
	assert.Equal(t, int64(106200), minor)

	require.Len(t, h.gateway.opens, 1)
	assert.Equal(t, int64(106200), h.gateway.opens[0].AmountMinor)
	assert.Equal(t, "INR", h.gateway.opens[0].Currency)
	assert.Equal(t, "order_rzp_1", sess.GatewayOrderID())

	conf, err := h.svc.ConfirmPayment(ctx, sess.ID, GatewayResult{PaymentID: "pay_abc"})
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, sess.State())

	assert.Equal(t, "order-42", conf.OrderID)
	assert.Equal(t, "pay_abc", conf.TransactionID)
	assert.Equal(t, "1062", conf.Amount.String())
	assert.Equal(t, "addr-1", conf.AddressID)

	// The order request came from the freshly fetched cart, not the
	// client snapshot.
	assert.Equal(t, "cart-7", h.orders.lastReq.CartID)
	assert.Equal(t, []OrderItem{{ItemID: "book-1", Quantity: 2}}, h.orders.lastReq.Items)

	require.Len(t, h.payments.saved, 1)
	rec := h.payments.saved[0]
	assert.Equal(t, "razorpay", rec.Provider)
	assert.Equal(t, "order-42", rec.OrderID)
	assert.Equal(t, PaymentSuccess, rec.Status)
	assert.Equal(t, "1062", rec.Amount.String())

	assert.Equal(t, 1, h.cartClear.count)
	require.Len(t, h.navigator.shown, 1)

	// Strict sequencing of the whole flow.
	assert.Equal(t, []string{
		"gateway.open", "cart.get", "order.place",
		"payment.save", "cart.clear", "navigate",
	}, h.rec.seq)
}

func TestCheckout_DuplicatePlaceOrderRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")
	require.NoError(t, h.svc.PlaceOrder(ctx, sess.ID))

	err := h.svc.PlaceOrder(ctx, sess.ID)
	require.ErrorIs(t, err, ErrCheckoutInFlight)
	assert.Len(t, h.gateway.opens, 1, "no duplicate gateway session")
}

func TestCheckout_NoOrderBeforeGatewayCallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")
	require.NoError(t, h.svc.PlaceOrder(ctx, sess.ID))

	assert.NotContains(t, h.rec.seq, "order.place")
	assert.NotContains(t, h.rec.seq, "cart.get")
}

func TestCheckout_CallbackWithoutOpenRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")

	_, err := h.svc.ConfirmPayment(ctx, sess.ID, GatewayResult{PaymentID: "pay_x"})
	require.ErrorIs(t, err, ErrNotAwaitingPayment)
	assert.NotContains(t, h.rec.seq, "order.place")
}

func TestCheckout_DuplicateCallbackRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")
	require.NoError(t, h.svc.PlaceOrder(ctx, sess.ID))

	_, err := h.svc.ConfirmPayment(ctx, sess.ID, GatewayResult{PaymentID: "pay_1"})
	require.NoError(t, err)

	_, err = h.svc.ConfirmPayment(ctx, sess.ID, GatewayResult{PaymentID: "pay_2"})
	require.ErrorIs(t, err, ErrNotAwaitingPayment)
	assert.Len(t, h.orders.lastReq.Items, 1)
	assert.Len(t, h.payments.saved, 1, "single payment record")
}

func TestCheckout_CartWithoutIDFailsBeforePayment(t *testing.T) {
	h := newHarness(t)
	h.carts.cart = &Cart{ID: ""}
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")
	require.NoError(t, h.svc.PlaceOrder(ctx, sess.ID))

	_, err := h.svc.ConfirmPayment(ctx, sess.ID, GatewayResult{PaymentID: "pay_x"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StateFailed, sess.State())
	assert.NotContains(t, h.rec.seq, "order.place")
	assert.NotContains(t, h.rec.seq, "payment.save")
	assert.NotContains(t, h.rec.seq, "cart.clear")
}

func TestCheckout_CartNotFound(t *testing.T) {
	h := newHarness(t)
	h.carts.cart = nil
	h.carts.err = ErrCartNotFound
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")
	require.NoError(t, h.svc.PlaceOrder(ctx, sess.ID))

	_, err := h.svc.ConfirmPayment(ctx, sess.ID, GatewayResult{PaymentID: "pay_x"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, StateFailed, sess.State())
}

func TestCheckout_OrderCreationFailure(t *testing.T) {
	h := newHarness(t)
	h.orders.err = errors.New("backend unavailable")
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")
	require.NoError(t, h.svc.PlaceOrder(ctx, sess.ID))

	_, err := h.svc.ConfirmPayment(ctx, sess.ID, GatewayResult{PaymentID: "pay_x"})

	var serr *ServiceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StateFailed, sess.State())
	assert.NotContains(t, h.rec.seq, "payment.save",
		"payment must never be recorded without an order id")
	assert.NotContains(t, h.rec.seq, "cart.clear")
}

func TestCheckout_PaymentSaveFailureIsJournaledNotFatal(t *testing.T) {
	h := newHarness(t)
	h.payments.err = errors.New("payments backend down")
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")
	require.NoError(t, h.svc.PlaceOrder(ctx, sess.ID))

	conf, err := h.svc.ConfirmPayment(ctx, sess.ID, GatewayResult{PaymentID: "pay_x"})
	require.NoError(t, err, "save failure must not block the confirmation")
	require.NotNil(t, conf)

	assert.Equal(t, StateCompleted, sess.State())
	require.Len(t, h.journal.enqueued, 1)
	assert.Equal(t, "order-42", h.journal.enqueued[0].Record.OrderID)
	assert.Equal(t, 1, h.cartClear.count)
	assert.Len(t, h.navigator.shown, 1)
}

func TestCheckout_GatewayOpenFailure(t *testing.T) {
	h := newHarness(t)
	h.gateway.err = errors.New("gateway unreachable")
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")

	err := h.svc.PlaceOrder(ctx, sess.ID)
	require.Error(t, err)
	assert.Equal(t, StateFailed, sess.State())
}

func TestCheckout_GatewayTimeoutCancelsSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")
	require.NoError(t, h.svc.PlaceOrder(ctx, sess.ID))

	// Simulated callback never firing: the watchdog expires the wait.
	h.svc.expireGateway(sess)
	assert.Equal(t, StateCancelled, sess.State())

	// Late callback is rejected.
	_, err := h.svc.ConfirmPayment(ctx, sess.ID, GatewayResult{PaymentID: "pay_late"})
	require.ErrorIs(t, err, ErrNotAwaitingPayment)
	assert.NotContains(t, h.rec.seq, "order.place")

	// Resolving the cancelled state permits a fresh place-order.
	require.NoError(t, h.svc.Reset(ctx, sess.ID))
	require.NoError(t, h.svc.PlaceOrder(ctx, sess.ID))
	assert.Len(t, h.gateway.opens, 2)
}

func TestCheckout_CancelBeforeConfirm(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")
	require.NoError(t, h.svc.PlaceOrder(ctx, sess.ID))

	require.NoError(t, h.svc.Cancel(ctx, sess.ID))
	assert.Equal(t, StateCancelled, sess.State())
}

func TestCheckout_CancelAfterCompletionRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")
	require.NoError(t, h.svc.PlaceOrder(ctx, sess.ID))
	_, err := h.svc.ConfirmPayment(ctx, sess.ID, GatewayResult{PaymentID: "pay_x"})
	require.NoError(t, err)

	err = h.svc.Cancel(ctx, sess.ID)
	require.ErrorIs(t, err, ErrNotCancellable)
}

func TestCheckout_CouponNoticesLeaveSessionUsable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")

	_, err := h.svc.ApplyCoupon(ctx, sess.ID, "bogus")
	require.ErrorIs(t, err, coupon.ErrInvalidCode)

	state, err := h.svc.ApplyCoupon(ctx, sess.ID, "SALE100")
	require.NoError(t, err)
	assert.Equal(t, "100", state.Discount.String())

	state, err = h.svc.ApplyCoupon(ctx, sess.ID, "SALE100")
	require.ErrorIs(t, err, coupon.ErrAlreadyApplied)
	assert.Equal(t, "100", state.Discount.String(), "discount unchanged")

	// The flow itself is unaffected by the notices.
	require.NoError(t, h.svc.PlaceOrder(ctx, sess.ID))
	total, _ := sess.Totals()
	assert.Equal(t, "1062", total.String())
}

func TestCheckout_SessionNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.svc.PlaceOrder(ctx, "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)

	_, err = h.svc.ConfirmPayment(ctx, "missing", GatewayResult{})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCheckout_CompletedSessionEvictedAfterRetention(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")
	require.NoError(t, h.svc.PlaceOrder(ctx, sess.ID))
	_, err := h.svc.ConfirmPayment(ctx, sess.ID, GatewayResult{PaymentID: "pay_x"})
	require.NoError(t, err)

	sess.mu.Lock()
	armed := sess.evictTimer != nil
	sess.mu.Unlock()
	assert.True(t, armed, "retention timer armed on completion")

	// Simulated retention window elapsing.
	h.svc.evict(sess)
	_, err = h.svc.Session(sess.ID)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCheckout_ResetDisarmsEviction(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sess := h.svc.StartSession(testItems(), "addr-1")
	require.NoError(t, h.svc.PlaceOrder(ctx, sess.ID))
	require.NoError(t, h.svc.Cancel(ctx, sess.ID))
	require.NoError(t, h.svc.Reset(ctx, sess.ID))

	// A stale retention fire must not remove a session back in use.
	h.svc.evict(sess)
	got, err := h.svc.Session(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, got.State())
}
