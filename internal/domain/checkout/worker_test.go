package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func journalEntry(id int64, orderID string) JournalEntry {
	return JournalEntry{
		ID: id,
		Record: PaymentRecord{
			Provider:      "razorpay",
			TransactionID: "pay_x",
			Amount:        decimal.NewFromInt(1062),
			OrderID:       orderID,
			Status:        PaymentSuccess,
		},
		Attempts: 1,
	}
}

func TestRecorderWorker_DrainSuccess(t *testing.T) {
	rec := &calls{}
	journal := &mockJournal{rec: rec, pending: []JournalEntry{
		journalEntry(1, "order-1"),
		journalEntry(2, "order-2"),
	}}
	payments := &mockPayments{rec: rec}

	w := NewRecorderWorker(journal, payments, time.Minute, 10)
	w.drain(context.Background())

	require.Len(t, payments.saved, 2)
	assert.Equal(t, []int64{1, 2}, journal.recorded)
	assert.Empty(t, journal.failed)
}

func TestRecorderWorker_RetryFailureMarked(t *testing.T) {
	rec := &calls{}
	journal := &mockJournal{rec: rec, pending: []JournalEntry{journalEntry(7, "order-7")}}
	payments := &mockPayments{rec: rec, err: errors.New("still down")}

	w := NewRecorderWorker(journal, payments, time.Minute, 10)
	w.drain(context.Background())

	assert.Empty(t, journal.recorded)
	assert.Equal(t, []int64{7}, journal.failed)
}

func TestRecorderWorker_BatchLimit(t *testing.T) {
	rec := &calls{}
	journal := &mockJournal{rec: rec, pending: []JournalEntry{
		journalEntry(1, "order-1"),
		journalEntry(2, "order-2"),
		journalEntry(3, "order-3"),
	}}
	payments := &mockPayments{rec: rec}

	w := NewRecorderWorker(journal, payments, time.Minute, 2)
	w.drain(context.Background())

	assert.Len(t, payments.saved, 2)
}

func TestRecorderWorker_DefaultsGuardTickerArguments(t *testing.T) {
	rec := &calls{}
	w := NewRecorderWorker(&mockJournal{rec: rec}, &mockPayments{rec: rec}, 0, 0)

	assert.Equal(t, 30*time.Second, w.interval)
	assert.Equal(t, 10, w.batch)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
}

func TestRecorderWorker_RunStopsOnContextCancel(t *testing.T) {
	rec := &calls{}
	journal := &mockJournal{rec: rec}
	payments := &mockPayments{rec: rec}

	w := NewRecorderWorker(journal, payments, 5*time.Millisecond, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
