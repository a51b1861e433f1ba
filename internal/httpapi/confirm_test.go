package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront-go/checkout/internal/domain/checkout"
)

func confirmation(sessionID, orderID string) checkout.Confirmation {
	return checkout.Confirmation{
		SessionID: sessionID,
		OrderID:   orderID,
		Amount:    decimal.NewFromInt(1062),
		PaidAt:    time.Now(),
	}
}

func TestConfirmationStore_FirstWriteWins(t *testing.T) {
	s := NewConfirmationStore(time.Minute)
	ctx := context.Background()

	s.ShowConfirmation(ctx, confirmation("sess-1", "order-1"))
	s.ShowConfirmation(ctx, confirmation("sess-1", "order-2"))

	got, ok := s.Get("sess-1")
	require.True(t, ok)
	assert.Equal(t, "order-1", got.OrderID)
}

func TestConfirmationStore_SnapshotExpiresAfterRetention(t *testing.T) {
	s := NewConfirmationStore(20 * time.Millisecond)
	ctx := context.Background()

	s.ShowConfirmation(ctx, confirmation("sess-1", "order-1"))
	_, ok := s.Get("sess-1")
	require.True(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := s.Get("sess-1")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestConfirmationStore_ZeroRetentionKeepsSnapshot(t *testing.T) {
	s := NewConfirmationStore(0)
	ctx := context.Background()

	s.ShowConfirmation(ctx, confirmation("sess-1", "order-1"))
	_, ok := s.Get("sess-1")
	assert.True(t, ok)
}
