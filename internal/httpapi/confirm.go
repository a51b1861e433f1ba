package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/storefront-go/checkout/internal/domain/checkout"
)

var _ checkout.Navigator = (*ConfirmationStore)(nil)

// ConfirmationStore implements the Navigator port: the one-shot transition
// to the confirmation view becomes a stored snapshot the view fetches. The
// snapshot is deliberately local state; the cart is already cleared
// server-side when the confirmation renders. Snapshots are dropped once
// the retention window elapses, so the store does not grow with every
// checkout served.
type ConfirmationStore struct {
	retention time.Duration

	mu     sync.Mutex
	byID   map[string]checkout.Confirmation
	timers map[string]*time.Timer
}

// NewConfirmationStore creates an empty store. Snapshots live for
// retention after their first write; zero disables expiry.
func NewConfirmationStore(retention time.Duration) *ConfirmationStore {
	return &ConfirmationStore{
		retention: retention,
		byID:      make(map[string]checkout.Confirmation),
		timers:    make(map[string]*time.Timer),
	}
}

// ShowConfirmation records the snapshot for its session. First write wins:
// navigation to the confirmation view happens once per session.
func (s *ConfirmationStore) ShowConfirmation(_ context.Context, c checkout.Confirmation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[c.SessionID]; ok {
		return
	}
	s.byID[c.SessionID] = c
	if s.retention > 0 {
		s.timers[c.SessionID] = time.AfterFunc(s.retention, func() {
			s.expire(c.SessionID)
		})
	}
}

// Get returns the confirmation snapshot for a session, if any.
func (s *ConfirmationStore) Get(sessionID string) (checkout.Confirmation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[sessionID]
	return c, ok
}

func (s *ConfirmationStore) expire(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		delete(s.timers, sessionID)
	}
	delete(s.byID, sessionID)
}
