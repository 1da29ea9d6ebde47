package memory

import (
	"context"
	"sync"
	"time"

	"rvl-week-service/internal/domain"
)

// PendingStore keeps staged deep-link unlocks until they expire. Expiry is
// measured from when the store received the intent, like a Redis TTL.
type PendingStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu      sync.Mutex
	pending map[string]stagedUnlock
}

type stagedUnlock struct {
	unlock    domain.PendingUnlock
	expiresAt time.Time
}

func NewPendingStore(ttl time.Duration) *PendingStore {
	return &PendingStore{
		ttl:     ttl,
		clock:   time.Now,
		pending: make(map[string]stagedUnlock),
	}
}

func (s *PendingStore) Stage(_ context.Context, p domain.PendingUnlock) error {
	var expiresAt time.Time
	if s.ttl > 0 {
		expiresAt = s.clock().Add(s.ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[p.ID] = stagedUnlock{unlock: p, expiresAt: expiresAt}
	return nil
}

func (s *PendingStore) Get(_ context.Context, id string) (domain.PendingUnlock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	staged, ok := s.pending[id]
	if !ok {
		return domain.PendingUnlock{}, domain.ErrPendingNotFound
	}
	if !staged.expiresAt.IsZero() && !staged.expiresAt.After(s.clock()) {
		delete(s.pending, id)
		return domain.PendingUnlock{}, domain.ErrPendingNotFound
	}
	return staged.unlock, nil
}

func (s *PendingStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	return nil
}
