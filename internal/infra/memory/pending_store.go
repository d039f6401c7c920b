package memory

import (
	"context"
	"sync"
	"time"

	"lorequiz-service/internal/domain"
)

// PendingStore holds one guest result per browsing session. Slots expire after ttl.
type PendingStore struct {
	mu    sync.Mutex
	ttl   time.Duration
	clock func() time.Time
	slots map[string]pendingSlot
}

type pendingSlot struct {
	result    domain.FinalResult
	expiresAt time.Time
}

func NewPendingStore(ttl time.Duration) *PendingStore {
	return &PendingStore{
		ttl:   ttl,
		clock: time.Now,
		slots: make(map[string]pendingSlot),
	}
}

func (s *PendingStore) Put(_ context.Context, sessionID string, result domain.FinalResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[sessionID] = s.slotLocked(result)
	return nil
}

func (s *PendingStore) PutIfEmpty(_ context.Context, sessionID string, result domain.FinalResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.liveLocked(sessionID); ok {
		return false, nil
	}
	s.slots[sessionID] = s.slotLocked(result)
	return true, nil
}

func (s *PendingStore) Peek(_ context.Context, sessionID string) (domain.FinalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.liveLocked(sessionID)
	if !ok {
		return domain.FinalResult{}, domain.ErrNoPendingResult
	}
	return slot.result, nil
}

func (s *PendingStore) Take(_ context.Context, sessionID string) (domain.FinalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.liveLocked(sessionID)
	if !ok {
		return domain.FinalResult{}, domain.ErrNoPendingResult
	}
	delete(s.slots, sessionID)
	return slot.result, nil
}

func (s *PendingStore) slotLocked(result domain.FinalResult) pendingSlot {
	slot := pendingSlot{result: result}
	if s.ttl > 0 {
		slot.expiresAt = s.clock().Add(s.ttl)
	}
	return slot
}

func (s *PendingStore) liveLocked(sessionID string) (pendingSlot, bool) {
	slot, ok := s.slots[sessionID]
	if !ok {
		return pendingSlot{}, false
	}
	if !slot.expiresAt.IsZero() && !slot.expiresAt.After(s.clock()) {
		delete(s.slots, sessionID)
		return pendingSlot{}, false
	}
	return slot, true
}
