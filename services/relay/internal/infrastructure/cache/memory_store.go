package cache

import (
	"context"
	"sync"
	"time"
)

type pendingList struct {
	messages  []string
	expiresAt time.Time
}

// MemoryPendingStore is the single-process PendingStore used when Redis is
// disabled. Expired sessions are dropped lazily and by Sweep.
type MemoryPendingStore struct {
	mu       sync.Mutex
	sessions map[string]*pendingList
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryPendingStore(ttl time.Duration) *MemoryPendingStore {
	return &MemoryPendingStore{
		sessions: make(map[string]*pendingList),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryPendingStore) Push(ctx context.Context, sessionID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.sessions[sessionID]
	if !ok || s.expired(list) {
		list = &pendingList{}
		s.sessions[sessionID] = list
	}
	list.messages = append(list.messages, message)
	if s.ttl > 0 {
		list.expiresAt = s.now().Add(s.ttl)
	}
	return nil
}

func (s *MemoryPendingStore) Pop(ctx context.Context, sessionID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.sessions[sessionID]
	if !ok {
		return "", false, nil
	}
	if s.expired(list) {
		delete(s.sessions, sessionID)
		return "", false, nil
	}

	msg := list.messages[0]
	list.messages = list.messages[1:]
	if len(list.messages) == 0 {
		delete(s.sessions, sessionID)
	}
	return msg, true, nil
}

// Sweep drops every expired session and returns how many were removed.
func (s *MemoryPendingStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, list := range s.sessions {
		if s.expired(list) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *MemoryPendingStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *MemoryPendingStore) expired(list *pendingList) bool {
	return !list.expiresAt.IsZero() && !s.now().Before(list.expiresAt)
}
