package auth

import (
	"context"
	"sync"
	"time"
)

// MemorySessionStore keeps sessions in process memory.
type MemorySessionStore struct {
	mu  sync.RWMutex
	m   map[string]Session
	now func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{m: make(map[string]Session), now: time.Now}
}

func (s *MemorySessionStore) Put(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked()
	s.m[sess.ID] = sess
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, id string) (Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.m[id]
	if !ok || sess.Expired(s.now()) {
		return Session{}, false, nil
	}
	return sess, true, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (s *MemorySessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

// sweepLocked drops expired sessions; callers hold the write lock.
func (s *MemorySessionStore) sweepLocked() {
	now := s.now()
	for id, sess := range s.m {
		if sess.Expired(now) {
			delete(s.m, id)
		}
	}
}
