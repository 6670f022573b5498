package auth

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. It is the default backend
// and the one the tests use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]RefreshSession
	byHash   map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]RefreshSession),
		byHash:   make(map[string]string),
	}
}

func (s *MemoryStore) Save(_ context.Context, session RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	s.byHash[session.TokenHash] = session.ID
	return nil
}

func (s *MemoryStore) FindByTokenHash(_ context.Context, tokenHash string) (RefreshSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[tokenHash]
	if !ok {
		return RefreshSession{}, false, nil
	}
	session, ok := s.sessions[id]
	return session, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(id)
	return nil
}

func (s *MemoryStore) DeleteByUser(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if session.UserID == userID {
			s.deleteLocked(id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, session := range s.sessions {
		if session.Expired(now) {
			s.deleteLocked(id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) deleteLocked(id string) {
	session, ok := s.sessions[id]
	if !ok {
		return
	}
	delete(s.sessions, id)
	delete(s.byHash, session.TokenHash)
}
