package memory

import (
	"sync"

	"rvl-week-service/internal/quiz"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*quiz.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*quiz.Session),
	}
}

// Put registers session under key and returns the session it replaced, if any.
func (s *SessionStore) Put(key string, session *quiz.Session) *quiz.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.sessions[key]
	s.sessions[key] = session
	return previous
}

func (s *SessionStore) Get(key string) (*quiz.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	return session, ok
}

// Delete forgets key only while it still maps to session, so a replaced
// session cannot evict its successor.
func (s *SessionStore) Delete(key string, session *quiz.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[key]; !ok || current != session {
		return false
	}
	delete(s.sessions, key)
	return true
}
