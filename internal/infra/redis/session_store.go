package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"rvl-week-service/internal/quiz"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Notes:
//   - Sessions own a live timer, so they stay in a local map; an instance
//     only ever drives the sessions its own websockets opened.
//   - Redis marks which instance a (user, day) session lives on, so an
//     operator can see live quizzes across replicas.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	instance string
	mu       sync.RWMutex
	sessions map[string]*quiz.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, instance string) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		instance: instance,
		sessions: make(map[string]*quiz.Session),
	}
}

func (s *SessionStore) Put(key string, session *quiz.Session) *quiz.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.sessions[key]
	s.sessions[key] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(key), s.marker(session), s.ttl).Err()
	return previous
}

// Get returns the local session and keeps its marker alive while it is in use.
func (s *SessionStore) Get(key string) (*quiz.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	if ok {
		_ = s.client.Expire(context.Background(), s.key(key), s.ttl).Err()
	}
	return session, ok
}

func (s *SessionStore) Delete(key string, session *quiz.Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.sessions[key]; !ok || current != session {
		return false
	}
	delete(s.sessions, key)
	// another replica may have taken over the key; only clear our own marker
	_ = releaseMarker.Run(context.Background(), s.client, []string{s.key(key)}, s.marker(session)).Err()
	return true
}

var releaseMarker = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (s *SessionStore) marker(session *quiz.Session) string {
	return s.instance + "/" + session.ID()
}

func (s *SessionStore) key(key string) string {
	return "quiz:session:" + key
}
