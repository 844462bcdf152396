package web

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessions holds authenticated browser sessions in memory
type sessions struct {
	mu      sync.Mutex
	ttl     time.Duration
	tokens  map[string]time.Time // token -> expiry
	nowFunc func() time.Time
}

func newSessions(ttl time.Duration) *sessions {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &sessions{
		ttl:     ttl,
		tokens:  make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

// create issues a new session token
func (s *sessions) create() string {
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep()
	s.tokens[token] = s.nowFunc().Add(s.ttl)
	return token
}

// valid reports whether token is live and extends it
func (s *sessions) valid(token string) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.tokens[token]
	if !ok {
		return false
	}
	now := s.nowFunc()
	if now.After(expiry) {
		delete(s.tokens, token)
		return false
	}
	s.tokens[token] = now.Add(s.ttl)
	return true
}

func (s *sessions) revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// sweep drops expired tokens. Caller holds mu.
func (s *sessions) sweep() {
	now := s.nowFunc()
	for token, expiry := range s.tokens {
		if now.After(expiry) {
			delete(s.tokens, token)
		}
	}
}

func (s *sessions) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
