package session

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"
)

type entry struct {
	session   *Session
	expiresAt time.Time
}

// Store maps opaque cookie tokens to in-memory sessions with TTL expiry.
// Nothing is persisted; a restart discards every session.
type Store struct {
	mu    sync.Mutex
	ttl   time.Duration
	items map[string]entry
}

// NewStore constructs a session store with the given TTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Store{
		ttl:   ttl,
		items: make(map[string]entry),
	}
}

// Create registers a fresh session and returns its token.
func (s *Store) Create() (string, *Session) {
	token := randomToken(32)
	sess := &Session{}
	s.mu.Lock()
	s.items[token] = entry{session: sess, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	slog.Info("Session created", "ttl", s.ttl)
	return token, sess
}

// Get returns the session for a token, expiring it when past its TTL.
func (s *Store) Get(token string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[token]
	if !ok {
		return nil, false
	}
	if time.Now().After(item.expiresAt) {
		delete(s.items, token)
		slog.Info("Session expired")
		return nil, false
	}
	return item.session, true
}

// Delete removes a session.
func (s *Store) Delete(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, token)
}

func randomToken(size int) string {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
