package adminapi

import (
	"crypto/subtle"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/lewisedginton/bot_manager_console/pkg/prefixedid"
)

// verifyPassword checks a submitted login password against the API key.
// Clients send either a bcrypt hash of the key or the key itself. With no
// API key configured every password is accepted.
//
// A bcrypt hash of the key is a bearer credential: any hash once sent stays
// valid for as long as the key does, so the client-side salt does not keep a
// captured hash from being replayed. Serve the API over TLS and rotate the
// key to revoke captured hashes.
func verifyPassword(apiKey, submitted string) bool {
	if apiKey == "" {
		return true
	}
	if isBcryptHash(submitted) {
		return bcrypt.CompareHashAndPassword([]byte(submitted), []byte(apiKey)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(apiKey), []byte(submitted)) == 1
}

func isBcryptHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// tokenPrefix tags session tokens so foreign cookies are rejected unread.
const tokenPrefix = "sess"

// sessions is an in-memory session table keyed by opaque token.
type sessions struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	expires map[string]time.Time
}

func newSessions(ttl time.Duration) *sessions {
	return &sessions{ttl: ttl, now: time.Now, expires: make(map[string]time.Time)}
}

func (s *sessions) create() (string, time.Time) {
	token := prefixedid.New(tokenPrefix).String()
	expires := s.now().Add(s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	s.expires[token] = expires
	return token, expires
}

func (s *sessions) valid(token string) bool {
	if !prefixedid.HasPrefix(token, tokenPrefix) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expires, ok := s.expires[token]
	if !ok {
		return false
	}
	if !s.now().Before(expires) {
		delete(s.expires, token)
		return false
	}
	return true
}

func (s *sessions) revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expires, token)
}

func (s *sessions) pruneLocked() {
	now := s.now()
	for token, expires := range s.expires {
		if !now.Before(expires) {
			delete(s.expires, token)
		}
	}
}
