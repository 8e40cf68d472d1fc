package security

import (
	"sync"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
)

const DefaultChallengeTTL = 5 * time.Minute

// ChallengeStore holds pending WebAuthn ceremony state. Entries are read-once:
// Take removes the entry, so a replayed verification finds nothing and fails
// closed. Keys combine purpose and subject (e.g. "register:<account id>",
// "login:discoverable:<nonce>").
type ChallengeStore interface {
	Put(key string, session *webauthn.SessionData)
	Take(key string) (*webauthn.SessionData, bool)
	Sweep() int
}

type challengeEntry struct {
	session   *webauthn.SessionData
	expiresAt time.Time
}

type challengeStore struct {
	mu      sync.Mutex
	entries map[string]challengeEntry
	ttl     time.Duration
}

func NewChallengeStore(ttl time.Duration) ChallengeStore {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &challengeStore{
		entries: make(map[string]challengeEntry),
		ttl:     ttl,
	}
}

func (s *challengeStore) Put(key string, session *webauthn.SessionData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = challengeEntry{
		session:   session,
		expiresAt: time.Now().Add(s.ttl),
	}
}

func (s *challengeStore) Take(key string) (*webauthn.SessionData, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return nil, false
	}
	delete(s.entries, key)
	if time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.session, true
}

func (s *challengeStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	evicted := 0
	for key, entry := range s.entries {
		if now.After(entry.expiresAt) {
			delete(s.entries, key)
			evicted++
		}
	}
	return evicted
}
