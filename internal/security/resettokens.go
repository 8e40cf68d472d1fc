package security

import (
	"sync"
	"time"
)

const DefaultResetTokenTTL = 1 * time.Hour

// ResetGrant is what a redeemed forgot-password token proves.
type ResetGrant struct {
	AccountID string
	Email     string
	FullName  string
	ExpiresAt time.Time
}

// ResetTokenStore maps opaque reset tokens to grants. Take is read-once:
// a token redeems exactly one password reset.
type ResetTokenStore interface {
	Put(token string, grant ResetGrant)
	Take(token string) (ResetGrant, bool)
	Sweep() int
}

type resetTokenStore struct {
	mu     sync.Mutex
	grants map[string]ResetGrant
}

func NewResetTokenStore() ResetTokenStore {
	return &resetTokenStore{grants: make(map[string]ResetGrant)}
}

func (s *resetTokenStore) Put(token string, grant ResetGrant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grants[token] = grant
}

func (s *resetTokenStore) Take(token string) (ResetGrant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grant, exists := s.grants[token]
	if !exists {
		return ResetGrant{}, false
	}
	delete(s.grants, token)
	if time.Now().After(grant.ExpiresAt) {
		return ResetGrant{}, false
	}
	return grant, true
}

func (s *resetTokenStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	evicted := 0
	for token, grant := range s.grants {
		if now.After(grant.ExpiresAt) {
			delete(s.grants, token)
			evicted++
		}
	}
	return evicted
}
