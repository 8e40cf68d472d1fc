// Package security holds the process-local stores backing the auth flows:
// the failed-login lockout tracker, the WebAuthn challenge store, and the
// password-reset token store. All three are plain mutex-guarded maps behind
// small interfaces so a shared cache can replace them for multi-instance
// deployments without touching call sites.
package security

import (
	"sync"
	"time"
)

const (
	DefaultMaxAttempts  = 5
	DefaultLockDuration = 15 * time.Minute
	DefaultIdleEviction = 60 * time.Minute
)

// LockoutStore tracks consecutive failed login attempts per identifier.
type LockoutStore interface {
	// Check is side-effect-free: reports whether the identifier is locked
	// and how long the lock has left.
	Check(identifier string) (locked bool, remaining time.Duration)
	// RecordFailure increments the counter. It returns attempts remaining
	// before lockout, or 0 together with the lock duration once locked.
	RecordFailure(identifier string) (attemptsLeft int, lockedFor time.Duration)
	// Reset clears state unconditionally; called on any successful proof
	// of identity.
	Reset(identifier string)
	// Sweep evicts idle records and returns how many were removed. Memory
	// liveness only, not a security boundary.
	Sweep() int
}

type attemptRecord struct {
	count       int
	lastAttempt time.Time
	lockedUntil time.Time
}

func (r *attemptRecord) locked(now time.Time) bool {
	return !r.lockedUntil.IsZero() && now.Before(r.lockedUntil)
}

type lockoutTracker struct {
	mu           sync.Mutex
	attempts     map[string]*attemptRecord
	maxAttempts  int
	lockDuration time.Duration
	idleEviction time.Duration
}

func NewLockoutTracker(maxAttempts int, lockDuration, idleEviction time.Duration) LockoutStore {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if lockDuration <= 0 {
		lockDuration = DefaultLockDuration
	}
	if idleEviction <= 0 {
		idleEviction = DefaultIdleEviction
	}
	return &lockoutTracker{
		attempts:     make(map[string]*attemptRecord),
		maxAttempts:  maxAttempts,
		lockDuration: lockDuration,
		idleEviction: idleEviction,
	}
}

func (l *lockoutTracker) Check(identifier string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, exists := l.attempts[identifier]
	if !exists {
		return false, 0
	}
	now := time.Now()
	if record.locked(now) {
		return true, record.lockedUntil.Sub(now)
	}
	return false, 0
}

func (l *lockoutTracker) RecordFailure(identifier string) (int, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	record, exists := l.attempts[identifier]
	if !exists {
		record = &attemptRecord{}
		l.attempts[identifier] = record
	}

	// An expired lock starts a fresh counting window.
	if !record.lockedUntil.IsZero() && !record.locked(now) {
		record.count = 0
		record.lockedUntil = time.Time{}
	}

	record.count++
	record.lastAttempt = now

	if record.count >= l.maxAttempts {
		record.lockedUntil = now.Add(l.lockDuration)
		return 0, l.lockDuration
	}
	return l.maxAttempts - record.count, 0
}

func (l *lockoutTracker) Reset(identifier string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, identifier)
}

func (l *lockoutTracker) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	evicted := 0
	for id, record := range l.attempts {
		if !record.locked(now) && now.Sub(record.lastAttempt) > l.idleEviction {
			delete(l.attempts, id)
			evicted++
		}
	}
	return evicted
}
