package models

import "time"

// EmailVerification is one record per issued verification token. Only the
// SHA-256 digest of the token is stored (the digest is also the lookup key);
// the plaintext goes out by email once.
type EmailVerification struct {
	ID        int64     `json:"id"`
	AccountID string    `json:"account_id"`
	TokenHash string    `json:"-"`
	SentAt    time.Time `json:"sent_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Redeemed  bool      `json:"redeemed"`
}
