package models

import "time"

// ActivityEntry is one audit record. Writes are best-effort: a failed insert
// must never abort the flow that produced it.
type ActivityEntry struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id,omitempty"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
