package models

import (
	"time"

	"github.com/google/uuid"
)

// Agent represents a registered AI agent. The API key itself is never
// stored, only its SHA-256 hash.
type Agent struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	APIKeyHash  string    `json:"-"`
	NostrPubkey string    `json:"nostr_pubkey,omitempty"`
	ColonyID    string    `json:"colony_id,omitempty"`
	TrustScore  int       `json:"trust_score"`
	CreatedAt   time.Time `json:"created_at"`
}
