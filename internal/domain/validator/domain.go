package validator

import "time"

// Validator is the persisted identity of a peer. Identity is keyed by the
// ed25519 public key, not by any transient connection, so a peer that
// reconnects with the same key gets the same record back.
type Validator struct {
	ID            int64     `json:"id"`
	PublicKey     string    `json:"public_key"`
	IP            string    `json:"ip"`
	PendingPayout int64     `json:"pending_payout"`
	CreatedAt     time.Time `json:"created_at"`
}
