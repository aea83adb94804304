// Package revocation tracks bearer tokens that were invalidated before their
// natural expiry (logout, account deactivation).
//
// An entry is retained at most until the revoked token's own expiry: keeping
// it longer is wasted memory, dropping it earlier would let a dead but still
// cryptographically valid token back in. The in-process MemoryStore is the
// default; RedisStore offers the same contract shared across replicas.
package revocation

import (
	"context"
	"time"
)

// Store is the revocation list consulted on every token validation.
// Implementations must be safe for concurrent use.
type Store interface {
	// Revoke records the token as invalid until expiresAt. Revoking an
	// already-expired token is a no-op: it carries no residual risk.
	// Revoking the same token twice is idempotent.
	Revoke(ctx context.Context, token string, expiresAt time.Time) error

	// IsRevoked reports whether the token is currently revoked.
	IsRevoked(ctx context.Context, token string) bool
}
