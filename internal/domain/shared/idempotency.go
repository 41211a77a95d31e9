package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers delivery keys so that redelivered webhooks are
// enqueued only once within the TTL
type IdempotencyStore interface {
	// MarkProcessed records key with a TTL.
	// Returns true if the key was newly recorded, false if it was already seen
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been recorded
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Forget removes a key so a failed delivery can be accepted again
	Forget(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}
