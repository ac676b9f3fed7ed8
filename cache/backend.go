// Package cache implements the tiered key/value cache: a mandatory
// durable SQLite tier plus an optional fast Redis tier, composed
// behind one fail-soft interface.
package cache

import (
	"context"
	"time"
)

// Backend is one cache tier. Implementations must provide per-key
// atomic operations safe for concurrent use; multi-key transactions
// are not required.
type Backend interface {
	// Get returns the stored value and whether the key was present
	// (expired entries count as absent).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores the value. ttl == 0 means no expiry where the tier
	// supports it.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether the key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Count returns the number of stored entries, for stats reporting.
	Count(ctx context.Context) (int64, error)

	// Flush removes every entry in the tier.
	Flush(ctx context.Context) error
}
