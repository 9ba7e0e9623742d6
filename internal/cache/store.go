// Package cache provides the key-value stores backing the engine's
// read-through cache. Entries are reclaimed by TTL expiry only; there is
// no invalidation on writes, so callers of cached list endpoints must
// pick TTLs that match how stale their reads may be, or bypass the cache.
package cache

import (
	"context"
	"time"
)

// Store is the injected cache capability. Implementations must be safe
// for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	Close() error
}
