// Package cache defines the port interface for the diagnostics cache.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching. The diagnostics layer
// stores JSON-encoded diagnostic slices keyed by "language|uri"; entries are
// replaced wholesale on every write and removed when the owning session
// stops. A miss is never an error: callers treat it as "no cached value".
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
