// Package cache holds short-lived copies of expensive read-side aggregations.
package cache

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long a cached aggregation stays fresh.
const DefaultTTL = 5 * time.Minute

// ErrClosed is returned by a cache that has been shut down.
var ErrClosed = errors.New("cache: closed")

// Cache stores JSON-encodable values under string keys for a fixed TTL.
// Expired entries behave exactly like missing ones.
type Cache interface {
	// Get decodes the value under key into dst and reports whether it was present.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any) error
	Invalidate(ctx context.Context, key string) error
}
