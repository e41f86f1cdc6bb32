// Package cache implements the two-tier caching layer: a bounded in-process
// TTL store (LocalCache), a liveness-tracked Redis wrapper (RemoteCache), and
// the Coordinator façade that prefers the remote tier and degrades to the
// local tier when Redis is unreachable. Values are byte slices; typed callers
// encode via the JSON helpers on Coordinator.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key does not exist or has expired.
var ErrNotFound = errors.New("cache: key not found")

// ErrInvalidTTL is returned by Set when the TTL is not positive.
var ErrInvalidTTL = errors.New("cache: ttl must be positive")

// Store abstracts a key-value cache tier with TTL support.
// All operations are safe for concurrent use.
type Store interface {
	// Get retrieves the value associated with key.
	// Returns ErrNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with the given TTL. TTL must be positive.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. It is not an error to delete a key that
	// does not exist.
	Delete(ctx context.Context, key string) error

	// DeletePattern removes every key matching the glob pattern, where
	// '*' matches any run of characters. All other characters match
	// literally.
	DeletePattern(ctx context.Context, pattern string) error

	// Exists reports whether the key exists and has not expired.
	Exists(ctx context.Context, key string) (bool, error)

	// Increment atomically increments the integer counter stored at key
	// and returns the new value. The TTL is applied only when the counter
	// is created (post-increment value of 1), so the window does not
	// slide on every call.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Ping verifies the tier is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the tier.
	Close() error
}
