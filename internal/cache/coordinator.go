package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/davrx/cachefront/internal/logging"
	"github.com/davrx/cachefront/internal/metrics"
)

// DefaultTTL is applied by Coordinator.Set when the caller passes a
// non-positive TTL.
const DefaultTTL = 300 * time.Second

// Coordinator is the cache façade. It prefers the remote tier when its
// availability flag is up and falls back to the local tier on any remote
// failure. Fallback is not dual-write: a value written while Redis is down
// lives only in the local tier and is not reconciled after recovery; the
// entry's TTL bounds the staleness window. Coordinator methods never return
// cache-layer errors — every failure degrades to the local tier or to a
// miss, and is logged.
type Coordinator struct {
	remote     *RemoteCache // nil in local-only deployments
	local      *LocalCache
	defaultTTL time.Duration
}

// NewCoordinator builds a coordinator over the two tiers. remote may be nil,
// in which case every operation uses the local tier directly.
func NewCoordinator(remote *RemoteCache, local *LocalCache, defaultTTL time.Duration) *Coordinator {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &Coordinator{remote: remote, local: local, defaultTTL: defaultTTL}
}

// remoteUp re-checks availability immediately before each operation; the
// flag may have flipped since the caller's last call.
func (c *Coordinator) remoteUp() bool {
	return c.remote != nil && c.remote.Available()
}

// RemoteAvailable reports whether the remote tier is currently in use.
func (c *Coordinator) RemoteAvailable() bool {
	return c.remoteUp()
}

// Get returns the cached value and true on a hit in either tier.
func (c *Coordinator) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.remoteUp() {
		val, err := c.remote.Get(ctx, key)
		switch {
		case err == nil:
			metrics.RecordCacheHit("remote")
			return val, true
		case err == ErrNotFound:
			metrics.RecordCacheMiss("remote")
			return nil, false
		default:
			c.fallback("get", key, err)
		}
	}
	val, err := c.local.Get(ctx, key)
	if err != nil {
		metrics.RecordCacheMiss("local")
		return nil, false
	}
	metrics.RecordCacheHit("local")
	return val, true
}

// Set stores value under key. A non-positive ttl selects the default TTL.
func (c *Coordinator) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if c.remoteUp() {
		err := c.remote.Set(ctx, key, value, ttl)
		if err == nil {
			return
		}
		c.fallback("set", key, err)
	}
	if err := c.local.Set(ctx, key, value, ttl); err != nil {
		logging.Op().Warn("local cache set failed", "key", key, "error", err)
	}
}

// Delete removes key from whichever tier is active. The key is also removed
// from the local tier when the remote delete succeeds, so a stale local copy
// written during an earlier outage cannot resurface.
func (c *Coordinator) Delete(ctx context.Context, key string) {
	if c.remoteUp() {
		if err := c.remote.Delete(ctx, key); err != nil {
			c.fallback("delete", key, err)
		}
	}
	_ = c.local.Delete(ctx, key)
}

// DeletePattern removes every key matching the glob pattern from the active
// tier. The local tier is always swept as well, for the same reason as
// Delete.
func (c *Coordinator) DeletePattern(ctx context.Context, pattern string) {
	if c.remoteUp() {
		if err := c.remote.DeletePattern(ctx, pattern); err != nil {
			c.fallback("delete_pattern", pattern, err)
		}
	}
	if err := c.local.DeletePattern(ctx, pattern); err != nil {
		logging.Op().Warn("local cache pattern delete failed", "pattern", pattern, "error", err)
	}
}

// Exists reports whether key is present in the active tier.
func (c *Coordinator) Exists(ctx context.Context, key string) bool {
	if c.remoteUp() {
		ok, err := c.remote.Exists(ctx, key)
		if err == nil {
			return ok
		}
		c.fallback("exists", key, err)
	}
	ok, err := c.local.Exists(ctx, key)
	if err != nil {
		return false
	}
	return ok
}

// Increment atomically increments the counter at key and returns the new
// value; the TTL applies only on counter creation. On remote failure the
// count restarts on the local tier's mutex-guarded counters — distributed
// continuity is traded for availability, matching the staleness trade-off
// of Set.
func (c *Coordinator) Increment(ctx context.Context, key string, ttl time.Duration) int64 {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if c.remoteUp() {
		n, err := c.remote.Increment(ctx, key, ttl)
		if err == nil {
			return n
		}
		c.fallback("increment", key, err)
	}
	n, err := c.local.Increment(ctx, key, ttl)
	if err != nil {
		logging.Op().Warn("local cache increment failed", "key", key, "error", err)
		return 0
	}
	return n
}

// GetJSON unmarshals the cached value at key into dest and returns true on
// a hit. A payload that fails to unmarshal is treated as a miss and the
// corrupt entry is dropped.
func (c *Coordinator) GetJSON(ctx context.Context, key string, dest any) bool {
	data, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		logging.Op().Error("corrupt cache payload, treating as miss", "key", key, "error", err)
		c.Delete(ctx, key)
		return false
	}
	return true
}

// SetJSON marshals v and stores it under key. A marshal failure is logged
// and the entry is simply not cached.
func (c *Coordinator) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Op().Error("cache payload marshal failed", "key", key, "error", err)
		return
	}
	c.Set(ctx, key, data, ttl)
}

// GenerateKey joins a prefix and parts into a colon-separated cache key.
func (c *Coordinator) GenerateKey(prefix string, parts ...string) string {
	return Key(prefix, parts...)
}

// Key joins a prefix and parts into a colon-separated cache key.
func Key(prefix string, parts ...string) string {
	if len(parts) == 0 {
		return prefix
	}
	return prefix + ":" + strings.Join(parts, ":")
}

func (c *Coordinator) fallback(op, key string, err error) {
	metrics.RecordRemoteFallback(op)
	logging.Op().Warn("remote cache failed, falling back to local tier",
		"op", op, "key", key, "error", err)
}

// Ping reports reachability of the active tier.
func (c *Coordinator) Ping(ctx context.Context) error {
	if c.remote != nil {
		if err := c.remote.Ping(ctx); err == nil {
			return nil
		}
	}
	return c.local.Ping(ctx)
}

// Close releases both tiers.
func (c *Coordinator) Close() error {
	var err error
	if c.remote != nil {
		err = c.remote.Close()
	}
	if cerr := c.local.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
