package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/davrx/cachefront/internal/logging"
)

const (
	// DefaultRemoteTimeout bounds each remote operation so a dead Redis
	// degrades to the local tier quickly instead of stalling the caller.
	DefaultRemoteTimeout = 250 * time.Millisecond

	// probeInterval is the minimum time between liveness probes while
	// the remote tier is marked unavailable.
	probeInterval = 5 * time.Second

	// scanBatch is the COUNT hint for SCAN during pattern deletion.
	scanBatch = 200
)

// RemoteCacheConfig holds configuration for the Redis-backed tier.
type RemoteCacheConfig struct {
	Addr      string // e.g. "localhost:6379"
	Password  string
	DB        int
	KeyPrefix string        // namespacing prefix (default "cachefront:")
	OpTimeout time.Duration // per-operation deadline (default 250ms)
}

// RemoteCache implements Store backed by Redis and tracks its own liveness.
// The availability flag flips to true on a successful connect or probe and
// to false whenever an operation fails with a transport error; the
// Coordinator reads it before every remote attempt.
type RemoteCache struct {
	client    *redis.Client
	prefix    string
	opTimeout time.Duration

	available     atomic.Bool
	probeMu       sync.Mutex
	lastProbeTime atomic.Value // time.Time
}

// NewRemoteCache creates a Redis-backed cache tier. The connection is
// established lazily; the OnConnect hook marks the tier available as soon
// as a connection succeeds.
func NewRemoteCache(cfg RemoteCacheConfig) *RemoteCache {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "cachefront:"
	}
	opTimeout := cfg.OpTimeout
	if opTimeout <= 0 {
		opTimeout = DefaultRemoteTimeout
	}

	r := &RemoteCache{
		prefix:    prefix,
		opTimeout: opTimeout,
	}
	r.lastProbeTime.Store(time.Time{})

	r.client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		OnConnect: func(_ context.Context, _ *redis.Conn) error {
			r.available.Store(true)
			return nil
		},
	})
	return r
}

// NewRemoteCacheFromClient wraps an existing client, mainly for tests.
func NewRemoteCacheFromClient(client *redis.Client, prefix string) *RemoteCache {
	if prefix == "" {
		prefix = "cachefront:"
	}
	r := &RemoteCache{
		client:    client,
		prefix:    prefix,
		opTimeout: DefaultRemoteTimeout,
	}
	r.lastProbeTime.Store(time.Time{})
	return r
}

// Available reports whether the remote tier is believed reachable. While
// unavailable, a call throttled to once per probeInterval pings Redis in
// the background to restore the flag once connectivity recovers.
func (r *RemoteCache) Available() bool {
	if r.available.Load() {
		return true
	}
	if last, ok := r.lastProbeTime.Load().(time.Time); ok && time.Since(last) > probeInterval {
		go r.probe()
	}
	return false
}

func (r *RemoteCache) probe() {
	if !r.probeMu.TryLock() {
		return // another goroutine is already probing
	}
	defer r.probeMu.Unlock()

	r.lastProbeTime.Store(time.Now())
	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err == nil {
		logging.Op().Info("remote cache recovered, resuming remote tier")
		r.available.Store(true)
	}
}

// markDown flips the availability flag off after a transport failure.
func (r *RemoteCache) markDown() {
	if r.available.CompareAndSwap(true, false) {
		r.lastProbeTime.Store(time.Now())
	}
}

func (r *RemoteCache) key(k string) string {
	return r.prefix + k
}

// opCtx derives a bounded context for a single remote operation so caller
// deadlines still apply but an absent deadline cannot block indefinitely.
func (r *RemoteCache) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.opTimeout)
}

func (r *RemoteCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		r.markDown()
		return nil, err
	}
	return val, nil
}

func (r *RemoteCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		r.markDown()
		return err
	}
	return nil
}

func (r *RemoteCache) Delete(ctx context.Context, key string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.markDown()
		return err
	}
	return nil
}

// DeletePattern enumerates matching keys with SCAN and bulk-deletes them.
// The pattern is applied under the key prefix.
func (r *RemoteCache) DeletePattern(ctx context.Context, pattern string) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	match := redisPattern(r.prefix) + redisPattern(pattern)
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			r.markDown()
			return err
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				r.markDown()
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (r *RemoteCache) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	n, err := r.client.Exists(ctx, r.key(key)).Result()
	if err != nil {
		r.markDown()
		return false, err
	}
	return n > 0, nil
}

// Increment runs INCR, followed by EXPIRE only when the post-increment
// value is 1, so the TTL is set exactly once per counter lifetime.
func (r *RemoteCache) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, ErrInvalidTTL
	}
	ctx, cancel := r.opCtx(ctx)
	defer cancel()

	k := r.key(key)
	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		r.markDown()
		return 0, err
	}
	if n == 1 {
		if err := r.client.Expire(ctx, k, ttl).Err(); err != nil {
			r.markDown()
			return n, err
		}
	}
	return n, nil
}

func (r *RemoteCache) Ping(ctx context.Context) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.markDown()
		return err
	}
	r.available.Store(true)
	return nil
}

func (r *RemoteCache) Close() error {
	r.available.Store(false)
	return r.client.Close()
}
