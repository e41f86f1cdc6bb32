// Package queryopt accelerates paginated queries by fusing result caching
// with concurrent page/count fetches and slow-operation detection. The
// optimizer is transparent about correctness: errors from the underlying
// data source propagate unchanged, while every cache-side failure degrades
// to recomputation.
package queryopt

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/davrx/cachefront/internal/cache"
	"github.com/davrx/cachefront/internal/logging"
	"github.com/davrx/cachefront/internal/metrics"
	"github.com/davrx/cachefront/internal/observability"
)

const (
	// DefaultMaxLimit caps the page size a caller may request.
	DefaultMaxLimit = 100

	// DefaultLimit is used when the caller passes a non-positive limit.
	DefaultLimit = 10

	// DefaultSlowThreshold is the wall-clock duration above which a
	// successful query is logged for visibility.
	DefaultSlowThreshold = time.Second

	// DefaultCacheTTL applies to stored query results when Options does
	// not override it.
	DefaultCacheTTL = 300 * time.Second

	// storeWorkers bounds concurrent background cache writes.
	storeWorkers = 16
)

// PagedFetcher is the data-source capability the optimizer consumes: a page
// fetch plus a matching total count. Implementations are expected to honour
// ctx cancellation.
type PagedFetcher[T any] interface {
	FetchPage(ctx context.Context, offset, limit int) ([]T, error)
	FetchCount(ctx context.Context) (int64, error)
}

// PageResult is an optimized query's outcome.
type PageResult[T any] struct {
	Data  []T   `json:"data"`
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Limit int   `json:"limit"`

	// FromCache reports whether the result was served without touching
	// the data source. Not persisted.
	FromCache bool `json:"-"`
}

// Options controls a single optimized query.
type Options struct {
	Entity    string // logical entity name, e.g. "Job"
	Operation string // logical operation, e.g. "getJobs"

	CacheKey     string        // empty disables caching for this call
	DisableCache bool          // force-skip the cache even with a key
	CacheTTL     time.Duration // default DefaultCacheTTL
	MaxLimit     int           // default DefaultMaxLimit
}

func (o Options) cacheable() bool {
	return !o.DisableCache && o.CacheKey != ""
}

// Optimizer wraps a Coordinator with query-level concerns: key-based result
// caching, duplicate-miss suppression, slow-query logging, and bounded
// background cache writes.
type Optimizer struct {
	coord         *cache.Coordinator
	slowThreshold time.Duration
	flight        singleflight.Group
	storeSem      chan struct{}
}

// New creates an optimizer over the given coordinator.
// slowThreshold <= 0 selects DefaultSlowThreshold.
func New(coord *cache.Coordinator, slowThreshold time.Duration) *Optimizer {
	if slowThreshold <= 0 {
		slowThreshold = DefaultSlowThreshold
	}
	return &Optimizer{
		coord:         coord,
		slowThreshold: slowThreshold,
		storeSem:      make(chan struct{}, storeWorkers),
	}
}

// Coordinator exposes the underlying cache façade, mainly so write paths can
// share the invalidation surface.
func (o *Optimizer) Coordinator() *cache.Coordinator {
	return o.coord
}

// Paginated executes a paginated query through the optimizer. The requested
// limit is clamped to MaxLimit before the offset is computed. On a cache hit
// the data source is not touched. On a miss, FetchPage and FetchCount run
// concurrently; the first error cancels the other fetch and propagates to
// the caller unchanged, and nothing is cached. Concurrent misses for the
// same cache key are collapsed into a single execution.
func Paginated[T any](ctx context.Context, o *Optimizer, fetcher PagedFetcher[T], page, limit int, opts Options) (*PageResult[T], error) {
	maxLimit := opts.MaxLimit
	if maxLimit <= 0 {
		maxLimit = DefaultMaxLimit
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	offset := (page - 1) * limit

	ctx, span := observability.StartSpan(ctx, "queryopt.paginated",
		observability.AttrEntity.String(opts.Entity),
		observability.AttrOperation.String(opts.Operation),
		attribute.Int("query.page", page),
		attribute.Int("query.limit", limit),
	)
	defer span.End()

	if opts.cacheable() {
		var cached PageResult[T]
		if o.coord.GetJSON(ctx, opts.CacheKey, &cached) {
			cached.FromCache = true
			span.SetAttributes(observability.AttrFromCache.Bool(true))
			metrics.ObserveQueryDuration(opts.Entity, opts.Operation, 0, true)
			logging.Queries().Log(&logging.QueryLog{
				Entity:    opts.Entity,
				Operation: opts.Operation,
				CacheKey:  opts.CacheKey,
				Page:      page,
				Limit:     limit,
				Total:     cached.Total,
				FromCache: true,
			})
			return &cached, nil
		}
	}

	run := func() (*PageResult[T], error) {
		return fetchBoth(ctx, o, fetcher, page, limit, offset, opts)
	}

	var result *PageResult[T]
	var err error
	if opts.cacheable() {
		// Collapse concurrent misses on the same key into one execution.
		var v any
		v, err, _ = o.flight.Do(opts.CacheKey, func() (any, error) {
			return run()
		})
		if err == nil {
			result = v.(*PageResult[T])
		}
	} else {
		result, err = run()
	}
	if err != nil {
		observability.SetSpanError(span, err)
		return nil, err
	}
	return result, nil
}

// fetchBoth runs the page and count fetches concurrently, records timing,
// and schedules the cache write on success.
func fetchBoth[T any](ctx context.Context, o *Optimizer, fetcher PagedFetcher[T], page, limit, offset int, opts Options) (*PageResult[T], error) {
	start := time.Now()

	var data []T
	var total int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		data, err = fetcher.FetchPage(gctx, offset, limit)
		return err
	})
	g.Go(func() error {
		var err error
		total, err = fetcher.FetchCount(gctx)
		return err
	})
	err := g.Wait()
	durationMs := time.Since(start).Milliseconds()

	slow := err == nil && time.Since(start) > o.slowThreshold

	entry := &logging.QueryLog{
		Entity:     opts.Entity,
		Operation:  opts.Operation,
		CacheKey:   opts.CacheKey,
		Page:       page,
		Limit:      limit,
		Total:      total,
		DurationMs: durationMs,
		Slow:       slow,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	logging.Queries().Log(entry)

	if err != nil {
		// The data source's error is the caller's to handle; no cache
		// entry is written for a failed fetch.
		return nil, err
	}

	metrics.ObserveQueryDuration(opts.Entity, opts.Operation, durationMs, false)
	if slow {
		metrics.RecordSlowQuery(opts.Entity, opts.Operation)
		logging.Op().Warn("slow query detected",
			"entity", opts.Entity,
			"operation", opts.Operation,
			"page", page,
			"limit", limit,
			"duration_ms", durationMs,
			"threshold_ms", o.slowThreshold.Milliseconds(),
		)
	}

	result := &PageResult[T]{Data: data, Total: total, Page: page, Limit: limit}

	if opts.cacheable() {
		o.storeAsync(opts.CacheKey, result, opts.CacheTTL)
	}
	return result, nil
}

// storeAsync writes the result to the cache from a detached goroutine so a
// slow or failing cache write can never delay or fail the response path.
// In-flight writes are bounded by a semaphore.
func (o *Optimizer) storeAsync(key string, result any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	go func() {
		o.storeSem <- struct{}{}
		defer func() { <-o.storeSem }()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		o.coord.SetJSON(ctx, key, result, ttl)
	}()
}
