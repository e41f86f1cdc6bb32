package queryopt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davrx/cachefront/internal/cache"
)

// fakeFetcher is a controllable PagedFetcher over string records.
type fakeFetcher struct {
	records    []string
	pageDelay  time.Duration
	countDelay time.Duration
	pageErr    error
	countErr   error

	mu         sync.Mutex
	gotOffset  int
	gotLimit   int
	pageCalls  atomic.Int32
	countCalls atomic.Int32
}

func (f *fakeFetcher) FetchPage(ctx context.Context, offset, limit int) ([]string, error) {
	f.pageCalls.Add(1)
	if f.pageDelay > 0 {
		select {
		case <-time.After(f.pageDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	f.mu.Lock()
	f.gotOffset, f.gotLimit = offset, limit
	f.mu.Unlock()

	if offset >= len(f.records) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.records) {
		end = len(f.records)
	}
	return f.records[offset:end], nil
}

func (f *fakeFetcher) FetchCount(ctx context.Context) (int64, error) {
	f.countCalls.Add(1)
	if f.countDelay > 0 {
		select {
		case <-time.After(f.countDelay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	if f.countErr != nil {
		return 0, f.countErr
	}
	return int64(len(f.records)), nil
}

func newTestOptimizer(t *testing.T) *Optimizer {
	t.Helper()
	local := cache.NewLocalCache(0, time.Hour)
	coord := cache.NewCoordinator(nil, local, 0)
	t.Cleanup(func() { coord.Close() })
	return New(coord, 0)
}

func manyRecords(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("rec-%d", i)
	}
	return out
}

// waitForCacheKey polls until the background store lands or the deadline
// passes.
func waitForCacheKey(t *testing.T, coord *cache.Coordinator, key string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if coord.Exists(context.Background(), key) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("cache entry %q never appeared", key)
}

func TestPaginated_OffsetAndClamp(t *testing.T) {
	o := newTestOptimizer(t)
	f := &fakeFetcher{records: manyRecords(25)}

	res, err := Paginated(context.Background(), o, f, 2, 10, Options{Entity: "Job", Operation: "getJobs"})
	if err != nil {
		t.Fatalf("Paginated failed: %v", err)
	}
	if f.gotOffset != 10 {
		t.Fatalf("expected offset 10 for page 2, got %d", f.gotOffset)
	}
	if len(res.Data) > 10 {
		t.Fatalf("page larger than limit: %d", len(res.Data))
	}
	if res.Total != 25 {
		t.Fatalf("expected total 25, got %d", res.Total)
	}
	if res.Data[0] != "rec-10" {
		t.Fatalf("expected page 2 to start at rec-10, got %s", res.Data[0])
	}
}

func TestPaginated_LimitClampedToMax(t *testing.T) {
	o := newTestOptimizer(t)
	f := &fakeFetcher{records: manyRecords(500)}

	res, err := Paginated(context.Background(), o, f, 1, 9999, Options{MaxLimit: 100})
	if err != nil {
		t.Fatalf("Paginated failed: %v", err)
	}
	if f.gotLimit != 100 {
		t.Fatalf("expected limit clamped to 100, got %d", f.gotLimit)
	}
	if res.Limit != 100 {
		t.Fatalf("result should carry the clamped limit, got %d", res.Limit)
	}
}

func TestPaginated_DefaultsPageAndLimit(t *testing.T) {
	o := newTestOptimizer(t)
	f := &fakeFetcher{records: manyRecords(50)}

	res, err := Paginated(context.Background(), o, f, 0, 0, Options{})
	if err != nil {
		t.Fatalf("Paginated failed: %v", err)
	}
	if res.Page != 1 || res.Limit != DefaultLimit {
		t.Fatalf("expected page=1 limit=%d, got page=%d limit=%d",
			DefaultLimit, res.Page, res.Limit)
	}
	if f.gotOffset != 0 {
		t.Fatalf("expected offset 0, got %d", f.gotOffset)
	}
}

func TestPaginated_ConcurrentFetch(t *testing.T) {
	o := newTestOptimizer(t)
	f := &fakeFetcher{
		records:    manyRecords(5),
		pageDelay:  200 * time.Millisecond,
		countDelay: 200 * time.Millisecond,
	}

	start := time.Now()
	if _, err := Paginated(context.Background(), o, f, 1, 10, Options{}); err != nil {
		t.Fatalf("Paginated failed: %v", err)
	}
	elapsed := time.Since(start)

	// Both fetches are delayed 200ms; sequential execution would take
	// at least 400ms.
	if elapsed >= 350*time.Millisecond {
		t.Fatalf("fetches appear sequential: took %v", elapsed)
	}
	if elapsed < 190*time.Millisecond {
		t.Fatalf("suspiciously fast: %v", elapsed)
	}
}

func TestPaginated_ErrorPropagatesUnchanged(t *testing.T) {
	o := newTestOptimizer(t)
	sentinel := errors.New("db connection refused")
	f := &fakeFetcher{records: manyRecords(5), pageErr: sentinel}

	key := GenerateCacheKey("Job", "getJobs", nil, 1, 10)
	_, err := Paginated(context.Background(), o, f, 1, 10, Options{
		Entity: "Job", Operation: "getJobs", CacheKey: key,
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the fetcher's error, got: %v", err)
	}

	// A failed fetch must never produce a cache entry.
	time.Sleep(50 * time.Millisecond)
	if o.Coordinator().Exists(context.Background(), key) {
		t.Fatal("cache entry written for a failed fetch")
	}
}

func TestPaginated_CountErrorPropagates(t *testing.T) {
	o := newTestOptimizer(t)
	sentinel := errors.New("count timed out")
	f := &fakeFetcher{records: manyRecords(5), countErr: sentinel}

	if _, err := Paginated(context.Background(), o, f, 1, 10, Options{}); !errors.Is(err, sentinel) {
		t.Fatalf("expected the count error, got: %v", err)
	}
}

func TestPaginated_CacheHitSkipsFetcher(t *testing.T) {
	o := newTestOptimizer(t)
	f := &fakeFetcher{records: manyRecords(30)}
	key := GenerateCacheKey("Job", "getJobs", map[string]any{"location": "NY"}, 1, 10)
	opts := Options{Entity: "Job", Operation: "getJobs", CacheKey: key}

	first, err := Paginated(context.Background(), o, f, 1, 10, opts)
	if err != nil {
		t.Fatalf("first query failed: %v", err)
	}
	if first.FromCache {
		t.Fatal("first query cannot be a cache hit")
	}

	waitForCacheKey(t, o.Coordinator(), key)

	// Poison the fetcher: a second call must be served from cache and
	// never reach it.
	f.pageErr = errors.New("fetcher must not be called")
	f.countErr = f.pageErr

	second, err := Paginated(context.Background(), o, f, 1, 10, opts)
	if err != nil {
		t.Fatalf("cached query failed: %v", err)
	}
	if !second.FromCache {
		t.Fatal("expected a cache hit")
	}
	if second.Total != first.Total || len(second.Data) != len(first.Data) {
		t.Fatalf("cached result differs: %+v vs %+v", second, first)
	}
}

func TestPaginated_DisableCache(t *testing.T) {
	o := newTestOptimizer(t)
	f := &fakeFetcher{records: manyRecords(5)}
	key := GenerateCacheKey("Job", "getJobs", nil, 1, 5)

	_, err := Paginated(context.Background(), o, f, 1, 5, Options{
		CacheKey: key, DisableCache: true,
	})
	if err != nil {
		t.Fatalf("Paginated failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if o.Coordinator().Exists(context.Background(), key) {
		t.Fatal("nothing should be cached with caching disabled")
	}
}

func TestPaginated_CollapsesConcurrentMisses(t *testing.T) {
	o := newTestOptimizer(t)
	f := &fakeFetcher{
		records:    manyRecords(20),
		pageDelay:  100 * time.Millisecond,
		countDelay: 100 * time.Millisecond,
	}
	key := GenerateCacheKey("Job", "getJobs", nil, 1, 10)
	opts := Options{Entity: "Job", Operation: "getJobs", CacheKey: key}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := Paginated(context.Background(), o, f, 1, 10, opts); err != nil {
				t.Errorf("Paginated failed: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if calls := f.countCalls.Load(); calls != 1 {
		t.Fatalf("expected concurrent misses to collapse to 1 execution, got %d", calls)
	}
}

func TestPaginated_SlowQueryStillSucceeds(t *testing.T) {
	local := cache.NewLocalCache(0, time.Hour)
	coord := cache.NewCoordinator(nil, local, 0)
	defer coord.Close()
	// 20ms threshold with a 50ms fetch forces the slow path.
	o := New(coord, 20*time.Millisecond)

	f := &fakeFetcher{records: manyRecords(5), pageDelay: 50 * time.Millisecond}
	res, err := Paginated(context.Background(), o, f, 1, 10, Options{Entity: "Job", Operation: "getJobs"})
	if err != nil {
		t.Fatalf("slow query must not fail: %v", err)
	}
	if res.Total != 5 {
		t.Fatalf("slow logging altered the result: %+v", res)
	}
}
