package listing

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/davrx/cachefront/internal/cache"
	"github.com/davrx/cachefront/internal/queryopt"
)

func newTestStore(t *testing.T) (*Store, *queryopt.Optimizer) {
	t.Helper()
	dsn := os.Getenv("CACHEFRONT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("CACHEFRONT_TEST_PG_DSN not set, skipping postgres tests")
	}

	local := cache.NewLocalCache(0, time.Hour)
	coord := cache.NewCoordinator(nil, local, 0)
	t.Cleanup(func() { coord.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := NewStore(ctx, dsn, coord)
	if err != nil {
		t.Skipf("Postgres not available, skipping: %v", err)
	}
	t.Cleanup(func() {
		s.pool.Exec(context.Background(), `DELETE FROM jobs WHERE company = 'cachefront-test'`)
		s.Close()
	})
	return s, queryopt.New(coord, 0)
}

func seedJobs(t *testing.T, s *Store, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		loc := "NY"
		if i%2 == 1 {
			loc = "SF"
		}
		err := s.SaveJob(ctx, &Job{
			Title:     fmt.Sprintf("engineer %d", i),
			Company:   "cachefront-test",
			Location:  loc,
			SalaryMin: 50000 + i*1000,
		})
		if err != nil {
			t.Fatalf("seed job %d: %v", i, err)
		}
	}
}

func TestStore_SearchJobsPagination(t *testing.T) {
	s, opt := newTestStore(t)
	seedJobs(t, s, 15)

	ctx := context.Background()
	filter := JobFilter{Company: "cachefront-test"}

	page1, err := s.SearchJobs(ctx, opt, filter, 1, 10)
	if err != nil {
		t.Fatalf("SearchJobs failed: %v", err)
	}
	if page1.Total != 15 {
		t.Fatalf("expected total 15, got %d", page1.Total)
	}
	if len(page1.Data) != 10 {
		t.Fatalf("expected 10 results on page 1, got %d", len(page1.Data))
	}

	page2, err := s.SearchJobs(ctx, opt, filter, 2, 10)
	if err != nil {
		t.Fatalf("SearchJobs page 2 failed: %v", err)
	}
	if len(page2.Data) != 5 {
		t.Fatalf("expected 5 results on page 2, got %d", len(page2.Data))
	}
	if page2.Data[0].ID == page1.Data[0].ID {
		t.Fatal("page 2 must not repeat page 1")
	}
}

func TestStore_WriteInvalidatesCachedSearch(t *testing.T) {
	s, opt := newTestStore(t)
	seedJobs(t, s, 3)

	ctx := context.Background()
	filter := JobFilter{Company: "cachefront-test"}
	key := queryopt.GenerateCacheKey("Job", "searchJobs", filter.Map(), 1, 10)

	if _, err := s.SearchJobs(ctx, opt, filter, 1, 10); err != nil {
		t.Fatalf("SearchJobs failed: %v", err)
	}

	// Wait for the background cache write to land.
	deadline := time.Now().Add(2 * time.Second)
	for !opt.Coordinator().Exists(ctx, key) {
		if time.Now().After(deadline) {
			t.Fatal("search result never cached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.SaveJob(ctx, &Job{Title: "new", Company: "cachefront-test"}); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}
	if opt.Coordinator().Exists(ctx, key) {
		t.Fatal("write should invalidate cached job searches")
	}

	// The next search sees the new row.
	res, err := s.SearchJobs(ctx, opt, filter, 1, 10)
	if err != nil {
		t.Fatalf("SearchJobs after write failed: %v", err)
	}
	if res.Total != 4 {
		t.Fatalf("expected total 4 after insert, got %d", res.Total)
	}
}

func TestStore_FilteredSearch(t *testing.T) {
	s, opt := newTestStore(t)
	seedJobs(t, s, 10)

	ctx := context.Background()
	res, err := s.SearchJobs(ctx, opt, JobFilter{Company: "cachefront-test", Location: "NY"}, 1, 20)
	if err != nil {
		t.Fatalf("SearchJobs failed: %v", err)
	}
	if res.Total != 5 {
		t.Fatalf("expected 5 NY jobs, got %d", res.Total)
	}
	for _, j := range res.Data {
		if j.Location != "NY" {
			t.Fatalf("filter leaked a %s job", j.Location)
		}
	}
}
