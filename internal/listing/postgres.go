package listing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/davrx/cachefront/internal/cache"
	"github.com/davrx/cachefront/internal/logging"
	"github.com/davrx/cachefront/internal/metrics"
	"github.com/davrx/cachefront/internal/queryopt"
)

const jobEntity = "Job"

// Store persists job listings in Postgres. Searches are served through the
// query optimizer; writes invalidate every cached job query afterwards,
// best-effort.
type Store struct {
	pool  *pgxpool.Pool
	coord *cache.Coordinator
}

// NewStore connects to Postgres and ensures the schema exists.
func NewStore(ctx context.Context, dsn string, coord *cache.Coordinator) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	s := &Store{pool: pool, coord: coord}

	if err := s.pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			company TEXT NOT NULL,
			location TEXT NOT NULL DEFAULT '',
			salary_min INTEGER NOT NULL DEFAULT 0,
			salary_max INTEGER NOT NULL DEFAULT 0,
			remote BOOLEAN NOT NULL DEFAULT FALSE,
			posted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_location ON jobs(location)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_company ON jobs(company)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_posted_at ON jobs(posted_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SaveJob inserts or updates a listing, then invalidates cached job queries.
func (s *Store) SaveJob(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.PostedAt.IsZero() {
		job.PostedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, title, company, location, salary_min, salary_max, remote, posted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			company = EXCLUDED.company,
			location = EXCLUDED.location,
			salary_min = EXCLUDED.salary_min,
			salary_max = EXCLUDED.salary_max,
			remote = EXCLUDED.remote`,
		job.ID, job.Title, job.Company, job.Location,
		job.SalaryMin, job.SalaryMax, job.Remote, job.PostedAt)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}

	s.invalidate(ctx)
	return nil
}

// DeleteJob removes a listing, then invalidates cached job queries.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

// invalidate sweeps every cached job query. Best-effort: the coordinator
// never surfaces cache errors, so a failed invalidation can only leave
// entries to age out via TTL — it never fails the write.
func (s *Store) invalidate(ctx context.Context) {
	if s.coord == nil {
		return
	}
	pattern := queryopt.InvalidationPattern(jobEntity)
	s.coord.DeletePattern(ctx, pattern)
	metrics.RecordInvalidation()
	logging.Op().Debug("invalidated cached job queries", "pattern", pattern)
}

// SearchJobs runs a filtered, paginated job search through the optimizer.
func (s *Store) SearchJobs(ctx context.Context, opt *queryopt.Optimizer, filter JobFilter, page, limit int) (*queryopt.PageResult[Job], error) {
	key := queryopt.GenerateCacheKey(jobEntity, "searchJobs", filter.Map(), page, limit)
	fetcher := &jobFetcher{pool: s.pool, filter: filter}
	return queryopt.Paginated(ctx, opt, fetcher, page, limit, queryopt.Options{
		Entity:    jobEntity,
		Operation: "searchJobs",
		CacheKey:  key,
	})
}

// jobFetcher implements queryopt.PagedFetcher for a fixed filter.
type jobFetcher struct {
	pool   *pgxpool.Pool
	filter JobFilter
}

// where builds the WHERE clause and args for the fetcher's filter.
func (f *jobFetcher) where() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.filter.Location != "" {
		add("location = $%d", f.filter.Location)
	}
	if f.filter.Company != "" {
		add("company = $%d", f.filter.Company)
	}
	if f.filter.SalaryMin > 0 {
		add("salary_min >= $%d", f.filter.SalaryMin)
	}
	if f.filter.Remote != nil {
		add("remote = $%d", *f.filter.Remote)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (f *jobFetcher) FetchPage(ctx context.Context, offset, limit int) ([]Job, error) {
	where, args := f.where()
	query := fmt.Sprintf(
		`SELECT id, title, company, location, salary_min, salary_max, remote, posted_at
		 FROM jobs%s ORDER BY posted_at DESC, id LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := f.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch jobs page: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.Title, &j.Company, &j.Location,
			&j.SalaryMin, &j.SalaryMax, &j.Remote, &j.PostedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (f *jobFetcher) FetchCount(ctx context.Context) (int64, error) {
	where, args := f.where()
	var total int64
	err := f.pool.QueryRow(ctx, "SELECT COUNT(*) FROM jobs"+where, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count jobs: %w", err)
	}
	return total, nil
}
