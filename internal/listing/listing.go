// Package listing is a concrete consumer of the caching core: a Postgres
// job-listings store whose searches run through the query optimizer and
// whose writes invalidate the affected cached queries.
package listing

import (
	"time"
)

// Job is a single job listing.
type Job struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Company   string    `json:"company"`
	Location  string    `json:"location"`
	SalaryMin int       `json:"salary_min"`
	SalaryMax int       `json:"salary_max"`
	Remote    bool      `json:"remote"`
	PostedAt  time.Time `json:"posted_at"`
}

// JobFilter narrows a job search. Zero values mean "no constraint".
type JobFilter struct {
	Location  string
	Company   string
	SalaryMin int
	Remote    *bool
}

// Map renders the filter as the map consumed by cache-key derivation.
// Only set constraints appear, so logically identical searches share a key.
func (f JobFilter) Map() map[string]any {
	m := make(map[string]any, 4)
	if f.Location != "" {
		m["location"] = f.Location
	}
	if f.Company != "" {
		m["company"] = f.Company
	}
	if f.SalaryMin > 0 {
		m["salaryMin"] = f.SalaryMin
	}
	if f.Remote != nil {
		m["remote"] = *f.Remote
	}
	return m
}
