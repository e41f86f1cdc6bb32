package queryopt

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/davrx/cachefront/internal/cache"
)

// queryKeyPrefix namespaces every optimized-query cache key, so write paths
// can invalidate whole listing views with a single pattern
// (e.g. "query:Job:*").
const queryKeyPrefix = "query"

// GenerateCacheKey derives a deterministic cache key from an entity name,
// operation, filter set, and pagination. Filter entries are sorted by key
// before joining, so two logically identical filter maps produce the same
// key regardless of insertion order. Pure; never fails for any filter map.
func GenerateCacheKey(entity, operation string, filters map[string]any, page, limit int) string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names)+3)
	parts = append(parts, entity, operation)
	for _, name := range names {
		parts = append(parts, name+":"+fmt.Sprint(filters[name]))
	}
	parts = append(parts, strconv.Itoa(page)+":"+strconv.Itoa(limit))
	return cache.Key(queryKeyPrefix, parts...)
}

// InvalidationPattern returns the glob covering every cached query for an
// entity, for use with Coordinator.DeletePattern after a write.
func InvalidationPattern(entity string) string {
	return cache.Key(queryKeyPrefix, entity) + ":*"
}
