package cache

import (
	"regexp"
	"strings"
)

// compilePattern translates a glob pattern into an anchored regular
// expression. Only '*' is a wildcard (matching any run of characters,
// including none); every other character matches literally, so regex
// metacharacters in cache keys ('.', '[', '+', ...) cannot change the
// match semantics.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*") + "$")
}

// redisPattern converts a glob pattern into a Redis MATCH pattern.
// Redis globs additionally treat '?', '[' and ']' as metacharacters,
// so those are backslash-escaped to keep '*' as the only wildcard.
func redisPattern(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))
	for _, r := range pattern {
		switch r {
		case '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
