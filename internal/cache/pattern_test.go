package cache

import "testing"

func TestCompilePattern_Wildcard(t *testing.T) {
	re, err := compilePattern("user:*:profile")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	matches := []string{"user:1:profile", "user:42:profile", "user:a:b:profile"}
	for _, k := range matches {
		if !re.MatchString(k) {
			t.Errorf("expected %q to match", k)
		}
	}
	misses := []string{"user:1:details", "job:1:profile", "auser:1:profile", "user:1:profilex"}
	for _, k := range misses {
		if re.MatchString(k) {
			t.Errorf("expected %q not to match", k)
		}
	}
}

func TestCompilePattern_EscapesMetacharacters(t *testing.T) {
	// A dot in the pattern must match a literal dot only.
	re, err := compilePattern("query:v1.2:*")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if !re.MatchString("query:v1.2:jobs") {
		t.Error("literal dot should match")
	}
	if re.MatchString("query:v1x2:jobs") {
		t.Error("dot must not act as a regex wildcard")
	}
}

func TestCompilePattern_NoWildcard(t *testing.T) {
	re, err := compilePattern("exact:key")
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if !re.MatchString("exact:key") {
		t.Error("exact key should match itself")
	}
	if re.MatchString("exact:key:suffix") || re.MatchString("prefix:exact:key") {
		t.Error("pattern must be anchored")
	}
}

func TestRedisPattern_EscapesRedisGlobs(t *testing.T) {
	got := redisPattern("user:[1]:?*")
	want := `user:\[1\]:\?*`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}
