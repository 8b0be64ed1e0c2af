package catalog

import (
	"testing"
	"time"

	"github.com/liamcoop/algoshield/rules"
)

var _ RulesCache = (*InMemoryRulesCache)(nil)

func TestInMemoryRulesCacheMissBeforeSet(t *testing.T) {
	cache := NewInMemoryRulesCache(DefaultCacheConfig())

	if _, ok := cache.Get(); ok {
		t.Error("Get() on empty cache should miss")
	}
	if cache.IsValid() {
		t.Error("IsValid() on empty cache should be false")
	}
}

func TestInMemoryRulesCacheSetAndInvalidate(t *testing.T) {
	cache := NewInMemoryRulesCache(DefaultCacheConfig())
	cache.Set([]rules.Rule{testRule("a", true)})

	got, ok := cache.Get()
	if !ok || len(got) != 1 || got[0].ID != "a" {
		t.Fatalf("Get() = %v, %v; want one rule", got, ok)
	}

	cache.Invalidate()
	if _, ok := cache.Get(); ok {
		t.Error("Get() after Invalidate() should miss")
	}
}

func TestInMemoryRulesCacheTTL(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	testCases := []struct {
		name    string
		ttl     time.Duration
		elapsed time.Duration
		valid   bool
	}{
		{"no ttl", 0, 24 * time.Hour, true},
		{"within ttl", time.Minute, 30 * time.Second, true},
		{"at ttl", time.Minute, time.Minute, true},
		{"expired", time.Minute, time.Minute + time.Second, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cache := NewInMemoryRulesCache(CacheConfig{TTL: tc.ttl})
			cache.now = fixedClock(start)
			cache.Set([]rules.Rule{testRule("a", true)})

			cache.now = fixedClock(start.Add(tc.elapsed))
			if got := cache.IsValid(); got != tc.valid {
				t.Errorf("IsValid() = %v, want %v", got, tc.valid)
			}
		})
	}
}

func TestInMemoryRulesCacheCopies(t *testing.T) {
	cache := NewInMemoryRulesCache(DefaultCacheConfig())
	in := []rules.Rule{testRule("a", true)}
	cache.Set(in)

	in[0].Name = "changed after set"
	got, _ := cache.Get()
	if got[0].Name != "Rule a" {
		t.Errorf("cache aliased the input slice, Name = %q", got[0].Name)
	}

	got[0].Name = "changed after get"
	again, _ := cache.Get()
	if again[0].Name != "Rule a" {
		t.Errorf("cache aliased the returned slice, Name = %q", again[0].Name)
	}
}
