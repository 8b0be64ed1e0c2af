package catalog

import (
	"sync"
	"time"

	"github.com/liamcoop/algoshield/rules"
)

// InMemoryRulesCache is a RulesCache held in process memory. Rules are
// copied on the way in and out.
type InMemoryRulesCache struct {
	rules    []rules.Rule
	cachedAt time.Time
	config   CacheConfig
	isValid  bool
	now      func() time.Time
	mu       sync.RWMutex
}

// NewInMemoryRulesCache creates a new in-memory rules cache
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{config: config, now: time.Now}
}

// Get returns a copy of the cached rules if they have not expired
func (c *InMemoryRulesCache) Get() ([]rules.Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.validLocked() {
		return nil, false
	}
	return cloneRules(c.rules), true
}

// Set stores a copy of rs
func (c *InMemoryRulesCache) Set(rs []rules.Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rules = cloneRules(rs)
	c.cachedAt = c.now()
	c.isValid = true
}

// Invalidate drops the cached rules
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.isValid = false
	c.rules = nil
}

// IsValid reports whether the cache holds unexpired rules
func (c *InMemoryRulesCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validLocked()
}

func (c *InMemoryRulesCache) validLocked() bool {
	if !c.isValid {
		return false
	}
	if c.config.TTL > 0 {
		return c.now().Sub(c.cachedAt) <= c.config.TTL
	}
	return true
}

func cloneRules(rs []rules.Rule) []rules.Rule {
	out := make([]rules.Rule, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Clone())
	}
	return out
}
