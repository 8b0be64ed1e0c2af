package catalog

import (
	"time"

	"github.com/liamcoop/algoshield/rules"
)

// RulesCache caches the enabled rule list so session creation does not hit
// the store every time.
type RulesCache interface {
	// Get returns the cached rules and true, or false on a miss or expiry.
	Get() ([]rules.Rule, bool)

	Set(rs []rules.Rule)

	// Invalidate forces the next Get to miss.
	Invalidate()

	IsValid() bool
}

// CacheConfig controls cache expiry.
type CacheConfig struct {
	// TTL of a cached list. Zero keeps it until the next Invalidate.
	TTL time.Duration
}

// DefaultCacheConfig returns the default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}
