// Package matcher implements the Matches operator with CEL's RE2-backed
// matches() function. Compiled programs are kept in an LRU keyed by pattern.
package matcher

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/cel-go/cel"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/liamcoop/algoshield/rules"
)

// DefaultCacheSize is used when NewCELMatcher is given a size <= 0.
const DefaultCacheSize = 256

// costLimit bounds a single evaluation.
const costLimit = 1000000

type compiled struct {
	program cel.Program
	err     error
}

// CELMatcher is a rules.TextMatcher. Patterns are RE2 regular expressions;
// a pattern that does not compile never matches.
type CELMatcher struct {
	env    *cel.Env
	cache  *lru.Cache[string, compiled]
	logger *slog.Logger

	// cel.Env compilation is serialised.
	compileMu sync.Mutex

	hits   atomic.Uint64
	misses atomic.Uint64
}

var _ rules.TextMatcher = (*CELMatcher)(nil)

// NewCELMatcher creates a matcher whose program cache holds cacheSize patterns.
func NewCELMatcher(cacheSize int, logger *slog.Logger) (*CELMatcher, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	env, err := cel.NewEnv(cel.Variable("value", cel.StringType))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	cache, err := lru.New[string, compiled](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create program cache: %w", err)
	}

	return &CELMatcher{env: env, cache: cache, logger: logger}, nil
}

// Matches reports whether value matches the RE2 pattern.
func (m *CELMatcher) Matches(pattern, value string) bool {
	c := m.program(pattern)
	if c.err != nil {
		m.logger.Debug("pattern does not compile", "pattern", pattern, "error", c.err)
		return false
	}

	out, _, err := c.program.Eval(map[string]any{"value": value})
	if err != nil {
		m.logger.Debug("pattern evaluation failed", "pattern", pattern, "error", err)
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

// Compile checks that pattern is a valid RE2 expression.
func (m *CELMatcher) Compile(pattern string) error {
	return m.program(pattern).err
}

// Stats returns cumulative cache hits and misses.
func (m *CELMatcher) Stats() (hits, misses uint64) {
	return m.hits.Load(), m.misses.Load()
}

// Len returns the number of cached patterns.
func (m *CELMatcher) Len() int {
	return m.cache.Len()
}

func (m *CELMatcher) program(pattern string) compiled {
	if c, ok := m.cache.Get(pattern); ok {
		m.hits.Add(1)
		return c
	}
	m.misses.Add(1)

	c := m.compile(pattern)
	m.cache.Add(pattern, c)
	return c
}

func (m *CELMatcher) compile(pattern string) compiled {
	m.compileMu.Lock()
	defer m.compileMu.Unlock()

	// The pattern is a literal so the regex is compiled once, at plan time.
	ast, issues := m.env.Compile(fmt.Sprintf("value.matches(%s)", strconv.Quote(pattern)))
	if issues != nil && issues.Err() != nil {
		return compiled{err: fmt.Errorf("compile error: %w", issues.Err())}
	}

	prog, err := m.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(costLimit),
	)
	if err != nil {
		return compiled{err: fmt.Errorf("program creation error: %w", err)}
	}
	return compiled{program: prog}
}
