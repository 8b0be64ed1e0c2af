package catalog

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/liamcoop/algoshield/rules"
)

// ErrInvalidRule wraps validation failures.
var ErrInvalidRule = errors.New("invalid rule")

// Reloader is implemented by stores backed by an external file.
type Reloader interface {
	Reload() error
}

// Catalog validates rules, writes them through a RuleStore and serves the
// enabled list from a RulesCache.
type Catalog struct {
	store    RuleStore
	cache    RulesCache
	patterns PatternCompiler
	logger   *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithCache sets the cache used for enabled rules
func WithCache(c RulesCache) Option {
	return func(cat *Catalog) { cat.cache = c }
}

// WithPatternCompiler rejects rules whose Matches patterns do not compile.
func WithPatternCompiler(p PatternCompiler) Option {
	return func(cat *Catalog) { cat.patterns = p }
}

// WithLogger sets the catalog logger
func WithLogger(l *slog.Logger) Option {
	return func(cat *Catalog) { cat.logger = l }
}

// New creates a catalog over store
func New(store RuleStore, opts ...Option) *Catalog {
	c := &Catalog{store: store}
	for _, opt := range opts {
		opt(c)
	}
	if c.cache == nil {
		c.cache = NewInMemoryRulesCache(DefaultCacheConfig())
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Store returns the underlying store.
func (c *Catalog) Store() RuleStore {
	return c.store
}

// Validate applies the catalog's admission checks without storing.
func (c *Catalog) Validate(rule rules.Rule) error {
	if err := validateRule(rule, c.patterns); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}

// Add validates and stores a new rule
func (c *Catalog) Add(rule rules.Rule) (Entry, error) {
	if err := c.Validate(rule); err != nil {
		return Entry{}, err
	}

	e, err := c.store.Add(rule)
	if err != nil {
		return Entry{}, err
	}
	c.cache.Invalidate()

	c.logger.Info("catalog rule added", "rule_id", rule.ID, "enabled", rule.Enabled)
	return e, nil
}

// Get retrieves a rule by id
func (c *Catalog) Get(id string) (Entry, error) {
	return c.store.Get(id)
}

// List returns every rule in the catalog
func (c *Catalog) List() ([]Entry, error) {
	return c.store.List()
}

// Update validates and replaces an existing rule
func (c *Catalog) Update(rule rules.Rule) (Entry, error) {
	if err := c.Validate(rule); err != nil {
		return Entry{}, err
	}

	e, err := c.store.Update(rule)
	if err != nil {
		return Entry{}, err
	}
	c.cache.Invalidate()

	c.logger.Info("catalog rule updated", "rule_id", rule.ID, "enabled", rule.Enabled)
	return e, nil
}

// Delete removes a rule from the catalog
func (c *Catalog) Delete(id string) error {
	if err := c.store.Delete(id); err != nil {
		return err
	}
	c.cache.Invalidate()

	c.logger.Info("catalog rule deleted", "rule_id", id)
	return nil
}

// Enabled returns the enabled rules in catalog order, from cache when valid.
func (c *Catalog) Enabled() ([]rules.Rule, error) {
	if cached, ok := c.cache.Get(); ok {
		return cached, nil
	}

	entries, err := c.store.ListEnabled()
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled rules: %w", err)
	}

	rs := EntryRules(entries)
	c.cache.Set(rs)
	return cloneRules(rs), nil
}

// Seed adds every rule whose id is not in the store yet and returns how many
// were added.
func (c *Catalog) Seed(rs []rules.Rule) (int, error) {
	added := 0
	for _, r := range rs {
		_, err := c.store.Get(r.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return added, err
		}

		if _, err := c.Add(r); err != nil {
			return added, fmt.Errorf("failed to seed rule %s: %w", r.ID, err)
		}
		added++
	}
	return added, nil
}

// Reload re-reads file-backed stores and drops the cached list. Other stores
// are left alone.
func (c *Catalog) Reload() error {
	reloader, ok := c.store.(Reloader)
	if !ok {
		return nil
	}
	if err := reloader.Reload(); err != nil {
		return err
	}
	c.cache.Invalidate()

	c.logger.Info("catalog reloaded")
	return nil
}
