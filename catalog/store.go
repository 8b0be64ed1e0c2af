package catalog

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/liamcoop/algoshield/rules"
)

var (
	ErrNotFound      = errors.New("rule not found")
	ErrAlreadyExists = errors.New("rule already exists")
	ErrReadOnly      = errors.New("catalog is read-only")
)

// Entry is a catalog rule with its bookkeeping timestamps.
type Entry struct {
	Rule      rules.Rule `json:"rule"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RuleStore persists catalog rules. List and ListEnabled return rules in
// insertion order, which is also the order sessions evaluate them in.
type RuleStore interface {
	Add(rule rules.Rule) (Entry, error)
	Get(id string) (Entry, error)
	List() ([]Entry, error)
	ListEnabled() ([]Entry, error)
	Update(rule rules.Rule) (Entry, error)
	Delete(id string) error
}

// InMemoryRuleStore is a RuleStore backed by a map plus an insertion-order
// index. It is safe for concurrent use.
type InMemoryRuleStore struct {
	entries map[string]Entry
	order   []string
	now     func() time.Time
	mu      sync.RWMutex
}

// NewInMemoryRuleStore creates a new in-memory rule store
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

// Add stores a copy of rule. Ids must be unique.
func (s *InMemoryRuleStore) Add(rule rules.Rule) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[rule.ID]; exists {
		return Entry{}, fmt.Errorf("rule %s: %w", rule.ID, ErrAlreadyExists)
	}

	now := s.now()
	e := Entry{Rule: rule.Clone(), CreatedAt: now, UpdatedAt: now}
	s.entries[rule.ID] = e
	s.order = append(s.order, rule.ID)
	return copyEntry(e), nil
}

// Get retrieves a rule by id
func (s *InMemoryRuleStore) Get(id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.entries[id]
	if !exists {
		return Entry{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return copyEntry(e), nil
}

// List returns every stored rule in insertion order
func (s *InMemoryRuleStore) List() ([]Entry, error) {
	return s.list(false), nil
}

// ListEnabled returns the enabled rules in insertion order
func (s *InMemoryRuleStore) ListEnabled() ([]Entry, error) {
	return s.list(true), nil
}

func (s *InMemoryRuleStore) list(enabledOnly bool) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.order))
	for _, id := range s.order {
		e := s.entries[id]
		if enabledOnly && !e.Rule.Enabled {
			continue
		}
		out = append(out, copyEntry(e))
	}
	return out
}

// Update replaces a rule in place, keeping its position and CreatedAt.
func (s *InMemoryRuleStore) Update(rule rules.Rule) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.entries[rule.ID]
	if !exists {
		return Entry{}, fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}

	e := Entry{Rule: rule.Clone(), CreatedAt: existing.CreatedAt, UpdatedAt: s.now()}
	s.entries[rule.ID] = e
	return copyEntry(e), nil
}

// Delete removes a rule
func (s *InMemoryRuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; !exists {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}

	delete(s.entries, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func copyEntry(e Entry) Entry {
	e.Rule = e.Rule.Clone()
	return e
}

// EntryRules extracts the rules from entries, preserving order.
func EntryRules(entries []Entry) []rules.Rule {
	out := make([]rules.Rule, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Rule)
	}
	return out
}
