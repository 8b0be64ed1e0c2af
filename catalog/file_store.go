package catalog

import (
	"fmt"
	"os"
	"sync"

	"github.com/liamcoop/algoshield/rules"
)

// FileRuleStore serves a catalog from a YAML or JSON file holding a list of
// rules. It is read-only: mutations return ErrReadOnly. Reload re-reads the
// file and swaps the contents only when the whole file is valid.
type FileRuleStore struct {
	path    string
	entries []Entry
	mu      sync.RWMutex
}

// NewFileRuleStore loads path. The codec is picked from the file extension.
func NewFileRuleStore(path string) (*FileRuleStore, error) {
	s := &FileRuleStore{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the watched file.
func (s *FileRuleStore) Path() string {
	return s.path
}

// Reload re-reads the catalog file and swaps in its rules
func (s *FileRuleStore) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("failed to stat catalog file: %w", err)
	}

	loaded, err := rules.CodecForPath(s.path).DecodeRules(data)
	if err != nil {
		return fmt.Errorf("catalog file %s: %w", s.path, err)
	}

	seen := make(map[string]struct{}, len(loaded))
	for _, r := range loaded {
		if err := ValidateRule(r); err != nil {
			return fmt.Errorf("catalog file %s: rule %q: %w", s.path, r.ID, err)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("catalog file %s: rule %s: %w", s.path, r.ID, ErrAlreadyExists)
		}
		seen[r.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := make(map[string]Entry, len(s.entries))
	for _, e := range s.entries {
		created[e.Rule.ID] = e
	}

	modTime := info.ModTime()
	entries := make([]Entry, 0, len(loaded))
	for _, r := range loaded {
		e := Entry{Rule: r, CreatedAt: modTime, UpdatedAt: modTime}
		if prev, ok := created[r.ID]; ok {
			e.CreatedAt = prev.CreatedAt
		}
		entries = append(entries, e)
	}
	s.entries = entries
	return nil
}

// Add always fails with ErrReadOnly
func (s *FileRuleStore) Add(rules.Rule) (Entry, error) {
	return Entry{}, ErrReadOnly
}

// Get retrieves a rule by id
func (s *FileRuleStore) Get(id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.Rule.ID == id {
			return copyEntry(e), nil
		}
	}
	return Entry{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
}

// List returns the rules in file order
func (s *FileRuleStore) List() ([]Entry, error) {
	return s.list(false), nil
}

// ListEnabled returns the enabled rules in file order
func (s *FileRuleStore) ListEnabled() ([]Entry, error) {
	return s.list(true), nil
}

func (s *FileRuleStore) list(enabledOnly bool) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if enabledOnly && !e.Rule.Enabled {
			continue
		}
		out = append(out, copyEntry(e))
	}
	return out
}

func (s *FileRuleStore) Update(rules.Rule) (Entry, error) {
	return Entry{}, ErrReadOnly
}

func (s *FileRuleStore) Delete(string) error {
	return ErrReadOnly
}
