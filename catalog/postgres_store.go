package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/liamcoop/algoshield/rules"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

// PostgresRuleStore implements RuleStore on the catalog_rules table. The full
// rule is stored as its JSON wire form in the definition column; id, name and
// enabled are duplicated into columns for listing and filtering.
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a new PostgreSQL-backed rule store
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

// Add inserts a new rule
func (s *PostgresRuleStore) Add(rule rules.Rule) (Entry, error) {
	definition, err := json.Marshal(rule)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode rule: %w", err)
	}

	now := time.Now().UTC()
	_, err = s.db.Exec(`
		INSERT INTO catalog_rules (id, name, enabled, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, rule.ID, rule.Name, rule.Enabled, definition, now)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return Entry{}, fmt.Errorf("rule %s: %w", rule.ID, ErrAlreadyExists)
		}
		return Entry{}, fmt.Errorf("failed to insert rule: %w", err)
	}

	return Entry{Rule: rule.Clone(), CreatedAt: now, UpdatedAt: now}, nil
}

// Get retrieves a rule by id
func (s *PostgresRuleStore) Get(id string) (Entry, error) {
	row := s.db.QueryRow(`
		SELECT definition, created_at, updated_at
		FROM catalog_rules
		WHERE id = $1
	`, id)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get rule: %w", err)
	}
	return e, nil
}

// List returns every rule in insertion order
func (s *PostgresRuleStore) List() ([]Entry, error) {
	return s.query(`
		SELECT definition, created_at, updated_at
		FROM catalog_rules
		ORDER BY position ASC
	`)
}

// ListEnabled returns the enabled rules in insertion order
func (s *PostgresRuleStore) ListEnabled() ([]Entry, error) {
	return s.query(`
		SELECT definition, created_at, updated_at
		FROM catalog_rules
		WHERE enabled = true
		ORDER BY position ASC
	`)
}

func (s *PostgresRuleStore) query(q string) ([]Entry, error) {
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return entries, nil
}

// Update replaces an existing rule
func (s *PostgresRuleStore) Update(rule rules.Rule) (Entry, error) {
	definition, err := json.Marshal(rule)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode rule: %w", err)
	}

	var createdAt, updatedAt time.Time
	err = s.db.QueryRow(`
		UPDATE catalog_rules
		SET name = $1, enabled = $2, definition = $3, updated_at = $4
		WHERE id = $5
		RETURNING created_at, updated_at
	`, rule.Name, rule.Enabled, definition, time.Now().UTC(), rule.ID).Scan(&createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to update rule: %w", err)
	}

	return Entry{Rule: rule.Clone(), CreatedAt: createdAt, UpdatedAt: updatedAt}, nil
}

// Delete removes a rule
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM catalog_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		definition []byte
		e          Entry
	)
	if err := row.Scan(&definition, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return Entry{}, err
	}
	if err := json.Unmarshal(definition, &e.Rule); err != nil {
		return Entry{}, fmt.Errorf("stored definition is invalid: %w", err)
	}
	return e, nil
}
