package catalog

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/liamcoop/algoshield/rules"
)

const (
	maxIDLength   = 100
	maxNameLength = 200
	maxConditions = 50
	maxActions    = 50
)

var validID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// PatternCompiler checks Matches patterns before a rule is accepted.
type PatternCompiler interface {
	Compile(pattern string) error
}

// ValidateRule checks that a rule is fit to be stored in the catalog.
func ValidateRule(r rules.Rule) error {
	return validateRule(r, nil)
}

func validateRule(r rules.Rule, patterns PatternCompiler) error {
	if err := validateID(r.ID); err != nil {
		return fmt.Errorf("invalid rule id %q: %w", r.ID, err)
	}

	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("rule name cannot be empty")
	}
	if len(r.Name) > maxNameLength {
		return fmt.Errorf("rule name length %d exceeds maximum of %d characters", len(r.Name), maxNameLength)
	}

	if math.IsNaN(r.Probability) || r.Probability < 0 || r.Probability > 1 {
		return fmt.Errorf("probability %v must be between 0 and 1", r.Probability)
	}

	if len(r.Conditions) > maxConditions {
		return fmt.Errorf("rule contains %d conditions, maximum allowed is %d", len(r.Conditions), maxConditions)
	}
	if len(r.Actions) > maxActions {
		return fmt.Errorf("rule contains %d actions, maximum allowed is %d", len(r.Actions), maxActions)
	}

	for i, cond := range r.Conditions {
		if err := validateCondition(cond, patterns); err != nil {
			return fmt.Errorf("condition %d: %w", i, err)
		}
	}

	for i, a := range r.Actions {
		if a == nil {
			return fmt.Errorf("action %d is empty", i)
		}
	}

	return nil
}

func validateID(id string) error {
	if len(id) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("identifier length %d exceeds maximum of %d characters", len(id), maxIDLength)
	}
	if !validID.MatchString(id) {
		return fmt.Errorf("must match pattern %s (letters, digits, '-' or '_', not starting with a separator)", validID)
	}
	return nil
}

func validateCondition(cond rules.Condition, patterns PatternCompiler) error {
	if cond.Field == "" {
		return fmt.Errorf("field cannot be empty")
	}
	if !cond.Operator.Valid() {
		return fmt.Errorf("unknown operator %q", cond.Operator)
	}
	if cond.Value.Kind() == rules.KindInvalid {
		return fmt.Errorf("value must be a string, number or boolean")
	}

	if cond.Operator == rules.OperatorMatches && patterns != nil {
		pattern, ok := cond.Value.AsString()
		if !ok {
			return fmt.Errorf("operator Matches requires a string pattern")
		}
		if err := patterns.Compile(pattern); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
	}
	return nil
}
