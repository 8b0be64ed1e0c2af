package rules

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Operator is the comparison a Condition applies.
type Operator string

const (
	OperatorEquals      Operator = "Equals"
	OperatorContains    Operator = "Contains"
	OperatorGreaterThan Operator = "GreaterThan"
	OperatorLessThan    Operator = "LessThan"
	OperatorMatches     Operator = "Matches" // delegated to a TextMatcher
)

// Valid reports whether op is one of the known operators.
func (op Operator) Valid() bool {
	switch op {
	case OperatorEquals, OperatorContains, OperatorGreaterThan, OperatorLessThan, OperatorMatches:
		return true
	default:
		return false
	}
}

// UnmarshalJSON rejects unknown operator names.
func (op *Operator) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("operator must be a string: %w", err)
	}
	if !Operator(s).Valid() {
		return fmt.Errorf("unknown operator %q", s)
	}
	*op = Operator(s)
	return nil
}

// Condition is a single predicate over a named Context field.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
}

type conditionDocument struct {
	Field    *string   `json:"field" validate:"required"`
	Operator *Operator `json:"operator" validate:"required"`
	Value    *Value    `json:"value" validate:"required"`
}

// UnmarshalJSON requires field, operator and value.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var doc conditionDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if err := validateDocument(doc); err != nil {
		return fmt.Errorf("condition: %w", err)
	}

	*c = Condition{
		Field:    *doc.Field,
		Operator: *doc.Operator,
		Value:    *doc.Value,
	}
	return nil
}

// String renders the condition for logs, e.g. `scroll_depth GreaterThan 50`.
func (c Condition) String() string {
	return fmt.Sprintf("%s %s %s", c.Field, c.Operator, c.Value)
}

// evaluateCondition never fails: unknown fields, kind mismatches and
// unsupported operators all yield false.
func evaluateCondition(cond Condition, ctx Context, matcher TextMatcher) bool {
	actual, ok := ctx.lookup(cond.Field)
	if !ok {
		return false
	}
	expected := cond.Value

	switch cond.Operator {
	case OperatorEquals:
		return actual.Equal(expected)

	case OperatorContains:
		a, aok := actual.AsString()
		e, eok := expected.AsString()
		return aok && eok && strings.Contains(a, e)

	case OperatorGreaterThan:
		a, aok := actual.AsNumber()
		e, eok := expected.AsNumber()
		return aok && eok && a > e

	case OperatorLessThan:
		a, aok := actual.AsNumber()
		e, eok := expected.AsNumber()
		return aok && eok && a < e

	case OperatorMatches:
		value, aok := actual.AsString()
		pattern, eok := expected.AsString()
		if !aok || !eok || matcher == nil {
			return false
		}
		return matcher.Matches(pattern, value)

	default:
		return false
	}
}
