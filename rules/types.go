package rules

import (
	"encoding/json"
	"fmt"
)

// Rule is a named, switchable policy: when every condition holds and the
// probability gate passes, its actions are emitted verbatim.
type Rule struct {
	ID          string
	Name        string
	Description string
	Conditions  []Condition
	Actions     []Action
	Probability float64 // 0.0 - 1.0
	Enabled     bool
}

// Narrate returns "name: description".
func (r Rule) Narrate() string {
	return fmt.Sprintf("%s: %s", r.Name, r.Description)
}

// Evaluate runs the rule against ctx with the default evaluator.
func (r Rule) Evaluate(ctx Context) ([]Action, bool) {
	return defaultEvaluator.EvaluateRule(r, ctx)
}

// Clone returns a deep copy of r.
func (r Rule) Clone() Rule {
	out := r
	if r.Conditions != nil {
		out.Conditions = append([]Condition{}, r.Conditions...)
	}
	if r.Actions != nil {
		out.Actions = CloneActions(r.Actions)
	}
	return out
}

type ruleDocument struct {
	ID          *string     `json:"id" validate:"required"`
	Name        *string     `json:"name" validate:"required"`
	Description *string     `json:"description" validate:"required"`
	Conditions  []Condition `json:"conditions" validate:"required"`
	Actions     *Actions    `json:"actions" validate:"required"`
	Probability *float64    `json:"probability" validate:"required,gte=0,lte=1"`
	Enabled     *bool       `json:"enabled" validate:"required"`
}

type ruleJSON struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Conditions  []Condition `json:"conditions"`
	Actions     Actions     `json:"actions"`
	Probability float64     `json:"probability"`
	Enabled     bool        `json:"enabled"`
}

// MarshalJSON writes the snake_case wire form.
func (r Rule) MarshalJSON() ([]byte, error) {
	conds := r.Conditions
	if conds == nil {
		conds = []Condition{}
	}
	return json.Marshal(ruleJSON{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Conditions:  conds,
		Actions:     Actions(r.Actions),
		Probability: r.Probability,
		Enabled:     r.Enabled,
	})
}

// UnmarshalJSON requires every field and a probability within [0, 1].
func (r *Rule) UnmarshalJSON(data []byte) error {
	var doc ruleDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	if err := validateDocument(doc); err != nil {
		return err
	}

	*r = Rule{
		ID:          *doc.ID,
		Name:        *doc.Name,
		Description: *doc.Description,
		Conditions:  doc.Conditions,
		Actions:     []Action(*doc.Actions),
		Probability: *doc.Probability,
		Enabled:     *doc.Enabled,
	}
	return nil
}
