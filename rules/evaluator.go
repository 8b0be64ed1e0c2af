package rules

import (
	"log/slog"
)

// TextMatcher decides whether value matches pattern for the Matches operator.
// The engine carries no pattern language of its own.
type TextMatcher interface {
	Matches(pattern, value string) bool
}

// NoMatcher rejects every pattern. It is the default TextMatcher.
type NoMatcher struct{}

func (NoMatcher) Matches(string, string) bool { return false }

// Observer is notified about gate outcomes of rules whose conditions held.
type Observer interface {
	RuleFired(rule Rule, actions int)
	RuleNearMiss(rule Rule, draw float64)
}

type nopObserver struct{}

func (nopObserver) RuleFired(Rule, int)         {}
func (nopObserver) RuleNearMiss(Rule, float64) {}

// Evaluator matches contexts against rules. It holds no rule state and is
// safe for concurrent use as long as its collaborators are.
type Evaluator struct {
	random   RandomSource
	matcher  TextMatcher
	observer Observer
	logger   *slog.Logger
}

var defaultEvaluator = NewEvaluator()

// NewEvaluator builds an Evaluator. Without options it draws from the global
// generator, rejects every Matches condition and logs through slog.Default().
func NewEvaluator(opts ...Option) *Evaluator {
	o := collectOptions(opts)
	return o.evaluator()
}

func (ev *Evaluator) log() *slog.Logger {
	if ev.logger != nil {
		return ev.logger
	}
	return slog.Default()
}

// EvaluateCondition reports whether cond holds for ctx.
func (ev *Evaluator) EvaluateCondition(cond Condition, ctx Context) bool {
	return evaluateCondition(cond, ctx, ev.matcher)
}

// EvaluateRule returns a copy of the rule's actions and true when the rule is
// enabled, all of its conditions hold and the probability gate passes.
func (ev *Evaluator) EvaluateRule(rule Rule, ctx Context) ([]Action, bool) {
	if !rule.Enabled {
		return nil, false
	}

	for _, cond := range rule.Conditions {
		if !ev.EvaluateCondition(cond, ctx) {
			return nil, false
		}
	}

	// A zero probability never fires, even on a draw of exactly 0.
	draw := ev.random.Float64()
	if draw > rule.Probability || rule.Probability <= 0 {
		ev.log().Debug("rule near miss",
			"rule_id", rule.ID,
			"probability", rule.Probability,
			"draw", draw,
		)
		ev.observer.RuleNearMiss(rule, draw)
		return nil, false
	}

	actions := CloneActions(rule.Actions)
	ev.observer.RuleFired(rule, len(actions))
	return actions, true
}

// EvaluateRules concatenates the actions of every firing rule, in rule order
// and then action order. The result is never nil.
func (ev *Evaluator) EvaluateRules(rules []Rule, ctx Context) []Action {
	out := make([]Action, 0)
	for _, rule := range rules {
		if actions, ok := ev.EvaluateRule(rule, ctx); ok {
			out = append(out, actions...)
		}
	}
	return out
}

// EvaluateCondition evaluates cond with the default evaluator.
func EvaluateCondition(cond Condition, ctx Context) bool {
	return defaultEvaluator.EvaluateCondition(cond, ctx)
}

// EvaluateRules evaluates rules with the default evaluator.
func EvaluateRules(rules []Rule, ctx Context) []Action {
	return defaultEvaluator.EvaluateRules(rules, ctx)
}
