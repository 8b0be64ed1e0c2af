package rules

import (
	"strings"
	"sync"
)

// Engine holds an ordered rule set and evaluates contexts against it.
// Reads (Evaluate, Rules, NarrateRules) share the lock; AddRule takes it
// exclusively.
type Engine struct {
	evaluator *Evaluator
	codec     Codec
	rules     []Rule
	mu        sync.RWMutex
}

// NewEngine creates an engine with an empty rule set.
func NewEngine(opts ...Option) *Engine {
	o := collectOptions(opts)
	return &Engine{
		evaluator: o.evaluator(),
		codec:     o.codec,
		rules:     []Rule{},
	}
}

// Codec returns the codec used by the encoded operations.
func (en *Engine) Codec() Codec {
	return en.codec
}

// AddRule appends a copy of r. Rule ids are not checked for uniqueness.
func (en *Engine) AddRule(r Rule) {
	r = r.Clone()

	en.mu.Lock()
	en.rules = append(en.rules, r)
	en.mu.Unlock()
}

// AddRules appends copies of rs in order.
func (en *Engine) AddRules(rs []Rule) {
	cloned := make([]Rule, 0, len(rs))
	for _, r := range rs {
		cloned = append(cloned, r.Clone())
	}

	en.mu.Lock()
	en.rules = append(en.rules, cloned...)
	en.mu.Unlock()
}

// Rules returns copies of the rules in insertion order.
func (en *Engine) Rules() []Rule {
	en.mu.RLock()
	defer en.mu.RUnlock()

	out := make([]Rule, 0, len(en.rules))
	for _, r := range en.rules {
		out = append(out, r.Clone())
	}
	return out
}

// Len returns the number of rules held.
func (en *Engine) Len() int {
	en.mu.RLock()
	defer en.mu.RUnlock()
	return len(en.rules)
}

// Evaluate returns the actions of every rule that fires for ctx.
func (en *Engine) Evaluate(ctx Context) []Action {
	en.mu.RLock()
	defer en.mu.RUnlock()
	return en.evaluator.EvaluateRules(en.rules, ctx)
}

// NarrateRules lists every rule, enabled or not, one bullet per line.
func (en *Engine) NarrateRules() string {
	en.mu.RLock()
	defer en.mu.RUnlock()

	lines := make([]string, 0, len(en.rules))
	for _, r := range en.rules {
		lines = append(lines, "• "+r.Narrate())
	}
	return strings.Join(lines, "\n")
}

// AddEncodedRule decodes a rule with the engine's codec and appends it.
// On error the rule set is left untouched.
func (en *Engine) AddEncodedRule(data []byte) error {
	r, err := en.codec.DecodeRule(data)
	if err != nil {
		return err
	}
	en.AddRule(r)
	return nil
}

// EvaluateEncoded decodes a context, evaluates it and encodes the resulting
// action list.
func (en *Engine) EvaluateEncoded(data []byte) ([]byte, error) {
	ctx, err := en.codec.DecodeContext(data)
	if err != nil {
		return nil, err
	}
	return en.codec.EncodeActions(en.Evaluate(ctx))
}
