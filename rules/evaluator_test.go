package rules

import (
	"bytes"
	"log/slog"
	"reflect"
	"strings"
	"testing"
)

type recordingObserver struct {
	fired    []string
	nearMiss []string
}

func (o *recordingObserver) RuleFired(rule Rule, actions int) {
	o.fired = append(o.fired, rule.ID)
}

func (o *recordingObserver) RuleNearMiss(rule Rule, draw float64) {
	o.nearMiss = append(o.nearMiss, rule.ID)
}

func unconditional(id string, probability float64, actions ...Action) Rule {
	return Rule{
		ID:          id,
		Name:        id,
		Description: "test rule",
		Conditions:  []Condition{},
		Actions:     actions,
		Probability: probability,
		Enabled:     true,
	}
}

func TestEvaluateRuleDisabled(t *testing.T) {
	random := NewSequenceRandom(0)
	obs := &recordingObserver{}
	ev := NewEvaluator(WithRandomSource(random), WithObserver(obs))

	rule := unconditional("off", 1.0, SuggestBreak{})
	rule.Enabled = false

	actions, ok := ev.EvaluateRule(rule, NewContext("youtube", "video"))
	if ok || actions != nil {
		t.Errorf("disabled rule fired: %v", actions)
	}
	if random.Calls() != 0 {
		t.Errorf("disabled rule consumed %d draws, want 0", random.Calls())
	}
	if len(obs.nearMiss) != 0 {
		t.Errorf("disabled rule reported near misses: %v", obs.nearMiss)
	}
}

func TestEvaluateRuleConditionsFailSkipsDraw(t *testing.T) {
	random := NewSequenceRandom(0)
	ev := NewEvaluator(WithRandomSource(random))

	rule := EngagementDisruption(50)
	if _, ok := ev.EvaluateRule(rule, NewContext("youtube", "video").WithScrollDepth(50)); ok {
		t.Error("rule should not match at the limit")
	}
	if random.Calls() != 0 {
		t.Errorf("unmatched rule consumed %d draws, want 0", random.Calls())
	}
}

func TestEvaluateRuleProbabilityGate(t *testing.T) {
	tests := []struct {
		name        string
		probability float64
		draw        float64
		want        bool
	}{
		{"always fires at 1.0", 1.0, 0.999999, true},
		{"draw below probability", 0.5, 0.3, true},
		{"draw equal to probability", 0.5, 0.5, true},
		{"draw above probability", 0.5, 0.7, false},
		{"zero probability with zero draw", 0.0, 0.0, false},
		{"zero probability", 0.0, 0.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := NewEvaluator(WithRandomSource(FixedRandom(tt.draw)))
			_, ok := ev.EvaluateRule(unconditional("r", tt.probability, ClickOffTopic{}), NewContext("x", "y"))
			if ok != tt.want {
				t.Errorf("EvaluateRule() fired = %v, want %v", ok, tt.want)
			}
		})
	}
}

// TestEvaluateRuleProbabilityOneNeverFlakes uses the real generator.
func TestEvaluateRuleProbabilityOneNeverFlakes(t *testing.T) {
	rule := NoiseInjection(1.0)
	ctx := NewContext("youtube", "video")
	for i := 0; i < 1000; i++ {
		actions, ok := rule.Evaluate(ctx)
		if !ok || len(actions) != 1 {
			t.Fatalf("iteration %d: probability 1.0 rule did not fire", i)
		}
	}
}

func TestEvaluateRuleProbabilityZeroNeverFires(t *testing.T) {
	ev := NewEvaluator(WithRandomSource(NewSeededRandom(7)))
	rule := NoiseInjection(0.0)
	ctx := NewContext("youtube", "video")
	for i := 0; i < 1000; i++ {
		if _, ok := ev.EvaluateRule(rule, ctx); ok {
			t.Fatalf("iteration %d: probability 0.0 rule fired", i)
		}
	}
}

func TestEvaluateRuleReturnsCopy(t *testing.T) {
	rule := ProfileDilution(1.0)
	actions, ok := rule.Evaluate(NewContext("youtube", "video"))
	if !ok {
		t.Fatal("rule should fire")
	}
	actions[0].(OpenBackgroundTabs).URLs[0] = "mutated"
	if rule.Actions[0].(OpenBackgroundTabs).URLs[0] == "mutated" {
		t.Error("returned actions alias the rule's actions")
	}
}

func TestEvaluateRuleNearMissLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := &recordingObserver{}
	ev := NewEvaluator(
		WithRandomSource(NewSequenceRandom(0.9, 0.1)),
		WithLogger(logger),
		WithObserver(obs),
	)

	rule := unconditional("coin", 0.5, SuggestBreak{})
	ctx := NewContext("youtube", "video")

	if _, ok := ev.EvaluateRule(rule, ctx); ok {
		t.Fatal("first draw 0.9 should miss")
	}
	if _, ok := ev.EvaluateRule(rule, ctx); !ok {
		t.Fatal("second draw 0.1 should fire")
	}

	out := buf.String()
	if !strings.Contains(out, "rule near miss") || !strings.Contains(out, "rule_id=coin") {
		t.Errorf("near miss not logged, got %q", out)
	}
	if !reflect.DeepEqual(obs.nearMiss, []string{"coin"}) {
		t.Errorf("near misses = %v, want [coin]", obs.nearMiss)
	}
	if !reflect.DeepEqual(obs.fired, []string{"coin"}) {
		t.Errorf("fired = %v, want [coin]", obs.fired)
	}
}

func TestEvaluateRulesOrder(t *testing.T) {
	rules := []Rule{
		unconditional("a", 1.0, InjectNoise{Count: 1}, Log{Message: "a2"}),
		unconditional("b", 0.0, SuggestBreak{}),
		unconditional("c", 1.0, ClickOffTopic{}, ScrollLimit{MaxItems: 3}),
	}
	ev := NewEvaluator(WithRandomSource(FixedRandom(0)))

	got := ev.EvaluateRules(rules, NewContext("x", "y"))
	want := []Action{InjectNoise{Count: 1}, Log{Message: "a2"}, ClickOffTopic{}, ScrollLimit{MaxItems: 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("EvaluateRules() = %v, want %v", got, want)
	}
}

func TestEvaluateRulesEmpty(t *testing.T) {
	got := EvaluateRules(nil, NewContext("x", "y"))
	if got == nil || len(got) != 0 {
		t.Errorf("EvaluateRules(nil) = %#v, want empty non-nil slice", got)
	}
}

// TestEvaluateRulesSplitConcatenation checks that evaluating two halves of a
// rule set and concatenating equals evaluating the whole set.
func TestEvaluateRulesSplitConcatenation(t *testing.T) {
	rules := []Rule{
		EngagementDisruption(10),
		NoiseInjection(0.5),
		ProfileDilution(0.5),
		unconditional("log", 1.0, Log{Message: "seen"}),
		NoiseInjection(0.9),
	}
	ctx := NewContext("youtube", "video").WithScrollDepth(20)

	for split := 0; split <= len(rules); split++ {
		whole := NewEvaluator(WithRandomSource(NewSeededRandom(42)))
		halves := NewEvaluator(WithRandomSource(NewSeededRandom(42)))

		want := whole.EvaluateRules(rules, ctx)
		got := append(halves.EvaluateRules(rules[:split], ctx), halves.EvaluateRules(rules[split:], ctx)...)

		if !reflect.DeepEqual(got, want) {
			t.Errorf("split at %d: got %v, want %v", split, got, want)
		}
	}
}
