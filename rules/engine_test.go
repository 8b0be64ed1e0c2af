package rules

import (
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"sigs.k8s.io/yaml"
)

func TestNewEngineIsEmpty(t *testing.T) {
	engine := NewEngine()

	if engine.Len() != 0 {
		t.Errorf("Len() = %d, want 0", engine.Len())
	}
	if got := engine.NarrateRules(); got != "" {
		t.Errorf("NarrateRules() = %q, want empty", got)
	}
	if got := engine.Evaluate(NewContext("youtube", "video")); got == nil || len(got) != 0 {
		t.Errorf("Evaluate() = %#v, want empty non-nil slice", got)
	}
}

func TestEngineEvaluateRuleOrder(t *testing.T) {
	engine := NewEngine()
	engine.AddRule(EngagementDisruption(10))
	engine.AddRule(NoiseInjection(1.0))

	got := engine.Evaluate(NewContext("youtube", "video").WithScrollDepth(20))
	want := []Action{SuggestBreak{}, InjectNoise{Count: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Evaluate() = %v, want %v", got, want)
	}
}

func TestEngineExcludesDisabledRules(t *testing.T) {
	engine := NewEngine(WithRandomSource(FixedRandom(0)))
	off := NoiseInjection(1.0)
	off.Enabled = false
	engine.AddRule(off)
	engine.AddRule(EngagementDisruption(0))

	got := engine.Evaluate(NewContext("youtube", "video").WithScrollDepth(1))
	if !reflect.DeepEqual(got, []Action{SuggestBreak{}}) {
		t.Errorf("Evaluate() = %v, want [SuggestBreak]", got)
	}
	if engine.Len() != 2 {
		t.Errorf("Len() = %d, want 2", engine.Len())
	}
}

func TestEngineNarrateRules(t *testing.T) {
	engine := NewEngine()
	engine.AddRules(DefaultPresets())

	want := "• Noise Injection: Occasionally click content outside your inferred profile\n" +
		"• Profile Dilution: Open diverse background tabs when viewing niche content\n" +
		"• Engagement Disruption: Suggest break after 50 scroll events"
	if got := engine.NarrateRules(); got != want {
		t.Errorf("NarrateRules() =\n%s\nwant\n%s", got, want)
	}
}

func TestEngineRulesAreCopies(t *testing.T) {
	engine := NewEngine()
	rule := ProfileDilution(1.0)
	engine.AddRule(rule)

	rule.Name = "changed after add"
	rules := engine.Rules()
	if rules[0].Name != "Profile Dilution" {
		t.Errorf("AddRule kept a reference to the caller's rule")
	}

	rules[0].Actions[0].(OpenBackgroundTabs).URLs[0] = "changed"
	if engine.Rules()[0].Actions[0].(OpenBackgroundTabs).URLs[0] == "changed" {
		t.Error("Rules() exposes internal state")
	}
}

func TestEngineAddEncodedRule(t *testing.T) {
	engine := NewEngine()
	data := []byte(`{
		"id": "shorts-break",
		"name": "Shorts Break",
		"description": "Break after a long shorts session",
		"conditions": [
			{"field": "content_type", "operator": "Contains", "value": "shorts"},
			{"field": "session_duration", "operator": "GreaterThan", "value": 900}
		],
		"actions": [{"type": "SuggestBreak"}, {"type": "ScrollLimit", "payload": {"max_items": 5}}],
		"probability": 1.0,
		"enabled": true
	}`)

	if err := engine.AddEncodedRule(data); err != nil {
		t.Fatalf("AddEncodedRule() failed: %v", err)
	}

	out, err := engine.EvaluateEncoded([]byte(`{
		"platform": "youtube",
		"content_type": "video/shorts",
		"scroll_depth": 3,
		"session_duration": 1200,
		"recent_categories": ["music"],
		"timestamp": 1700000000
	}`))
	if err != nil {
		t.Fatalf("EvaluateEncoded() failed: %v", err)
	}
	want := `[{"type":"SuggestBreak"},{"type":"ScrollLimit","payload":{"max_items":5}}]`
	if string(out) != want {
		t.Errorf("EvaluateEncoded() = %s, want %s", out, want)
	}
}

func TestEngineAddEncodedRuleErrorLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"id":`},
		{"missing enabled", `{"id":"a","name":"a","description":"","conditions":[],"actions":[],"probability":1}`},
		{"unknown action", `{"id":"a","name":"a","description":"","conditions":[],"actions":[{"type":"Nope"}],"probability":1,"enabled":true}`},
		{"probability out of range", `{"id":"a","name":"a","description":"","conditions":[],"actions":[],"probability":1.5,"enabled":true}`},
		{"unknown operator", `{"id":"a","name":"a","description":"","conditions":[{"field":"platform","operator":"Like","value":"x"}],"actions":[],"probability":1,"enabled":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine()
			engine.AddRule(NoiseInjection(1.0))

			err := engine.AddEncodedRule([]byte(tt.data))
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("AddEncodedRule() error = %v, want *ParseError", err)
			}
			if perr.Target != "rule" {
				t.Errorf("ParseError.Target = %q, want rule", perr.Target)
			}
			if engine.Len() != 1 {
				t.Errorf("Len() = %d after failed add, want 1", engine.Len())
			}
		})
	}
}

func TestEngineEvaluateEncodedErrors(t *testing.T) {
	engine := NewEngine()
	engine.AddRule(NoiseInjection(1.0))

	for _, input := range []string{
		``,
		`{"platform":"youtube"}`,
		`{"platform":"youtube","content_type":"video","scroll_depth":-1,"session_duration":0,"recent_categories":[],"timestamp":0}`,
	} {
		_, err := engine.EvaluateEncoded([]byte(input))
		var perr *ParseError
		if !errors.As(err, &perr) || perr.Target != "context" {
			t.Errorf("EvaluateEncoded(%q) error = %v, want context ParseError", input, err)
		}
	}
}

func TestEngineEvaluateEncodedEmptyResult(t *testing.T) {
	engine := NewEngine()
	ctx, _ := json.Marshal(NewContext("youtube", "video"))

	out, err := engine.EvaluateEncoded(ctx)
	if err != nil {
		t.Fatalf("EvaluateEncoded() failed: %v", err)
	}
	if string(out) != "[]" {
		t.Errorf("EvaluateEncoded() = %s, want []", out)
	}
}

func TestEngineYAMLCodec(t *testing.T) {
	engine := NewEngine(WithCodec(YAMLCodec{}), WithRandomSource(FixedRandom(0)))
	err := engine.AddEncodedRule([]byte(`
id: lens
name: Calm Lens
description: Apply the calm lens on tiktok
conditions:
  - field: platform
    operator: Equals
    value: tiktok
actions:
  - type: ApplyLens
    payload:
      lens_name: calm
probability: 0.5
enabled: true
`))
	if err != nil {
		t.Fatalf("AddEncodedRule() failed: %v", err)
	}

	out, err := engine.EvaluateEncoded([]byte(`
platform: tiktok
content_type: video
scroll_depth: 0
session_duration: 0
recent_categories: []
timestamp: 0
`))
	if err != nil {
		t.Fatalf("EvaluateEncoded() failed: %v", err)
	}
	asJSON, err := yaml.YAMLToJSON(out)
	if err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, out)
	}
	want := `[{"payload":{"lens_name":"calm"},"type":"ApplyLens"}]`
	if string(asJSON) != want {
		t.Errorf("EvaluateEncoded() =\n%s\nwant the YAML form of %s", out, want)
	}
}

func TestEngineConcurrentAccess(t *testing.T) {
	engine := NewEngine(WithRandomSource(NewSeededRandom(1)))
	ctx := NewContext("youtube", "video").WithScrollDepth(100)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				engine.AddRule(EngagementDisruption(10))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = engine.Evaluate(ctx)
				_ = engine.NarrateRules()
			}
		}()
	}
	wg.Wait()

	if engine.Len() != 400 {
		t.Errorf("Len() = %d, want 400", engine.Len())
	}
	if got := engine.Evaluate(ctx); len(got) != 400 {
		t.Errorf("Evaluate() returned %d actions, want 400", len(got))
	}
}
