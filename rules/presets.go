package rules

import "fmt"

// Decoy pages opened by ProfileDilution.
var profileDilutionURLs = []string{
	"https://en.wikipedia.org/wiki/Special:Random",
	"https://news.ycombinator.com",
}

// NoiseInjection clicks two off-profile items on every evaluation that passes
// the probability gate.
func NoiseInjection(probability float64) Rule {
	return Rule{
		ID:          "noise-injection",
		Name:        "Noise Injection",
		Description: "Occasionally click content outside your inferred profile",
		Conditions:  []Condition{},
		Actions:     []Action{InjectNoise{Count: 2}},
		Probability: probability,
		Enabled:     true,
	}
}

// ProfileDilution opens decoy background tabs.
func ProfileDilution(probability float64) Rule {
	return Rule{
		ID:          "profile-dilution",
		Name:        "Profile Dilution",
		Description: "Open diverse background tabs when viewing niche content",
		Conditions:  []Condition{},
		Actions: []Action{OpenBackgroundTabs{
			URLs: append([]string{}, profileDilutionURLs...),
		}},
		Probability: probability,
		Enabled:     true,
	}
}

// EngagementDisruption suggests a break once scroll depth exceeds scrollLimit.
func EngagementDisruption(scrollLimit uint32) Rule {
	return Rule{
		ID:          "engagement-disruption",
		Name:        "Engagement Disruption",
		Description: fmt.Sprintf("Suggest break after %d scroll events", scrollLimit),
		Conditions: []Condition{{
			Field:    FieldScrollDepth,
			Operator: OperatorGreaterThan,
			Value:    NumberValue(float64(scrollLimit)),
		}},
		Actions:     []Action{SuggestBreak{}},
		Probability: 1.0,
		Enabled:     true,
	}
}

// DefaultPresets is the rule set a fresh catalog is seeded with.
func DefaultPresets() []Rule {
	return []Rule{
		NoiseInjection(0.3),
		ProfileDilution(0.2),
		EngagementDisruption(50),
	}
}
