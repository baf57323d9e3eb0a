package policy

import "testing"

func TestDecideHandoffRequiredOverridesConfidence(t *testing.T) {
	th := DefaultThresholds()
	for _, c := range []float64{0.0, 0.5, 0.65, 0.80, 0.99, 1.0} {
		if got := Decide(c, true, th); got != MustHandoff {
			t.Errorf("Decide(%.2f, true) = %v, want MustHandoff", c, got)
		}
	}
}

func TestDecideTiers(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		confidence float64
		want       Tier
	}{
		{1.00, AutoHandle},
		{0.90, AutoHandle},
		{0.80, AutoHandle}, // on-threshold rounds autonomous
		{0.79, HandleWithSuggestion},
		{0.70, HandleWithSuggestion},
		{0.65, HandleWithSuggestion}, // on-threshold rounds autonomous
		{0.64, MustHandoff},
		{0.30, MustHandoff},
		{0.00, MustHandoff},
	}
	for _, c := range cases {
		if got := Decide(c.confidence, false, th); got != c.want {
			t.Errorf("Decide(%.2f, false) = %v, want %v", c.confidence, got, c.want)
		}
	}
}

func TestDecideCustomThresholds(t *testing.T) {
	th := Thresholds{Auto: 0.9, Suggest: 0.5}
	if got := Decide(0.85, false, th); got != HandleWithSuggestion {
		t.Errorf("Decide(0.85) = %v, want HandleWithSuggestion", got)
	}
	if got := Decide(0.49, false, th); got != MustHandoff {
		t.Errorf("Decide(0.49) = %v, want MustHandoff", got)
	}
}
