// Package policy maps a model confidence score to a routing tier.
package policy

// Tier is the outcome of the confidence policy.
type Tier int

const (
	// AutoHandle lets the AI answer on its own.
	AutoHandle Tier = iota
	// HandleWithSuggestion lets the AI answer but appends a soft offer of
	// human help.
	HandleWithSuggestion
	// MustHandoff routes the conversation to staff.
	MustHandoff
)

func (t Tier) String() string {
	switch t {
	case AutoHandle:
		return "auto_handle"
	case HandleWithSuggestion:
		return "handle_with_suggestion"
	case MustHandoff:
		return "must_handoff"
	}
	return "unknown"
}

type Thresholds struct {
	Auto    float64
	Suggest float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{Auto: 0.80, Suggest: 0.65}
}

// Decide applies the two-threshold policy. handoffRequired overrides any
// confidence. Values exactly on a threshold round in favor of the more
// autonomous tier (>=, not >) — this is the authoritative tie-break.
func Decide(confidence float64, handoffRequired bool, t Thresholds) Tier {
	if handoffRequired {
		return MustHandoff
	}
	if confidence >= t.Auto {
		return AutoHandle
	}
	if confidence >= t.Suggest {
		return HandleWithSuggestion
	}
	return MustHandoff
}
