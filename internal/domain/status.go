package domain

import "errors"

// Thresholds holds the status boundaries and cascade constants.
type Thresholds struct {
	HypothesisTesting   float64 `json:"hypothesis_testing"`
	HypothesisSupported float64 `json:"hypothesis_supported"`
	HypothesisConfirmed float64 `json:"hypothesis_confirmed"`

	PatternSolid        float64 `json:"pattern_solid"`
	PatternFoundational float64 `json:"pattern_foundational"`

	QuestionAnswered float64 `json:"question_answered"`

	RefuteConfidence        float64 `json:"refute_confidence"`
	RefuteMinContradictions int     `json:"refute_min_contradictions"`

	CascadePenalty float64 `json:"cascade_penalty"`
	CascadeBoost   float64 `json:"cascade_boost"`
}

var ErrThresholdOrder = errors.New("status thresholds must increase along each ladder")

// Validate checks that each ladder's boundaries are strictly increasing and
// that refutation needs at least one contradiction.
func (t Thresholds) Validate() error {
	if !(t.HypothesisTesting < t.HypothesisSupported && t.HypothesisSupported < t.HypothesisConfirmed) {
		return ErrThresholdOrder
	}
	if !(t.PatternSolid < t.PatternFoundational) {
		return ErrThresholdOrder
	}
	if t.RefuteMinContradictions < 1 {
		return errors.New("refutation needs at least one contradiction")
	}
	return nil
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		HypothesisTesting:       0.25,
		HypothesisSupported:     0.55,
		HypothesisConfirmed:     0.75,
		PatternSolid:            0.45,
		PatternFoundational:     0.70,
		QuestionAnswered:        0.80,
		RefuteConfidence:        0.35,
		RefuteMinContradictions: 2,
		CascadePenalty:          0.15,
		CascadeBoost:            0.10,
	}
}

var ladders = map[Kind][]Status{
	KindDiscovery:  {StatusActive},
	KindQuestion:   {StatusOpen, StatusAnswered},
	KindHypothesis: {StatusWeak, StatusTesting, StatusSupported, StatusConfirmed},
	KindPattern:    {StatusEmerging, StatusSolid, StatusFoundational},
}

// EntryStatus is the rung every new curiosity of a kind starts on.
func EntryStatus(k Kind) Status {
	return ladders[k][0]
}

// Rung returns the position of s on the kind's ladder, or -1 for off-ladder statuses.
func Rung(k Kind, s Status) int {
	for i, st := range ladders[k] {
		if st == s {
			return i
		}
	}
	return -1
}

// Band returns the ladder status the value falls in, ignoring the current status.
func (t Thresholds) Band(k Kind, value float64) Status {
	switch k {
	case KindHypothesis:
		switch {
		case value > t.HypothesisConfirmed:
			return StatusConfirmed
		case value >= t.HypothesisSupported:
			return StatusSupported
		case value >= t.HypothesisTesting:
			return StatusTesting
		default:
			return StatusWeak
		}
	case KindPattern:
		switch {
		case value > t.PatternFoundational:
			return StatusFoundational
		case value >= t.PatternSolid:
			return StatusSolid
		default:
			return StatusEmerging
		}
	case KindQuestion:
		if value >= t.QuestionAnswered {
			return StatusAnswered
		}
		return StatusOpen
	default:
		return StatusActive
	}
}

// Step moves current at most one rung toward the band the value falls in.
// Terminal statuses are returned unchanged; re-activation is handled by the
// evidence processor.
func (t Thresholds) Step(k Kind, current Status, value float64) Status {
	from := Rung(k, current)
	if from < 0 {
		return current
	}
	to := Rung(k, t.Band(k, value))
	switch {
	case to > from:
		return ladders[k][from+1]
	case to < from:
		return ladders[k][from-1]
	default:
		return current
	}
}

// CanTransition encodes the per-kind state machine.
func CanTransition(k Kind, from, to Status) bool {
	if from == to {
		return true
	}
	if from == StatusTransformed {
		return false
	}
	fr, tr := Rung(k, from), Rung(k, to)
	if fr >= 0 && tr >= 0 {
		d := fr - tr
		return d == 1 || d == -1
	}
	switch k {
	case KindHypothesis:
		switch {
		case fr >= 0 && (to == StatusRefuted || to == StatusTransformed):
			return true
		case from == StatusRefuted && (to == EntryStatus(k) || to == StatusTransformed):
			return true
		}
	case KindPattern:
		switch {
		case fr >= 0 && to == StatusDissolved:
			return true
		case from == StatusDissolved && to == EntryStatus(k):
			return true
		}
	}
	return false
}

// StatusReason describes why a value sits in its band, for dashboards.
func (t Thresholds) StatusReason(k Kind, value float64) string {
	switch t.Band(k, value) {
	case StatusConfirmed:
		return "confidence above confirmed threshold"
	case StatusSupported:
		return "confidence within supported band"
	case StatusTesting:
		return "confidence within testing band"
	case StatusWeak:
		return "confidence below testing threshold"
	case StatusFoundational:
		return "confidence above foundational threshold"
	case StatusSolid:
		return "confidence within solid band"
	case StatusEmerging:
		return "confidence below solid threshold"
	case StatusAnswered:
		return "fullness above answered threshold"
	case StatusOpen:
		return "fullness below answered threshold"
	default:
		return "receptive curiosity"
	}
}
