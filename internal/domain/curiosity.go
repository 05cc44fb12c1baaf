package domain

import (
	"time"

	"github.com/google/uuid"
)

type Nature string

const (
	NatureReceptive Nature = "receptive"
	NatureAssertive Nature = "assertive"
)

type Kind string

const (
	KindDiscovery  Kind = "discovery"
	KindQuestion   Kind = "question"
	KindHypothesis Kind = "hypothesis"
	KindPattern    Kind = "pattern"
)

func ValidKind(k string) bool {
	switch Kind(k) {
	case KindDiscovery, KindQuestion, KindHypothesis, KindPattern:
		return true
	}
	return false
}

// Nature returns the nature a kind belongs to.
func (k Kind) Nature() Nature {
	switch k {
	case KindHypothesis, KindPattern:
		return NatureAssertive
	default:
		return NatureReceptive
	}
}

type Status string

const (
	StatusActive Status = "active"

	StatusOpen     Status = "open"
	StatusAnswered Status = "answered"

	StatusWeak        Status = "weak"
	StatusTesting     Status = "testing"
	StatusSupported   Status = "supported"
	StatusConfirmed   Status = "confirmed"
	StatusRefuted     Status = "refuted"
	StatusTransformed Status = "transformed"

	StatusEmerging     Status = "emerging"
	StatusSolid        Status = "solid"
	StatusFoundational Status = "foundational"
	StatusDissolved    Status = "dissolved"
)

// Terminal reports whether the status takes a curiosity out of the active set.
// Refuted and dissolved curiosities can still be re-activated by new evidence.
func (s Status) Terminal() bool {
	switch s {
	case StatusRefuted, StatusDissolved, StatusTransformed:
		return true
	}
	return false
}

// Fallen reports whether a status change should weaken dependents. A
// transformed hypothesis no longer backs the patterns built on it.
func (s Status) Fallen() bool {
	return s == StatusRefuted || s == StatusDissolved || s == StatusTransformed
}

// Risen reports whether a status change should strengthen dependents.
func (s Status) Risen() bool {
	return s == StatusConfirmed || s == StatusFoundational
}

type Effect string

const (
	EffectSupports    Effect = "supports"
	EffectContradicts Effect = "contradicts"
	EffectTransforms  Effect = "transforms"
)

func ValidEffect(e string) bool {
	switch Effect(e) {
	case EffectSupports, EffectContradicts, EffectTransforms:
		return true
	}
	return false
}

type EvidenceSource string

const (
	SourceConversation EvidenceSource = "conversation"
	SourceVideo        EvidenceSource = "video"
)

func ValidEvidenceSource(s string) bool {
	switch EvidenceSource(s) {
	case SourceConversation, SourceVideo:
		return true
	}
	return false
}

// Dimension names the measure an evidence value targets.
type Dimension string

const (
	DimensionFullness   Dimension = "fullness"
	DimensionConfidence Dimension = "confidence"
)

// DimensionFor returns the measure carried by curiosities of the given nature.
func DimensionFor(n Nature) Dimension {
	if n == NatureAssertive {
		return DimensionConfidence
	}
	return DimensionFullness
}

type Evidence struct {
	ID                uuid.UUID      `json:"id"`
	TargetCuriosityID uuid.UUID      `json:"target_curiosity_id"`
	Content           string         `json:"content"`
	Effect            Effect         `json:"effect"`
	Source            EvidenceSource `json:"source"`
	NewValue          float64        `json:"new_value"`
	Reasoning         string         `json:"reasoning"`
	RecordedAt        time.Time      `json:"recorded_at"`
}

type Curiosity struct {
	ID                uuid.UUID   `json:"id"`
	SubjectID         uuid.UUID   `json:"subject_id"`
	Nature            Nature      `json:"nature"`
	Kind              Kind        `json:"kind"`
	Focus             string      `json:"focus"`
	Domain            string      `json:"domain"`
	Pull              float64     `json:"pull"`
	Fullness          *float64    `json:"fullness,omitempty"`
	Confidence        *float64    `json:"confidence,omitempty"`
	Status            Status      `json:"status"`
	Theory            string      `json:"theory,omitempty"`
	Evidence          []Evidence  `json:"evidence"`
	EmergesFrom       *uuid.UUID  `json:"emerges_from,omitempty"`
	SourceCuriosities []uuid.UUID `json:"source_curiosities,omitempty"`
	TimesActivated    int         `json:"times_activated"`
	Contradictions    int         `json:"contradictions"`
	AppliedCascades   []uuid.UUID `json:"applied_cascades,omitempty"`
	Flag              string      `json:"flag,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	LastActivatedAt   time.Time   `json:"last_activated_at"`
	LastDecayedAt     *time.Time  `json:"last_decayed_at,omitempty"`
}

// Value returns the populated knowledge measure: fullness for receptive
// curiosities, confidence for assertive ones.
func (c *Curiosity) Value() float64 {
	if c.Nature == NatureAssertive {
		if c.Confidence != nil {
			return *c.Confidence
		}
		return 0
	}
	if c.Fullness != nil {
		return *c.Fullness
	}
	return 0
}

// WellFormed checks the nature/measure exclusivity invariant.
func (c *Curiosity) WellFormed() bool {
	if c.Kind.Nature() != c.Nature {
		return false
	}
	if c.Nature == NatureAssertive {
		return c.Confidence != nil && c.Fullness == nil
	}
	return c.Fullness != nil && c.Confidence == nil
}

// PullAnchor is the instant from which ambient decay is measured.
func (c *Curiosity) PullAnchor() time.Time {
	if c.LastDecayedAt != nil && c.LastDecayedAt.After(c.LastActivatedAt) {
		return *c.LastDecayedAt
	}
	return c.LastActivatedAt
}

func (c *Curiosity) HasAppliedCascade(eventID uuid.UUID) bool {
	for _, id := range c.AppliedCascades {
		if id == eventID {
			return true
		}
	}
	return false
}

func (c *Curiosity) HasSource(id uuid.UUID) bool {
	for _, s := range c.SourceCuriosities {
		if s == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so folds never alias the read view.
func (c *Curiosity) Clone() *Curiosity {
	cp := *c
	if c.Fullness != nil {
		v := *c.Fullness
		cp.Fullness = &v
	}
	if c.Confidence != nil {
		v := *c.Confidence
		cp.Confidence = &v
	}
	if c.EmergesFrom != nil {
		v := *c.EmergesFrom
		cp.EmergesFrom = &v
	}
	if c.LastDecayedAt != nil {
		v := *c.LastDecayedAt
		cp.LastDecayedAt = &v
	}
	cp.Evidence = append([]Evidence(nil), c.Evidence...)
	cp.SourceCuriosities = append([]uuid.UUID(nil), c.SourceCuriosities...)
	cp.AppliedCascades = append([]uuid.UUID(nil), c.AppliedCascades...)
	return &cp
}

// FullnessBand is an informational label for receptive curiosities.
func FullnessBand(fullness float64) string {
	switch {
	case fullness >= 0.7:
		return "rich"
	case fullness >= 0.3:
		return "growing"
	default:
		return "nascent"
	}
}

func Float(v float64) *float64 {
	return &v
}

func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
