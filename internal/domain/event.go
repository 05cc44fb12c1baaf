package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventCreated         EventType = "created"
	EventEvidenceApplied EventType = "evidence_applied"
	EventStatusChanged   EventType = "status_changed"
	EventDecayed         EventType = "decayed"
	EventCascaded        EventType = "cascaded"
	EventPullAdjusted    EventType = "pull_adjusted"
	EventLineageLinked   EventType = "lineage_linked"
	EventFlagged         EventType = "flagged"
)

func ValidEventType(t string) bool {
	switch EventType(t) {
	case EventCreated, EventEvidenceApplied, EventStatusChanged, EventDecayed,
		EventCascaded, EventPullAdjusted, EventLineageLinked, EventFlagged:
		return true
	}
	return false
}

// Field names used in event change sets.
const (
	FieldPull              = "pull"
	FieldFullness          = "fullness"
	FieldConfidence        = "confidence"
	FieldStatus            = "status"
	FieldTimesActivated    = "times_activated"
	FieldLastActivatedAt   = "last_activated_at"
	FieldLastDecayedAt     = "last_decayed_at"
	FieldContradictions    = "contradictions"
	FieldEmergesFrom       = "emerges_from"
	FieldSourceCuriosities = "source_curiosities"
	FieldFlag              = "flag"
	FieldFocus             = "focus"
	FieldDomain            = "domain"
	FieldTheory            = "theory"
)

type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

type TriggerKind string

const (
	TriggerOracle   TriggerKind = "oracle"
	TriggerDecay    TriggerKind = "decay"
	TriggerCascade  TriggerKind = "cascade"
	TriggerEvidence TriggerKind = "evidence"
	TriggerLineage  TriggerKind = "lineage"
)

// Trigger records what caused an event. Ref points at the causing event or
// evidence when there is one.
type Trigger struct {
	Kind   TriggerKind `json:"kind"`
	Ref    *uuid.UUID  `json:"ref,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// CuriosityEvent is the unit of the append-only log. The repository view is a
// fold over a subject's events in sequence order.
type CuriosityEvent struct {
	ID          uuid.UUID              `json:"id"`
	SubjectID   uuid.UUID              `json:"subject_id"`
	Sequence    int64                  `json:"sequence"`
	CuriosityID uuid.UUID              `json:"curiosity_id"`
	Type        EventType              `json:"event_type"`
	Changes     map[string]FieldChange `json:"changes,omitempty"`
	Trigger     Trigger                `json:"trigger"`
	Curiosity   *Curiosity             `json:"curiosity,omitempty"`
	Evidence    *Evidence              `json:"evidence,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}

// StatusChange extracts old and new status from a status_changed event.
func (e *CuriosityEvent) StatusChange() (old, new Status, ok bool) {
	ch, found := e.Changes[FieldStatus]
	if !found {
		return "", "", false
	}
	o, ok1 := asString(ch.Old)
	n, ok2 := asString(ch.New)
	if !ok1 || !ok2 {
		return "", "", false
	}
	return Status(o), Status(n), true
}
