package domain

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotifyCuriosityCreated   NotificationType = "curiosity_created"
	NotifyStatusChanged      NotificationType = "status_changed"
	NotifyCascadeApplied     NotificationType = "cascade_applied"
	NotifySynthesisRequested NotificationType = "synthesis_requested"
)

// Notification is delivered at least once; consumers dedupe on EventID.
type Notification struct {
	EventID     uuid.UUID        `json:"event_id"`
	Type        NotificationType `json:"type"`
	SubjectID   uuid.UUID        `json:"subject_id"`
	CuriosityID *uuid.UUID       `json:"curiosity_id,omitempty"`
	OldStatus   Status           `json:"old_status,omitempty"`
	NewStatus   Status           `json:"new_status,omitempty"`
	AffectedIDs []uuid.UUID      `json:"affected_ids,omitempty"`
	Snapshot    []uuid.UUID      `json:"snapshot,omitempty"`
	At          time.Time        `json:"at"`
}
