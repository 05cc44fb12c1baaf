package domain

import (
	"time"

	"github.com/google/uuid"
)

// Subject is the entity being understood. It owns one event partition and one
// curiosity view; it is archived, never deleted.
type Subject struct {
	ID         uuid.UUID  `json:"id"`
	ExternalID string     `json:"external_id"`
	CreatedAt  time.Time  `json:"created_at"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
}

func (s *Subject) Archived() bool {
	return s.ArchivedAt != nil
}

// Crystal is a point-in-time synthesis snapshot produced by an external
// collaborator in answer to a SynthesisRequested notification.
type Crystal struct {
	ID                 uuid.UUID   `json:"id"`
	SubjectID          uuid.UUID   `json:"subject_id"`
	RequestID          *uuid.UUID  `json:"request_id,omitempty"`
	SourceCuriosityIDs []uuid.UUID `json:"source_curiosity_ids"`
	SummaryRef         string      `json:"summary_ref,omitempty"`
	CreatedAt          time.Time   `json:"created_at"`
}

// StaleAt reports whether an event at lastEventAt postdates the crystal.
func (c *Crystal) StaleAt(lastEventAt time.Time) bool {
	return lastEventAt.After(c.CreatedAt)
}
