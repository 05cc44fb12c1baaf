package domain

import "github.com/google/uuid"

type OperationType string

const (
	OpCreateCuriosity OperationType = "create_curiosity"
	OpApplyEvidence   OperationType = "apply_evidence"
	OpFormPattern     OperationType = "form_pattern"
	OpAdjustPull      OperationType = "adjust_pull"
	OpLinkLineage     OperationType = "link_lineage"
)

// Operation is the closed set of decisions the oracle can hand the engine.
// Only types in this package implement it.
type Operation interface {
	OperationType() OperationType
	sealed()
}

type CreateCuriosity struct {
	Nature      Nature     `json:"nature"`
	Kind        Kind       `json:"kind"`
	Focus       string     `json:"focus"`
	Domain      string     `json:"domain"`
	InitialPull float64    `json:"initial_pull"`
	Theory      string     `json:"theory,omitempty"`
	EmergesFrom *uuid.UUID `json:"emerges_from,omitempty"`
	// InitialValue seeds fullness or confidence depending on nature.
	InitialValue float64 `json:"initial_value"`
}

type ApplyEvidence struct {
	TargetID  uuid.UUID      `json:"target_id"`
	Effect    Effect         `json:"effect"`
	NewValue  float64        `json:"new_value"`
	Reasoning string         `json:"reasoning"`
	Source    EvidenceSource `json:"source"`
	Content   string         `json:"content"`
	// Dimension, when set, must match the target's nature.
	Dimension Dimension `json:"dimension,omitempty"`
	// NewTheory replaces the theory of the hypothesis spawned by a transform.
	NewTheory string `json:"new_theory,omitempty"`
}

type FormPattern struct {
	SourceCuriosityIDs []uuid.UUID `json:"source_curiosity_ids"`
	InitialConfidence  float64     `json:"initial_confidence"`
	Focus              string      `json:"focus"`
	Domain             string      `json:"domain,omitempty"`
	Theory             string      `json:"theory,omitempty"`
	InitialPull        float64     `json:"initial_pull,omitempty"`
}

type AdjustPull struct {
	TargetID uuid.UUID `json:"target_id"`
	NewPull  float64   `json:"new_pull"`
	Reason   string    `json:"reason"`
}

type LinkLineage struct {
	ChildID   uuid.UUID   `json:"child_id"`
	ParentID  *uuid.UUID  `json:"parent_id,omitempty"`
	SourceIDs []uuid.UUID `json:"source_ids,omitempty"`
}

func (CreateCuriosity) OperationType() OperationType { return OpCreateCuriosity }
func (ApplyEvidence) OperationType() OperationType   { return OpApplyEvidence }
func (FormPattern) OperationType() OperationType     { return OpFormPattern }
func (AdjustPull) OperationType() OperationType      { return OpAdjustPull }
func (LinkLineage) OperationType() OperationType     { return OpLinkLineage }

func (CreateCuriosity) sealed() {}
func (ApplyEvidence) sealed()   {}
func (FormPattern) sealed()     {}
func (AdjustPull) sealed()      {}
func (LinkLineage) sealed()     {}

// Batch is one turn's worth of oracle output.
type Batch struct {
	Operations []Operation
	// StoryCount is tracked by the caller and only read by the crystallization predicate.
	StoryCount int
}
