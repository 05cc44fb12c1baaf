// Package oracle converts the loosely typed tool calls produced by the
// reasoning model into the engine's closed operation set. Shape errors stop
// here; semantic checks (reasoning present, effect known, value bounds) stay
// with the engine so a bad decision rejects one operation, not the batch.
package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var ErrMalformedCall = errors.New("malformed tool call")

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ToolCall is one decision as emitted by the model: a name plus free-form
// arguments.
type ToolCall struct {
	Type string         `json:"type" validate:"required"`
	Args map[string]any `json:"args"`
}

// CallError locates a malformed call within a batch.
type CallError struct {
	Index int
	Type  string
	Err   error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("operation %d (%s): %v", e.Index, e.Type, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

type createCuriosityArgs struct {
	Kind         string   `json:"kind" validate:"required"`
	Nature       string   `json:"nature"`
	Focus        string   `json:"focus" validate:"required"`
	Domain       string   `json:"domain"`
	InitialPull  *float64 `json:"initial_pull" validate:"required"`
	Theory       string   `json:"theory"`
	EmergesFrom  string   `json:"emerges_from" validate:"omitempty,uuid"`
	InitialValue *float64 `json:"initial_value"`
	Fullness     *float64 `json:"fullness"`
	Confidence   *float64 `json:"confidence"`
}

type applyEvidenceArgs struct {
	TargetID  string   `json:"target_id" validate:"required,uuid"`
	Effect    string   `json:"effect" validate:"required"`
	NewValue  *float64 `json:"new_value" validate:"required"`
	Reasoning string   `json:"reasoning"`
	Source    string   `json:"source"`
	Content   string   `json:"content"`
	Dimension string   `json:"dimension" validate:"omitempty,oneof=fullness confidence"`
	NewTheory string   `json:"new_theory"`
}

type formPatternArgs struct {
	SourceCuriosityIDs []string `json:"source_curiosity_ids" validate:"required,min=1,dive,uuid"`
	InitialConfidence  *float64 `json:"initial_confidence" validate:"required"`
	Focus              string   `json:"focus" validate:"required"`
	Domain             string   `json:"domain"`
	Theory             string   `json:"theory"`
	InitialPull        float64  `json:"initial_pull"`
}

type adjustPullArgs struct {
	TargetID string   `json:"target_id" validate:"required,uuid"`
	NewPull  *float64 `json:"new_pull" validate:"required"`
	Reason   string   `json:"reason"`
}

type linkLineageArgs struct {
	ChildID   string   `json:"child_id" validate:"required,uuid"`
	ParentID  string   `json:"parent_id" validate:"omitempty,uuid"`
	SourceIDs []string `json:"source_ids" validate:"omitempty,dive,uuid"`
}

// Decode converts a single tool call.
func Decode(call ToolCall) (domain.Operation, error) {
	if err := validate.Struct(call); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}

	switch domain.OperationType(strings.ToLower(strings.TrimSpace(call.Type))) {
	case domain.OpCreateCuriosity:
		var a createCuriosityArgs
		if err := bind(call.Args, &a); err != nil {
			return nil, err
		}
		op := domain.CreateCuriosity{
			Kind:        domain.Kind(a.Kind),
			Nature:      domain.Nature(a.Nature),
			Focus:       a.Focus,
			Domain:      a.Domain,
			InitialPull: *a.InitialPull,
			Theory:      a.Theory,
		}
		switch {
		case a.InitialValue != nil:
			op.InitialValue = *a.InitialValue
		case a.Fullness != nil:
			op.InitialValue = *a.Fullness
		case a.Confidence != nil:
			op.InitialValue = *a.Confidence
		}
		if a.EmergesFrom != "" {
			id := uuid.MustParse(a.EmergesFrom)
			op.EmergesFrom = &id
		}
		return op, nil

	case domain.OpApplyEvidence:
		var a applyEvidenceArgs
		if err := bind(call.Args, &a); err != nil {
			return nil, err
		}
		source := a.Source
		if source == "" {
			source = string(domain.SourceConversation)
		}
		return domain.ApplyEvidence{
			TargetID:  uuid.MustParse(a.TargetID),
			Effect:    domain.Effect(a.Effect),
			NewValue:  *a.NewValue,
			Reasoning: a.Reasoning,
			Source:    domain.EvidenceSource(source),
			Content:   a.Content,
			Dimension: domain.Dimension(a.Dimension),
			NewTheory: a.NewTheory,
		}, nil

	case domain.OpFormPattern:
		var a formPatternArgs
		if err := bind(call.Args, &a); err != nil {
			return nil, err
		}
		ids := make([]uuid.UUID, len(a.SourceCuriosityIDs))
		for i, s := range a.SourceCuriosityIDs {
			ids[i] = uuid.MustParse(s)
		}
		return domain.FormPattern{
			SourceCuriosityIDs: ids,
			InitialConfidence:  *a.InitialConfidence,
			Focus:              a.Focus,
			Domain:             a.Domain,
			Theory:             a.Theory,
			InitialPull:        a.InitialPull,
		}, nil

	case domain.OpAdjustPull:
		var a adjustPullArgs
		if err := bind(call.Args, &a); err != nil {
			return nil, err
		}
		return domain.AdjustPull{
			TargetID: uuid.MustParse(a.TargetID),
			NewPull:  *a.NewPull,
			Reason:   a.Reason,
		}, nil

	case domain.OpLinkLineage:
		var a linkLineageArgs
		if err := bind(call.Args, &a); err != nil {
			return nil, err
		}
		op := domain.LinkLineage{ChildID: uuid.MustParse(a.ChildID)}
		if a.ParentID != "" {
			id := uuid.MustParse(a.ParentID)
			op.ParentID = &id
		}
		for _, s := range a.SourceIDs {
			op.SourceIDs = append(op.SourceIDs, uuid.MustParse(s))
		}
		if op.ParentID == nil && len(op.SourceIDs) == 0 {
			return nil, fmt.Errorf("%w: link_lineage needs parent_id or source_ids", ErrMalformedCall)
		}
		return op, nil

	default:
		return nil, fmt.Errorf("%w: unknown operation type %q", ErrMalformedCall, call.Type)
	}
}

// DecodeBatch converts every call, collecting one CallError per bad call.
func DecodeBatch(calls []ToolCall, storyCount int) (domain.Batch, []error) {
	batch := domain.Batch{StoryCount: storyCount, Operations: make([]domain.Operation, 0, len(calls))}
	var errs []error
	for i, call := range calls {
		op, err := Decode(call)
		if err != nil {
			errs = append(errs, &CallError{Index: i, Type: call.Type, Err: err})
			continue
		}
		batch.Operations = append(batch.Operations, op)
	}
	return batch, errs
}

// bind round-trips the argument map through JSON into a typed struct and
// validates its tags. uuid fields are validated before callers MustParse them.
func bind(args map[string]any, dst any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	return nil
}
