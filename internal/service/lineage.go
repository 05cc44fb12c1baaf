package service

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/google/uuid"
)

// LinkLineage records that child emerges from parent and/or is built on
// sources. Links that would close a cycle are refused; the child is flagged
// with a flagged event and ErrCascadeCycle is returned.
func (t *Txn) LinkLineage(ctx context.Context, childID uuid.UUID, parentID *uuid.UUID, sourceIDs []uuid.UUID) (*domain.Curiosity, error) {
	child, err := t.Get(childID)
	if err != nil {
		return nil, err
	}
	if parentID == nil && len(sourceIDs) == 0 {
		return nil, fmt.Errorf("%w: link needs a parent or sources", ErrInvalidOperation)
	}
	if len(sourceIDs) > 0 && child.Kind != domain.KindPattern {
		return nil, fmt.Errorf("%w: only patterns have source curiosities", ErrInvalidOperation)
	}

	targets := append([]uuid.UUID(nil), sourceIDs...)
	if parentID != nil {
		targets = append(targets, *parentID)
	}
	for _, id := range targets {
		if _, err := t.Get(id); err != nil {
			return nil, err
		}
	}

	if via, ok := t.closesCycle(childID, targets); ok {
		reason := "lineage cycle via " + via.String()
		if _, err := t.Commit(ctx, domain.CuriosityEvent{
			CuriosityID: childID,
			Type:        domain.EventFlagged,
			Changes: map[string]domain.FieldChange{
				domain.FieldFlag: {Old: child.Flag, New: reason},
			},
			Trigger: domain.Trigger{Kind: domain.TriggerLineage, Ref: &via, Reason: reason},
		}); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", ErrCascadeCycle, reason)
	}

	changes := map[string]domain.FieldChange{}
	if parentID != nil && (child.EmergesFrom == nil || *child.EmergesFrom != *parentID) {
		changes[domain.FieldEmergesFrom] = domain.FieldChange{Old: child.EmergesFrom, New: *parentID}
	}
	if len(sourceIDs) > 0 {
		merged := append([]uuid.UUID(nil), child.SourceCuriosities...)
		for _, id := range sourceIDs {
			if !containsID(merged, id) {
				merged = append(merged, id)
			}
		}
		if len(merged) != len(child.SourceCuriosities) {
			changes[domain.FieldSourceCuriosities] = domain.FieldChange{Old: child.SourceCuriosities, New: merged}
		}
	}
	if len(changes) == 0 {
		return child, nil
	}

	if _, err := t.Commit(ctx, domain.CuriosityEvent{
		CuriosityID: childID,
		Type:        domain.EventLineageLinked,
		Changes:     changes,
		Trigger:     domain.Trigger{Kind: domain.TriggerLineage},
	}); err != nil {
		return nil, err
	}
	return t.Get(childID)
}

// closesCycle reports whether child is reachable from any target by walking
// emerges_from and source edges, returning the target that reaches it.
func (t *Txn) closesCycle(child uuid.UUID, targets []uuid.UUID) (uuid.UUID, bool) {
	t.state.mu.RLock()
	defer t.state.mu.RUnlock()
	view := t.state.view

	for _, start := range targets {
		if start == child {
			return start, true
		}
		seen := map[uuid.UUID]bool{}
		stack := []uuid.UUID{start}
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if id == child {
				return start, true
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			c, ok := view.Curiosities[id]
			if !ok {
				continue
			}
			if c.EmergesFrom != nil {
				stack = append(stack, *c.EmergesFrom)
			}
			stack = append(stack, c.SourceCuriosities...)
		}
	}
	return uuid.Nil, false
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
