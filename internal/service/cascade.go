package service

import (
	"context"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CascadeResolver propagates a source's fall or rise to the patterns built on
// it. Propagation is breadth-first along source edges and keyed by the root
// status_changed event, so replaying the same root changes nothing.
type CascadeResolver struct {
	thresholds domain.Thresholds
	logger     *zap.Logger
}

func NewCascadeResolver(t domain.Thresholds, logger *zap.Logger) *CascadeResolver {
	return &CascadeResolver{thresholds: t, logger: logger}
}

type cascadeStep struct {
	source uuid.UUID
	fallen bool
}

// OnStatusChanged reacts to a committed status_changed event and returns the
// curiosities it touched, in first-visit order.
//
// A dependent is re-scored once per root. It can be reached again through a
// source that falls later in the same cascade; the penalty is not repeated
// then, but the dependent dissolves if no viable source is left.
func (r *CascadeResolver) OnStatusChanged(ctx context.Context, txn *Txn, root *domain.CuriosityEvent) ([]uuid.UUID, error) {
	_, next, ok := root.StatusChange()
	if !ok || (!next.Fallen() && !next.Risen()) {
		return nil, nil
	}

	rootID := root.ID
	queue := []cascadeStep{{source: root.CuriosityID, fallen: next.Fallen()}}
	seen := map[uuid.UUID]bool{}
	var affected []uuid.UUID

	touch := func(id uuid.UUID) {
		if !seen[id] {
			seen[id] = true
			affected = append(affected, id)
		}
	}

	for len(queue) > 0 {
		step := queue[0]
		queue = queue[1:]

		for _, dep := range txn.Dependents(step.source) {
			if dep.ID == root.CuriosityID || dep.Kind != domain.KindPattern || dep.Status.Terminal() {
				continue
			}

			var (
				status domain.Status
				err    error
			)
			if dep.HasAppliedCascade(rootID) {
				if !step.fallen || r.viableSources(txn, dep) > 0 {
					continue
				}
				status, err = r.dissolve(ctx, txn, dep, rootID)
			} else {
				status, err = r.rescore(ctx, txn, dep, step, rootID)
			}
			if err != nil {
				return affected, err
			}
			touch(dep.ID)

			if status != dep.Status && (status.Fallen() || status.Risen()) {
				queue = append(queue, cascadeStep{source: dep.ID, fallen: status.Fallen()})
			}
		}
	}

	cascadeDepth.Observe(float64(len(affected)))
	if len(affected) > 0 {
		r.logger.Info("cascade applied",
			zap.String("subject_id", txn.SubjectID().String()),
			zap.String("root_event_id", rootID.String()),
			zap.Int("affected", len(affected)))
	}
	return affected, nil
}

func (r *CascadeResolver) rescore(ctx context.Context, txn *Txn, dep *domain.Curiosity, step cascadeStep, rootID uuid.UUID) (domain.Status, error) {
	conf := dep.Value()
	status := dep.Status
	reason := "source strengthened"

	switch {
	case step.fallen && r.viableSources(txn, dep) == 0:
		status = domain.StatusDissolved
		reason = "no viable source remains"
	case step.fallen:
		conf = domain.Clamp01(conf - r.thresholds.CascadePenalty)
		if s := r.thresholds.Step(dep.Kind, dep.Status, conf); !rising(dep.Kind, dep.Status, s) {
			status = s
		}
		reason = "source weakened"
	default:
		conf = domain.Clamp01(conf + r.thresholds.CascadeBoost)
		if s := r.thresholds.Step(dep.Kind, dep.Status, conf); rising(dep.Kind, dep.Status, s) {
			status = s
		}
	}

	ref := rootID
	changes := map[string]domain.FieldChange{}
	if conf != dep.Value() {
		changes[domain.FieldConfidence] = domain.FieldChange{Old: dep.Confidence, New: domain.Float(conf)}
	}
	if _, err := txn.Commit(ctx, domain.CuriosityEvent{
		CuriosityID: dep.ID,
		Type:        domain.EventCascaded,
		Changes:     changes,
		Trigger:     domain.Trigger{Kind: domain.TriggerCascade, Ref: &ref, Reason: reason},
	}); err != nil {
		return dep.Status, err
	}

	return r.transition(ctx, txn, dep, status, rootID, reason)
}

// dissolve retires a dependent that already took this root's adjustment and
// has since lost its last viable source.
func (r *CascadeResolver) dissolve(ctx context.Context, txn *Txn, dep *domain.Curiosity, rootID uuid.UUID) (domain.Status, error) {
	return r.transition(ctx, txn, dep, domain.StatusDissolved, rootID, "no viable source remains")
}

func (r *CascadeResolver) transition(ctx context.Context, txn *Txn, dep *domain.Curiosity, status domain.Status, rootID uuid.UUID, reason string) (domain.Status, error) {
	if status == dep.Status {
		return status, nil
	}
	ref := rootID
	if !domain.CanTransition(dep.Kind, dep.Status, status) {
		r.logger.Error("cascade transition not allowed",
			zap.String("curiosity_id", dep.ID.String()),
			zap.String("from", string(dep.Status)),
			zap.String("to", string(status)))
		return dep.Status, nil
	}
	if _, err := txn.Commit(ctx, domain.CuriosityEvent{
		CuriosityID: dep.ID,
		Type:        domain.EventStatusChanged,
		Changes: map[string]domain.FieldChange{
			domain.FieldStatus: {Old: dep.Status, New: status},
		},
		Trigger: domain.Trigger{Kind: domain.TriggerCascade, Ref: &ref, Reason: reason},
	}); err != nil {
		return dep.Status, err
	}
	return status, nil
}

// viableSources counts sources that still exist and still carry weight.
func (r *CascadeResolver) viableSources(txn *Txn, c *domain.Curiosity) int {
	n := 0
	for _, id := range c.SourceCuriosities {
		src, err := txn.Get(id)
		if err != nil {
			continue
		}
		switch src.Status {
		case domain.StatusRefuted, domain.StatusWeak, domain.StatusDissolved, domain.StatusTransformed:
			continue
		}
		n++
	}
	return n
}
