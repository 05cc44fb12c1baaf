package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EvidenceOutcome is what one ApplyEvidence committed.
type EvidenceOutcome struct {
	Evidence    domain.Evidence
	StatusEvent *domain.CuriosityEvent
	// Spawned is the hypothesis created by a transforms effect.
	Spawned *domain.Curiosity
}

// EvidenceProcessor validates oracle evidence, records it and re-derives the
// target's status. The oracle decides the new value; the processor only
// bounds it.
type EvidenceProcessor struct {
	thresholds domain.Thresholds
	logger     *zap.Logger
}

func NewEvidenceProcessor(t domain.Thresholds, logger *zap.Logger) *EvidenceProcessor {
	return &EvidenceProcessor{thresholds: t, logger: logger}
}

func (p *EvidenceProcessor) Validate(target *domain.Curiosity, op domain.ApplyEvidence) error {
	if strings.TrimSpace(op.Reasoning) == "" {
		return fmt.Errorf("%w: reasoning is required", ErrInvalidEvidence)
	}
	if math.IsNaN(op.NewValue) || math.IsInf(op.NewValue, 0) {
		return fmt.Errorf("%w: new_value must be finite", ErrInvalidEvidence)
	}
	if !domain.ValidEffect(string(op.Effect)) {
		return fmt.Errorf("%w: unknown effect %q", ErrInvalidEvidence, op.Effect)
	}
	if !domain.ValidEvidenceSource(string(op.Source)) {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidEvidence, op.Source)
	}
	if op.Dimension != "" && op.Dimension != domain.DimensionFor(target.Nature) {
		return fmt.Errorf("%w: %s does not apply to a %s curiosity", ErrInvalidEvidence, op.Dimension, target.Nature)
	}
	if op.Effect == domain.EffectTransforms && target.Kind != domain.KindHypothesis {
		return fmt.Errorf("%w: only hypotheses can be transformed", ErrInvalidEvidence)
	}
	if target.Status == domain.StatusTransformed {
		return fmt.Errorf("%w: curiosity %s has been transformed", ErrInvalidEvidence, target.ID)
	}
	return nil
}

func (p *EvidenceProcessor) Apply(ctx context.Context, txn *Txn, op domain.ApplyEvidence) (*EvidenceOutcome, error) {
	target, err := txn.Get(op.TargetID)
	if err != nil {
		return nil, err
	}
	if err := p.Validate(target, op); err != nil {
		return nil, err
	}

	now := txn.Now()
	value := domain.Clamp01(op.NewValue)
	ev := domain.Evidence{
		ID:                uuid.New(),
		TargetCuriosityID: target.ID,
		Content:           op.Content,
		Effect:            op.Effect,
		Source:            op.Source,
		NewValue:          value,
		Reasoning:         op.Reasoning,
		RecordedAt:        now,
	}

	changes := map[string]domain.FieldChange{
		domain.FieldTimesActivated:  {Old: target.TimesActivated, New: target.TimesActivated + 1},
		domain.FieldLastActivatedAt: {Old: target.LastActivatedAt, New: now},
	}
	contradictions := target.Contradictions
	if op.Effect == domain.EffectContradicts {
		contradictions++
		changes[domain.FieldContradictions] = domain.FieldChange{Old: target.Contradictions, New: contradictions}
	}
	// A transform retires the hypothesis; the reset value belongs to its successor.
	if op.Effect != domain.EffectTransforms {
		if target.Nature == domain.NatureAssertive {
			changes[domain.FieldConfidence] = domain.FieldChange{Old: target.Confidence, New: domain.Float(value)}
		} else {
			changes[domain.FieldFullness] = domain.FieldChange{Old: target.Fullness, New: domain.Float(value)}
		}
	}

	if _, err := txn.Commit(ctx, domain.CuriosityEvent{
		CuriosityID: target.ID,
		Type:        domain.EventEvidenceApplied,
		Changes:     changes,
		Evidence:    &ev,
		Trigger:     domain.Trigger{Kind: domain.TriggerOracle, Ref: &ev.ID, Reason: op.Reasoning},
	}); err != nil {
		return nil, err
	}

	out := &EvidenceOutcome{Evidence: ev}

	next := p.derive(target, op.Effect, value, contradictions)
	if next != target.Status {
		if !domain.CanTransition(target.Kind, target.Status, next) {
			p.logger.Error("derived status transition not allowed",
				zap.String("curiosity_id", target.ID.String()),
				zap.String("from", string(target.Status)),
				zap.String("to", string(next)))
			return out, nil
		}
		sev, err := txn.Commit(ctx, domain.CuriosityEvent{
			CuriosityID: target.ID,
			Type:        domain.EventStatusChanged,
			Changes: map[string]domain.FieldChange{
				domain.FieldStatus: {Old: target.Status, New: next},
			},
			Trigger: domain.Trigger{Kind: domain.TriggerEvidence, Ref: &ev.ID, Reason: p.reason(target.Kind, next, value)},
		})
		if err != nil {
			return out, err
		}
		out.StatusEvent = sev
	}

	if op.Effect == domain.EffectTransforms {
		spawned, err := p.spawn(ctx, txn, target, op, value)
		if err != nil {
			return out, err
		}
		out.Spawned = spawned
	}
	return out, nil
}

// derive computes the status after evidence. Supporting evidence never lowers
// a status and contradicting evidence never raises one.
func (p *EvidenceProcessor) derive(c *domain.Curiosity, effect domain.Effect, value float64, contradictions int) domain.Status {
	if effect == domain.EffectTransforms {
		return domain.StatusTransformed
	}
	if c.Status == domain.StatusRefuted || c.Status == domain.StatusDissolved {
		if effect == domain.EffectSupports {
			return domain.EntryStatus(c.Kind)
		}
		return c.Status
	}
	if c.Kind == domain.KindHypothesis && effect == domain.EffectContradicts &&
		contradictions >= p.thresholds.RefuteMinContradictions &&
		value < p.thresholds.RefuteConfidence {
		return domain.StatusRefuted
	}

	next := p.thresholds.Step(c.Kind, c.Status, value)
	switch effect {
	case domain.EffectSupports:
		if rising(c.Kind, c.Status, next) {
			return next
		}
	case domain.EffectContradicts:
		if !rising(c.Kind, c.Status, next) {
			return next
		}
	}
	return c.Status
}

func (p *EvidenceProcessor) reason(k domain.Kind, s domain.Status, value float64) string {
	switch s {
	case domain.StatusRefuted:
		return "repeated contradictions with low confidence"
	case domain.StatusTransformed:
		return "theory transformed"
	}
	return p.thresholds.StatusReason(k, value)
}

func (p *EvidenceProcessor) spawn(ctx context.Context, txn *Txn, old *domain.Curiosity, op domain.ApplyEvidence, value float64) (*domain.Curiosity, error) {
	theory := op.NewTheory
	if theory == "" {
		theory = old.Theory
	}
	parent := old.ID
	c := &domain.Curiosity{
		ID:          uuid.New(),
		Nature:      domain.NatureAssertive,
		Kind:        domain.KindHypothesis,
		Focus:       old.Focus,
		Domain:      old.Domain,
		Pull:        old.Pull,
		Confidence:  domain.Float(value),
		Status:      domain.EntryStatus(domain.KindHypothesis),
		Theory:      theory,
		EmergesFrom: &parent,
	}
	spawned, err := txn.Upsert(ctx, c, domain.Trigger{Kind: domain.TriggerEvidence, Ref: &parent, Reason: "transformed from " + parent.String()})
	if err != nil {
		return nil, err
	}
	p.logger.Info("hypothesis transformed",
		zap.String("subject_id", txn.SubjectID().String()),
		zap.String("curiosity_id", old.ID.String()),
		zap.String("successor_id", spawned.ID.String()))
	return spawned, nil
}

// rising reports whether next sits above current on the kind's ladder.
func rising(k domain.Kind, current, next domain.Status) bool {
	return domain.Rung(k, next) > domain.Rung(k, current)
}
