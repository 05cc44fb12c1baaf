package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/Harshitk-cp/curio/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Stores struct {
	Events    domain.EventStore
	Snapshots domain.SnapshotStore
	Crystals  domain.CrystalStore
	Subjects  domain.SubjectStore
}

type Options struct {
	Thresholds       domain.Thresholds
	DecayRate        float64
	StuckTurnTimeout time.Duration
	PendingTTL       time.Duration
	Clock            Clock
}

func DefaultOptions() Options {
	return Options{
		Thresholds:       domain.DefaultThresholds(),
		DecayRate:        DefaultDecayRate,
		StuckTurnTimeout: 2 * time.Minute,
		PendingTTL:       DefaultPendingTTL,
	}
}

// OpResult reports what happened to one operation of a batch.
type OpResult struct {
	Index       int                  `json:"index"`
	Type        domain.OperationType `json:"type"`
	Applied     bool                 `json:"applied"`
	CuriosityID *uuid.UUID           `json:"curiosity_id,omitempty"`
	SpawnedID   *uuid.UUID           `json:"spawned_id,omitempty"`
	Events      int                  `json:"events"`
	Error       string               `json:"error,omitempty"`
}

type TurnResult struct {
	SubjectID     uuid.UUID             `json:"subject_id"`
	Operations    []OpResult            `json:"operations"`
	Notifications []domain.Notification `json:"notifications"`
	Aborted       bool                  `json:"aborted"`
	AbortError    string                `json:"abort_error,omitempty"`
}

// Engine owns the per-subject handles and applies oracle batches through the
// turn coordinator.
type Engine struct {
	subjects domain.SubjectStore
	repo     *CuriosityRepository
	turns    *TurnCoordinator
	evidence *EvidenceProcessor
	cascade  *CascadeResolver
	crystals *CrystallizationTrigger
	notifier domain.Notifier
	opts     Options
	logger   *zap.Logger
}

func NewEngine(stores Stores, opts Options, notifier domain.Notifier, logger *zap.Logger) *Engine {
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	crystals := NewCrystallizationTrigger(stores.Crystals, stores.Events, opts.Clock, logger)
	if opts.PendingTTL > 0 {
		crystals.PendingTTL = opts.PendingTTL
	}
	return &Engine{
		subjects: stores.Subjects,
		repo:     NewCuriosityRepository(stores.Events, stores.Snapshots, opts.Clock, opts.DecayRate, logger),
		turns:    NewTurnCoordinator(opts.StuckTurnTimeout, opts.Clock, logger),
		evidence: NewEvidenceProcessor(opts.Thresholds, logger),
		cascade:  NewCascadeResolver(opts.Thresholds, logger),
		crystals: crystals,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
	}
}

func (e *Engine) Repository() *CuriosityRepository      { return e.repo }
func (e *Engine) Turns() *TurnCoordinator               { return e.turns }
func (e *Engine) Crystallizer() *CrystallizationTrigger { return e.crystals }

// EnsureSubject returns the subject for externalID, creating it on first use.
func (e *Engine) EnsureSubject(ctx context.Context, externalID string) (*domain.Subject, bool, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, false, fmt.Errorf("%w: external_id is required", ErrInvalidOperation)
	}
	sub, err := e.subjects.GetByExternalID(ctx, externalID)
	if err == nil {
		return sub, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	sub = &domain.Subject{ExternalID: externalID}
	if err := e.subjects.Create(ctx, sub); err != nil {
		if errors.Is(err, store.ErrConflict) {
			sub, err = e.subjects.GetByExternalID(ctx, externalID)
			return sub, false, err
		}
		return nil, false, err
	}
	e.logger.Info("subject created",
		zap.String("subject_id", sub.ID.String()),
		zap.String("external_id", externalID))
	return sub, true, nil
}

func (e *Engine) Subject(ctx context.Context, id uuid.UUID) (*domain.Subject, error) {
	sub, err := e.subjects.GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSubjectNotFound
	}
	return sub, err
}

// TurnState reports whether the subject currently has a turn in flight.
func (e *Engine) TurnState(id uuid.UUID) TurnState {
	return e.turns.State(id)
}

// RebuildResult summarizes a rebuilt subject view.
type RebuildResult struct {
	SubjectID   uuid.UUID `json:"subject_id"`
	LastSeq     int64     `json:"last_seq"`
	Curiosities int       `json:"curiosities"`
}

// RebuildSubject refolds the subject's log under an admin turn and rewrites
// its snapshots. Use it after the log or snapshot table was repaired out of
// band.
func (e *Engine) RebuildSubject(ctx context.Context, id uuid.UUID) (*RebuildResult, error) {
	sub, err := e.Subject(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Archived() {
		return nil, ErrSubjectArchived
	}
	turn, err := e.turns.Begin(id, PurposeAdmin)
	if err != nil {
		return nil, err
	}
	defer turn.End()

	view, err := e.repo.Rebuild(ctx, turn)
	if err != nil {
		return nil, err
	}
	e.logger.Info("subject view rebuilt",
		zap.String("subject_id", id.String()),
		zap.Int64("last_seq", view.LastSeq),
		zap.Int("curiosities", len(view.Curiosities)))
	return &RebuildResult{SubjectID: id, LastSeq: view.LastSeq, Curiosities: len(view.Curiosities)}, nil
}

// ArchiveSubject retires a subject. It waits for no turn: a subject mid-turn
// reports ErrConcurrentTurn.
func (e *Engine) ArchiveSubject(ctx context.Context, id uuid.UUID) error {
	sub, err := e.Subject(ctx, id)
	if err != nil {
		return err
	}
	if sub.Archived() {
		return ErrSubjectArchived
	}
	turn, err := e.turns.Begin(id, PurposeAdmin)
	if err != nil {
		return err
	}
	defer turn.End()

	if err := e.subjects.Archive(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSubjectArchived
		}
		return err
	}
	e.repo.Evict(id)
	e.logger.Info("subject archived", zap.String("subject_id", id.String()))
	return nil
}

// SubmitTurn applies a batch in order. Rejected operations are reported and
// skipped; a consistency failure aborts the remainder but keeps what was
// already committed.
func (e *Engine) SubmitTurn(ctx context.Context, subjectID uuid.UUID, batch domain.Batch) (*TurnResult, error) {
	sub, err := e.Subject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if sub.Archived() {
		return nil, ErrSubjectArchived
	}

	turn, err := e.turns.Begin(subjectID, PurposeBatch)
	if err != nil {
		return nil, err
	}
	defer turn.End()

	start := time.Now()
	defer func() { turnDuration.Observe(time.Since(start).Seconds()) }()

	txn, err := e.repo.Begin(ctx, subjectID, turn)
	if err != nil {
		return nil, err
	}

	result := &TurnResult{SubjectID: subjectID, Operations: make([]OpResult, 0, len(batch.Operations))}
	for i, op := range batch.Operations {
		if err := ctx.Err(); err != nil {
			e.abort(result, subjectID, i, err)
			break
		}

		mark := txn.Mark()
		res := OpResult{Index: i, Type: op.OperationType()}
		cascades, err := e.apply(ctx, txn, op, &res)

		committed := txn.Committed(mark)
		res.Events = len(committed)
		result.Notifications = append(result.Notifications, notificationsFor(committed)...)
		result.Notifications = append(result.Notifications, cascades...)

		if err != nil {
			res.Error = err.Error()
			result.Operations = append(result.Operations, res)
			operationsProcessed.WithLabelValues(string(res.Type), "rejected").Inc()
			if Recoverable(err) {
				e.logger.Warn("operation rejected",
					zap.String("subject_id", subjectID.String()),
					zap.Int("index", i),
					zap.String("operation", string(res.Type)),
					zap.Error(err))
			} else {
				e.abort(result, subjectID, i, err)
				break
			}
		} else {
			res.Applied = true
			result.Operations = append(result.Operations, res)
			operationsProcessed.WithLabelValues(string(res.Type), "applied").Inc()
		}

		if len(committed) > 0 {
			note, err := e.crystals.Evaluate(ctx, subjectID, txn.Snapshot(), batch.StoryCount, txn.LastEventAt())
			if err != nil {
				e.logger.Error("crystallization check failed", zap.String("subject_id", subjectID.String()), zap.Error(err))
			} else if note != nil {
				result.Notifications = append(result.Notifications, *note)
			}
		}
	}

	// A story count alone can cross the threshold without any event.
	if txn.Mark() == 0 && batch.StoryCount > 0 {
		note, err := e.crystals.Evaluate(ctx, subjectID, txn.Snapshot(), batch.StoryCount, txn.LastEventAt())
		if err == nil && note != nil {
			result.Notifications = append(result.Notifications, *note)
		}
	}

	txn.Flush(context.WithoutCancel(ctx))

	if e.notifier != nil && len(result.Notifications) > 0 {
		if err := e.notifier.Notify(context.WithoutCancel(ctx), result.Notifications); err != nil {
			e.logger.Error("notification delivery failed", zap.String("subject_id", subjectID.String()), zap.Error(err))
		}
	}
	return result, nil
}

func (e *Engine) abort(result *TurnResult, subjectID uuid.UUID, index int, err error) {
	result.Aborted = true
	result.AbortError = err.Error()
	e.logger.Error("turn aborted",
		zap.String("subject_id", subjectID.String()),
		zap.Int("index", index),
		zap.Error(err))
}

func (e *Engine) apply(ctx context.Context, txn *Txn, op domain.Operation, res *OpResult) ([]domain.Notification, error) {
	switch o := op.(type) {
	case domain.CreateCuriosity:
		c, err := e.createCuriosity(ctx, txn, o)
		if err != nil {
			return nil, err
		}
		res.CuriosityID = &c.ID
		return nil, nil

	case domain.ApplyEvidence:
		res.CuriosityID = &o.TargetID
		out, err := e.evidence.Apply(ctx, txn, o)
		if out != nil && out.Spawned != nil {
			res.SpawnedID = &out.Spawned.ID
		}
		if err != nil || out.StatusEvent == nil {
			return nil, err
		}
		return e.runCascade(ctx, txn, out.StatusEvent)

	case domain.FormPattern:
		c, err := e.formPattern(ctx, txn, o)
		if err != nil {
			return nil, err
		}
		res.CuriosityID = &c.ID
		return nil, nil

	case domain.AdjustPull:
		res.CuriosityID = &o.TargetID
		return nil, e.adjustPull(ctx, txn, o)

	case domain.LinkLineage:
		res.CuriosityID = &o.ChildID
		_, err := txn.LinkLineage(ctx, o.ChildID, o.ParentID, o.SourceIDs)
		return nil, err

	default:
		return nil, fmt.Errorf("%w: unsupported operation %T", ErrInvalidOperation, op)
	}
}

func (e *Engine) runCascade(ctx context.Context, txn *Txn, root *domain.CuriosityEvent) ([]domain.Notification, error) {
	affected, err := e.cascade.OnStatusChanged(ctx, txn, root)
	if len(affected) == 0 {
		return nil, err
	}
	id := root.CuriosityID
	return []domain.Notification{{
		EventID:     root.ID,
		Type:        domain.NotifyCascadeApplied,
		SubjectID:   root.SubjectID,
		CuriosityID: &id,
		AffectedIDs: affected,
		At:          txn.LastEventAt(),
	}}, err
}

func (e *Engine) createCuriosity(ctx context.Context, txn *Txn, op domain.CreateCuriosity) (*domain.Curiosity, error) {
	if !domain.ValidKind(string(op.Kind)) {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidOperation, op.Kind)
	}
	if op.Kind == domain.KindPattern {
		return nil, fmt.Errorf("%w: patterns are formed from sources", ErrInvalidOperation)
	}
	if op.Nature != "" && op.Nature != op.Kind.Nature() {
		return nil, fmt.Errorf("%w: %s is not a %s kind", ErrInvalidOperation, op.Kind, op.Nature)
	}
	if strings.TrimSpace(op.Focus) == "" {
		return nil, fmt.Errorf("%w: focus is required", ErrInvalidOperation)
	}
	if !finite(op.InitialPull) || !finite(op.InitialValue) {
		return nil, fmt.Errorf("%w: values must be finite", ErrInvalidOperation)
	}
	if op.EmergesFrom != nil {
		if _, err := txn.Get(*op.EmergesFrom); err != nil {
			return nil, err
		}
	}

	nature := op.Kind.Nature()
	c := &domain.Curiosity{
		ID:          uuid.New(),
		Nature:      nature,
		Kind:        op.Kind,
		Focus:       op.Focus,
		Domain:      op.Domain,
		Pull:        domain.Clamp01(op.InitialPull),
		Status:      domain.EntryStatus(op.Kind),
		Theory:      op.Theory,
		EmergesFrom: op.EmergesFrom,
	}
	if nature == domain.NatureAssertive {
		c.Confidence = domain.Float(domain.Clamp01(op.InitialValue))
	} else {
		c.Fullness = domain.Float(domain.Clamp01(op.InitialValue))
	}
	return txn.Upsert(ctx, c, domain.Trigger{Kind: domain.TriggerOracle})
}

func (e *Engine) formPattern(ctx context.Context, txn *Txn, op domain.FormPattern) (*domain.Curiosity, error) {
	if len(op.SourceCuriosityIDs) == 0 {
		return nil, fmt.Errorf("%w: a pattern needs at least one source", ErrInvalidOperation)
	}
	if strings.TrimSpace(op.Focus) == "" {
		return nil, fmt.Errorf("%w: focus is required", ErrInvalidOperation)
	}
	if !finite(op.InitialConfidence) || !finite(op.InitialPull) {
		return nil, fmt.Errorf("%w: values must be finite", ErrInvalidOperation)
	}

	var sources []uuid.UUID
	pull := op.InitialPull
	for _, id := range op.SourceCuriosityIDs {
		src, err := txn.Get(id)
		if err != nil {
			return nil, err
		}
		if containsID(sources, id) {
			continue
		}
		sources = append(sources, id)
		if op.InitialPull == 0 && src.Pull > pull {
			pull = src.Pull
		}
	}

	c := &domain.Curiosity{
		ID:                uuid.New(),
		Nature:            domain.NatureAssertive,
		Kind:              domain.KindPattern,
		Focus:             op.Focus,
		Domain:            op.Domain,
		Pull:              domain.Clamp01(pull),
		Confidence:        domain.Float(domain.Clamp01(op.InitialConfidence)),
		Status:            domain.EntryStatus(domain.KindPattern),
		Theory:            op.Theory,
		SourceCuriosities: sources,
	}
	return txn.Upsert(ctx, c, domain.Trigger{Kind: domain.TriggerOracle})
}

func (e *Engine) adjustPull(ctx context.Context, txn *Txn, op domain.AdjustPull) error {
	if strings.TrimSpace(op.Reason) == "" {
		return fmt.Errorf("%w: reason is required", ErrInvalidOperation)
	}
	if !finite(op.NewPull) {
		return fmt.Errorf("%w: new_pull must be finite", ErrInvalidOperation)
	}
	c, err := txn.Get(op.TargetID)
	if err != nil {
		return err
	}
	c.Pull = domain.Clamp01(op.NewPull)
	_, err = txn.Upsert(ctx, c, domain.Trigger{Kind: domain.TriggerOracle, Reason: op.Reason})
	return err
}

// notificationsFor derives outbound notifications from committed events.
func notificationsFor(events []domain.CuriosityEvent) []domain.Notification {
	var out []domain.Notification
	for i := range events {
		ev := events[i]
		id := ev.CuriosityID
		switch ev.Type {
		case domain.EventCreated:
			out = append(out, domain.Notification{
				EventID:     ev.ID,
				Type:        domain.NotifyCuriosityCreated,
				SubjectID:   ev.SubjectID,
				CuriosityID: &id,
				At:          ev.Timestamp,
			})
		case domain.EventStatusChanged:
			old, next, ok := ev.StatusChange()
			if !ok {
				continue
			}
			out = append(out, domain.Notification{
				EventID:     ev.ID,
				Type:        domain.NotifyStatusChanged,
				SubjectID:   ev.SubjectID,
				CuriosityID: &id,
				OldStatus:   old,
				NewStatus:   next,
				At:          ev.Timestamp,
			})
		}
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Reads.

func (e *Engine) Curiosity(ctx context.Context, subjectID, curiosityID uuid.UUID) (*domain.Curiosity, error) {
	if _, err := e.Subject(ctx, subjectID); err != nil {
		return nil, err
	}
	return e.repo.Get(ctx, subjectID, curiosityID)
}

func (e *Engine) Curiosities(ctx context.Context, subjectID uuid.UUID, activeOnly bool) ([]domain.Curiosity, error) {
	if _, err := e.Subject(ctx, subjectID); err != nil {
		return nil, err
	}
	if activeOnly {
		return e.repo.ListActive(ctx, subjectID)
	}
	return e.repo.List(ctx, subjectID)
}

func (e *Engine) Events(ctx context.Context, subjectID uuid.UUID, afterSeq int64) ([]domain.CuriosityEvent, error) {
	if _, err := e.Subject(ctx, subjectID); err != nil {
		return nil, err
	}
	return e.repo.Events(ctx, subjectID, afterSeq)
}

// RecordCrystal stores a synthesis result for the subject.
func (e *Engine) RecordCrystal(ctx context.Context, c *domain.Crystal) error {
	if _, err := e.Subject(ctx, c.SubjectID); err != nil {
		return err
	}
	for _, id := range c.SourceCuriosityIDs {
		if _, err := e.repo.Get(ctx, c.SubjectID, id); err != nil {
			return err
		}
	}
	return e.crystals.RecordCrystal(ctx, c)
}

func (e *Engine) LatestCrystal(ctx context.Context, subjectID uuid.UUID) (*domain.Crystal, bool, error) {
	if _, err := e.Subject(ctx, subjectID); err != nil {
		return nil, false, err
	}
	return e.crystals.Latest(ctx, subjectID)
}
