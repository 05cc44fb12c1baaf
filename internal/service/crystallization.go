package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/Harshitk-cp/curio/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultResolvedHypotheses = 2
	DefaultObservations       = 10
	DefaultStories            = 5
	DefaultPendingTTL         = 10 * time.Minute
)

type pendingSynthesis struct {
	requestID uuid.UUID
	at        time.Time
}

// CrystallizationTrigger decides when enough has accumulated for a synthesis.
// It never produces a crystal itself: it asks for one and records what the
// external synthesizer returns.
type CrystallizationTrigger struct {
	crystals domain.CrystalStore
	events   domain.EventStore
	clock    Clock
	logger   *zap.Logger

	ResolvedHypotheses int
	Observations       int
	Stories            int
	PendingTTL         time.Duration

	mu      sync.Mutex
	pending map[uuid.UUID]pendingSynthesis
}

func NewCrystallizationTrigger(crystals domain.CrystalStore, events domain.EventStore, clock Clock, logger *zap.Logger) *CrystallizationTrigger {
	if clock == nil {
		clock = SystemClock
	}
	return &CrystallizationTrigger{
		crystals:           crystals,
		events:             events,
		clock:              clock,
		logger:             logger,
		ResolvedHypotheses: DefaultResolvedHypotheses,
		Observations:       DefaultObservations,
		Stories:            DefaultStories,
		PendingTTL:         DefaultPendingTTL,
		pending:            make(map[uuid.UUID]pendingSynthesis),
	}
}

// Ready reports whether the accumulated curiosities cross any threshold.
func (t *CrystallizationTrigger) Ready(curiosities []domain.Curiosity, storyCount int) bool {
	resolved, observations := 0, 0
	for _, c := range curiosities {
		switch c.Kind {
		case domain.KindHypothesis:
			switch c.Status {
			case domain.StatusSupported, domain.StatusConfirmed, domain.StatusRefuted:
				resolved++
			}
		case domain.KindDiscovery:
			observations++
		}
	}
	return resolved >= t.ResolvedHypotheses ||
		observations >= t.Observations ||
		storyCount >= t.Stories
}

// Evaluate returns a SynthesisRequested notification when the subject is
// ready, its latest crystal is missing or stale, and no request is pending.
func (t *CrystallizationTrigger) Evaluate(ctx context.Context, subjectID uuid.UUID, curiosities []domain.Curiosity, storyCount int, lastEventAt time.Time) (*domain.Notification, error) {
	if !t.Ready(curiosities, storyCount) {
		return nil, nil
	}

	now := t.clock()
	t.mu.Lock()
	defer t.mu.Unlock()

	if p, ok := t.pending[subjectID]; ok {
		if t.PendingTTL <= 0 || now.Sub(p.at) < t.PendingTTL {
			return nil, nil
		}
		t.logger.Warn("synthesis request expired without a crystal",
			zap.String("subject_id", subjectID.String()),
			zap.String("request_id", p.requestID.String()))
		delete(t.pending, subjectID)
	}

	latest, err := t.crystals.GetLatest(ctx, subjectID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("latest crystal: %w", err)
	case !latest.StaleAt(lastEventAt):
		return nil, nil
	}

	requestID := uuid.New()
	t.pending[subjectID] = pendingSynthesis{requestID: requestID, at: now}

	snapshot := make([]uuid.UUID, 0, len(curiosities))
	for _, c := range curiosities {
		if !c.Status.Terminal() {
			snapshot = append(snapshot, c.ID)
		}
	}
	synthesisRequests.Inc()
	t.logger.Info("synthesis requested",
		zap.String("subject_id", subjectID.String()),
		zap.String("request_id", requestID.String()),
		zap.Int("curiosities", len(snapshot)))

	return &domain.Notification{
		EventID:   requestID,
		Type:      domain.NotifySynthesisRequested,
		SubjectID: subjectID,
		Snapshot:  snapshot,
		At:        now,
	}, nil
}

// RecordCrystal stores a crystal produced by the synthesizer. The subject's
// pending request is cleared only when the crystal answers that request; a
// crystal recorded out of band leaves it outstanding.
func (t *CrystallizationTrigger) RecordCrystal(ctx context.Context, c *domain.Crystal) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = t.clock()
	}
	if err := t.crystals.Create(ctx, c); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.pending[c.SubjectID]; ok && c.RequestID != nil && *c.RequestID == p.requestID {
		delete(t.pending, c.SubjectID)
	}
	return nil
}

// Pending returns the outstanding request id for the subject, if any.
func (t *CrystallizationTrigger) Pending(subjectID uuid.UUID) (uuid.UUID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[subjectID]
	return p.requestID, ok
}

// Latest returns the newest crystal and whether any event postdates it.
func (t *CrystallizationTrigger) Latest(ctx context.Context, subjectID uuid.UUID) (*domain.Crystal, bool, error) {
	c, err := t.crystals.GetLatest(ctx, subjectID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, ErrCrystalNotFound
	}
	if err != nil {
		return nil, false, err
	}
	stale, err := t.IsStale(ctx, c)
	if err != nil {
		return nil, false, err
	}
	return c, stale, nil
}

func (t *CrystallizationTrigger) IsStale(ctx context.Context, c *domain.Crystal) (bool, error) {
	last, err := t.events.LatestTimestamp(ctx, c.SubjectID)
	if err != nil {
		return false, err
	}
	return c.StaleAt(last), nil
}
