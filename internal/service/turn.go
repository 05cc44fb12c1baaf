package service

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type TurnState string

const (
	TurnIdle       TurnState = "idle"
	TurnProcessing TurnState = "processing"
)

// TurnPurpose labels who holds a turn, for logs and metrics.
type TurnPurpose string

const (
	PurposeBatch TurnPurpose = "batch"
	PurposeDecay TurnPurpose = "decay"
	PurposeAdmin TurnPurpose = "admin"
)

// Turn is the exclusive right to mutate one subject. A turn that outlives the
// coordinator's timeout is reclaimed by the next Begin and every later commit
// through it fails with ErrTurnExpired.
type Turn struct {
	SubjectID  uuid.UUID
	Purpose    TurnPurpose
	StartedAt  time.Time
	generation uint64
	released   atomic.Bool
	coord      *TurnCoordinator
}

// Valid reports whether the turn still holds its subject.
func (t *Turn) Valid() bool {
	if t.released.Load() {
		return false
	}
	return t.coord.holds(t)
}

// End returns the subject to idle. Ending a reclaimed turn is a no-op.
func (t *Turn) End() {
	if t.released.Swap(true) {
		return
	}
	t.coord.release(t)
}

type TurnCoordinator struct {
	mu         sync.Mutex
	active     map[uuid.UUID]*Turn
	timeout    time.Duration
	clock      Clock
	generation uint64
	logger     *zap.Logger
}

func NewTurnCoordinator(timeout time.Duration, clock Clock, logger *zap.Logger) *TurnCoordinator {
	if clock == nil {
		clock = SystemClock
	}
	return &TurnCoordinator{
		active:  make(map[uuid.UUID]*Turn),
		timeout: timeout,
		clock:   clock,
		logger:  logger,
	}
}

// Begin moves the subject from idle to processing, or fails with
// ErrConcurrentTurn. A turn older than the timeout is force-released first.
func (c *TurnCoordinator) Begin(subjectID uuid.UUID, purpose TurnPurpose) (*Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if held, ok := c.active[subjectID]; ok {
		if c.timeout <= 0 || now.Sub(held.StartedAt) < c.timeout {
			turnRejections.WithLabelValues(string(purpose)).Inc()
			return nil, ErrConcurrentTurn
		}
		c.logger.Warn("force-releasing stuck turn",
			zap.String("subject_id", subjectID.String()),
			zap.String("held_by", string(held.Purpose)),
			zap.Duration("held_for", now.Sub(held.StartedAt)))
		held.released.Store(true)
		delete(c.active, subjectID)
		stuckTurns.Inc()
	}

	c.generation++
	t := &Turn{
		SubjectID:  subjectID,
		Purpose:    purpose,
		StartedAt:  now,
		generation: c.generation,
		coord:      c,
	}
	c.active[subjectID] = t
	return t, nil
}

// State reports the subject's turn state.
func (c *TurnCoordinator) State(subjectID uuid.UUID) TurnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[subjectID]; ok {
		return TurnProcessing
	}
	return TurnIdle
}

func (c *TurnCoordinator) holds(t *Turn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.active[t.SubjectID]
	return ok && cur.generation == t.generation
}

func (c *TurnCoordinator) release(t *Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.active[t.SubjectID]; ok && cur.generation == t.generation {
		delete(c.active, t.SubjectID)
	}
}
