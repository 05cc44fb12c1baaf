package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// subjectState is the in-memory handle for one subject. mu gates the view:
// commits take it exclusively, reads share it.
type subjectState struct {
	id   uuid.UUID
	mu   sync.RWMutex
	view *domain.View
}

// CuriosityRepository is the materialized view over the event store. It never
// changes the view without first appending the corresponding event.
type CuriosityRepository struct {
	events    domain.EventStore
	snapshots domain.SnapshotStore
	clock     Clock
	decayRate float64
	logger    *zap.Logger

	mu       sync.Mutex
	subjects map[uuid.UUID]*subjectState
}

func NewCuriosityRepository(es domain.EventStore, ss domain.SnapshotStore, clock Clock, decayRate float64, logger *zap.Logger) *CuriosityRepository {
	if clock == nil {
		clock = SystemClock
	}
	return &CuriosityRepository{
		events:    es,
		snapshots: ss,
		clock:     clock,
		decayRate: decayRate,
		logger:    logger,
		subjects:  make(map[uuid.UUID]*subjectState),
	}
}

// state returns the subject handle, replaying the event store on first use.
func (r *CuriosityRepository) state(ctx context.Context, subjectID uuid.UUID) (*subjectState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.subjects[subjectID]; ok {
		return st, nil
	}

	events, err := r.events.ListBySubject(ctx, subjectID, 0)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	view, err := domain.Replay(subjectID, events)
	if err != nil {
		return nil, err
	}
	st := &subjectState{id: subjectID, view: view}
	r.subjects[subjectID] = st

	r.logger.Debug("subject view loaded",
		zap.String("subject_id", subjectID.String()),
		zap.Int("events", len(events)),
		zap.Int("curiosities", len(view.Curiosities)))
	return st, nil
}

// Evict drops the in-memory handle, e.g. on archival.
func (r *CuriosityRepository) Evict(subjectID uuid.UUID) {
	r.mu.Lock()
	delete(r.subjects, subjectID)
	r.mu.Unlock()
}

func (r *CuriosityRepository) Get(ctx context.Context, subjectID, curiosityID uuid.UUID) (*domain.Curiosity, error) {
	st, err := r.state(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	c, ok := st.view.Curiosities[curiosityID]
	if !ok {
		return nil, ErrUnknownCuriosity
	}
	return c.Clone(), nil
}

// ListActive returns non-terminal curiosities ordered by effective pull,
// highest first.
func (r *CuriosityRepository) ListActive(ctx context.Context, subjectID uuid.UUID) ([]domain.Curiosity, error) {
	all, err := r.List(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	now := r.clock()
	active := all[:0]
	for _, c := range all {
		if c.Status.Terminal() {
			continue
		}
		c.Pull = EffectivePull(&c, r.decayRate, now)
		active = append(active, c)
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Pull != active[j].Pull {
			return active[i].Pull > active[j].Pull
		}
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.Before(active[j].CreatedAt)
		}
		return active[i].ID.String() < active[j].ID.String()
	})
	return active, nil
}

// List returns every curiosity of the subject, terminal ones included.
func (r *CuriosityRepository) List(ctx context.Context, subjectID uuid.UUID) ([]domain.Curiosity, error) {
	st, err := r.state(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return snapshotOf(st.view), nil
}

func (r *CuriosityRepository) Events(ctx context.Context, subjectID uuid.UUID, afterSeq int64) ([]domain.CuriosityEvent, error) {
	return r.events.ListBySubject(ctx, subjectID, afterSeq)
}

// Rebuild discards the cached view and folds the subject's log again, then
// rewrites every snapshot from the fresh view. The caller must hold the
// subject's turn so no commit races the reload.
func (r *CuriosityRepository) Rebuild(ctx context.Context, turn *Turn) (*domain.View, error) {
	if !turn.Valid() {
		return nil, ErrTurnExpired
	}
	r.Evict(turn.SubjectID)
	st, err := r.state(ctx, turn.SubjectID)
	if err != nil {
		return nil, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()

	if r.snapshots != nil {
		for _, c := range snapshotOf(st.view) {
			if err := r.snapshots.Upsert(ctx, &c); err != nil {
				return nil, fmt.Errorf("rewrite snapshot %s: %w", c.ID, err)
			}
		}
	}
	return cloneView(st.view), nil
}

// LastEventAt returns the timestamp of the newest folded event.
func (r *CuriosityRepository) LastEventAt(ctx context.Context, subjectID uuid.UUID) (time.Time, error) {
	st, err := r.state(ctx, subjectID)
	if err != nil {
		return time.Time{}, err
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.view.LastEventAt, nil
}

// Begin opens a transaction bound to a turn. All writes go through it.
func (r *CuriosityRepository) Begin(ctx context.Context, subjectID uuid.UUID, turn *Turn) (*Txn, error) {
	st, err := r.state(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	return &Txn{repo: r, state: st, turn: turn, touched: make(map[uuid.UUID]struct{})}, nil
}

func snapshotOf(v *domain.View) []domain.Curiosity {
	out := make([]domain.Curiosity, 0, len(v.Curiosities))
	for _, c := range v.Curiosities {
		out = append(out, *c.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func cloneView(v *domain.View) *domain.View {
	cp := domain.NewView(v.SubjectID)
	for id, c := range v.Curiosities {
		cp.Curiosities[id] = c.Clone()
	}
	cp.LastSeq = v.LastSeq
	cp.LastEventAt = v.LastEventAt
	return cp
}

// Txn is the write path for one turn. Each Commit is append-then-fold: the
// event is folded into a copy, persisted, and only then made visible.
type Txn struct {
	repo      *CuriosityRepository
	state     *subjectState
	turn      *Turn
	committed []domain.CuriosityEvent
	touched   map[uuid.UUID]struct{}
}

func (t *Txn) SubjectID() uuid.UUID {
	return t.state.id
}

func (t *Txn) Now() time.Time {
	return t.repo.clock()
}

func (t *Txn) Commit(ctx context.Context, e domain.CuriosityEvent) (*domain.CuriosityEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.state.mu.Lock()
	defer t.state.mu.Unlock()

	if t.turn != nil && !t.turn.Valid() {
		return nil, ErrTurnExpired
	}

	view := t.state.view
	e.ID = uuid.New()
	e.SubjectID = t.state.id
	e.Sequence = view.LastSeq + 1
	e.Timestamp = t.repo.clock()
	if e.Timestamp.Before(view.LastEventAt) {
		e.Timestamp = view.LastEventAt
	}

	next, err := view.Preview(e)
	if err != nil {
		return nil, fmt.Errorf("fold %s: %w", e.Type, err)
	}
	if err := t.repo.events.Append(ctx, &e); err != nil {
		return nil, fmt.Errorf("append %s: %w", e.Type, err)
	}
	view.Curiosities[next.ID] = next
	view.LastSeq = e.Sequence
	if e.Timestamp.After(view.LastEventAt) {
		view.LastEventAt = e.Timestamp
	}

	t.committed = append(t.committed, e)
	t.touched[next.ID] = struct{}{}
	recordEvent(e.Type)

	t.repo.logger.Debug("event committed",
		zap.String("subject_id", e.SubjectID.String()),
		zap.String("curiosity_id", e.CuriosityID.String()),
		zap.String("event_type", string(e.Type)),
		zap.Int64("seq", e.Sequence))
	return &e, nil
}

func (t *Txn) Get(id uuid.UUID) (*domain.Curiosity, error) {
	t.state.mu.RLock()
	defer t.state.mu.RUnlock()
	c, ok := t.state.view.Curiosities[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCuriosity, id)
	}
	return c.Clone(), nil
}

func (t *Txn) Dependents(id uuid.UUID) []*domain.Curiosity {
	t.state.mu.RLock()
	defer t.state.mu.RUnlock()
	deps := t.state.view.Dependents(id)
	out := make([]*domain.Curiosity, len(deps))
	for i, d := range deps {
		out[i] = d.Clone()
	}
	return out
}

func (t *Txn) Snapshot() []domain.Curiosity {
	t.state.mu.RLock()
	defer t.state.mu.RUnlock()
	return snapshotOf(t.state.view)
}

func (t *Txn) LastEventAt() time.Time {
	t.state.mu.RLock()
	defer t.state.mu.RUnlock()
	return t.state.view.LastEventAt
}

// Committed returns the events committed since mark.
func (t *Txn) Committed(mark int) []domain.CuriosityEvent {
	if mark >= len(t.committed) {
		return nil
	}
	return t.committed[mark:]
}

func (t *Txn) Mark() int {
	return len(t.committed)
}

// Flush writes snapshots of every curiosity touched by the transaction.
// Snapshots are a cache, so failures are logged rather than returned.
func (t *Txn) Flush(ctx context.Context) {
	if t.repo.snapshots == nil {
		return
	}
	ids := make([]uuid.UUID, 0, len(t.touched))
	for id := range t.touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		c, err := t.Get(id)
		if err != nil {
			continue
		}
		if err := t.repo.snapshots.Upsert(ctx, c); err != nil {
			t.repo.logger.Warn("failed to upsert curiosity snapshot",
				zap.String("subject_id", t.state.id.String()),
				zap.String("curiosity_id", id.String()),
				zap.Error(err))
		}
	}
}

// Upsert is idempotent by id: an unknown id is created, an identical record is
// a no-op, and a pull difference becomes a pull_adjusted event. Other fields
// only change through evidence, so any other difference is rejected.
func (t *Txn) Upsert(ctx context.Context, c *domain.Curiosity, trigger domain.Trigger) (*domain.Curiosity, error) {
	existing, err := t.Get(c.ID)
	if err != nil {
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		now := t.Now()
		created := c.Clone()
		created.SubjectID = t.state.id
		if created.CreatedAt.IsZero() {
			created.CreatedAt = now
		}
		if created.LastActivatedAt.IsZero() {
			created.LastActivatedAt = created.CreatedAt
		}
		if _, err := t.Commit(ctx, domain.CuriosityEvent{
			CuriosityID: created.ID,
			Type:        domain.EventCreated,
			Curiosity:   created,
			Trigger:     trigger,
			Changes: map[string]domain.FieldChange{
				domain.FieldStatus: {Old: nil, New: created.Status},
				domain.FieldPull:   {Old: nil, New: created.Pull},
			},
		}); err != nil {
			return nil, err
		}
		return t.Get(created.ID)
	}

	if existing.Kind != c.Kind || existing.Focus != c.Focus || existing.Domain != c.Domain || existing.Theory != c.Theory {
		return nil, fmt.Errorf("%w: identity fields of %s are immutable", ErrInvalidOperation, c.ID)
	}
	if existing.Pull == c.Pull {
		return existing, nil
	}
	if _, err := t.Commit(ctx, domain.CuriosityEvent{
		CuriosityID: c.ID,
		Type:        domain.EventPullAdjusted,
		Trigger:     trigger,
		Changes: map[string]domain.FieldChange{
			domain.FieldPull:          {Old: existing.Pull, New: domain.Clamp01(c.Pull)},
			domain.FieldLastDecayedAt: {Old: existing.LastDecayedAt, New: t.Now()},
		},
	}); err != nil {
		return nil, err
	}
	return t.Get(c.ID)
}
