package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/Harshitk-cp/curio/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []domain.Notification
}

func (n *recordingNotifier) Notify(ctx context.Context, notes []domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, notes...)
	return nil
}

func (n *recordingNotifier) All() []domain.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Notification(nil), n.notes...)
}

// failingEventStore accepts the first `allow` appends and rejects the rest.
type failingEventStore struct {
	domain.EventStore
	mu    sync.Mutex
	allow int
}

func (s *failingEventStore) Append(ctx context.Context, e *domain.CuriosityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allow <= 0 {
		return store.ErrConflict
	}
	s.allow--
	return s.EventStore.Append(ctx, e)
}

type testEnv struct {
	engine  *Engine
	stores  Stores
	opts    Options
	clock   *testClock
	notes   *recordingNotifier
	subject *domain.Subject
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithEvents(t, store.NewMemoryEventStore())
}

func newTestEnvWithEvents(t *testing.T, events domain.EventStore) *testEnv {
	t.Helper()
	clock := newTestClock()
	stores := Stores{
		Events:    events,
		Snapshots: store.NewMemorySnapshotStore(),
		Crystals:  store.NewMemoryCrystalStore(),
		Subjects:  store.NewMemorySubjectStore(),
	}
	opts := DefaultOptions()
	opts.Clock = clock.Now
	notes := &recordingNotifier{}

	e := NewEngine(stores, opts, notes, zap.NewNop())
	sub, created, err := e.EnsureSubject(context.Background(), "child-1")
	require.NoError(t, err)
	require.True(t, created)

	return &testEnv{engine: e, stores: stores, opts: opts, clock: clock, notes: notes, subject: sub}
}

func (env *testEnv) submit(t *testing.T, ops ...domain.Operation) *TurnResult {
	t.Helper()
	res, err := env.engine.SubmitTurn(context.Background(), env.subject.ID, domain.Batch{Operations: ops})
	require.NoError(t, err)
	return res
}

func (env *testEnv) create(t *testing.T, kind domain.Kind, focus string, pull, value float64) uuid.UUID {
	t.Helper()
	res := env.submit(t, domain.CreateCuriosity{Kind: kind, Focus: focus, InitialPull: pull, InitialValue: value})
	require.Len(t, res.Operations, 1)
	require.True(t, res.Operations[0].Applied, res.Operations[0].Error)
	return *res.Operations[0].CuriosityID
}

func (env *testEnv) pattern(t *testing.T, confidence float64, sources ...uuid.UUID) uuid.UUID {
	t.Helper()
	res := env.submit(t, domain.FormPattern{SourceCuriosityIDs: sources, InitialConfidence: confidence, Focus: "pattern"})
	require.True(t, res.Operations[0].Applied, res.Operations[0].Error)
	return *res.Operations[0].CuriosityID
}

func (env *testEnv) evidence(t *testing.T, id uuid.UUID, effect domain.Effect, value float64) *TurnResult {
	t.Helper()
	return env.submit(t, domain.ApplyEvidence{
		TargetID:  id,
		Effect:    effect,
		NewValue:  value,
		Reasoning: "observed in conversation",
		Source:    domain.SourceConversation,
	})
}

func (env *testEnv) get(t *testing.T, id uuid.UUID) *domain.Curiosity {
	t.Helper()
	c, err := env.engine.Curiosity(context.Background(), env.subject.ID, id)
	require.NoError(t, err)
	return c
}

func notesOfType(notes []domain.Notification, typ domain.NotificationType) []domain.Notification {
	var out []domain.Notification
	for _, n := range notes {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}
