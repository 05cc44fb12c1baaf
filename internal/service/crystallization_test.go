package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/Harshitk-cp/curio/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCrystallizationTrigger_Ready(t *testing.T) {
	tr := NewCrystallizationTrigger(store.NewMemoryCrystalStore(), store.NewMemoryEventStore(), nil, zap.NewNop())

	hyp := func(s domain.Status) domain.Curiosity {
		return domain.Curiosity{Kind: domain.KindHypothesis, Status: s}
	}
	discoveries := func(n int) []domain.Curiosity {
		out := make([]domain.Curiosity, n)
		for i := range out {
			out[i] = domain.Curiosity{Kind: domain.KindDiscovery, Status: domain.StatusActive}
		}
		return out
	}

	tests := []struct {
		name        string
		curiosities []domain.Curiosity
		stories     int
		want        bool
	}{
		{"empty", nil, 0, false},
		{"one resolved hypothesis", []domain.Curiosity{hyp(domain.StatusSupported), hyp(domain.StatusTesting)}, 0, false},
		{"two resolved hypotheses", []domain.Curiosity{hyp(domain.StatusSupported), hyp(domain.StatusRefuted)}, 0, true},
		{"confirmed counts", []domain.Curiosity{hyp(domain.StatusConfirmed), hyp(domain.StatusConfirmed)}, 0, true},
		{"nine discoveries", discoveries(9), 0, false},
		{"ten discoveries", discoveries(10), 0, true},
		{"four stories", nil, 4, false},
		{"five stories", nil, 5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.Ready(tt.curiosities, tt.stories); got != tt.want {
				t.Errorf("Ready() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCrystallizationTrigger_PendingExpires(t *testing.T) {
	clock := newTestClock()
	tr := NewCrystallizationTrigger(store.NewMemoryCrystalStore(), store.NewMemoryEventStore(), clock.Now, zap.NewNop())
	ctx := context.Background()
	subject := uuid.New()

	note, err := tr.Evaluate(ctx, subject, nil, 5, clock.Now())
	require.NoError(t, err)
	require.NotNil(t, note)
	assert.Equal(t, domain.NotifySynthesisRequested, note.Type)

	pending, ok := tr.Pending(subject)
	require.True(t, ok)
	assert.Equal(t, note.EventID, pending)

	note, err = tr.Evaluate(ctx, subject, nil, 6, clock.Now())
	require.NoError(t, err)
	assert.Nil(t, note)

	clock.Advance(DefaultPendingTTL + time.Second)
	note, err = tr.Evaluate(ctx, subject, nil, 6, clock.Now())
	require.NoError(t, err)
	assert.NotNil(t, note)
}

func TestSubmitTurn_CrystallizationFiresOnceUntilStale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ops := make([]domain.Operation, 10)
	for i := range ops {
		ops[i] = domain.CreateCuriosity{Kind: domain.KindDiscovery, Focus: fmt.Sprintf("observation %d", i), InitialPull: 0.5}
	}
	res := env.submit(t, ops...)

	requests := notesOfType(res.Notifications, domain.NotifySynthesisRequested)
	require.Len(t, requests, 1)
	assert.Len(t, requests[0].Snapshot, 10)

	// Pending: more discoveries do not ask again.
	res = env.submit(t, domain.CreateCuriosity{Kind: domain.KindDiscovery, Focus: "eleventh", InitialPull: 0.5})
	assert.Empty(t, notesOfType(res.Notifications, domain.NotifySynthesisRequested))

	require.NoError(t, env.engine.RecordCrystal(ctx, &domain.Crystal{
		SubjectID:          env.subject.ID,
		RequestID:          &requests[0].EventID,
		SourceCuriosityIDs: requests[0].Snapshot,
		SummaryRef:         "s3://crystals/1",
	}))
	_, ok := env.engine.Crystallizer().Pending(env.subject.ID)
	assert.False(t, ok)

	latest, stale, err := env.engine.LatestCrystal(ctx, env.subject.ID)
	require.NoError(t, err)
	assert.Equal(t, "s3://crystals/1", latest.SummaryRef)
	assert.False(t, stale)

	// An event at the crystal's own instant does not make it stale.
	res = env.submit(t, domain.CreateCuriosity{Kind: domain.KindDiscovery, Focus: "twelfth", InitialPull: 0.5})
	assert.Empty(t, notesOfType(res.Notifications, domain.NotifySynthesisRequested))

	env.clock.Advance(time.Minute)
	res = env.submit(t, domain.CreateCuriosity{Kind: domain.KindDiscovery, Focus: "thirteenth", InitialPull: 0.5})
	assert.Len(t, notesOfType(res.Notifications, domain.NotifySynthesisRequested), 1)

	_, stale, err = env.engine.LatestCrystal(ctx, env.subject.ID)
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestSubmitTurn_StoryCountAloneTriggers(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.engine.SubmitTurn(context.Background(), env.subject.ID, domain.Batch{StoryCount: 5})
	require.NoError(t, err)
	assert.Len(t, notesOfType(res.Notifications, domain.NotifySynthesisRequested), 1)
}

func TestCrystallizationTrigger_RecordClearsOnlyMatchingRequest(t *testing.T) {
	clock := newTestClock()
	tr := NewCrystallizationTrigger(store.NewMemoryCrystalStore(), store.NewMemoryEventStore(), clock.Now, zap.NewNop())
	ctx := context.Background()
	subject := uuid.New()

	note, err := tr.Evaluate(ctx, subject, nil, 5, clock.Now())
	require.NoError(t, err)
	require.NotNil(t, note)

	stranger := uuid.New()
	tests := []struct {
		name      string
		requestID *uuid.UUID
		cleared   bool
	}{
		{"no request id", nil, false},
		{"other request", &stranger, false},
		{"pending request", &note.EventID, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tr.RecordCrystal(ctx, &domain.Crystal{SubjectID: subject, RequestID: tt.requestID}))
			pending, ok := tr.Pending(subject)
			assert.Equal(t, !tt.cleared, ok)
			if ok {
				assert.Equal(t, note.EventID, pending)
			}
		})
	}
}

func TestRecordCrystal_UnknownSource(t *testing.T) {
	env := newTestEnv(t)
	err := env.engine.RecordCrystal(context.Background(), &domain.Crystal{
		SubjectID:          env.subject.ID,
		SourceCuriosityIDs: []uuid.UUID{uuid.New()},
	})
	assert.ErrorIs(t, err, ErrUnknownCuriosity)

	_, _, err = env.engine.LatestCrystal(context.Background(), env.subject.ID)
	assert.ErrorIs(t, err, ErrCrystalNotFound)
}
