package cli

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/Harshitk-cp/curio/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLog(t *testing.T, es domain.EventStore, subject uuid.UUID) (uuid.UUID, *domain.Curiosity) {
	t.Helper()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	id := uuid.New()

	created := &domain.Curiosity{
		Nature:          domain.NatureReceptive,
		Kind:            domain.KindQuestion,
		Focus:           "why does he line things up",
		Pull:            0.5,
		Fullness:        domain.Float(0.1),
		Status:          domain.StatusOpen,
		CreatedAt:       t0,
		LastActivatedAt: t0,
	}
	require.NoError(t, es.Append(ctx, &domain.CuriosityEvent{
		ID: uuid.New(), SubjectID: subject, Sequence: 1, CuriosityID: id,
		Type: domain.EventCreated, Curiosity: created, Timestamp: t0,
	}))
	require.NoError(t, es.Append(ctx, &domain.CuriosityEvent{
		ID: uuid.New(), SubjectID: subject, Sequence: 2, CuriosityID: id,
		Type:      domain.EventPullAdjusted,
		Changes:   map[string]domain.FieldChange{domain.FieldPull: {Old: 0.5, New: 0.8}},
		Timestamp: t0.Add(time.Minute),
	}))

	view, err := domain.Replay(subject, mustList(t, es, subject))
	require.NoError(t, err)
	return id, view.Curiosities[id]
}

func mustList(t *testing.T, es domain.EventStore, subject uuid.UUID) []domain.CuriosityEvent {
	t.Helper()
	events, err := es.ListBySubject(context.Background(), subject, 0)
	require.NoError(t, err)
	return events
}

func TestVerifySubject(t *testing.T) {
	ctx := context.Background()
	subject := uuid.New()

	t.Run("in sync", func(t *testing.T) {
		es, ss := store.NewMemoryEventStore(), store.NewMemorySnapshotStore()
		_, c := seedLog(t, es, subject)
		require.NoError(t, ss.Upsert(ctx, c))

		r, err := VerifySubject(ctx, es, ss, subject, false)
		require.NoError(t, err)
		assert.True(t, r.Deterministic)
		assert.Equal(t, 2, r.Events)
		assert.Equal(t, 1, r.Curiosities)
		assert.Empty(t, r.Drifted)
	})

	t.Run("drift is reported and repaired", func(t *testing.T) {
		es, ss := store.NewMemoryEventStore(), store.NewMemorySnapshotStore()
		id, c := seedLog(t, es, subject)
		stale := c.Clone()
		stale.Pull = 0.5
		require.NoError(t, ss.Upsert(ctx, stale))

		r, err := VerifySubject(ctx, es, ss, subject, false)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{id}, r.Drifted)
		assert.Zero(t, r.Repaired)

		r, err = VerifySubject(ctx, es, ss, subject, true)
		require.NoError(t, err)
		assert.Equal(t, 1, r.Repaired)

		r, err = VerifySubject(ctx, es, ss, subject, false)
		require.NoError(t, err)
		assert.Empty(t, r.Drifted)
	})

	t.Run("missing snapshot counts as drift", func(t *testing.T) {
		es, ss := store.NewMemoryEventStore(), store.NewMemorySnapshotStore()
		id, _ := seedLog(t, es, subject)

		r, err := VerifySubject(ctx, es, ss, subject, false)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{id}, r.Drifted)
	})
}
