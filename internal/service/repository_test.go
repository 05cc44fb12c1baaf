package service

import (
	"context"
	"testing"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/Harshitk-cp/curio/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxn_Upsert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	turn, err := env.engine.Turns().Begin(env.subject.ID, PurposeAdmin)
	require.NoError(t, err)
	defer turn.End()
	txn, err := env.engine.Repository().Begin(ctx, env.subject.ID, turn)
	require.NoError(t, err)

	trigger := domain.Trigger{Kind: domain.TriggerOracle}
	c := &domain.Curiosity{
		Nature:   domain.NatureReceptive,
		Kind:     domain.KindQuestion,
		Focus:    "why the blue cup",
		Pull:     0.4,
		Fullness: domain.Float(0.2),
		Status:   domain.StatusOpen,
	}

	created, err := txn.Upsert(ctx, c, trigger)
	require.NoError(t, err)
	assert.Equal(t, env.subject.ID, created.SubjectID)
	assert.Equal(t, env.clock.Now(), created.CreatedAt)

	t.Run("identical upsert is a no-op", func(t *testing.T) {
		_, err := txn.Upsert(ctx, c, trigger)
		require.NoError(t, err)
		assert.Len(t, txn.Committed(0), 1)
	})

	t.Run("changed pull is recorded", func(t *testing.T) {
		changed := *c
		changed.Pull = 1.4
		got, err := txn.Upsert(ctx, &changed, trigger)
		require.NoError(t, err)
		assert.Equal(t, 1.0, got.Pull)

		events := txn.Committed(0)
		require.Len(t, events, 2)
		assert.Equal(t, domain.EventPullAdjusted, events[1].Type)
	})

	t.Run("identity is immutable", func(t *testing.T) {
		changed := *c
		changed.Focus = "why the red cup"
		_, err := txn.Upsert(ctx, &changed, trigger)
		assert.ErrorIs(t, err, ErrInvalidOperation)
		assert.Len(t, txn.Committed(0), 2)
	})
}

func TestRepository_RebuildNeedsTurn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	turn, err := env.engine.Turns().Begin(env.subject.ID, PurposeAdmin)
	require.NoError(t, err)
	turn.End()

	_, err = env.engine.Repository().Rebuild(ctx, turn)
	assert.ErrorIs(t, err, ErrTurnExpired)
}

func TestEngine_RebuildSubject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.create(t, domain.KindHypothesis, "stacks blocks by colour", 0.6, 0.3)
	env.evidence(t, id, domain.EffectSupports, 0.6)
	live := env.get(t, id)

	// A lost snapshot row is restored from the log.
	wiped := store.NewMemorySnapshotStore()
	env.engine.repo.snapshots = wiped

	res, err := env.engine.RebuildSubject(ctx, env.subject.ID)
	require.NoError(t, err)
	events, err := env.engine.Events(ctx, env.subject.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, events[len(events)-1].Sequence, res.LastSeq)
	assert.Equal(t, 1, res.Curiosities)
	assert.Equal(t, live, env.get(t, id))
	assert.Equal(t, TurnIdle, env.engine.TurnState(env.subject.ID))

	snaps, err := wiped.GetBySubject(ctx, env.subject.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, *live, snaps[0])

	t.Run("refused mid-turn", func(t *testing.T) {
		held, err := env.engine.Turns().Begin(env.subject.ID, PurposeBatch)
		require.NoError(t, err)
		defer held.End()
		assert.Equal(t, TurnProcessing, env.engine.TurnState(env.subject.ID))

		_, err = env.engine.RebuildSubject(ctx, env.subject.ID)
		assert.ErrorIs(t, err, ErrConcurrentTurn)
	})
}
