package service

import (
	"context"
	"testing"
	"time"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEffectivePull(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	decayedAt := anchor.Add(5 * 24 * time.Hour)

	tests := []struct {
		name     string
		pull     float64
		decayed  *time.Time
		elapsed  time.Duration
		expected float64
	}{
		{"no time elapsed", 0.8, nil, 0, 0.8},
		{"ten days", 0.8, nil, 10 * 24 * time.Hour, 0.7},
		{"half a day", 0.5, nil, 12 * time.Hour, 0.495},
		{"floors at zero", 0.05, nil, 30 * 24 * time.Hour, 0},
		{"anchored at last decay", 0.6, &decayedAt, 15 * 24 * time.Hour, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &domain.Curiosity{Pull: tt.pull, LastActivatedAt: anchor, LastDecayedAt: tt.decayed}
			got := EffectivePull(c, DefaultDecayRate, anchor.Add(tt.elapsed))
			if diff := got - tt.expected; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("EffectivePull() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func newDecayService(env *testEnv) *DecayService {
	return NewDecayService(env.stores.Subjects, env.engine.Repository(), env.engine.Turns(), DefaultDecayRate, zap.NewNop())
}

func TestRunDecayForSubject_TouchesOnlyPull(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	d := env.create(t, domain.KindDiscovery, "collects leaves", 0.5, 0.4)
	h := env.create(t, domain.KindHypothesis, "likes nature", 0.6, 0.3)

	svc := newDecayService(env)
	env.clock.Advance(10 * 24 * time.Hour)

	n, err := svc.RunDecayForSubject(ctx, env.subject.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	disc := env.get(t, d)
	assert.InDelta(t, 0.4, disc.Pull, 1e-9)
	assert.InDelta(t, 0.4, *disc.Fullness, 1e-9)
	assert.Equal(t, domain.StatusActive, disc.Status)
	require.NotNil(t, disc.LastDecayedAt)

	hyp := env.get(t, h)
	assert.InDelta(t, 0.5, hyp.Pull, 1e-9)
	assert.InDelta(t, 0.3, *hyp.Confidence, 1e-9)
	assert.Equal(t, domain.StatusWeak, hyp.Status)

	// Nothing has elapsed since the last pass.
	n, err = svc.RunDecayForSubject(ctx, env.subject.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRunDecayForSubject_SkipsTerminal(t *testing.T) {
	env := newTestEnv(t)
	h := env.create(t, domain.KindHypothesis, "hates socks", 0.5, 0.2)
	env.evidence(t, h, domain.EffectContradicts, 0.2)
	env.evidence(t, h, domain.EffectContradicts, 0.1)
	require.Equal(t, domain.StatusRefuted, env.get(t, h).Status)

	env.clock.Advance(10 * 24 * time.Hour)
	n, err := newDecayService(env).RunDecayForSubject(context.Background(), env.subject.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.InDelta(t, 0.5, env.get(t, h).Pull, 1e-9)
}

func TestRunDecay_SkipsSubjectsMidTurn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.create(t, domain.KindDiscovery, "counts stairs", 0.5, 0.2)

	other, _, err := env.engine.EnsureSubject(ctx, "child-2")
	require.NoError(t, err)
	_, err = env.engine.SubmitTurn(ctx, other.ID, domain.Batch{Operations: []domain.Operation{
		domain.CreateCuriosity{Kind: domain.KindQuestion, Focus: "why stairs", InitialPull: 0.5},
	}})
	require.NoError(t, err)

	env.clock.Advance(3 * 24 * time.Hour)
	held, err := env.engine.Turns().Begin(other.ID, PurposeBatch)
	require.NoError(t, err)
	defer held.End()

	svc := newDecayService(env)
	svc.SetWorkers(2)
	result := svc.RunDecay(ctx)

	assert.Equal(t, 2, result.SubjectsScanned)
	assert.Equal(t, 1, result.SubjectsSkipped)
	assert.Equal(t, 1, result.CuriositiesDecayed)
}

func TestListActive_UsesEffectivePull(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	early := env.create(t, domain.KindDiscovery, "early", 0.5, 0.2)

	env.clock.Advance(20 * 24 * time.Hour)
	// Activated now, so its pull has not decayed.
	late := env.create(t, domain.KindDiscovery, "late", 0.4, 0.2)

	active, err := env.engine.Curiosities(ctx, env.subject.ID, true)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, late, active[0].ID)
	assert.InDelta(t, 0.4, active[0].Pull, 1e-9)
	assert.Equal(t, early, active[1].ID)
	assert.InDelta(t, 0.3, active[1].Pull, 1e-9)

	// The stored pull is untouched until a decay pass commits it.
	assert.InDelta(t, 0.5, env.get(t, early).Pull, 1e-9)
}
