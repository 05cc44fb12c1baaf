package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func discoveryLog(subjectID, id uuid.UUID) []CuriosityEvent {
	evID := uuid.New()
	return []CuriosityEvent{
		{
			ID:          uuid.New(),
			SubjectID:   subjectID,
			Sequence:    1,
			CuriosityID: id,
			Type:        EventCreated,
			Curiosity: &Curiosity{
				Nature:          NatureReceptive,
				Kind:            KindDiscovery,
				Focus:           "sorts toys by colour",
				Pull:            0.6,
				Fullness:        Float(0.2),
				Status:          StatusActive,
				CreatedAt:       t0,
				LastActivatedAt: t0,
			},
			Trigger:   Trigger{Kind: TriggerOracle},
			Timestamp: t0,
		},
		{
			ID:          uuid.New(),
			SubjectID:   subjectID,
			Sequence:    2,
			CuriosityID: id,
			Type:        EventEvidenceApplied,
			Changes: map[string]FieldChange{
				FieldFullness:        {Old: Float(0.2), New: Float(0.5)},
				FieldTimesActivated:  {Old: 0, New: 1},
				FieldLastActivatedAt: {Old: t0, New: t0.Add(time.Hour)},
			},
			Evidence: &Evidence{
				ID:                evID,
				TargetCuriosityID: id,
				Effect:            EffectSupports,
				Source:            SourceConversation,
				NewValue:          0.5,
				Reasoning:         "parent described a second sorting game",
				RecordedAt:        t0.Add(time.Hour),
			},
			Trigger:   Trigger{Kind: TriggerOracle, Ref: &evID},
			Timestamp: t0.Add(time.Hour),
		},
		{
			ID:          uuid.New(),
			SubjectID:   subjectID,
			Sequence:    3,
			CuriosityID: id,
			Type:        EventDecayed,
			Changes: map[string]FieldChange{
				FieldPull:          {Old: 0.6, New: 0.55},
				FieldLastDecayedAt: {Old: nil, New: t0.Add(48 * time.Hour)},
			},
			Trigger:   Trigger{Kind: TriggerDecay},
			Timestamp: t0.Add(48 * time.Hour),
		},
	}
}

func TestReplay_FoldsInOrder(t *testing.T) {
	subjectID, id := uuid.New(), uuid.New()

	view, err := Replay(subjectID, discoveryLog(subjectID, id))
	require.NoError(t, err)

	c := view.Curiosities[id]
	require.NotNil(t, c)
	assert.Equal(t, subjectID, c.SubjectID)
	assert.InDelta(t, 0.5, *c.Fullness, 1e-9)
	assert.Nil(t, c.Confidence)
	assert.Equal(t, 1, c.TimesActivated)
	assert.Len(t, c.Evidence, 1)
	assert.InDelta(t, 0.55, c.Pull, 1e-9)
	require.NotNil(t, c.LastDecayedAt)
	assert.True(t, c.LastDecayedAt.Equal(t0.Add(48*time.Hour)))
	assert.Equal(t, int64(3), view.LastSeq)
	assert.True(t, view.LastEventAt.Equal(t0.Add(48*time.Hour)))
}

func TestReplay_Deterministic(t *testing.T) {
	subjectID, id := uuid.New(), uuid.New()
	events := discoveryLog(subjectID, id)

	a, err := Replay(subjectID, events)
	require.NoError(t, err)
	b, err := Replay(subjectID, events)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestReplay_SurvivesJSONRoundTrip(t *testing.T) {
	subjectID, id := uuid.New(), uuid.New()
	events := discoveryLog(subjectID, id)

	raw, err := json.Marshal(events)
	require.NoError(t, err)
	var decoded []CuriosityEvent
	require.NoError(t, json.Unmarshal(raw, &decoded))

	want, err := Replay(subjectID, events)
	require.NoError(t, err)
	got, err := Replay(subjectID, decoded)
	require.NoError(t, err)

	w, g := want.Curiosities[id], got.Curiosities[id]
	require.NotNil(t, g)
	assert.Equal(t, w.Status, g.Status)
	assert.InDelta(t, w.Pull, g.Pull, 1e-9)
	assert.InDelta(t, *w.Fullness, *g.Fullness, 1e-9)
	assert.Equal(t, w.TimesActivated, g.TimesActivated)
	assert.True(t, w.LastActivatedAt.Equal(g.LastActivatedAt))
	assert.True(t, w.LastDecayedAt.Equal(*g.LastDecayedAt))
	assert.Equal(t, w.Evidence[0].ID, g.Evidence[0].ID)
}

func TestPreview_NatureExclusivity(t *testing.T) {
	subjectID, id := uuid.New(), uuid.New()

	t.Run("assertive created with fullness", func(t *testing.T) {
		v := NewView(subjectID)
		err := v.Apply(CuriosityEvent{
			Sequence:    1,
			CuriosityID: id,
			Type:        EventCreated,
			Curiosity: &Curiosity{
				Nature:   NatureAssertive,
				Kind:     KindHypothesis,
				Fullness: Float(0.4),
				Status:   StatusWeak,
			},
		})
		assert.ErrorIs(t, err, ErrFoldMalformed)
		assert.Empty(t, v.Curiosities)
	})

	t.Run("confidence set on receptive", func(t *testing.T) {
		v, err := Replay(subjectID, discoveryLog(subjectID, id)[:1])
		require.NoError(t, err)

		_, err = v.Preview(CuriosityEvent{
			CuriosityID: id,
			Type:        EventCascaded,
			Changes:     map[string]FieldChange{FieldConfidence: {New: Float(0.5)}},
		})
		assert.ErrorIs(t, err, ErrFoldMalformed)
		assert.Nil(t, v.Curiosities[id].Confidence)
	})
}

func TestApply_Rejections(t *testing.T) {
	subjectID, id := uuid.New(), uuid.New()
	events := discoveryLog(subjectID, id)

	t.Run("out of order", func(t *testing.T) {
		v, err := Replay(subjectID, events[:2])
		require.NoError(t, err)
		assert.ErrorIs(t, v.Apply(events[0]), ErrFoldOutOfOrder)
	})

	t.Run("unknown curiosity", func(t *testing.T) {
		v := NewView(subjectID)
		assert.ErrorIs(t, v.Apply(events[1]), ErrFoldMissingCuriosity)
	})

	t.Run("duplicate create", func(t *testing.T) {
		v, err := Replay(subjectID, events[:1])
		require.NoError(t, err)
		dup := events[0]
		dup.Sequence = 2
		assert.ErrorIs(t, v.Apply(dup), ErrFoldDuplicate)
	})
}

func TestPreview_CascadeLedger(t *testing.T) {
	subjectID, id := uuid.New(), uuid.New()
	v, err := Replay(subjectID, discoveryLog(subjectID, id)[:1])
	require.NoError(t, err)

	root := uuid.New()
	ev := CuriosityEvent{Sequence: 2, CuriosityID: id, Type: EventCascaded, Trigger: Trigger{Kind: TriggerCascade, Ref: &root}}
	require.NoError(t, v.Apply(ev))
	ev.Sequence = 3
	require.NoError(t, v.Apply(ev))

	assert.Equal(t, []uuid.UUID{root}, v.Curiosities[id].AppliedCascades)
	assert.True(t, v.Curiosities[id].HasAppliedCascade(root))
}

func TestDependents_SortedByID(t *testing.T) {
	subjectID := uuid.New()
	source := uuid.New()
	v := NewView(subjectID)
	v.Curiosities[source] = &Curiosity{ID: source}
	for i := 0; i < 5; i++ {
		id := uuid.New()
		v.Curiosities[id] = &Curiosity{ID: id, SourceCuriosities: []uuid.UUID{source}}
	}

	deps := v.Dependents(source)
	require.Len(t, deps, 5)
	for i := 1; i < len(deps); i++ {
		assert.Less(t, deps[i-1].ID.String(), deps[i].ID.String())
	}
}
