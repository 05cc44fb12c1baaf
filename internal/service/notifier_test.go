package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type erroringNotifier struct{ err error }

func (n erroringNotifier) Notify(ctx context.Context, notes []domain.Notification) error {
	return n.err
}

func TestHub_FanOutAndDrop(t *testing.T) {
	hub := NewHub(1, zap.NewNop())
	a, cancelA := hub.Subscribe()
	b, cancelB := hub.Subscribe()
	defer cancelB()

	first := domain.Notification{EventID: uuid.New(), Type: domain.NotifyCuriosityCreated}
	second := domain.Notification{EventID: uuid.New(), Type: domain.NotifyStatusChanged}
	require.NoError(t, hub.Notify(context.Background(), []domain.Notification{first, second}))

	// Buffer of one: the second notification is dropped for both subscribers.
	assert.Equal(t, first.EventID, (<-a).EventID)
	assert.Equal(t, first.EventID, (<-b).EventID)
	assert.Empty(t, b)

	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)

	require.NoError(t, hub.Notify(context.Background(), []domain.Notification{second}))
	assert.Equal(t, second.EventID, (<-b).EventID)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(4, zap.NewNop())
	ch, cancel := hub.Subscribe()
	require.Equal(t, 1, hub.Subscribers())

	hub.Close()
	_, open := <-ch
	assert.False(t, open)
	assert.Zero(t, hub.Subscribers())
	cancel()

	late, cancelLate := hub.Subscribe()
	defer cancelLate()
	_, open = <-late
	assert.False(t, open)
	require.NoError(t, hub.Notify(context.Background(), []domain.Notification{{EventID: uuid.New()}}))
}

func TestMultiNotifier(t *testing.T) {
	boom := errors.New("boom")
	rec := &recordingNotifier{}
	m := MultiNotifier{erroringNotifier{err: boom}, rec, NewLogNotifier(zap.NewNop())}

	notes := []domain.Notification{{EventID: uuid.New(), Type: domain.NotifyCascadeApplied}}
	err := m.Notify(context.Background(), notes)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, notes, rec.All())
}
