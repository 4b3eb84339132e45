package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"attendance/entity"
	"attendance/reconcile"
)

func TestHub_shares_listener_between_watchers(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, 1, 1)
	defer f.pubSub.Close()

	created := 0
	hub := reconcile.NewHub(context.Background(), func(eventID string, onChange func(entity.EventView)) *reconcile.Listener {
		created++
		return reconcile.NewListener(eventID, f.pubSub, f.loader, f.scanMemory, f.backfill, onChange, reconcile.Config{
			QuietWindow: quietWindow,
		})
	})
	defer hub.Close()

	first := &views{}
	second := &views{}

	sub1, err := hub.Subscribe(f.event.ID, first.onChange)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return first.Last().Version > 0
	}, time.Second, 5*time.Millisecond)

	sub2, err := hub.Subscribe(f.event.ID, second.onChange)
	require.NoError(t, err)

	assert.Equal(t, 1, created)
	assert.Equal(t, 2, hub.Watchers(f.event.ID))
	assert.Equal(t, first.Last().Version, second.Last().Version, "late watcher gets the current view right away")

	f.publish(t, entity.NewCredentialChange(entity.OperationUpdate, f.usedCredential()))

	require.Eventually(t, func() bool {
		return first.Last().Purchases[f.purchase.ID].Status == entity.CheckInCheckedIn &&
			second.Last().Purchases[f.purchase.ID].Status == entity.CheckInCheckedIn
	}, time.Second, 5*time.Millisecond)

	sub1.Unsubscribe()
	sub1.Unsubscribe()
	assert.Equal(t, 1, hub.Watchers(f.event.ID))

	current, ok := hub.Current(f.event.ID)
	require.True(t, ok)
	assert.Equal(t, entity.CheckInCheckedIn, current.Purchases[f.purchase.ID].Status)

	sub2.Unsubscribe()
	assert.Equal(t, 0, hub.Watchers(f.event.ID))

	_, ok = hub.Current(f.event.ID)
	assert.False(t, ok)

	loads := f.loader.calls.Load()
	assert.Never(t, func() bool {
		return f.loader.calls.Load() != loads
	}, 3*quietWindow, 10*time.Millisecond, "no refresh after the last watcher left")
}

func TestHub_Close(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, 1, 1)
	defer f.pubSub.Close()

	hub := reconcile.NewHub(context.Background(), func(eventID string, onChange func(entity.EventView)) *reconcile.Listener {
		return reconcile.NewListener(eventID, f.pubSub, f.loader, f.scanMemory, nil, onChange, reconcile.Config{})
	})

	_, err := hub.Subscribe(f.event.ID, func(entity.EventView) {})
	require.NoError(t, err)

	hub.Close()

	_, err = hub.Subscribe(f.event.ID, func(entity.EventView) {})
	assert.ErrorIs(t, err, reconcile.ErrHubClosed)
	assert.Equal(t, 0, hub.Watchers(f.event.ID))
}
