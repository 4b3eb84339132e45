package scanmemory_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance/entity"
	"attendance/scanmemory"
)

func TestStore_Record_survives_reload(t *testing.T) {
	ctx := context.Background()
	persister := scanmemory.NewFilePersister(t.TempDir(), scanmemory.DefaultKey)

	store, err := scanmemory.NewStore(ctx, persister)
	require.NoError(t, err)
	assert.False(t, store.Has("purchase-1"))

	added, err := store.Record(ctx, "purchase-1")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = store.Record(ctx, "purchase-1")
	require.NoError(t, err)
	assert.False(t, added, "second record of the same purchase should be a no-op")

	reloaded, err := scanmemory.NewStore(ctx, persister)
	require.NoError(t, err)
	assert.True(t, reloaded.Has("purchase-1"))
	assert.Equal(t, 1, reloaded.Len())
}

func TestStore_Record_concurrent_writers(t *testing.T) {
	ctx := context.Background()
	persister := scanmemory.NewFilePersister(t.TempDir(), scanmemory.DefaultKey)

	store, err := scanmemory.NewStore(ctx, persister)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Record(ctx, fmt.Sprintf("purchase-%d", i%25))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	reloaded, err := scanmemory.NewStore(ctx, persister)
	require.NoError(t, err)
	assert.Equal(t, 25, reloaded.Len())
}

func TestStore_Reconcile(t *testing.T) {
	ctx := context.Background()
	store, err := scanmemory.NewStore(ctx, scanmemory.NewFilePersister(t.TempDir(), ""))
	require.NoError(t, err)

	_, err = store.Record(ctx, "seen")
	require.NoError(t, err)

	checkedInAt := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

	view := entity.NewEventView("event-1")
	// what an authoritative read returns when the credential table is not
	// readable for this viewer
	view.Purchases["seen"] = entity.PurchaseView{
		Purchase: entity.Purchase{ID: "seen", Quantity: 2},
		Status:   entity.CheckInPending,
	}
	view.Purchases["other"] = entity.PurchaseView{
		Purchase: entity.Purchase{ID: "other", Quantity: 1},
		Status:   entity.CheckInPending,
	}
	view.Purchases["stamped"] = entity.PurchaseView{
		Purchase:    entity.Purchase{ID: "stamped", Quantity: 1},
		Status:      entity.CheckInCheckedIn,
		CheckedInAt: &checkedInAt,
	}
	_, err = store.Record(ctx, "stamped")
	require.NoError(t, err)

	reconciled := store.Reconcile(view)

	assert.Equal(t, entity.CheckInCheckedIn, reconciled.Purchases["seen"].Status)
	assert.NotNil(t, reconciled.Purchases["seen"].CheckedInAt)
	assert.Equal(t, entity.CheckInPending, reconciled.Purchases["other"].Status)
	assert.Nil(t, reconciled.Purchases["other"].CheckedInAt)
	assert.Equal(t, checkedInAt, *reconciled.Purchases["stamped"].CheckedInAt, "existing check-in time is kept")
}

func TestStore_Invalidate(t *testing.T) {
	ctx := context.Background()
	persister := scanmemory.NewFilePersister(t.TempDir(), scanmemory.DefaultKey)

	store, err := scanmemory.NewStore(ctx, persister)
	require.NoError(t, err)

	_, err = store.Record(ctx, "purchase-1")
	require.NoError(t, err)

	require.NoError(t, store.Invalidate(ctx))
	assert.False(t, store.Has("purchase-1"))

	reloaded, err := scanmemory.NewStore(ctx, persister)
	require.NoError(t, err)
	assert.Equal(t, 0, reloaded.Len())
}

type failingPersister struct{}

func (failingPersister) Load(ctx context.Context) ([]string, error) { return nil, nil }

func (failingPersister) Save(ctx context.Context, added string, all []string) error {
	return errors.New("disk full")
}

func (failingPersister) Clear(ctx context.Context) error { return nil }

func TestStore_Record_keeps_entry_when_flush_fails(t *testing.T) {
	ctx := context.Background()
	store, err := scanmemory.NewStore(ctx, failingPersister{})
	require.NoError(t, err)

	added, err := store.Record(ctx, "purchase-1")
	require.Error(t, err)
	assert.True(t, added)
	assert.True(t, store.Has("purchase-1"))
}

func TestFilePersister_keys_are_separate(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	v1 := scanmemory.NewFilePersister(dir, "scan-memory.v1")
	require.NoError(t, v1.Save(ctx, "purchase-1", []string{"purchase-1"}))

	ids, err := scanmemory.NewFilePersister(dir, "scan-memory.v2").Load(ctx)
	require.NoError(t, err, "a new key reads its own empty file")
	assert.Empty(t, ids)
}
