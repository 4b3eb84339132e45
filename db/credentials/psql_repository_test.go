package credentials_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance/db"
	"attendance/db/credentials"
	"attendance/db/events"
	"attendance/db/purchases"
	"attendance/db/tiers"
	"attendance/entity"
)

func addPurchase(t *testing.T, quantity int) entity.Purchase {
	t.Helper()
	ctx := context.Background()
	dbConn := db.GetDb(t)

	event := entity.Event{
		ID:       uuid.NewString(),
		Name:     "Concert",
		Capacity: 100,
		StartsAt: time.Now().Add(time.Hour).UTC(),
	}
	require.NoError(t, events.NewPostgresRepository(dbConn).Add(ctx, event))

	tier := entity.TicketTier{
		ID:                uuid.NewString(),
		EventID:           event.ID,
		Name:              "General",
		MaxQuantity:       100,
		AvailableQuantity: 100 - quantity,
		PriceAmount:       "30.00",
		PriceCurrency:     "EUR",
	}
	require.NoError(t, tiers.NewPostgresRepository(dbConn).Upsert(ctx, tier))

	purchase := entity.Purchase{
		ID:                uuid.NewString(),
		EventID:           event.ID,
		TierID:            tier.ID,
		BuyerID:           uuid.NewString(),
		Quantity:          quantity,
		UnitPriceAmount:   "30.00",
		UnitPriceCurrency: "EUR",
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, purchases.NewPostgresRepository(dbConn).Add(ctx, purchase))

	return purchase
}

func newCredential(purchase entity.Purchase, seq int) entity.Credential {
	return entity.Credential{
		ID:             uuid.NewString(),
		PurchaseID:     purchase.ID,
		EventID:        purchase.EventID,
		TierID:         purchase.TierID,
		BuyerID:        purchase.BuyerID,
		SequenceNumber: seq,
		Quantity:       purchase.Quantity,
		Token:          fmt.Sprintf("tkt_%s", uuid.NewString()),
		Status:         entity.CredentialActive,
		IssuedAt:       time.Now().UTC(),
	}
}

func TestPostgresRepository_Add_rejects_duplicate_sequence_number(t *testing.T) {
	ctx := context.Background()
	repo := credentials.NewPostgresRepository(db.GetDb(t))
	purchase := addPurchase(t, 2)

	require.NoError(t, repo.Add(ctx, newCredential(purchase, 1)))

	err := repo.Add(ctx, newCredential(purchase, 1))
	assert.ErrorIs(t, err, entity.ErrConflict)

	list, err := repo.ListByPurchase(ctx, purchase.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPostgresRepository_Add_rejects_sequence_over_quantity(t *testing.T) {
	ctx := context.Background()
	repo := credentials.NewPostgresRepository(db.GetDb(t))
	purchase := addPurchase(t, 1)

	err := repo.Add(ctx, newCredential(purchase, 2))
	assert.Error(t, err)
}

func TestPostgresRepository_FirstActiveByPurchase(t *testing.T) {
	ctx := context.Background()
	repo := credentials.NewPostgresRepository(db.GetDb(t))
	purchase := addPurchase(t, 3)

	for _, seq := range []int{3, 1, 2} {
		require.NoError(t, repo.Add(ctx, newCredential(purchase, seq)))
	}

	first, err := repo.FirstActiveByPurchase(ctx, purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, first.SequenceNumber)

	_, _, err = repo.MarkUsed(ctx, first.ID, "scanner-1", time.Now().UTC())
	require.NoError(t, err)

	next, err := repo.FirstActiveByPurchase(ctx, purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next.SequenceNumber)
}

func TestPostgresRepository_MarkUsed_concurrent(t *testing.T) {
	ctx := context.Background()
	repo := credentials.NewPostgresRepository(db.GetDb(t))
	purchase := addPurchase(t, 1)

	credential := newCredential(purchase, 1)
	require.NoError(t, repo.Add(ctx, credential))

	const workers = 10

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			used, _, err := repo.MarkUsed(ctx, credential.ID, fmt.Sprintf("scanner-%d", i), time.Now().UTC())

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if assert.ErrorIs(t, err, entity.ErrCredentialNotActive) {
				assert.Equal(t, entity.CredentialUsed, used.Status)
				rejected++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, rejected)

	stored, err := repo.Get(ctx, credential.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.CredentialUsed, stored.Status)
	assert.NotNil(t, stored.UsedAt)
	assert.NotEmpty(t, stored.UsedBy)
}

func TestPostgresRepository_MarkUsed_unknown_credential(t *testing.T) {
	repo := credentials.NewPostgresRepository(db.GetDb(t))

	_, _, err := repo.MarkUsed(context.Background(), uuid.NewString(), "scanner-1", time.Now())
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
