package checkins_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance/db"
	"attendance/db/checkins"
	"attendance/db/events"
	"attendance/db/purchases"
	"attendance/db/tiers"
	"attendance/entity"
)

func TestPostgresRepository_Add_idempotency(t *testing.T) {
	ctx := context.Background()
	dbConn := db.GetDb(t)

	event := entity.Event{ID: uuid.NewString(), Name: "Concert", Capacity: 10, StartsAt: time.Now().UTC()}
	require.NoError(t, events.NewPostgresRepository(dbConn).Add(ctx, event))

	tier := entity.TicketTier{
		ID:                uuid.NewString(),
		EventID:           event.ID,
		Name:              "General",
		MaxQuantity:       10,
		AvailableQuantity: 9,
		PriceAmount:       "10.00",
		PriceCurrency:     "EUR",
	}
	require.NoError(t, tiers.NewPostgresRepository(dbConn).Upsert(ctx, tier))

	purchase := entity.Purchase{
		ID:                uuid.NewString(),
		EventID:           event.ID,
		TierID:            tier.ID,
		BuyerID:           uuid.NewString(),
		Quantity:          1,
		UnitPriceAmount:   "10.00",
		UnitPriceCurrency: "EUR",
		CreatedAt:         time.Now().UTC(),
	}
	require.NoError(t, purchases.NewPostgresRepository(dbConn).Add(ctx, purchase))

	repo := checkins.NewPostgresRepository(dbConn)
	record := entity.CheckInRecord{
		ID:         uuid.NewString(),
		PurchaseID: purchase.ID,
		EventID:    event.ID,
		ActorID:    "organizer",
		Status:     entity.CheckInNoShow,
		RecordedAt: time.Now().UTC(),
	}

	for i := 0; i < 2; i++ {
		require.NoError(t, repo.Add(ctx, record))

		list, err := repo.ListByEvent(ctx, event.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, entity.CheckInNoShow, list[0].Status)
	}

	byPurchase, err := repo.ListByPurchase(ctx, purchase.ID)
	require.NoError(t, err)
	assert.Len(t, byPurchase, 1)
}
