package tiers_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance/db"
	"attendance/db/events"
	"attendance/db/tiers"
	"attendance/entity"
)

func TestPostgresRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	dbConn := db.GetDb(t)

	event := entity.Event{ID: uuid.NewString(), Name: "Concert", Capacity: 100, StartsAt: time.Now().UTC()}
	require.NoError(t, events.NewPostgresRepository(dbConn).Add(ctx, event))

	repo := tiers.NewPostgresRepository(dbConn)
	tier := entity.TicketTier{
		ID:                uuid.NewString(),
		EventID:           event.ID,
		Name:              "A",
		MaxQuantity:       60,
		AvailableQuantity: 60,
		PriceAmount:       "50.00",
		PriceCurrency:     "EUR",
	}
	require.NoError(t, repo.Upsert(ctx, tier))

	tier.AvailableQuantity = 10
	require.NoError(t, repo.Upsert(ctx, tier))

	list, err := repo.ListByEvent(ctx, event.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 10, list[0].AvailableQuantity)
	assert.Equal(t, "50.00", list[0].PriceAmount)

	_, err = repo.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, entity.ErrNotFound)
}
