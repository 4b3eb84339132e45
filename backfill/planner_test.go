package backfill_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance/backfill"
	"attendance/entity"
	"attendance/gateway"
	"attendance/mocks"
)

type fixture struct {
	purchase    entity.Purchase
	credentials *mocks.CredentialsRepository
	issuer      *gateway.CredentialIssuerMock
	planner     *backfill.Planner
}

func newFixture(t *testing.T, quantity int, existing ...int) fixture {
	t.Helper()

	event := entity.Event{ID: uuid.NewString(), Name: "Concert", Capacity: 100, StartsAt: time.Now()}
	tier := entity.TicketTier{ID: uuid.NewString(), EventID: event.ID, Name: "VIP", MaxQuantity: 10}
	purchase := entity.Purchase{
		ID:       uuid.NewString(),
		EventID:  event.ID,
		TierID:   tier.ID,
		BuyerID:  "buyer-1",
		Quantity: quantity,
	}

	credentials := mocks.NewCredentialsRepository(nil)
	for _, seq := range existing {
		require.NoError(t, credentials.Add(context.Background(), entity.Credential{
			ID:             uuid.NewString(),
			PurchaseID:     purchase.ID,
			EventID:        event.ID,
			SequenceNumber: seq,
			Quantity:       quantity,
			Status:         entity.CredentialActive,
		}))
	}

	issuer := &gateway.CredentialIssuerMock{}

	return fixture{
		purchase:    purchase,
		credentials: credentials,
		issuer:      issuer,
		planner: backfill.NewPlanner(
			mocks.NewPurchasesRepository(purchase),
			mocks.NewEventsRepository(event),
			mocks.NewTiersRepository(tier),
			credentials,
			issuer,
		),
	}
}

func (f fixture) sequences(t *testing.T) []int {
	t.Helper()

	list, err := f.credentials.ListByPurchase(context.Background(), f.purchase.ID)
	require.NoError(t, err)

	seqs := make([]int, 0, len(list))
	for _, c := range list {
		seqs = append(seqs, c.SequenceNumber)
	}
	sort.Ints(seqs)
	return seqs
}

func TestPlanner_EnsureCredentials_fills_the_tail(t *testing.T) {
	f := newFixture(t, 5, 1, 2)
	ctx := context.Background()

	issued, err := f.planner.EnsureCredentials(ctx, f.purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, issued)
	assert.Equal(t, []int{3, 4, 5}, f.issuer.MintedSequences(f.purchase.ID))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, f.sequences(t))

	issued, err = f.planner.EnsureCredentials(ctx, f.purchase.ID)
	require.NoError(t, err)
	assert.Zero(t, issued)
	assert.Len(t, f.issuer.Minted, 3)
}

func TestPlanner_EnsureCredentials_single_existing(t *testing.T) {
	f := newFixture(t, 3, 1)

	issued, err := f.planner.EnsureCredentials(context.Background(), f.purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, issued)
	assert.Equal(t, []int{1, 2, 3}, f.sequences(t))
}

func TestPlanner_EnsureCredentials_carries_display_metadata(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.planner.EnsureCredentials(context.Background(), f.purchase.ID)
	require.NoError(t, err)

	list, err := f.credentials.ListByPurchase(context.Background(), f.purchase.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	c := list[0]
	assert.Equal(t, "Concert", c.EventName)
	assert.Equal(t, "VIP", c.TierName)
	assert.Equal(t, "buyer-1", c.BuyerID)
	assert.Equal(t, 1, c.Quantity)
	assert.Equal(t, entity.CredentialActive, c.Status)
	assert.NotEmpty(t, c.Token)
	assert.False(t, c.IssuedAt.IsZero())
}

func TestPlanner_EnsureCredentials_concurrent_calls(t *testing.T) {
	f := newFixture(t, 4, 1)

	const callers = 8

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			issued, err := f.planner.EnsureCredentials(context.Background(), f.purchase.ID)
			assert.NoError(t, err)

			mu.Lock()
			total += issued
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, total)
	assert.Equal(t, []int{1, 2, 3, 4}, f.sequences(t))
}

func TestPlanner_EnsureCredentials_partial_failure(t *testing.T) {
	f := newFixture(t, 5, 1)
	ctx := context.Background()

	f.issuer.FailFor = map[int]error{4: errors.New("issuer unavailable")}

	issued, err := f.planner.EnsureCredentials(ctx, f.purchase.ID)
	assert.Equal(t, 2, issued)

	var partial *entity.PartialBackfillError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 2, partial.Issued)
	assert.Equal(t, []int{4, 5}, partial.Missing)
	assert.Equal(t, []int{1, 2, 3}, f.sequences(t))

	f.issuer.Heal()

	issued, err = f.planner.EnsureCredentials(ctx, f.purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, issued)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, f.sequences(t))
}

func TestPlanner_EnsureCredentials_skips_sequences_stored_elsewhere(t *testing.T) {
	f := newFixture(t, 3)

	// another replica stores sequence 2 between listing and adding
	f.credentials.AddFunc = func(ctx context.Context, c entity.Credential) error {
		if c.SequenceNumber == 2 {
			return fmt.Errorf("credential 2: %w", entity.ErrConflict)
		}
		return nil
	}

	issued, err := f.planner.EnsureCredentials(context.Background(), f.purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, issued)
	assert.Equal(t, []int{1, 3}, f.sequences(t))
}

func TestPlanner_EnsureCredentials_unknown_purchase(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.planner.EnsureCredentials(context.Background(), "unknown")
	assert.ErrorIs(t, err, entity.ErrNotFound)
}

func TestMissingSequences(t *testing.T) {
	existing := []entity.Credential{{SequenceNumber: 1}, {SequenceNumber: 3}}

	assert.Equal(t, []int{2, 4}, backfill.MissingSequences(4, existing))
	assert.Empty(t, backfill.MissingSequences(1, existing))
	assert.Empty(t, backfill.MissingSequences(0, nil))
}
