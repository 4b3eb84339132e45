package availability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"attendance/entity"
)

func TestCompute(t *testing.T) {
	testCases := []struct {
		Name              string
		Sources           entity.AvailabilitySources
		ExpectedMax       int
		ExpectedCurrent   int
		ExpectedAvailable int
		ExpectedSources   []string
	}{
		{
			Name:              "no_sources",
			Sources:           entity.AvailabilitySources{},
			ExpectedMax:       0,
			ExpectedCurrent:   0,
			ExpectedAvailable: 0,
		},
		{
			Name: "event_only",
			Sources: entity.AvailabilitySources{
				Event: &entity.Event{Capacity: 50, AttendeeCount: 20},
			},
			ExpectedMax:       50,
			ExpectedCurrent:   20,
			ExpectedAvailable: 30,
			ExpectedSources:   []string{"event"},
		},
		{
			Name: "tiers_override_event",
			Sources: entity.AvailabilitySources{
				Event: &entity.Event{Capacity: 100, AttendeeCount: 3},
				Tiers: []entity.TicketTier{
					{ID: "a", MaxQuantity: 60, AvailableQuantity: 10},
					{ID: "b", MaxQuantity: 40, AvailableQuantity: 5},
				},
			},
			ExpectedMax:       100,
			ExpectedCurrent:   85,
			ExpectedAvailable: 15,
			ExpectedSources:   []string{"event", "tiers"},
		},
		{
			Name: "tiers_without_capacity_are_ignored",
			Sources: entity.AvailabilitySources{
				Event: &entity.Event{Capacity: 10, AttendeeCount: 4},
				Tiers: []entity.TicketTier{{ID: "a", MaxQuantity: 0, AvailableQuantity: 0}},
			},
			ExpectedMax:       10,
			ExpectedCurrent:   4,
			ExpectedAvailable: 6,
			ExpectedSources:   []string{"event"},
		},
		{
			Name: "counter_overrides_tiers",
			Sources: entity.AvailabilitySources{
				Event:   &entity.Event{Capacity: 100},
				Tiers:   []entity.TicketTier{{ID: "a", MaxQuantity: 100, AvailableQuantity: 40}},
				Counter: &entity.EventCounter{Attendees: 70, Capacity: 120},
			},
			ExpectedMax:       120,
			ExpectedCurrent:   70,
			ExpectedAvailable: 50,
			ExpectedSources:   []string{"event", "tiers", "counter"},
		},
		{
			Name: "counter_with_zero_capacity_keeps_tier_capacity",
			Sources: entity.AvailabilitySources{
				Tiers:   []entity.TicketTier{{ID: "a", MaxQuantity: 80, AvailableQuantity: 40}},
				Counter: &entity.EventCounter{Attendees: 50},
			},
			ExpectedMax:       80,
			ExpectedCurrent:   50,
			ExpectedAvailable: 30,
			ExpectedSources:   []string{"tiers", "counter"},
		},
		{
			Name: "oversold_is_clamped",
			Sources: entity.AvailabilitySources{
				Event:   &entity.Event{Capacity: 10},
				Counter: &entity.EventCounter{Attendees: 12},
			},
			ExpectedMax:       10,
			ExpectedCurrent:   12,
			ExpectedAvailable: 0,
			ExpectedSources:   []string{"event", "counter"},
		},
		{
			Name: "available_above_capacity",
			Sources: entity.AvailabilitySources{
				Tiers: []entity.TicketTier{{ID: "a", MaxQuantity: 10, AvailableQuantity: 15}},
			},
			ExpectedMax:       10,
			ExpectedCurrent:   0,
			ExpectedAvailable: 10,
			ExpectedSources:   []string{"tiers"},
		},
		{
			Name: "negative_inputs",
			Sources: entity.AvailabilitySources{
				Event: &entity.Event{Capacity: -5, AttendeeCount: -3},
			},
			ExpectedMax:       0,
			ExpectedCurrent:   0,
			ExpectedAvailable: 0,
			ExpectedSources:   []string{"event"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.Name, func(t *testing.T) {
			snapshot := Compute(tc.Sources)

			assert.Equal(t, tc.ExpectedMax, snapshot.MaxCapacity)
			assert.Equal(t, tc.ExpectedCurrent, snapshot.CurrentAttendees)
			assert.Equal(t, tc.ExpectedAvailable, snapshot.AvailableSeats)
			assert.Equal(t, tc.ExpectedSources, snapshot.Sources)
		})
	}
}

func TestCompute_available_seats_never_negative(t *testing.T) {
	event := &entity.Event{Capacity: 30, AttendeeCount: 10}
	tiers := []entity.TicketTier{
		{ID: "a", MaxQuantity: 20, AvailableQuantity: 20},
		{ID: "b", MaxQuantity: 10, AvailableQuantity: 10},
	}

	sources := entity.AvailabilitySources{Event: event, Tiers: tiers}
	for sold := 0; sold <= 40; sold++ {
		tier := tiers[0]
		tier.AvailableQuantity = 20 - sold
		sources = sources.WithTier(tier)

		for _, counter := range []*entity.EventCounter{nil, {Attendees: sold * 2}} {
			sources.Counter = counter

			snapshot := Compute(sources)
			expected := snapshot.MaxCapacity - snapshot.CurrentAttendees
			if expected < 0 {
				expected = 0
			}
			assert.Equal(t, expected, snapshot.AvailableSeats)
			assert.GreaterOrEqual(t, snapshot.AvailableSeats, 0)
		}
	}
}

func TestInconsistencies(t *testing.T) {
	sources := entity.AvailabilitySources{
		Event: &entity.Event{Capacity: 90},
		Tiers: []entity.TicketTier{
			{ID: "a", MaxQuantity: 60, AvailableQuantity: 70},
			{ID: "b", MaxQuantity: 40, AvailableQuantity: 5},
		},
	}

	assert.Len(t, Inconsistencies(sources), 3)
	assert.Empty(t, Inconsistencies(entity.AvailabilitySources{
		Event: &entity.Event{Capacity: 100},
		Tiers: []entity.TicketTier{{ID: "a", MaxQuantity: 100, AvailableQuantity: 1}},
	}))
}
