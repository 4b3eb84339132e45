package availability

import (
	"fmt"

	"attendance/entity"
)

type totals struct {
	maxCapacity      int
	currentAttendees int
}

type step struct {
	name  string
	apply func(sources entity.AvailabilitySources, t *totals) bool
}

// steps are ordered by precedence: a later step overrides what earlier steps
// produced, but only when its source is present.
var steps = []step{
	{name: "event", apply: seedFromEvent},
	{name: "tiers", apply: applyTierTotals},
	{name: "counter", apply: applyEventCounter},
}

// Compute merges the available sources into a snapshot. It never fails:
// with no sources at all the snapshot is empty.
func Compute(sources entity.AvailabilitySources) entity.AvailabilitySnapshot {
	var (
		t       totals
		applied []string
	)
	for _, s := range steps {
		if s.apply(sources, &t) {
			applied = append(applied, s.name)
		}
	}

	snapshot := entity.NewAvailabilitySnapshot(t.maxCapacity, t.currentAttendees)
	snapshot.Sources = applied
	return snapshot
}

func seedFromEvent(sources entity.AvailabilitySources, t *totals) bool {
	if sources.Event == nil {
		return false
	}

	t.maxCapacity = nonNegative(sources.Event.Capacity)
	t.currentAttendees = nonNegative(sources.Event.AttendeeCount)
	return true
}

func applyTierTotals(sources entity.AvailabilitySources, t *totals) bool {
	capacitySum, availableSum := tierSums(sources.Tiers)
	if capacitySum <= 0 {
		return false
	}

	t.maxCapacity = capacitySum
	t.currentAttendees = nonNegative(capacitySum - availableSum)
	return true
}

func applyEventCounter(sources entity.AvailabilitySources, t *totals) bool {
	if sources.Counter == nil {
		return false
	}

	t.currentAttendees = nonNegative(sources.Counter.Attendees)
	if sources.Counter.Capacity != 0 {
		t.maxCapacity = nonNegative(sources.Counter.Capacity)
	}
	return true
}

func tierSums(tiers []entity.TicketTier) (capacitySum, availableSum int) {
	for _, tier := range tiers {
		capacitySum += nonNegative(tier.MaxQuantity)
		availableSum += nonNegative(tier.AvailableQuantity)
	}
	return capacitySum, availableSum
}

// Inconsistencies describes disagreements between the sources. They are
// reported, never fatal: the precedence order in Compute settles them.
func Inconsistencies(sources entity.AvailabilitySources) []string {
	var found []string

	capacitySum, availableSum := tierSums(sources.Tiers)
	if sources.Event != nil && capacitySum > 0 && sources.Event.Capacity != capacitySum {
		found = append(found, fmt.Sprintf(
			"tier capacity sum %d differs from event capacity %d", capacitySum, sources.Event.Capacity,
		))
	}
	if availableSum > capacitySum {
		found = append(found, fmt.Sprintf(
			"available sum %d exceeds tier capacity sum %d", availableSum, capacitySum,
		))
	}
	for _, tier := range sources.Tiers {
		if tier.AvailableQuantity > tier.MaxQuantity {
			found = append(found, fmt.Sprintf(
				"tier %s has %d available of %d", tier.ID, tier.AvailableQuantity, tier.MaxQuantity,
			))
		}
	}

	return found
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
