package entity

import "time"

// AvailabilitySnapshot is derived on every read and never stored.
type AvailabilitySnapshot struct {
	MaxCapacity      int       `json:"max_capacity"`
	CurrentAttendees int       `json:"current_attendees"`
	AvailableSeats   int       `json:"available_seats"`
	Sources          []string  `json:"sources"`
	ComputedAt       time.Time `json:"computed_at"`
}

func NewAvailabilitySnapshot(maxCapacity, currentAttendees int) AvailabilitySnapshot {
	available := maxCapacity - currentAttendees
	if available < 0 {
		available = 0
	}

	return AvailabilitySnapshot{
		MaxCapacity:      maxCapacity,
		CurrentAttendees: currentAttendees,
		AvailableSeats:   available,
		ComputedAt:       time.Now().UTC(),
	}
}

// AvailabilitySources holds whatever could be read for one event. A nil
// Event or Counter, or an empty Tiers slice, means that source is absent.
type AvailabilitySources struct {
	Event   *Event        `json:"event,omitempty"`
	Tiers   []TicketTier  `json:"tiers,omitempty"`
	Counter *EventCounter `json:"counter,omitempty"`
}

func (s AvailabilitySources) Empty() bool {
	return s.Event == nil && len(s.Tiers) == 0 && s.Counter == nil
}

// WithTier returns a copy of the sources where the tier with the same id is
// replaced, or appended when it is new.
func (s AvailabilitySources) WithTier(tier TicketTier) AvailabilitySources {
	tiers := make([]TicketTier, 0, len(s.Tiers)+1)
	replaced := false
	for _, t := range s.Tiers {
		if t.ID == tier.ID {
			tiers = append(tiers, tier)
			replaced = true
			continue
		}
		tiers = append(tiers, t)
	}
	if !replaced {
		tiers = append(tiers, tier)
	}

	s.Tiers = tiers
	return s
}
