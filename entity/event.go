package entity

import "time"

type Event struct {
	ID              string     `json:"event_id" db:"event_id"`
	Name            string     `json:"name" db:"name"`
	Capacity        int        `json:"capacity" db:"capacity"`
	AttendeeCount   int        `json:"attendee_count" db:"attendee_count"`
	StartsAt        time.Time  `json:"starts_at" db:"starts_at"`
	CheckInClosedAt *time.Time `json:"check_in_closed_at,omitempty" db:"check_in_closed_at"`
}

// CheckInClosed reports whether the event was administratively closed for
// check-in at the given moment.
func (e Event) CheckInClosed(at time.Time) bool {
	return e.CheckInClosedAt != nil && !at.Before(*e.CheckInClosedAt)
}

// EventCounter is the organizer-maintained attendance counter. When present
// it is more authoritative than anything derived from ticket tiers.
type EventCounter struct {
	EventID   string    `json:"event_id" db:"event_id"`
	Attendees int       `json:"attendees" db:"attendees"`
	Capacity  int       `json:"capacity" db:"capacity"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Money struct {
	Amount   string `json:"amount" db:"amount"`
	Currency string `json:"currency" db:"currency"`
}

type TicketTier struct {
	ID                string `json:"tier_id" db:"tier_id"`
	EventID           string `json:"event_id" db:"event_id"`
	Name              string `json:"name" db:"name"`
	MaxQuantity       int    `json:"max_quantity" db:"max_quantity"`
	AvailableQuantity int    `json:"available_quantity" db:"available_quantity"`
	PriceAmount       string `json:"price_amount" db:"price_amount"`
	PriceCurrency     string `json:"price_currency" db:"price_currency"`
}

type Purchase struct {
	ID                string    `json:"purchase_id" db:"purchase_id"`
	EventID           string    `json:"event_id" db:"event_id"`
	TierID            string    `json:"tier_id" db:"tier_id"`
	BuyerID           string    `json:"buyer_id" db:"buyer_id"`
	Quantity          int       `json:"quantity" db:"quantity"`
	UnitPriceAmount   string    `json:"unit_price_amount" db:"unit_price_amount"`
	UnitPriceCurrency string    `json:"unit_price_currency" db:"unit_price_currency"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}
