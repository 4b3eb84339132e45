package entity

import "time"

type CredentialStatus string

const (
	CredentialActive    CredentialStatus = "active"
	CredentialUsed      CredentialStatus = "used"
	CredentialCancelled CredentialStatus = "cancelled"
	CredentialExpired   CredentialStatus = "expired"
)

func (s CredentialStatus) Valid() bool {
	switch s {
	case CredentialActive, CredentialUsed, CredentialCancelled, CredentialExpired:
		return true
	}
	return false
}

func (s CredentialStatus) Terminal() bool {
	return s == CredentialCancelled || s == CredentialExpired
}

// CanTransitionTo reports whether moving from s to next is a forward
// transition. Used never goes back to active and terminal states never move.
func (s CredentialStatus) CanTransitionTo(next CredentialStatus) bool {
	switch s {
	case CredentialActive:
		return next == CredentialUsed || next.Terminal()
	case CredentialUsed:
		return next.Terminal()
	default:
		return false
	}
}

// Advance returns the status that results from observing next while in s.
// Observations that would move backwards are ignored.
func (s CredentialStatus) Advance(next CredentialStatus) CredentialStatus {
	if !s.Valid() {
		return next
	}
	if s.CanTransitionTo(next) {
		return next
	}
	return s
}

// Credential is the per-seat scannable ticket of a purchase. Event, tier and
// buyer data is denormalized so it can be displayed without joins.
type Credential struct {
	ID             string           `json:"credential_id" db:"credential_id"`
	PurchaseID     string           `json:"purchase_id" db:"purchase_id"`
	EventID        string           `json:"event_id" db:"event_id"`
	EventName      string           `json:"event_name" db:"event_name"`
	TierID         string           `json:"tier_id" db:"tier_id"`
	TierName       string           `json:"tier_name" db:"tier_name"`
	BuyerID        string           `json:"buyer_id" db:"buyer_id"`
	SequenceNumber int              `json:"sequence_number" db:"sequence_number"`
	Quantity       int              `json:"quantity" db:"quantity"`
	Token          string           `json:"token" db:"token"`
	Status         CredentialStatus `json:"status" db:"status"`
	IssuedAt       time.Time        `json:"issued_at" db:"issued_at"`
	UsedAt         *time.Time       `json:"used_at,omitempty" db:"used_at"`
	UsedBy         string           `json:"used_by,omitempty" db:"used_by"`
}

// Counted reports whether the credential still occupies one of the
// purchase's seats.
func (c Credential) Counted() bool {
	return !c.Status.Terminal()
}

// MintRequest carries what the credential issuer needs to mint the token
// for one seat.
type MintRequest struct {
	PurchaseID     string
	SequenceNumber int
	Quantity       int
	EventID        string
	EventName      string
	TierID         string
	TierName       string
	BuyerID        string
}

type MintedCredential struct {
	CredentialID string
	Token        string
}
