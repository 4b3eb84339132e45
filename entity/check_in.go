package entity

import "time"

type CheckInStatus string

const (
	CheckInPending   CheckInStatus = "pending"
	CheckInCheckedIn CheckInStatus = "checked_in"
	CheckInNoShow    CheckInStatus = "no_show"
)

func (s CheckInStatus) Valid() bool {
	return s == CheckInPending || s == CheckInCheckedIn || s == CheckInNoShow
}

// Merge combines the currently displayed status with a newly observed one.
// Checked-in is sticky: neither a stale read nor an administrative label
// can move a purchase away from it.
func (s CheckInStatus) Merge(observed CheckInStatus) CheckInStatus {
	if s == CheckInCheckedIn || observed == CheckInCheckedIn {
		return CheckInCheckedIn
	}
	if !observed.Valid() {
		if s.Valid() {
			return s
		}
		return CheckInPending
	}
	return observed
}

// CheckInRecord is the coarse, purchase level attendance marker. CredentialID
// is empty for administrative records.
type CheckInRecord struct {
	ID           string        `json:"record_id" db:"record_id"`
	PurchaseID   string        `json:"purchase_id" db:"purchase_id"`
	EventID      string        `json:"event_id" db:"event_id"`
	CredentialID string        `json:"credential_id,omitempty" db:"credential_id"`
	ActorID      string        `json:"actor_id" db:"actor_id"`
	Status       CheckInStatus `json:"status" db:"status"`
	RecordedAt   time.Time     `json:"recorded_at" db:"recorded_at"`
}

type CheckInResult struct {
	Record     CheckInRecord `json:"record"`
	Credential Credential    `json:"credential"`

	// AlreadyCheckedIn is set when the call observed a credential that was
	// used before it, so nothing changed.
	AlreadyCheckedIn bool `json:"already_checked_in"`
}
