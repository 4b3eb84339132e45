package entity

import (
	"sort"
	"time"
)

type PurchaseView struct {
	Purchase    Purchase      `json:"purchase"`
	Credentials []Credential  `json:"credentials"`
	Status      CheckInStatus `json:"status"`
	CheckedInAt *time.Time    `json:"checked_in_at,omitempty"`
}

// Deficit is the number of credentials still to be issued for the purchase.
func (p PurchaseView) Deficit() int {
	d := p.Purchase.Quantity - len(p.Credentials)
	if d < 0 {
		return 0
	}
	return d
}

// ApplyCredential inserts or updates a credential. Status changes only move
// forward, so a duplicated or late message cannot undo a check-in.
func (p *PurchaseView) ApplyCredential(c Credential) {
	for i, existing := range p.Credentials {
		if existing.ID != c.ID {
			continue
		}

		status := existing.Status.Advance(c.Status)
		if status == existing.Status && existing.Status == CredentialUsed {
			// keep the first observed use
			c.UsedAt = existing.UsedAt
			c.UsedBy = existing.UsedBy
		}
		c.Status = status
		p.Credentials[i] = c
		p.deriveStatus()
		return
	}

	p.Credentials = append(p.Credentials, c)
	sort.Slice(p.Credentials, func(i, j int) bool {
		return p.Credentials[i].SequenceNumber < p.Credentials[j].SequenceNumber
	})
	p.deriveStatus()
}

// MarkCheckedIn forces the checked-in state, stamping at when no check-in
// time is known yet.
func (p *PurchaseView) MarkCheckedIn(at time.Time) {
	p.Status = CheckInCheckedIn
	if p.CheckedInAt == nil {
		p.CheckedInAt = &at
	}
}

func (p *PurchaseView) deriveStatus() {
	for _, c := range p.Credentials {
		if c.Status != CredentialUsed {
			continue
		}
		usedAt := time.Now().UTC()
		if c.UsedAt != nil {
			usedAt = *c.UsedAt
		}
		if p.CheckedInAt == nil || usedAt.Before(*p.CheckedInAt) {
			p.CheckedInAt = &usedAt
		}
		p.Status = CheckInCheckedIn
	}
	if p.Status == "" {
		p.Status = CheckInPending
	}
}

// EventView is the in-memory picture of one event that viewers render. It is
// owned by a single listener and handed out as copies.
type EventView struct {
	EventID      string                  `json:"event_id"`
	Version      uint64                  `json:"version"`
	Availability AvailabilitySnapshot    `json:"availability"`
	Sources      AvailabilitySources     `json:"-"`
	Purchases    map[string]PurchaseView `json:"purchases"`
	RefreshedAt  time.Time               `json:"refreshed_at"`

	// Stale is set when the last authoritative refresh failed and the view
	// still shows the previous result.
	Stale bool `json:"stale"`
	// Degraded is set while the change subscription is down.
	Degraded bool `json:"degraded"`
	// Unreadable lists the sources the last refresh had to do without.
	Unreadable []string `json:"unreadable,omitempty"`
}

func (v EventView) Readable(source string) bool {
	for _, s := range v.Unreadable {
		if s == source {
			return false
		}
	}
	return true
}

func NewEventView(eventID string) EventView {
	return EventView{
		EventID:   eventID,
		Purchases: map[string]PurchaseView{},
	}
}

func (v EventView) Clone() EventView {
	purchases := make(map[string]PurchaseView, len(v.Purchases))
	for id, p := range v.Purchases {
		p.Credentials = append([]Credential(nil), p.Credentials...)
		if p.CheckedInAt != nil {
			at := *p.CheckedInAt
			p.CheckedInAt = &at
		}
		purchases[id] = p
	}
	v.Purchases = purchases
	v.Sources.Tiers = append([]TicketTier(nil), v.Sources.Tiers...)
	v.Availability.Sources = append([]string(nil), v.Availability.Sources...)
	v.Unreadable = append([]string(nil), v.Unreadable...)
	return v
}

// NewPurchaseView builds the view of a purchase from its credentials and
// check-in records.
func NewPurchaseView(purchase Purchase, credentials []Credential, records []CheckInRecord) PurchaseView {
	p := PurchaseView{Purchase: purchase, Status: CheckInPending}
	for _, c := range credentials {
		p.ApplyCredential(c)
	}
	p.deriveStatus()
	for _, r := range records {
		p.ApplyRecord(r)
	}
	return p
}

func (p *PurchaseView) ApplyRecord(r CheckInRecord) {
	if r.Status == CheckInCheckedIn {
		p.MarkCheckedIn(r.RecordedAt)
		return
	}
	p.Status = p.Status.Merge(r.Status)
}
