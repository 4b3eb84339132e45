package reconcile

import (
	"time"

	"attendance/availability"
	"attendance/entity"
)

// applyChange patches the view with a single row change. Applying the same
// change twice, or an older change after a newer one, leaves the view as it
// was. It returns the purchase that became checked in, if any.
func applyChange(view *entity.EventView, change entity.RowChange) (checkedIn string) {
	switch {
	case change.Purchase != nil:
		p := purchaseView(view, change.Purchase.ID)
		p.Purchase = *change.Purchase
		view.Purchases[p.Purchase.ID] = p

	case change.TicketTier != nil:
		view.Sources = view.Sources.WithTier(*change.TicketTier)
		view.Availability = availability.Compute(view.Sources)

	case change.Credential != nil:
		c := *change.Credential
		p := purchaseView(view, c.PurchaseID)
		p.ApplyCredential(c)
		view.Purchases[c.PurchaseID] = p
		if c.Status == entity.CredentialUsed {
			checkedIn = c.PurchaseID
		}

	case change.CheckInRecord != nil:
		r := *change.CheckInRecord
		p := purchaseView(view, r.PurchaseID)
		p.ApplyRecord(r)
		view.Purchases[r.PurchaseID] = p
		if r.Status == entity.CheckInCheckedIn {
			checkedIn = r.PurchaseID
		}
	}

	return checkedIn
}

// purchaseView returns the view of the purchase, or a placeholder when a
// change for it arrived before the purchase itself.
func purchaseView(view *entity.EventView, purchaseID string) entity.PurchaseView {
	if p, ok := view.Purchases[purchaseID]; ok {
		return p
	}
	return entity.PurchaseView{
		Purchase: entity.Purchase{ID: purchaseID, EventID: view.EventID},
		Status:   entity.CheckInPending,
	}
}

// carryForward folds the previous view into a freshly loaded one. Anything
// the fresh read could not see, or saw in an earlier state, is taken from
// prev: purchases are never deleted, credentials only move forward and a
// check-in never goes back to pending.
func carryForward(prev, fresh entity.EventView) entity.EventView {
	for id, old := range prev.Purchases {
		p, ok := fresh.Purchases[id]
		if !ok {
			fresh.Purchases[id] = old
			continue
		}

		freshStatus := make(map[string]entity.CredentialStatus, len(p.Credentials))
		for _, c := range p.Credentials {
			freshStatus[c.ID] = c.Status
		}
		for _, c := range old.Credentials {
			status, seen := freshStatus[c.ID]
			if !seen || status.CanTransitionTo(c.Status) {
				p.ApplyCredential(c)
			}
		}

		if old.Status == entity.CheckInCheckedIn {
			at := time.Now().UTC()
			if old.CheckedInAt != nil {
				at = *old.CheckedInAt
			}
			p.MarkCheckedIn(at)
		}

		fresh.Purchases[id] = p
	}

	return fresh
}
