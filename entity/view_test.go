package entity_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance/entity"
)

func TestPurchaseView_ApplyCredential(t *testing.T) {
	firstUse := time.Date(2024, 5, 1, 19, 0, 0, 0, time.UTC)
	laterUse := firstUse.Add(time.Minute)

	p := entity.NewPurchaseView(entity.Purchase{ID: "p1", Quantity: 3}, []entity.Credential{
		{ID: "c2", PurchaseID: "p1", SequenceNumber: 2, Status: entity.CredentialActive},
		{ID: "c1", PurchaseID: "p1", SequenceNumber: 1, Status: entity.CredentialActive},
	}, nil)

	assert.Equal(t, entity.CheckInPending, p.Status)
	assert.Equal(t, 1, p.Deficit())
	require.Len(t, p.Credentials, 2)
	assert.Equal(t, 1, p.Credentials[0].SequenceNumber, "ordered by sequence number")

	p.ApplyCredential(entity.Credential{ID: "c1", PurchaseID: "p1", SequenceNumber: 1, Status: entity.CredentialUsed, UsedAt: &firstUse, UsedBy: "door-1"})
	assert.Equal(t, entity.CheckInCheckedIn, p.Status)
	assert.Equal(t, firstUse, *p.CheckedInAt)

	// a duplicate scan observed later keeps the first use
	p.ApplyCredential(entity.Credential{ID: "c1", PurchaseID: "p1", SequenceNumber: 1, Status: entity.CredentialUsed, UsedAt: &laterUse, UsedBy: "door-2"})
	assert.Equal(t, "door-1", p.Credentials[0].UsedBy)
	assert.Equal(t, firstUse, *p.CheckedInAt)

	// late insert of the same credential
	p.ApplyCredential(entity.Credential{ID: "c1", PurchaseID: "p1", SequenceNumber: 1, Status: entity.CredentialActive})
	assert.Equal(t, entity.CredentialUsed, p.Credentials[0].Status)
	assert.Equal(t, entity.CheckInCheckedIn, p.Status)
}

func TestPurchaseView_Deficit_never_negative(t *testing.T) {
	p := entity.NewPurchaseView(entity.Purchase{ID: "p1", Quantity: 1}, []entity.Credential{
		{ID: "c1", SequenceNumber: 1, Status: entity.CredentialActive},
		{ID: "c2", SequenceNumber: 2, Status: entity.CredentialActive},
	}, nil)

	assert.Equal(t, 0, p.Deficit())
}

func TestNewPurchaseView_records(t *testing.T) {
	recordedAt := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)

	p := entity.NewPurchaseView(entity.Purchase{ID: "p1", Quantity: 1}, nil, []entity.CheckInRecord{
		{ID: "r1", PurchaseID: "p1", Status: entity.CheckInCheckedIn, RecordedAt: recordedAt},
		{ID: "r2", PurchaseID: "p1", Status: entity.CheckInNoShow, RecordedAt: recordedAt.Add(time.Hour)},
	})

	assert.Equal(t, entity.CheckInCheckedIn, p.Status)
	assert.Equal(t, recordedAt, *p.CheckedInAt)
}

func TestEventView_Clone(t *testing.T) {
	at := time.Now().UTC()
	view := entity.NewEventView("e1")
	view.Purchases["p1"] = entity.PurchaseView{
		Purchase:    entity.Purchase{ID: "p1"},
		Credentials: []entity.Credential{{ID: "c1", Status: entity.CredentialActive}},
		Status:      entity.CheckInCheckedIn,
		CheckedInAt: &at,
	}
	view.Unreadable = []string{"credentials"}

	clone := view.Clone()
	p := clone.Purchases["p1"]
	p.Credentials[0].Status = entity.CredentialCancelled
	*p.CheckedInAt = at.Add(time.Hour)
	clone.Purchases["p2"] = entity.PurchaseView{}
	clone.Unreadable[0] = "check_in_records"

	assert.Equal(t, entity.CredentialActive, view.Purchases["p1"].Credentials[0].Status)
	assert.Equal(t, at, *view.Purchases["p1"].CheckedInAt)
	assert.NotContains(t, view.Purchases, "p2")
	assert.False(t, view.Readable("credentials"))
	assert.True(t, view.Readable("check_in_records"))
}
