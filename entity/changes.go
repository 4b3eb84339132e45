package entity

import (
	"time"

	"github.com/google/uuid"
)

type Table string

const (
	TablePurchases      Table = "purchases"
	TableTicketTiers    Table = "ticket_tiers"
	TableCheckInRecords Table = "check_in_records"
	TableCredentials    Table = "credentials"
)

// ChangeTables are the tables whose row changes a listener follows.
var ChangeTables = []Table{
	TablePurchases,
	TableTicketTiers,
	TableCheckInRecords,
	TableCredentials,
}

type Operation string

const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
)

type EventHeader struct {
	ID          string    `json:"id"`
	PublishedAt time.Time `json:"published_at"`
}

func NewEventHeader() EventHeader {
	return EventHeader{
		ID:          uuid.NewString(),
		PublishedAt: time.Now().UTC(),
	}
}

// RowChange is a row level mutation published on the change feed. Exactly
// one of the row fields is set, matching Table.
type RowChange struct {
	Header    EventHeader `json:"header"`
	Table     Table       `json:"table"`
	Operation Operation   `json:"operation"`
	EventID   string      `json:"event_id"`

	Purchase      *Purchase      `json:"purchase,omitempty"`
	TicketTier    *TicketTier    `json:"ticket_tier,omitempty"`
	Credential    *Credential    `json:"credential,omitempty"`
	CheckInRecord *CheckInRecord `json:"check_in_record,omitempty"`
}

// PurchaseID returns the purchase the change belongs to, if any.
func (c RowChange) PurchaseID() string {
	switch {
	case c.Purchase != nil:
		return c.Purchase.ID
	case c.Credential != nil:
		return c.Credential.PurchaseID
	case c.CheckInRecord != nil:
		return c.CheckInRecord.PurchaseID
	}
	return ""
}

func NewPurchaseChange(op Operation, p Purchase) RowChange {
	return RowChange{Header: NewEventHeader(), Table: TablePurchases, Operation: op, EventID: p.EventID, Purchase: &p}
}

func NewTicketTierChange(op Operation, t TicketTier) RowChange {
	return RowChange{Header: NewEventHeader(), Table: TableTicketTiers, Operation: op, EventID: t.EventID, TicketTier: &t}
}

func NewCredentialChange(op Operation, c Credential) RowChange {
	return RowChange{Header: NewEventHeader(), Table: TableCredentials, Operation: op, EventID: c.EventID, Credential: &c}
}

func NewCheckInRecordChange(r CheckInRecord) RowChange {
	return RowChange{Header: NewEventHeader(), Table: TableCheckInRecords, Operation: OperationInsert, EventID: r.EventID, CheckInRecord: &r}
}
