package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"attendance/entity"
)

// CredentialsRepository keeps credentials in memory with the same
// uniqueness and compare-and-set rules as the Postgres repository.
type CredentialsRepository struct {
	mu          sync.Mutex
	credentials map[string]entity.Credential
	records     *CheckInRecordsRepository

	AddFunc         func(ctx context.Context, credential entity.Credential) error
	ListByEventFunc func(ctx context.Context, eventID string) ([]entity.Credential, error)
	OnChange        func(change entity.RowChange)
}

// NewCredentialsRepository writes check-in records of MarkUsed to records,
// which may be nil.
func NewCredentialsRepository(records *CheckInRecordsRepository) *CredentialsRepository {
	return &CredentialsRepository{
		credentials: make(map[string]entity.Credential),
		records:     records,
	}
}

func (r *CredentialsRepository) Add(ctx context.Context, credential entity.Credential) error {
	if r.AddFunc != nil {
		if err := r.AddFunc(ctx, credential); err != nil {
			return err
		}
	}

	r.mu.Lock()
	for _, c := range r.credentials {
		if c.PurchaseID == credential.PurchaseID && c.SequenceNumber == credential.SequenceNumber {
			r.mu.Unlock()
			return fmt.Errorf(
				"credential %d of purchase %s: %w",
				credential.SequenceNumber,
				credential.PurchaseID,
				entity.ErrConflict,
			)
		}
	}
	r.credentials[credential.ID] = credential
	onChange := r.OnChange
	r.mu.Unlock()

	if onChange != nil {
		onChange(entity.NewCredentialChange(entity.OperationInsert, credential))
	}
	return nil
}

func (r *CredentialsRepository) Get(_ context.Context, credentialID string) (entity.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.credentials[credentialID]
	if !ok {
		return entity.Credential{}, fmt.Errorf("credential %s: %w", credentialID, entity.ErrNotFound)
	}
	return c, nil
}

func (r *CredentialsRepository) ListByPurchase(_ context.Context, purchaseID string) ([]entity.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(func(c entity.Credential) bool { return c.PurchaseID == purchaseID }), nil
}

func (r *CredentialsRepository) ListByEvent(ctx context.Context, eventID string) ([]entity.Credential, error) {
	if r.ListByEventFunc != nil {
		return r.ListByEventFunc(ctx, eventID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filter(func(c entity.Credential) bool { return c.EventID == eventID }), nil
}

func (r *CredentialsRepository) FirstActiveByPurchase(_ context.Context, purchaseID string) (entity.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	active := r.filter(func(c entity.Credential) bool {
		return c.PurchaseID == purchaseID && c.Status == entity.CredentialActive
	})
	if len(active) == 0 {
		return entity.Credential{}, fmt.Errorf("active credential of purchase %s: %w", purchaseID, entity.ErrNotFound)
	}
	return active[0], nil
}

func (r *CredentialsRepository) MarkUsed(
	ctx context.Context,
	credentialID string,
	actorID string,
	usedAt time.Time,
) (entity.Credential, entity.CheckInRecord, error) {
	r.mu.Lock()
	c, ok := r.credentials[credentialID]
	if !ok {
		r.mu.Unlock()
		return entity.Credential{}, entity.CheckInRecord{}, fmt.Errorf("credential %s: %w", credentialID, entity.ErrNotFound)
	}
	if c.Status != entity.CredentialActive {
		r.mu.Unlock()
		return c, entity.CheckInRecord{}, fmt.Errorf("credential %s is %s: %w", credentialID, c.Status, entity.ErrCredentialNotActive)
	}

	c.Status = entity.CredentialUsed
	c.UsedAt = &usedAt
	c.UsedBy = actorID
	r.credentials[credentialID] = c
	onChange := r.OnChange
	r.mu.Unlock()

	record := entity.CheckInRecord{
		ID:           uuid.NewString(),
		PurchaseID:   c.PurchaseID,
		EventID:      c.EventID,
		CredentialID: c.ID,
		ActorID:      actorID,
		Status:       entity.CheckInCheckedIn,
		RecordedAt:   usedAt,
	}
	if r.records != nil {
		r.records.store(record)
	}

	if onChange != nil {
		onChange(entity.NewCredentialChange(entity.OperationUpdate, c))
		onChange(entity.NewCheckInRecordChange(record))
	}

	return c, record, nil
}

// SetStatus overwrites a stored credential, e.g. to cancel it.
func (r *CredentialsRepository) SetStatus(credentialID string, status entity.CredentialStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.credentials[credentialID]
	c.Status = status
	r.credentials[credentialID] = c
}

func (r *CredentialsRepository) filter(keep func(c entity.Credential) bool) []entity.Credential {
	list := lo.Filter(lo.Values(r.credentials), func(c entity.Credential, _ int) bool { return keep(c) })
	sort.Slice(list, func(i, j int) bool {
		if list[i].PurchaseID != list[j].PurchaseID {
			return list[i].PurchaseID < list[j].PurchaseID
		}
		return list[i].SequenceNumber < list[j].SequenceNumber
	})
	return list
}

// CheckInRecordsRepository keeps check-in records in memory.
type CheckInRecordsRepository struct {
	mu      sync.Mutex
	records []entity.CheckInRecord

	ListByEventFunc func(ctx context.Context, eventID string) ([]entity.CheckInRecord, error)
	OnChange        func(change entity.RowChange)
}

func NewCheckInRecordsRepository() *CheckInRecordsRepository {
	return &CheckInRecordsRepository{}
}

func (r *CheckInRecordsRepository) Add(_ context.Context, record entity.CheckInRecord) error {
	if !r.store(record) {
		return nil
	}

	r.mu.Lock()
	onChange := r.OnChange
	r.mu.Unlock()
	if onChange != nil {
		onChange(entity.NewCheckInRecordChange(record))
	}
	return nil
}

func (r *CheckInRecordsRepository) ListByEvent(ctx context.Context, eventID string) ([]entity.CheckInRecord, error) {
	if r.ListByEventFunc != nil {
		return r.ListByEventFunc(ctx, eventID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Filter(r.records, func(rec entity.CheckInRecord, _ int) bool { return rec.EventID == eventID }), nil
}

func (r *CheckInRecordsRepository) ListByPurchase(_ context.Context, purchaseID string) ([]entity.CheckInRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Filter(r.records, func(rec entity.CheckInRecord, _ int) bool { return rec.PurchaseID == purchaseID }), nil
}

func (r *CheckInRecordsRepository) store(record entity.CheckInRecord) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if lo.ContainsBy(r.records, func(rec entity.CheckInRecord) bool { return rec.ID == record.ID }) {
		return false
	}
	r.records = append(r.records, record)
	return true
}
