package checkin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"attendance/entity"
	"attendance/metrics"
)

type CredentialsRepository interface {
	Get(ctx context.Context, credentialID string) (entity.Credential, error)
	ListByPurchase(ctx context.Context, purchaseID string) ([]entity.Credential, error)
	FirstActiveByPurchase(ctx context.Context, purchaseID string) (entity.Credential, error)
	MarkUsed(ctx context.Context, credentialID, actorID string, usedAt time.Time) (entity.Credential, entity.CheckInRecord, error)
}

type EventsRepository interface {
	Get(ctx context.Context, eventID string) (entity.Event, error)
}

type PurchasesRepository interface {
	Get(ctx context.Context, purchaseID string) (entity.Purchase, error)
}

type CheckInRecordsRepository interface {
	Add(ctx context.Context, record entity.CheckInRecord) error
	ListByPurchase(ctx context.Context, purchaseID string) ([]entity.CheckInRecord, error)
}

type ScanMemory interface {
	Has(purchaseID string) bool
	Record(ctx context.Context, purchaseID string) (bool, error)
}

// maxPurchaseAttempts bounds how often a manual check-in moves on to the next
// active credential after losing a race for the previous one.
const maxPurchaseAttempts = 5

type Service struct {
	credentials CredentialsRepository
	events      EventsRepository
	purchases   PurchasesRepository
	records     CheckInRecordsRepository
	scanMemory  ScanMemory

	now func() time.Time
}

func NewService(
	credentials CredentialsRepository,
	events EventsRepository,
	purchases PurchasesRepository,
	records CheckInRecordsRepository,
	scanMemory ScanMemory,
) *Service {
	if credentials == nil {
		panic("missing credentials")
	}
	if events == nil {
		panic("missing events")
	}
	if purchases == nil {
		panic("missing purchases")
	}
	if records == nil {
		panic("missing records")
	}
	if scanMemory == nil {
		panic("missing scanMemory")
	}

	return &Service{
		credentials: credentials,
		events:      events,
		purchases:   purchases,
		records:     records,
		scanMemory:  scanMemory,
		now:         time.Now,
	}
}

// CheckIn marks a scanned credential as used. Scanning an already used
// credential is a successful no-op reported through AlreadyCheckedIn.
func (s *Service) CheckIn(ctx context.Context, credentialID, actorID string) (entity.CheckInResult, error) {
	ctx, span := otel.Tracer("").Start(ctx, "checkin.CheckIn")
	span.SetAttributes(attribute.String("credential_id", credentialID))
	defer span.End()

	credential, err := s.credentials.Get(ctx, credentialID)
	if err != nil {
		return entity.CheckInResult{}, fmt.Errorf("could not get credential: %w", err)
	}

	return s.checkInCredential(ctx, credential, actorID)
}

// CheckInPurchase checks in the active credential with the lowest sequence
// number, for attendees checked in by hand instead of by scan.
func (s *Service) CheckInPurchase(ctx context.Context, purchaseID, actorID string) (entity.CheckInResult, error) {
	ctx, span := otel.Tracer("").Start(ctx, "checkin.CheckInPurchase")
	span.SetAttributes(attribute.String("purchase_id", purchaseID))
	defer span.End()

	for attempt := 0; attempt < maxPurchaseAttempts; attempt++ {
		credential, err := s.credentials.FirstActiveByPurchase(ctx, purchaseID)
		if errors.Is(err, entity.ErrNotFound) {
			return s.noActiveCredential(ctx, purchaseID)
		}
		if err != nil {
			return entity.CheckInResult{}, fmt.Errorf("could not get active credential: %w", err)
		}

		result, err := s.checkInCredential(ctx, credential, actorID)
		if err != nil {
			return entity.CheckInResult{}, err
		}
		if !result.AlreadyCheckedIn {
			return result, nil
		}

		log.FromContext(ctx).
			WithField("credential_id", credential.ID).
			Debug("Credential taken by a concurrent check-in, trying the next one")
	}

	return entity.CheckInResult{}, fmt.Errorf("could not check in purchase %s: %w", purchaseID, entity.ErrConflict)
}

// MarkNoShow labels a purchase as not attended. The label is refused for
// purchases known to be checked in.
func (s *Service) MarkNoShow(ctx context.Context, purchaseID, actorID string) (entity.CheckInRecord, error) {
	if s.scanMemory.Has(purchaseID) {
		return entity.CheckInRecord{}, fmt.Errorf("purchase %s: %w", purchaseID, entity.ErrAlreadyCheckedIn)
	}

	purchase, err := s.purchases.Get(ctx, purchaseID)
	if err != nil {
		return entity.CheckInRecord{}, fmt.Errorf("could not get purchase: %w", err)
	}

	credentials, err := s.credentials.ListByPurchase(ctx, purchaseID)
	if err != nil {
		return entity.CheckInRecord{}, fmt.Errorf("could not list credentials: %w", err)
	}
	if lo.ContainsBy(credentials, func(c entity.Credential) bool { return c.Status == entity.CredentialUsed }) {
		return entity.CheckInRecord{}, fmt.Errorf("purchase %s: %w", purchaseID, entity.ErrAlreadyCheckedIn)
	}

	records, err := s.records.ListByPurchase(ctx, purchaseID)
	if err != nil {
		return entity.CheckInRecord{}, fmt.Errorf("could not list check-in records: %w", err)
	}
	if lo.ContainsBy(records, func(r entity.CheckInRecord) bool { return r.Status == entity.CheckInCheckedIn }) {
		return entity.CheckInRecord{}, fmt.Errorf("purchase %s: %w", purchaseID, entity.ErrAlreadyCheckedIn)
	}

	record := entity.CheckInRecord{
		ID:         uuid.NewString(),
		PurchaseID: purchaseID,
		EventID:    purchase.EventID,
		ActorID:    actorID,
		Status:     entity.CheckInNoShow,
		RecordedAt: s.now().UTC(),
	}
	if err := s.records.Add(ctx, record); err != nil {
		return entity.CheckInRecord{}, fmt.Errorf("could not add no-show record: %w", err)
	}

	log.FromContext(ctx).WithField("purchase_id", purchaseID).Info("Purchase marked as no-show")

	return record, nil
}

func (s *Service) checkInCredential(ctx context.Context, credential entity.Credential, actorID string) (entity.CheckInResult, error) {
	logger := log.FromContext(ctx).WithFields(logrus.Fields{
		"credential_id": credential.ID,
		"purchase_id":   credential.PurchaseID,
		"actor_id":      actorID,
	})

	switch {
	case credential.Status == entity.CredentialUsed:
		return s.alreadyCheckedIn(ctx, credential), nil
	case credential.Status != entity.CredentialActive:
		return entity.CheckInResult{}, fmt.Errorf(
			"credential %s is %s: %w",
			credential.ID,
			credential.Status,
			entity.ErrCredentialNotActive,
		)
	}

	event, err := s.events.Get(ctx, credential.EventID)
	if err != nil {
		return entity.CheckInResult{}, fmt.Errorf("could not get event: %w", err)
	}

	now := s.now().UTC()
	if event.CheckInClosed(now) {
		return entity.CheckInResult{}, fmt.Errorf("event %s: %w", event.ID, entity.ErrCheckInClosed)
	}

	used, record, err := s.credentials.MarkUsed(ctx, credential.ID, actorID, now)
	if errors.Is(err, entity.ErrCredentialNotActive) && used.Status == entity.CredentialUsed {
		// lost the race against a concurrent scan
		return s.alreadyCheckedIn(ctx, used), nil
	}
	if err != nil {
		return entity.CheckInResult{}, fmt.Errorf("could not mark credential as used: %w", err)
	}

	s.remember(ctx, used.PurchaseID)
	metrics.CheckIns.WithLabelValues("new").Inc()
	logger.Info("Checked in")

	return entity.CheckInResult{Record: record, Credential: used}, nil
}

func (s *Service) alreadyCheckedIn(ctx context.Context, credential entity.Credential) entity.CheckInResult {
	s.remember(ctx, credential.PurchaseID)
	metrics.CheckIns.WithLabelValues("already").Inc()

	return entity.CheckInResult{
		Record:           s.existingRecord(ctx, credential),
		Credential:       credential,
		AlreadyCheckedIn: true,
	}
}

// existingRecord finds the record written by the original check-in. When
// records can't be read it is rebuilt from the credential.
func (s *Service) existingRecord(ctx context.Context, credential entity.Credential) entity.CheckInRecord {
	records, err := s.records.ListByPurchase(ctx, credential.PurchaseID)
	if err != nil {
		log.FromContext(ctx).WithError(err).Warn("Could not read check-in records, rebuilding from credential")
	}

	record, ok := lo.Find(records, func(r entity.CheckInRecord) bool {
		return r.CredentialID == credential.ID && r.Status == entity.CheckInCheckedIn
	})
	if ok {
		return record
	}

	recordedAt := s.now().UTC()
	if credential.UsedAt != nil {
		recordedAt = *credential.UsedAt
	}

	return entity.CheckInRecord{
		PurchaseID:   credential.PurchaseID,
		EventID:      credential.EventID,
		CredentialID: credential.ID,
		ActorID:      credential.UsedBy,
		Status:       entity.CheckInCheckedIn,
		RecordedAt:   recordedAt,
	}
}

func (s *Service) noActiveCredential(ctx context.Context, purchaseID string) (entity.CheckInResult, error) {
	credentials, err := s.credentials.ListByPurchase(ctx, purchaseID)
	if err != nil {
		return entity.CheckInResult{}, fmt.Errorf("could not list credentials: %w", err)
	}
	if len(credentials) == 0 {
		return entity.CheckInResult{}, fmt.Errorf("purchase %s: %w", purchaseID, entity.ErrNoCredentials)
	}

	used, ok := lo.Find(credentials, func(c entity.Credential) bool { return c.Status == entity.CredentialUsed })
	if !ok {
		return entity.CheckInResult{}, fmt.Errorf(
			"no usable credential for purchase %s: %w",
			purchaseID,
			entity.ErrCredentialNotActive,
		)
	}

	return s.alreadyCheckedIn(ctx, used), nil
}

func (s *Service) remember(ctx context.Context, purchaseID string) {
	if _, err := s.scanMemory.Record(ctx, purchaseID); err != nil {
		log.FromContext(ctx).WithError(err).WithField("purchase_id", purchaseID).Warn("Could not persist scan memory")
	}
}
